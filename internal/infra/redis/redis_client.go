package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"telegram-gpt-relay/internal/config"
	"telegram-gpt-relay/internal/domain"
)

// EmbeddedURL selects an in-process miniredis instead of a server.
const EmbeddedURL = "miniredis"

type RedisClient interface {
	Ping(ctx context.Context) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

var _ RedisClient = (*Client)(nil)

type Client struct {
	cli  *redis.Client
	mini *miniredis.Miniredis
}

// NewClient connects to cfg.URL, which is either host:port, a redis:// URL or EmbeddedURL.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	var (
		opts *redis.Options
		mini *miniredis.Miniredis
		err  error
	)
	switch {
	case cfg.URL == EmbeddedURL:
		mini, err = miniredis.Run()
		if err != nil {
			return nil, err
		}
		opts = &redis.Options{Addr: mini.Addr()}
	case strings.HasPrefix(cfg.URL, "redis://"), strings.HasPrefix(cfg.URL, "rediss://"):
		opts, err = redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
	default:
		opts = &redis.Options{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}
	}

	c := &Client{cli: redis.NewClient(opts), mini: mini}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Raw exposes the underlying client for scripts and pipelines.
func (c *Client) Raw() *redis.Client { return c.cli }

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.cli.Set(ctx, key, value, expiration).Err()
}

// Get returns domain.ErrNotFound for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	return v, err
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.cli.Incr(ctx, key).Result()
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.cli.Expire(ctx, key, expiration).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.cli.Del(ctx, keys...).Err()
}

func (c *Client) Close() error {
	err := c.cli.Close()
	if c.mini != nil {
		c.mini.Close()
	}
	return err
}
