// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev     bool
	Console bool // read messages from stdin instead of Telegram
}

type BotConfig struct {
	Token              string  `yaml:"token"`
	Username           string  `yaml:"username"`
	Workers            int     `yaml:"workers"` // update dispatch workers
	AdminIDs           []int64 `yaml:"admin_ids"`
	RateLimitPerMinute int     `yaml:"rate_limit_per_minute"` // 0 disables
	PollTimeout        int     `yaml:"poll_timeout"`          // long polling timeout, seconds
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider         string        `yaml:"provider"` // openai | gemini | noop
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiURL        string        `yaml:"gemini_url"`
	DefaultModel     string        `yaml:"default_model"`
	ConcurrentLimit  int           `yaml:"concurrent_limit"`   // max concurrent AI calls
	MaxContextTokens int           `yaml:"max_context_tokens"` // model context window
	Timeout          time.Duration `yaml:"timeout"`
}

type ChatConfig struct {
	SystemPrompt string        `yaml:"system_prompt"`
	TokenBudget  int           `yaml:"token_budget"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	LockWait     time.Duration `yaml:"lock_wait"` // max queueing for a busy user's lock
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Chat     ChatConfig     `yaml:"chat"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNoop   = "noop"
)

// LoadConfig parses -config, -dev and -console from the command line and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev, console bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.BoolVar(&console, "console", false, "chat on stdin/stdout instead of Telegram (requires -dev)")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b, dev)
	if err != nil {
		return nil, err
	}
	if console && !dev {
		return nil, errors.New("-console requires -dev")
	}
	cfg.Runtime.Console = console
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.PollTimeout <= 0 {
		cfg.Bot.PollTimeout = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		switch {
		case cfg.AI.OpenAIKey != "":
			cfg.AI.Provider = ProviderOpenAI
		case cfg.AI.GeminiKey != "":
			cfg.AI.Provider = ProviderGemini
		case cfg.Runtime.Dev:
			cfg.AI.Provider = ProviderNoop
		}
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-3.5-turbo"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.MaxContextTokens <= 0 {
		cfg.AI.MaxContextTokens = 4096
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}

	if cfg.Chat.SystemPrompt == "" {
		cfg.Chat.SystemPrompt = "You are a helpful assistant."
	}
	if cfg.Chat.TokenBudget <= 0 {
		cfg.Chat.TokenBudget = 3596
	}
	if cfg.Chat.LockTTL <= 0 {
		cfg.Chat.LockTTL = 2 * time.Minute
	}
	if cfg.Chat.LockWait <= 0 {
		cfg.Chat.LockWait = 10 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Bot.Token == "" && !cfg.Runtime.Dev {
		return errors.New("bot.token is required")
	}
	if !cfg.Runtime.Dev {
		if cfg.Database.URL == "" {
			return errors.New("database.url is required")
		}
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required")
		}
	}
	switch cfg.AI.Provider {
	case ProviderOpenAI:
		if cfg.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case ProviderGemini:
		if cfg.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case ProviderNoop:
		if !cfg.Runtime.Dev {
			return errors.New("ai.provider noop is only allowed with -dev")
		}
	case "":
		return errors.New("ai.provider is required (or set an API key)")
	default:
		return fmt.Errorf("unknown ai.provider %q", cfg.AI.Provider)
	}
	if cfg.Chat.TokenBudget >= cfg.AI.MaxContextTokens {
		return fmt.Errorf("chat.token_budget (%d) must leave room below ai.max_context_tokens (%d)",
			cfg.Chat.TokenBudget, cfg.AI.MaxContextTokens)
	}
	if cfg.Chat.LockTTL <= cfg.AI.Timeout {
		return fmt.Errorf("chat.lock_ttl (%s) must exceed ai.timeout (%s)", cfg.Chat.LockTTL, cfg.AI.Timeout)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
