//go:build integration

package postgres

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-gpt-relay/internal/config"
)

// testPool is shared by every integration test in the package. Point TEST_DATABASE_URL at a
// running server to skip the throwaway docker container.
var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	url := os.Getenv("TEST_DATABASE_URL")
	stop := func() {}
	if url == "" {
		var err error
		url, stop, err = startContainer()
		if err != nil {
			log.Fatalf("postgres container: %v (is docker running?)", err)
		}
	}

	pool, err := connectWithRetry(ctx, url, 15)
	if err != nil {
		stop()
		log.Fatalf("connect test database: %v", err)
	}
	testPool = pool

	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		stop()
		log.Fatalf("apply schema: %v", err)
	}

	code := m.Run()
	pool.Close()
	stop()
	os.Exit(code)
}

func startContainer() (string, func(), error) {
	const user, password, db, port = "relay", "relay", "relay_test", "55432"
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"-p", port+":5432",
		"-e", "POSTGRES_DB="+db,
		"-e", "POSTGRES_USER="+user,
		"-e", "POSTGRES_PASSWORD="+password,
		"postgres:16-alpine",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", nil, err
	}
	id := strings.TrimSpace(out.String())
	stop := func() {
		if err := exec.Command("docker", "stop", id).Run(); err != nil {
			log.Printf("stop container %s: %v", id, err)
		}
	}
	url := fmt.Sprintf("postgres://%s:%s@localhost:%s/%s?sslmode=disable", user, password, port, db)
	return url, stop, nil
}

func connectWithRetry(ctx context.Context, url string, attempts int) (*pgxpool.Pool, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := NewPgxPool(ctx, &config.DatabaseConfig{URL: url, MaxConns: 4})
		if err == nil {
			return pool, nil
		}
		lastErr = err
		time.Sleep(2 * time.Second)
	}
	return nil, lastErr
}

// applySchema loads deploy/postgres/init.sql from the module root.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
	schema, err := os.ReadFile(filepath.Join(dir, "deploy", "postgres", "init.sql"))
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, string(schema))
	return err
}

func cleanup(t *testing.T) {
	t.Helper()
	if _, err := testPool.Exec(context.Background(),
		`TRUNCATE chat_records, chat_exchanges RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
