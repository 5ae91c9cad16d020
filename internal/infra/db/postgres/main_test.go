//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

var testPool *pgxpool.Pool

// TestMain uses TEST_DATABASE_URL when set. Otherwise it starts a throwaway
// postgres container on a free loopback port. Either way the schema from
// deploy/postgres/init.sql is loaded before the tests run.
func TestMain(m *testing.M) {
	os.Exit(runWithDatabase(m))
}

func runWithDatabase(m *testing.M) int {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("suite", "postgres").Logger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		id, url, err := startPostgres(ctx)
		if err != nil {
			log.Error().Err(err).Msg("start postgres container, is docker running?")
			return 1
		}
		defer func() {
			if err := exec.Command("docker", "stop", id).Run(); err != nil {
				log.Warn().Err(err).Str("container", id).Msg("stop container")
			}
		}()
		dsn = url
	}

	pool, err := waitForPool(ctx, dsn)
	if err != nil {
		log.Error().Err(err).Msg("database never became ready")
		return 1
	}
	defer pool.Close()
	testPool = pool

	if err := loadSchema(ctx, pool); err != nil {
		log.Error().Err(err).Msg("load schema")
		return 1
	}
	return m.Run()
}

func startPostgres(ctx context.Context) (id, dsn string, err error) {
	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=coach",
		"-e", "POSTGRES_PASSWORD=coach",
		"-e", "POSTGRES_DB=coachhire_test",
		"postgres:16-alpine",
	).Output()
	if err != nil {
		return "", "", err
	}
	id = strings.TrimSpace(string(out))
	port, err := exec.CommandContext(ctx, "docker", "port", id, "5432/tcp").Output()
	if err != nil {
		return id, "", fmt.Errorf("docker port: %w", err)
	}
	// first line is the IPv4 binding, e.g. 127.0.0.1:49153
	addr, _, _ := strings.Cut(strings.TrimSpace(string(port)), "\n")
	return id, fmt.Sprintf("postgres://coach:coach@%s/coachhire_test?sslmode=disable", addr), nil
}

func waitForPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		pool, err := pgxpool.Connect(ctx, dsn)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-tick.C:
		}
	}
}

func loadSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, here, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(here), "..", "..", "..", "..", "deploy", "postgres", "init.sql")
	sql, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, string(sql))
	return err
}

// cleanup empties every table so each test starts from a blank schema.
func cleanup(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
		TRUNCATE
			jobs, ai_decision_logs, ai_cost_records, ai_cost_daily, human_review_tasks,
			ai_config, model_pricing, inbound_emails, enquiries, suppliers,
			supplier_quotes, customer_quotes, bookings
	`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
