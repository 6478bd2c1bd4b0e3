// Package pgtest opens a migrated PostgreSQL database for store tests.
// Tests calling Open are skipped unless TS_TEST_POSTGRES_DSN is set.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/migration"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
)

const dsnEnv = "TS_TEST_POSTGRES_DSN"

// Open connects, migrates, truncates every table and registers Close.
func Open(t testing.TB) *postgres.Client {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set; skipping postgres test", dsnEnv)
	}
	db, err := postgres.Open(dsn, config.PostgresConfig{MaxOpenConns: 20, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migration.Up(db.DB); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.DB.ExecContext(ctx, `
		TRUNCATE credit_transactions, credits, search_stages, search_history,
		         campaign_recipients, sequence_steps, email_sequences, campaigns,
		         shortlists, candidate_skills, candidate_education, candidate_experience,
		         candidates, analytics_snapshots
		RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncating: %v", err)
	}
	return db
}
