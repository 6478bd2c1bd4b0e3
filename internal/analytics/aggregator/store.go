// Package aggregator persists analytics snapshots to PostgreSQL on a cron
// schedule and restores running totals at startup.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
	"github.com/robfig/cron/v3"
)

// Store reads and writes the analytics_snapshots table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

var _ analytics.SnapshotLister = (*Store)(nil)

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	if _, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, time.Now().UTC(),
	); err != nil {
		return apperrors.Storage("saving analytics snapshot", err)
	}
	s.logger.Info("analytics snapshot saved",
		"searches_initiated", stats.SearchesInitiated,
		"credits_spent", stats.CreditsSpent,
	)
	return nil
}

// LatestSnapshot returns nil, nil when no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	snap, err := scanSnapshot(s.db.DB.QueryRowContext(ctx,
		`SELECT id, captured_at, data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage("reading latest snapshot", err)
	}
	return &snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, captured_at, data FROM analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, apperrors.Storage("listing snapshots", err)
	}
	defer rows.Close()

	var out []analytics.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterating snapshots", err)
	}
	return out, nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (analytics.Snapshot, error) {
	var (
		snap analytics.Snapshot
		data []byte
	)
	if err := row.Scan(&snap.ID, &snap.CapturedAt, &data); err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap.Stats); err != nil {
		return snap, fmt.Errorf("unmarshaling snapshot %d: %w", snap.ID, err)
	}
	return snap, nil
}

// Restore loads the latest snapshot into agg, if any.
func (s *Store) Restore(ctx context.Context, agg *analytics.Aggregator) error {
	snap, err := s.LatestSnapshot(ctx)
	if err != nil || snap == nil {
		return err
	}
	agg.Restore(snap.Stats)
	s.logger.Info("analytics totals restored", "snapshot_id", snap.ID, "captured_at", snap.CapturedAt)
	return nil
}

// Scheduler snapshots an aggregator on a cron schedule.
type Scheduler struct {
	store *Store
	agg   *analytics.Aggregator
	cron  *cron.Cron
}

// Schedule starts saving agg's stats on schedule (for example "@every 5m").
func (s *Store) Schedule(schedule string, agg *analytics.Aggregator) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	sch := &Scheduler{store: s, agg: agg, cron: c}
	if _, err := c.AddFunc(schedule, sch.save); err != nil {
		return nil, fmt.Errorf("scheduling analytics snapshots %q: %w", schedule, err)
	}
	c.Start()
	s.logger.Info("periodic snapshot scheduled", "schedule", schedule)
	return sch, nil
}

func (sch *Scheduler) save() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sch.store.SaveSnapshot(ctx, sch.agg.Stats()); err != nil {
		sch.store.logger.Error("periodic snapshot failed", "error", err)
	}
}

// Stop halts the schedule and writes a final snapshot.
func (sch *Scheduler) Stop() {
	<-sch.cron.Stop().Done()
	sch.save()
}
