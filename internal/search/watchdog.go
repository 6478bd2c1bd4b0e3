package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// Watchdog periodically reports jobs that have been processing for longer
// than a threshold. It only observes; it never changes job state.
type Watchdog struct {
	store     Store
	threshold time.Duration
	schedule  string
	cron      *cron.Cron
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewWatchdog(store Store, threshold time.Duration, schedule string, m *metrics.Metrics) *Watchdog {
	logger := slog.Default().With("component", "search-watchdog")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Watchdog{
		store:     store,
		threshold: threshold,
		schedule:  schedule,
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger))),
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the check on the schedule and starts the scheduler.
func (w *Watchdog) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := w.Check(ctx); err != nil {
			w.logger.Error("stuck search check failed", "error", err)
		}
	}); err != nil {
		return err
	}
	w.logger.Info("scheduled stuck search check", "schedule", w.schedule, "threshold", w.threshold)
	w.cron.Start()
	return nil
}

// Stop halts the scheduler and returns a context done when running checks
// have finished.
func (w *Watchdog) Stop() context.Context {
	return w.cron.Stop()
}

// Check lists stuck jobs, logs each and updates the gauge.
func (w *Watchdog) Check(ctx context.Context) ([]Job, error) {
	stuck, err := w.store.ListStuck(ctx, w.now().Add(-w.threshold))
	if err != nil {
		return nil, err
	}
	for _, j := range stuck {
		w.logger.Warn("search stuck in processing",
			"search_id", j.ID,
			"account_id", j.AccountID,
			"age", w.now().Sub(j.CreatedAt).Round(time.Second),
		)
	}
	w.metrics.SetStuckJobs(len(stuck))
	return stuck, nil
}
