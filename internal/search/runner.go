package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/tracing"
	"golang.org/x/sync/semaphore"
)

// ErrRunnerClosed is returned by Submit after Shutdown has begun.
var ErrRunnerClosed = apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "search runner is shutting down")

const reasonShutdown = "shutdown"

// Counter counts candidates matching a filter.
type Counter interface {
	Count(ctx context.Context, f candidate.Filter) (int, error)
}

// StageHook runs inside a stage while it is loading. Returning an error
// fails the job.
type StageHook func(ctx context.Context, job Job, stage Stage) error

// RunnerConfig bounds pipeline execution.
type RunnerConfig struct {
	StageMin      time.Duration
	StageMax      time.Duration
	MaxConcurrent int64
	// ResultCount is reported when no Counter is wired.
	ResultCount int
}

// Runner executes job pipelines on detached goroutines. Stages of one job run
// strictly in order; different jobs run independently, at most
// MaxConcurrent at a time.
type Runner struct {
	store   Store
	cfg     RunnerConfig
	counter Counter
	hook    StageHook
	metrics *metrics.Metrics
	events  analytics.Sink
	logger  *slog.Logger
	now     func() time.Time

	sem    *semaphore.Weighted
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type RunnerOption func(*Runner)

// WithCounter supplies the result count recorded on completion.
func WithCounter(c Counter) RunnerOption {
	return func(r *Runner) { r.counter = c }
}

// WithStageHook runs h inside each stage while it is loading.
func WithStageHook(h StageHook) RunnerOption {
	return func(r *Runner) { r.hook = h }
}

// WithRunnerMetrics records stage timings and job outcomes on m.
func WithRunnerMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerEvents publishes stage and job outcomes to sink.
func WithRunnerEvents(sink analytics.Sink) RunnerOption {
	return func(r *Runner) { r.events = sink }
}

func NewRunner(store Store, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	base, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:  store,
		cfg:    cfg,
		events: analytics.Discard,
		logger: slog.Default().With("component", "search-runner"),
		now:    func() time.Time { return time.Now().UTC() },
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		base:   base,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit schedules job's pipeline and returns immediately.
func (r *Runner) Submit(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	go r.run(job)
	return nil
}

// Shutdown stops accepting jobs and waits for in-flight pipelines. When ctx
// expires first, remaining pipelines are cancelled and their jobs marked
// failed before Shutdown returns ctx's error.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn("shutdown deadline reached, cancelling in-flight pipelines")
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) run(job Job) {
	defer r.wg.Done()
	log := r.logger.With("search_id", job.ID, "account_id", job.AccountID)

	ctx, span := tracing.StartSpan(r.base, "search.pipeline", "search-"+strconv.FormatInt(job.ID, 10))
	span.SetAttr("stages", len(job.Stages))

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			log.Error("pipeline panicked", "panic", p)
			r.fail(job, err.Error())
		}
		span.End(err)
		span.Log(log)
	}()

	if err = r.sem.Acquire(ctx, 1); err != nil {
		r.fail(job, reasonShutdown)
		return
	}
	defer r.sem.Release(1)

	r.metrics.PipelineStarted()
	defer r.metrics.PipelineDone()

	started := r.now()
	var count int
	count, err = r.execute(ctx, job)
	if err != nil {
		reason := err.Error()
		if r.base.Err() != nil {
			reason = reasonShutdown
		}
		log.Error("pipeline failed", "error", err)
		r.fail(job, reason)
		return
	}

	elapsed := r.now().Sub(started)
	r.metrics.SearchJob("completed")
	r.metrics.PipelineFinished(elapsed)
	log.Info("search completed", "result_count", count, "duration", elapsed)
	r.events.Track(analytics.Event{
		Type:        analytics.EventSearchCompleted,
		AccountID:   job.AccountID,
		JobID:       job.ID,
		ResultCount: count,
		DurationMs:  elapsed.Milliseconds(),
		Timestamp:   r.now(),
	})
}

// execute walks the stages in order and completes the job.
func (r *Runner) execute(ctx context.Context, job Job) (int, error) {
	count := r.cfg.ResultCount
	for _, stage := range job.Stages {
		stageCtx, span := tracing.StartChildSpan(ctx, stage.Name)
		n, err := r.runStage(stageCtx, job, stage)
		span.End(err)
		if err != nil {
			return 0, fmt.Errorf("stage %q: %w", stage.Name, err)
		}
		if n >= 0 {
			count = n
		}
	}
	if err := r.store.CompleteJob(ctx, job.ID, count, r.now()); err != nil {
		return 0, err
	}
	return count, nil
}

// runStage returns the matched candidate count when the stage produced one,
// or -1.
func (r *Runner) runStage(ctx context.Context, job Job, stage Stage) (int, error) {
	startedAt := r.now()
	if err := r.store.StartStage(ctx, job.ID, stage.Index, startedAt); err != nil {
		return -1, err
	}
	minDone := time.NewTimer(r.cfg.StageMin)
	defer minDone.Stop()

	count := -1
	err := resilience.WithTimeout(ctx, r.cfg.StageMax, stage.Name, func(ctx context.Context) error {
		if r.hook != nil {
			if err := r.hook(ctx, job, stage); err != nil {
				return err
			}
		}
		if stage.Index == 0 && r.counter != nil {
			n, err := r.counter.Count(ctx, job.Filters)
			if err != nil {
				return err
			}
			count = n
		}
		return nil
	})
	if err != nil {
		return -1, err
	}

	select {
	case <-minDone.C:
	case <-ctx.Done():
		return -1, ctx.Err()
	}

	completedAt := r.now()
	if err := r.store.CompleteStage(ctx, job.ID, stage.Index, completedAt); err != nil {
		return -1, err
	}
	r.metrics.StageDuration(stage.Name, completedAt.Sub(startedAt))
	r.events.Track(analytics.Event{
		Type:       analytics.EventStageCompleted,
		AccountID:  job.AccountID,
		JobID:      job.ID,
		Stage:      stage.Name,
		DurationMs: completedAt.Sub(startedAt).Milliseconds(),
		Timestamp:  completedAt,
	})
	return count, nil
}

// fail records the terminal failure on a context detached from the pipeline
// so it still lands during shutdown.
func (r *Runner) fail(job Job, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := resilience.Retry(ctx, "search.fail_job", resilience.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 50 * time.Millisecond,
		ShouldRetry: func(err error) bool {
			return !errors.Is(err, ErrTransition) && !errors.Is(err, apperrors.ErrNotFound)
		},
	}, func(ctx context.Context) error {
		return r.store.FailJob(ctx, job.ID, reason, r.now())
	})
	if err != nil {
		r.logger.Error("marking search failed", "search_id", job.ID, "reason", reason, "error", err)
		return
	}
	r.metrics.SearchJob("failed")
	r.events.Track(analytics.Event{
		Type:      analytics.EventSearchFailed,
		AccountID: job.AccountID,
		JobID:     job.ID,
		Reason:    reason,
		Timestamp: r.now(),
	})
}
