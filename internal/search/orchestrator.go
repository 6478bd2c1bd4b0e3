package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pagination"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
)

const maxQueryLength = 500

// ResultSource lists candidates for the results endpoint.
type ResultSource interface {
	List(ctx context.Context, f candidate.Filter, p pagination.Params) (*candidate.Page, error)
}

// Orchestrator charges for searches, records jobs and hands them to the
// Runner. It never blocks on pipeline execution.
type Orchestrator struct {
	ledger     *ledger.Ledger
	store      Store
	runner     *Runner
	results    ResultSource
	cost       int64
	stageNames []string
	metrics    *metrics.Metrics
	events     analytics.Sink
	logger     *slog.Logger
}

type Option func(*Orchestrator)

// WithMetrics counts initiated jobs on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithEvents publishes search.initiated to sink.
func WithEvents(sink analytics.Sink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithStageNames overrides DefaultStageNames.
func WithStageNames(names ...string) Option {
	return func(o *Orchestrator) { o.stageNames = names }
}

func NewOrchestrator(l *ledger.Ledger, store Store, runner *Runner, results ResultSource, cost int64, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:     l,
		store:      store,
		runner:     runner,
		results:    results,
		cost:       cost,
		stageNames: DefaultStageNames,
		events:     analytics.Discard,
		logger:     slog.Default().With("component", "search-orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// chargeDescription is "Search: " plus the first 30 characters of query.
func chargeDescription(query string) string {
	if utf8.RuneCountInString(query) > 30 {
		query = string([]rune(query)[:30])
	}
	return "Search: " + query + "..."
}

// InitiateSearch charges the account, persists the job with all stages
// pending and schedules its pipeline. Insufficient credits fail the call
// before any job exists. If the job cannot be recorded the charge is
// refunded. If it is recorded but cannot be scheduled, for instance during
// shutdown, the job row stays behind marked failed and the charge is
// refunded.
func (o *Orchestrator) InitiateSearch(ctx context.Context, accountID int64, query string, filters candidate.Filter) (int64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, apperrors.Validation("query", "must not be empty")
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		return 0, apperrors.Validation("query", "must be at most 500 characters")
	}
	filters = filters.Normalize()
	log := logger.FromContext(ctx).With("component", "search-orchestrator")

	if _, err := o.ledger.Deduct(ctx, accountID, o.cost, chargeDescription(query)); err != nil {
		return 0, err
	}

	id, err := o.store.CreateJob(ctx, NewJob{
		AccountID:      accountID,
		Query:          query,
		Filters:        filters,
		CreditsCharged: o.cost,
		StageNames:     o.stageNames,
	})
	if err != nil {
		log.Error("creating search job failed, refunding", "error", err)
		o.refund(ctx, accountID, "Refund: search could not be created")
		return 0, err
	}

	job, err := o.store.GetJob(ctx, id)
	if err == nil {
		err = o.runner.Submit(job)
	}
	if err != nil {
		log.Error("scheduling search failed", "search_id", id, "error", err)
		bg := context.WithoutCancel(ctx)
		if ferr := o.store.FailJob(bg, id, reasonShutdown, time.Now().UTC()); ferr != nil {
			log.Error("marking unscheduled search failed", "search_id", id, "error", ferr)
		}
		o.refund(ctx, accountID, "Refund: search could not be scheduled")
		return 0, err
	}

	o.metrics.SearchJob("initiated")
	log.Info("search initiated", "search_id", id, "cost", o.cost)
	o.events.Track(analytics.Event{
		Type:      analytics.EventSearchInitiated,
		AccountID: accountID,
		JobID:     id,
		Query:     query,
		Amount:    o.cost,
		RequestID: logger.RequestID(ctx),
		Timestamp: time.Now().UTC(),
	})
	return id, nil
}

func (o *Orchestrator) refund(ctx context.Context, accountID int64, reason string) {
	if _, err := o.ledger.Grant(context.WithoutCancel(ctx), accountID, o.cost, reason); err != nil {
		logger.FromContext(ctx).Error("search refund failed",
			"component", "search-orchestrator", "account_id", accountID, "error", err)
	}
}

// Status is the polling view of a job.
type Status struct {
	SearchID      int64     `json:"searchId"`
	Status        JobStatus `json:"status"`
	ResultCount   *int      `json:"results_count"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Stages        []Stage   `json:"stages"`
}

// GetStatus returns whatever progress the pipeline has committed.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID int64) (Status, error) {
	if jobID <= 0 {
		return Status{}, apperrors.Validation("searchId", "must be positive")
	}
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		SearchID:      j.ID,
		Status:        j.Status,
		ResultCount:   j.ResultCount,
		FailureReason: j.FailureReason,
		Stages:        j.Stages,
	}, nil
}

// GetResults lists candidates matching filters. It does not depend on the
// job's state: results are read from the live candidate pool.
func (o *Orchestrator) GetResults(ctx context.Context, jobID int64, page pagination.Params, filters candidate.Filter) (*candidate.Page, error) {
	if jobID <= 0 {
		return nil, apperrors.Validation("searchId", "must be positive")
	}
	logger.FromContext(ctx).Debug("listing search results",
		"component", "search-orchestrator", "search_id", jobID, "page", page.Page, "limit", page.Limit)
	res, err := o.results.List(ctx, filters, page)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.FromContext(ctx).Error("listing search results failed", "component", "search-orchestrator", "error", err)
	}
	return res, err
}
