package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/kafka"
)

const maxDurationSamples = 10000

// Stats is the aggregated view served by the stats endpoint and persisted as
// snapshots.
type Stats struct {
	SearchesInitiated int64              `json:"searches_initiated"`
	SearchesCompleted int64              `json:"searches_completed"`
	SearchesFailed    int64              `json:"searches_failed"`
	FailureRate       float64            `json:"failure_rate"`
	CreditsSpent      int64              `json:"credits_spent"`
	CreditsGranted    int64              `json:"credits_granted"`
	ContactsUnlocked  int64              `json:"contacts_unlocked"`
	AvgPipelineMs     float64            `json:"avg_pipeline_ms"`
	P50PipelineMs     int64              `json:"p50_pipeline_ms"`
	P95PipelineMs     int64              `json:"p95_pipeline_ms"`
	P99PipelineMs     int64              `json:"p99_pipeline_ms"`
	AvgStageMs        map[string]float64 `json:"avg_stage_ms"`
	TopQueries        []QueryCount       `json:"top_queries"`
	FailureReasons    []QueryCount       `json:"failure_reasons"`
	SearchesPerMinute float64            `json:"searches_per_minute"`
	LastEventAt       *time.Time         `json:"last_event_at,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type stageTotals struct {
	sumMs int64
	count int64
}

// Aggregator folds lifecycle events into Stats. It is also a Sink, so a
// process without a broker can aggregate its own events in place.
type Aggregator struct {
	mu             sync.RWMutex
	initiated      int64
	completed      int64
	failed         int64
	creditsSpent   int64
	creditsGranted int64
	unlocked       int64
	durations      []int64
	durationNext   int
	stages         map[string]*stageTotals
	queries        map[string]int64
	failures       map[string]int64
	lastEvent      time.Time
	startTime      time.Time
	now            func() time.Time

	logger *slog.Logger
}

var _ Sink = (*Aggregator)(nil)

func NewAggregator() *Aggregator {
	return &Aggregator{
		durations: make([]int64, 0, 1024),
		stages:    make(map[string]*stageTotals),
		queries:   make(map[string]int64),
		failures:  make(map[string]int64),
		startTime: time.Now(),
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records e.
func (a *Aggregator) Track(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e.Type {
	case EventSearchInitiated:
		a.initiated++
		if q := normalizeQuery(e.Query); q != "" {
			a.queries[q]++
		}
	case EventStageCompleted:
		st, ok := a.stages[e.Stage]
		if !ok {
			st = &stageTotals{}
			a.stages[e.Stage] = st
		}
		st.sumMs += e.DurationMs
		st.count++
	case EventSearchCompleted:
		a.completed++
		a.addDuration(e.DurationMs)
	case EventSearchFailed:
		a.failed++
		a.failures[e.Reason]++
	case EventCreditsDeducted:
		a.creditsSpent += e.Amount
	case EventCreditsGranted:
		a.creditsGranted += e.Amount
	case EventContactUnlocked:
		a.unlocked++
	default:
		a.logger.Debug("ignoring unknown event type", "type", e.Type)
		return
	}
	if e.Timestamp.After(a.lastEvent) {
		a.lastEvent = e.Timestamp
	}
}

// addDuration keeps the most recent maxDurationSamples pipeline durations.
func (a *Aggregator) addDuration(ms int64) {
	if len(a.durations) < maxDurationSamples {
		a.durations = append(a.durations, ms)
		return
	}
	a.durations[a.durationNext] = ms
	a.durationNext = (a.durationNext + 1) % maxDurationSamples
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Restore seeds the running totals from a persisted snapshot so counters
// survive restarts. Percentiles and per-stage averages start fresh.
func (a *Aggregator) Restore(s Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initiated += s.SearchesInitiated
	a.completed += s.SearchesCompleted
	a.failed += s.SearchesFailed
	a.creditsSpent += s.CreditsSpent
	a.creditsGranted += s.CreditsGranted
	a.unlocked += s.ContactsUnlocked
	for _, q := range s.TopQueries {
		a.queries[q.Query] += q.Count
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Stats{
		SearchesInitiated: a.initiated,
		SearchesCompleted: a.completed,
		SearchesFailed:    a.failed,
		CreditsSpent:      a.creditsSpent,
		CreditsGranted:    a.creditsGranted,
		ContactsUnlocked:  a.unlocked,
		AvgStageMs:        make(map[string]float64, len(a.stages)),
	}
	if finished := a.completed + a.failed; finished > 0 {
		s.FailureRate = float64(a.failed) / float64(finished)
	}
	if len(a.durations) > 0 {
		sorted := append([]int64(nil), a.durations...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, d := range sorted {
			sum += d
		}
		s.AvgPipelineMs = float64(sum) / float64(len(sorted))
		s.P50PipelineMs = percentile(sorted, 50)
		s.P95PipelineMs = percentile(sorted, 95)
		s.P99PipelineMs = percentile(sorted, 99)
	}
	for name, st := range a.stages {
		s.AvgStageMs[name] = float64(st.sumMs) / float64(st.count)
	}
	s.TopQueries = topN(a.queries, 10)
	s.FailureReasons = topN(a.failures, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		s.SearchesPerMinute = float64(a.initiated) / elapsed
	}
	if !a.lastEvent.IsZero() {
		t := a.lastEvent
		s.LastEventAt = &t
	}
	return s
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		result = append(result, QueryCount{Query: q, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count == result[j].Count {
			return result[i].Query < result[j].Query
		}
		return result[i].Count > result[j].Count
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are skipped so they are committed rather than redelivered.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		e, err := kafka.DecodeJSON[Event](msg.Value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			return errors.Join(kafka.ErrSkip, err)
		}
		if e.Type == "" {
			e.Type = EventType(msg.Type)
		}
		agg.Track(e)
		return nil
	}
}
