package metrics

import (
	"strconv"
	"time"
)

// The recorders below are nil-safe so components can run without metrics.

func (m *Metrics) CreditOperation(kind, outcome string, amount int64) {
	if m == nil {
		return
	}
	m.CreditOperationsTotal.WithLabelValues(kind, outcome).Inc()
	if kind == "deduction" && outcome == "ok" {
		m.CreditsSpentTotal.Add(float64(amount))
	}
}

func (m *Metrics) SearchJob(event string) {
	if m == nil {
		return
	}
	m.SearchJobsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) StageDuration(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) PipelineFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.SearchPipelineLatency.Observe(d.Seconds())
}

func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.PipelinesInFlight.Inc()
}

func (m *Metrics) PipelineDone() {
	if m == nil {
		return
	}
	m.PipelinesInFlight.Dec()
}

func (m *Metrics) SetStuckJobs(n int) {
	if m == nil {
		return
	}
	m.StuckJobs.Set(float64(n))
}

func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
