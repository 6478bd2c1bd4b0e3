package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewUnregistered()

	m.CreditOperation("deduction", "ok", 10)
	m.CreditOperation("deduction", "ok", 5)
	m.CreditOperation("deduction", "insufficient", 10)
	m.SearchJob("initiated")
	m.PipelineStarted()
	m.SetStuckJobs(3)

	if got := testutil.ToFloat64(m.CreditsSpentTotal); got != 15 {
		t.Errorf("credits spent = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.CreditOperationsTotal.WithLabelValues("deduction", "insufficient")); got != 1 {
		t.Errorf("insufficient count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PipelinesInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StuckJobs); got != 3 {
		t.Errorf("stuck = %v, want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CreditOperation("deduction", "ok", 1)
	m.SearchJob("failed")
	m.StageDuration("Fetch profiles", time.Second)
	m.PipelineFinished(time.Second)
	m.PipelineStarted()
	m.PipelineDone()
	m.SetStuckJobs(1)
	m.CacheLookup("hit")
	m.BreakerState("kafka", 1)
	m.EventDropped()
}
