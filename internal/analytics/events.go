package analytics

import (
	"strconv"
	"time"
)

type EventType string

const (
	EventSearchInitiated EventType = "search.initiated"
	EventStageCompleted  EventType = "search.stage_completed"
	EventSearchCompleted EventType = "search.completed"
	EventSearchFailed    EventType = "search.failed"
	EventCreditsDeducted EventType = "credits.deducted"
	EventCreditsGranted  EventType = "credits.granted"
	EventContactUnlocked EventType = "contact.unlocked"
)

// Event is the single payload published for every lifecycle change. Fields
// that do not apply to a type are left zero and omitted from the JSON.
type Event struct {
	Type        EventType `json:"type"`
	AccountID   int64     `json:"account_id,omitempty"`
	JobID       int64     `json:"job_id,omitempty"`
	CandidateID int64     `json:"candidate_id,omitempty"`
	Query       string    `json:"query,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	ResultCount int       `json:"result_count,omitempty"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PartitionKey keeps every event of one job (or one account) in order on a
// single partition.
func (e Event) PartitionKey() string {
	if e.JobID != 0 {
		return "job-" + strconv.FormatInt(e.JobID, 10)
	}
	return "account-" + strconv.FormatInt(e.AccountID, 10)
}

// Sink accepts events without blocking the caller.
type Sink interface {
	Track(Event)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Track(Event) {}
