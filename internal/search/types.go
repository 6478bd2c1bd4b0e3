// Package search runs paid candidate searches as asynchronous, multi-stage
// jobs whose progress can be polled.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

// ErrTransition is returned when a job or stage is not in the state a
// transition requires.
var ErrTransition = fmt.Errorf("invalid state transition: %w", apperrors.ErrConflict)

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageLoading   StageStatus = "loading"
	StageCompleted StageStatus = "completed"
)

// Rank orders stage statuses: pending < loading < completed.
func (s StageStatus) Rank() int {
	switch s {
	case StagePending:
		return 0
	case StageLoading:
		return 1
	case StageCompleted:
		return 2
	default:
		return -1
	}
}

// DefaultStageNames is the pipeline every job runs, in order.
var DefaultStageNames = []string{
	"Fetch profiles",
	"Semantic search and LLM match",
	"Ranking and scoring",
	"Preparing insights",
}

type Stage struct {
	Index       int         `json:"sequence_index"`
	Name        string      `json:"stage_name"`
	Status      StageStatus `json:"status"`
	StartedAt   *time.Time  `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at"`
}

type Job struct {
	ID             int64            `json:"id"`
	AccountID      int64            `json:"user_id"`
	Query          string           `json:"search_query"`
	Filters        candidate.Filter `json:"filters"`
	Status         JobStatus        `json:"status"`
	CreditsCharged int64            `json:"credits_used"`
	ResultCount    *int             `json:"results_count"`
	FailureReason  string           `json:"failure_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	Stages         []Stage          `json:"stages"`
}

// NewJob describes a job to persist.
type NewJob struct {
	AccountID      int64
	Query          string
	Filters        candidate.Filter
	CreditsCharged int64
	StageNames     []string
}

// Store persists jobs and stages. Transition methods are guarded by the
// expected current status so state only moves forward; a transition whose
// guard does not hold returns ErrTransition and changes nothing.
type Store interface {
	// CreateJob inserts a processing job and all its pending stages atomically.
	CreateJob(ctx context.Context, j NewJob) (int64, error)
	// StartStage moves a stage pending -> loading. started_at is set only if
	// it is not already set.
	StartStage(ctx context.Context, jobID int64, index int, at time.Time) error
	// CompleteStage moves a stage loading -> completed.
	CompleteStage(ctx context.Context, jobID int64, index int, at time.Time) error
	// CompleteJob moves a job processing -> completed.
	CompleteJob(ctx context.Context, jobID int64, resultCount int, at time.Time) error
	// FailJob moves a job processing -> failed.
	FailJob(ctx context.Context, jobID int64, reason string, at time.Time) error
	// GetJob returns the job with stages ordered by sequence index.
	GetJob(ctx context.Context, jobID int64) (Job, error)
	// ListStuck returns processing jobs created before olderThan.
	ListStuck(ctx context.Context, olderThan time.Time) ([]Job, error)
}
