package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[int64]*Job
	nextID int64
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[int64]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, nj NewJob) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	j := &Job{
		ID:             s.nextID,
		AccountID:      nj.AccountID,
		Query:          nj.Query,
		Filters:        nj.Filters,
		Status:         JobProcessing,
		CreditsCharged: nj.CreditsCharged,
		CreatedAt:      now,
		UpdatedAt:      now,
		Stages:         make([]Stage, len(nj.StageNames)),
	}
	for i, name := range nj.StageNames {
		j.Stages[i] = Stage{Index: i, Name: name, Status: StagePending}
	}
	s.jobs[j.ID] = j
	return j.ID, nil
}

func (s *MemoryStore) stage(jobID int64, index int) (*Job, *Stage, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, nil, fmt.Errorf("search %d: %w", jobID, apperrors.ErrNotFound)
	}
	if index < 0 || index >= len(j.Stages) {
		return nil, nil, fmt.Errorf("search %d stage %d: %w", jobID, index, apperrors.ErrNotFound)
	}
	return j, &j.Stages[index], nil
}

func (s *MemoryStore) StartStage(ctx context.Context, jobID int64, index int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, st, err := s.stage(jobID, index)
	if err != nil {
		return err
	}
	if st.Status != StagePending {
		return fmt.Errorf("search %d stage %d is %s: %w", jobID, index, st.Status, ErrTransition)
	}
	st.Status = StageLoading
	if st.StartedAt == nil {
		t := at
		st.StartedAt = &t
	}
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) CompleteStage(ctx context.Context, jobID int64, index int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, st, err := s.stage(jobID, index)
	if err != nil {
		return err
	}
	if st.Status != StageLoading {
		return fmt.Errorf("search %d stage %d is %s: %w", jobID, index, st.Status, ErrTransition)
	}
	st.Status = StageCompleted
	t := at
	st.CompletedAt = &t
	j.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) finish(jobID int64, to JobStatus, mutate func(*Job), at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("search %d: %w", jobID, apperrors.ErrNotFound)
	}
	if j.Status != JobProcessing {
		return fmt.Errorf("search %d is %s: %w", jobID, j.Status, ErrTransition)
	}
	j.Status = to
	t := at
	j.FinishedAt = &t
	j.UpdatedAt = s.now()
	mutate(j)
	return nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, jobID int64, resultCount int, at time.Time) error {
	return s.finish(jobID, JobCompleted, func(j *Job) {
		n := resultCount
		j.ResultCount = &n
	}, at)
}

func (s *MemoryStore) FailJob(ctx context.Context, jobID int64, reason string, at time.Time) error {
	return s.finish(jobID, JobFailed, func(j *Job) { j.FailureReason = reason }, at)
}

func copyJob(j *Job) Job {
	out := *j
	out.Stages = append([]Stage(nil), j.Stages...)
	return out
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID int64) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("search %d: %w", jobID, apperrors.ErrNotFound)
	}
	return copyJob(j), nil
}

func (s *MemoryStore) ListStuck(ctx context.Context, olderThan time.Time) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Status == JobProcessing && j.CreatedAt.Before(olderThan) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// Count returns the number of stored jobs.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
