package candidate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

// MemoryRepository is an in-process Repository used by tests and demo mode.
type MemoryRepository struct {
	mu         sync.RWMutex
	candidates map[int64]Candidate
	experience map[int64][]Experience
	education  map[int64][]Education
	shortlists map[int64]map[int64]time.Time
	nextID     int64
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		candidates: make(map[int64]Candidate),
		experience: make(map[int64][]Experience),
		education:  make(map[int64][]Education),
		shortlists: make(map[int64]map[int64]time.Time),
	}
}

// Add stores p and returns its assigned id.
func (r *MemoryRepository) Add(p Profile) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := p.Candidate
	c.ID = r.nextID
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Skills = append([]string(nil), p.Candidate.Skills...)
	r.candidates[c.ID] = c
	r.experience[c.ID] = append([]Experience(nil), p.Experience...)
	r.education[c.ID] = append([]Education(nil), p.Education...)
	return c.ID
}

func (r *MemoryRepository) matching(f Filter) []Candidate {
	f = f.Normalize()
	out := make([]Candidate, 0, len(r.candidates))
	for _, c := range r.candidates {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *MemoryRepository) List(ctx context.Context, f Filter, limit, offset int) ([]Candidate, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	all := r.matching(f)
	r.mu.RUnlock()

	total := len(all)
	if offset < 0 || offset >= total {
		return []Candidate{}, total, nil
	}
	end := offset + limit
	if end > total || end < offset {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryRepository) Count(ctx context.Context, f Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matching(f)), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id int64) (Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.candidates[id]
	if !ok {
		return Candidate{}, fmt.Errorf("candidate %d: %w", id, apperrors.ErrNotFound)
	}
	return c, nil
}

func (r *MemoryRepository) Details(ctx context.Context, accountID, id int64) (Details, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.candidates[id]
	if !ok {
		return Details{}, fmt.Errorf("candidate %d: %w", id, apperrors.ErrNotFound)
	}
	exp := append([]Experience(nil), r.experience[id]...)
	sort.SliceStable(exp, func(i, j int) bool { return exp[i].OrderIndex < exp[j].OrderIndex })
	edu := append([]Education(nil), r.education[id]...)
	sort.SliceStable(edu, func(i, j int) bool { return edu[i].OrderIndex < edu[j].OrderIndex })
	_, shortlisted := r.shortlists[accountID][id]
	return Details{
		Candidate:     c,
		Experience:    exp,
		Education:     edu,
		IsShortlisted: shortlisted,
	}, nil
}

func (r *MemoryRepository) ToggleShortlist(ctx context.Context, accountID, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.candidates[id]; !ok {
		return false, fmt.Errorf("candidate %d: %w", id, apperrors.ErrNotFound)
	}
	list, ok := r.shortlists[accountID]
	if !ok {
		list = make(map[int64]time.Time)
		r.shortlists[accountID] = list
	}
	if _, ok := list[id]; ok {
		delete(list, id)
		return false, nil
	}
	list[id] = time.Now()
	return true, nil
}

func (r *MemoryRepository) Shortlist(ctx context.Context, accountID int64) ([]Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type entry struct {
		c  Candidate
		at time.Time
	}
	entries := make([]entry, 0, len(r.shortlists[accountID]))
	for id, at := range r.shortlists[accountID] {
		entries = append(entries, entry{r.candidates[id], at})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].c.ID > entries[j].c.ID
		}
		return entries[i].at.After(entries[j].at)
	})
	out := make([]Candidate, len(entries))
	for i, e := range entries {
		out[i] = e.c
	}
	return out, nil
}

func (r *MemoryRepository) Unlock(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.candidates[id]
	if !ok {
		return false, fmt.Errorf("candidate %d: %w", id, apperrors.ErrNotFound)
	}
	if !c.ContactLocked {
		return false, nil
	}
	c.ContactLocked = false
	c.UpdatedAt = time.Now().UTC()
	r.candidates[id] = c
	return true, nil
}
