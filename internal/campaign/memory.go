package campaign

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

// MemoryStore is an in-process Store used by tests and demo mode.
type MemoryStore struct {
	mu         sync.RWMutex
	campaigns  map[int64]Campaign
	sequences  map[int64][]Sequence
	recipients map[int64][]Recipient
	nextID     int64
	nextSeqID  int64
	nextStepID int64
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:  make(map[int64]Campaign),
		sequences:  make(map[int64][]Sequence),
		recipients: make(map[int64][]Recipient),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) nameTakenLocked(accountID int64, name string) bool {
	for _, c := range s.campaigns {
		if c.AccountID == accountID && c.Name == name {
			return true
		}
	}
	return false
}

func (s *MemoryStore) addLocked(accountID int64, name string, typ Type, status Status) Campaign {
	s.nextID++
	now := s.now()
	c := Campaign{
		ID:        s.nextID,
		AccountID: accountID,
		Name:      name,
		Type:      typ,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.campaigns[c.ID] = c
	return c
}

func (s *MemoryStore) Create(ctx context.Context, accountID int64, n NewCampaign) (Campaign, error) {
	if err := ctx.Err(); err != nil {
		return Campaign{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTakenLocked(accountID, n.Name) {
		return Campaign{}, errDuplicate(n.Name)
	}
	return s.addLocked(accountID, n.Name, n.Type, StatusDraft), nil
}

func (s *MemoryStore) List(ctx context.Context, accountID int64) ([]Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Campaign{}
	for _, c := range s.campaigns {
		if c.AccountID != accountID {
			continue
		}
		var opened, replied int
		rs := s.recipients[c.ID]
		for _, r := range rs {
			if r.OpenedAt != nil {
				opened++
			}
			if r.RepliedAt != nil {
				replied++
			}
		}
		c.Stats = newStats(len(rs), opened, replied)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Sequences(ctx context.Context, accountID, campaignID int64) ([]Sequence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok || c.AccountID != accountID {
		return nil, fmt.Errorf("campaign %d: %w", campaignID, apperrors.ErrNotFound)
	}
	out := make([]Sequence, 0, len(s.sequences[campaignID]))
	for _, seq := range s.sequences[campaignID] {
		seq.Steps = append([]Step{}, seq.Steps...)
		out = append(out, seq)
	}
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, accountID int64, d Demo) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTakenLocked(accountID, d.Name) {
		return 0, errDuplicate(d.Name)
	}
	c := s.addLocked(accountID, d.Name, d.Type, d.Status)
	for _, seq := range d.Sequences {
		s.nextSeqID++
		seq.ID = s.nextSeqID
		seq.CampaignID = c.ID
		seq.CreatedAt = c.CreatedAt
		steps := make([]Step, len(seq.Steps))
		for i, st := range seq.Steps {
			s.nextStepID++
			st.ID = s.nextStepID
			st.SequenceID = seq.ID
			steps[i] = st
		}
		sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
		seq.Steps = steps
		s.sequences[c.ID] = append(s.sequences[c.ID], seq)
	}
	s.recipients[c.ID] = append([]Recipient(nil), d.Recipients...)
	return c.ID, nil
}
