package candidate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pagination"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
)

// Page is one page of a candidate listing.
type Page struct {
	Candidates []Candidate     `json:"candidates"`
	Pagination pagination.Meta `json:"pagination"`
}

// Service layers redaction, caching and paid unlocking over a Repository.
type Service struct {
	repo       Repository
	ledger     *ledger.Ledger
	cache      *ResultsCache
	events     analytics.Sink
	unlockCost int64
	logger     *slog.Logger
}

type ServiceOption func(*Service)

// WithCache enables the Redis page cache for List.
func WithCache(c *ResultsCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithEvents publishes contact unlocks to sink.
func WithEvents(sink analytics.Sink) ServiceOption {
	return func(s *Service) { s.events = sink }
}

func NewService(repo Repository, l *ledger.Ledger, unlockCost int64, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		ledger:     l,
		unlockCost: unlockCost,
		events:     analytics.Discard,
		logger:     slog.Default().With("component", "candidate-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Count reports how many candidates match f.
func (s *Service) Count(ctx context.Context, f Filter) (int, error) {
	return s.repo.Count(ctx, f)
}

// List returns one redacted page of candidates matching f.
func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) (*Page, error) {
	compute := func() (*Page, error) {
		items, total, err := s.repo.List(ctx, f, p.Limit, p.Offset())
		if err != nil {
			return nil, err
		}
		for i := range items {
			items[i] = items[i].Redacted()
		}
		return &Page{Candidates: items, Pagination: pagination.NewMeta(p, total)}, nil
	}
	if s.cache == nil {
		return compute()
	}
	page, _, err := s.cache.GetOrCompute(ctx, f, p.Page, p.Limit, compute)
	return page, err
}

func (s *Service) Details(ctx context.Context, accountID, id int64) (Details, error) {
	d, err := s.repo.Details(ctx, accountID, id)
	if err != nil {
		return Details{}, err
	}
	d.Candidate = d.Candidate.Redacted()
	return d, nil
}

func (s *Service) ToggleShortlist(ctx context.Context, accountID, id int64) (bool, error) {
	return s.repo.ToggleShortlist(ctx, accountID, id)
}

func (s *Service) Shortlist(ctx context.Context, accountID int64) ([]Candidate, error) {
	items, err := s.repo.Shortlist(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = items[i].Redacted()
	}
	return items, nil
}

// UnlockResult reports the unlocked candidate and what the call cost.
type UnlockResult struct {
	Candidate    Candidate `json:"candidate"`
	CreditsSpent int64     `json:"credits_spent"`
}

// UnlockContact reveals a candidate's contact details, charging unlockCost
// once. Unlocking an already unlocked contact is free. If a concurrent call
// unlocks the contact between the charge and the update, the charge is
// refunded.
func (s *Service) UnlockContact(ctx context.Context, accountID, id int64) (UnlockResult, error) {
	log := logger.FromContext(ctx).With("component", "candidate-service", "candidate_id", id)

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return UnlockResult{}, err
	}
	if !c.ContactLocked {
		return UnlockResult{Candidate: c}, nil
	}

	if _, err := s.ledger.Deduct(ctx, accountID, s.unlockCost, "Contact unlock: "+c.Name); err != nil {
		return UnlockResult{}, err
	}

	changed, err := s.repo.Unlock(ctx, id)
	if err != nil || !changed {
		reason := "Refund: contact already unlocked"
		if err != nil {
			reason = "Refund: contact unlock failed"
		}
		if _, rerr := s.ledger.Grant(context.WithoutCancel(ctx), accountID, s.unlockCost, reason); rerr != nil {
			log.Error("unlock refund failed", "error", rerr)
			err = errors.Join(err, rerr)
		}
		if err != nil {
			return UnlockResult{}, err
		}
		c, err = s.repo.Get(ctx, id)
		if err != nil {
			return UnlockResult{}, err
		}
		return UnlockResult{Candidate: c}, nil
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Warn("results cache invalidation failed", "error", err)
		}
	}
	c.ContactLocked = false
	log.Info("contact unlocked", "cost", s.unlockCost)
	s.events.Track(analytics.Event{
		Type:        analytics.EventContactUnlocked,
		AccountID:   accountID,
		CandidateID: id,
		Amount:      s.unlockCost,
		RequestID:   logger.RequestID(ctx),
		Timestamp:   time.Now().UTC(),
	})
	return UnlockResult{Candidate: c, CreditsSpent: s.unlockCost}, nil
}
