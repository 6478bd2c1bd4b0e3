package campaign

import (
	"context"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
)

// Service validates campaign requests before they reach the Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns the account's campaigns newest first with recipient stats.
func (s *Service) List(ctx context.Context, accountID int64) ([]Campaign, error) {
	return s.store.List(ctx, accountID)
}

// Create validates n and stores it as a draft.
func (s *Service) Create(ctx context.Context, accountID int64, n NewCampaign) (Campaign, error) {
	n, err := n.normalize()
	if err != nil {
		return Campaign{}, err
	}
	c, err := s.store.Create(ctx, accountID, n)
	if err != nil {
		return Campaign{}, err
	}
	logger.FromContext(ctx).Info("campaign created",
		"component", "campaign-service",
		"account_id", accountID,
		"campaign_id", c.ID,
		"type", string(c.Type),
	)
	return c, nil
}

func (s *Service) Sequences(ctx context.Context, accountID, campaignID int64) ([]Sequence, error) {
	if campaignID <= 0 {
		return nil, apperrors.Validation("campaignId", "must be positive")
	}
	return s.store.Sequences(ctx, accountID, campaignID)
}
