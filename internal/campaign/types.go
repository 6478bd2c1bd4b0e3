// Package campaign manages outreach campaigns, their email sequences and the
// engagement counts derived from campaign recipients.
package campaign

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

type Type string

const (
	TypeEmail    Type = "email"
	TypeLinkedIn Type = "linkedin"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

const maxNameLength = 200

type Campaign struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"user_id"`
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	Status    Status    `json:"status"`
	Stats     *Stats    `json:"stats,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats counts a campaign's recipients. Rates are percentages of Sent with
// one decimal place, zero when nothing was sent.
type Stats struct {
	Sent      int     `json:"sent"`
	Opened    int     `json:"opened"`
	Replied   int     `json:"replied"`
	OpenRate  float64 `json:"open_rate"`
	ReplyRate float64 `json:"reply_rate"`
}

func newStats(sent, opened, replied int) *Stats {
	s := &Stats{Sent: sent, Opened: opened, Replied: replied}
	if sent > 0 {
		s.OpenRate = percent(opened, sent)
		s.ReplyRate = percent(replied, sent)
	}
	return s
}

func percent(n, of int) float64 {
	return math.Round(float64(n)*1000/float64(of)) / 10
}

type Sequence struct {
	ID         int64     `json:"id"`
	CampaignID int64     `json:"campaign_id"`
	Name       string    `json:"name"`
	Subject    string    `json:"subject,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	Steps      []Step    `json:"steps"`
}

// Step is one message of a sequence, sent DelayDays after the previous one.
type Step struct {
	ID         int64  `json:"id"`
	SequenceID int64  `json:"sequence_id"`
	Order      int    `json:"step_order"`
	DelayDays  int    `json:"delay_days"`
	Subject    string `json:"subject"`
	Body       string `json:"body_content"`
}

// Recipient is a candidate a campaign reached. Only seeders write them.
type Recipient struct {
	CandidateID int64
	Status      string
	SentAt      time.Time
	OpenedAt    *time.Time
	RepliedAt   *time.Time
}

// NewCampaign is the body of a create request. An empty Type means email.
type NewCampaign struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

func (n NewCampaign) normalize() (NewCampaign, error) {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return n, apperrors.Validation("name", "must not be empty")
	}
	if utf8.RuneCountInString(n.Name) > maxNameLength {
		return n, apperrors.Validation("name", "must be at most 200 characters")
	}
	switch n.Type {
	case "":
		n.Type = TypeEmail
	case TypeEmail, TypeLinkedIn:
	default:
		return n, apperrors.Validation("type", "must be email or linkedin")
	}
	return n, nil
}

func errDuplicate(name string) error {
	return apperrors.Newf(apperrors.ErrConflict, http.StatusConflict, "campaign %q already exists", name)
}

// Store persists campaigns per account.
type Store interface {
	// Create inserts a draft campaign. A name the account already uses is
	// ErrConflict.
	Create(ctx context.Context, accountID int64, n NewCampaign) (Campaign, error)
	// List returns the account's campaigns newest first, each with Stats.
	List(ctx context.Context, accountID int64) ([]Campaign, error)
	// Sequences returns the campaign's sequences in creation order with
	// steps ordered by step_order. A campaign the account does not own is
	// ErrNotFound.
	Sequences(ctx context.Context, accountID, campaignID int64) ([]Sequence, error)
	// Insert stores a fully formed campaign for seeding and returns its id.
	Insert(ctx context.Context, accountID int64, d Demo) (int64, error)
}
