package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pagination"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
)

// Ledger enforces check-and-deduct semantics over a Store.
type Ledger struct {
	store          Store
	defaultBalance int64
	metrics        *metrics.Metrics
	events         analytics.Sink
	logger         *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMetrics records credit operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithEvents publishes deductions and grants to sink.
func WithEvents(sink analytics.Sink) Option {
	return func(l *Ledger) { l.events = sink }
}

// New creates a Ledger. Accounts seen for the first time start with
// defaultBalance available credits.
func New(store Store, defaultBalance int64, opts ...Option) *Ledger {
	l := &Ledger{
		store:          store,
		defaultBalance: defaultBalance,
		events:         analytics.Discard,
		logger:         slog.Default().With("component", "credit-ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func validateAccount(accountID int64) error {
	if accountID <= 0 {
		return apperrors.Validation("accountId", "must be positive")
	}
	return nil
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return apperrors.Validation("amount", "must be a positive integer")
	}
	return nil
}

// GetBalance returns the account's balance, creating it on first access.
func (l *Ledger) GetBalance(ctx context.Context, accountID int64) (Balance, error) {
	if err := validateAccount(accountID); err != nil {
		return Balance{}, err
	}
	return l.store.EnsureAccount(ctx, accountID, l.defaultBalance)
}

// Deduct removes amount from the account's available credits and logs one
// deduction transaction. It fails with ErrInsufficientCredits, leaving the
// balance untouched, when available < amount.
func (l *Ledger) Deduct(ctx context.Context, accountID, amount int64, description string) (*Transaction, error) {
	if err := validateAccount(accountID); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	balance, txn, err := l.store.Update(ctx, accountID, l.defaultBalance, func(current Balance) (*Entry, error) {
		if current.Available < amount {
			return nil, apperrors.Newf(apperrors.ErrInsufficientCredits, http.StatusPaymentRequired,
				"insufficient credits: %d available, %d required", current.Available, amount)
		}
		return &Entry{Kind: KindDeduction, Amount: amount, Description: description}, nil
	})

	log := logger.FromContext(ctx).With("component", "credit-ledger", "account_id", accountID, "amount", amount)
	switch {
	case errors.Is(err, apperrors.ErrInsufficientCredits):
		l.metrics.CreditOperation(string(KindDeduction), "insufficient", amount)
		log.Info("deduction rejected", "reason", "insufficient credits")
		return nil, err
	case err != nil:
		l.metrics.CreditOperation(string(KindDeduction), "error", amount)
		log.Error("deduction failed", "error", err)
		return nil, err
	}

	l.metrics.CreditOperation(string(KindDeduction), "ok", amount)
	log.Info("credits deducted", "available", balance.Available, "transaction_id", txn.ID)
	l.events.Track(analytics.Event{
		Type:      analytics.EventCreditsDeducted,
		AccountID: accountID,
		Amount:    amount,
		Reason:    description,
		RequestID: logger.RequestID(ctx),
		Timestamp: time.Now().UTC(),
	})
	return txn, nil
}

// Grant adds amount to the account's available and total credits.
func (l *Ledger) Grant(ctx context.Context, accountID, amount int64, description string) (*Transaction, error) {
	if err := validateAccount(accountID); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	balance, txn, err := l.store.Update(ctx, accountID, l.defaultBalance, func(Balance) (*Entry, error) {
		return &Entry{Kind: KindGrant, Amount: amount, Description: description}, nil
	})
	if err != nil {
		l.metrics.CreditOperation(string(KindGrant), "error", amount)
		logger.FromContext(ctx).Error("grant failed", "component", "credit-ledger", "account_id", accountID, "error", err)
		return nil, err
	}

	l.metrics.CreditOperation(string(KindGrant), "ok", amount)
	logger.FromContext(ctx).Info("credits granted",
		"component", "credit-ledger",
		"account_id", accountID,
		"amount", amount,
		"available", balance.Available,
	)
	l.events.Track(analytics.Event{
		Type:      analytics.EventCreditsGranted,
		AccountID: accountID,
		Amount:    amount,
		Reason:    description,
		RequestID: logger.RequestID(ctx),
		Timestamp: time.Now().UTC(),
	})
	return txn, nil
}

// TransactionPage is one page of the audit trail.
type TransactionPage struct {
	Transactions []Transaction   `json:"transactions"`
	Pagination   pagination.Meta `json:"pagination"`
}

// Transactions returns the account's audit trail, newest first.
func (l *Ledger) Transactions(ctx context.Context, accountID int64, page pagination.Params) (TransactionPage, error) {
	if err := validateAccount(accountID); err != nil {
		return TransactionPage{}, err
	}
	txns, total, err := l.store.ListTransactions(ctx, accountID, page.Limit, page.Offset())
	if err != nil {
		return TransactionPage{}, err
	}
	return TransactionPage{
		Transactions: txns,
		Pagination:   pagination.NewMeta(page, total),
	}, nil
}
