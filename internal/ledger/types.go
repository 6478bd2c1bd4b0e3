// Package ledger owns account balances and the append-only credit
// transaction log. Every balance change goes through Store.Update, which
// holds the account exclusively while the change is decided and applied.
package ledger

import (
	"context"
	"fmt"
	"time"
)

// Kind distinguishes transaction directions.
type Kind string

const (
	KindDeduction Kind = "deduction"
	KindGrant     Kind = "grant"
)

// Balance is one account's credit position. Total == Available + Used.
type Balance struct {
	AccountID int64     `json:"user_id"`
	Total     int64     `json:"total_credits"`
	Available int64     `json:"available_credits"`
	Used      int64     `json:"used_credits"`
	UpdatedAt time.Time `json:"last_updated"`
}

// Transaction is an immutable log record.
type Transaction struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"user_id"`
	Kind        Kind      `json:"transaction_type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Entry is the change a caller decides on while holding the account.
type Entry struct {
	Kind        Kind
	Amount      int64
	Description string
}

// DecideFunc inspects the locked balance and returns the entry to apply, or
// nil to release without changes. A non-nil error aborts the scope. Stores
// may call it again on a fresh read when a transaction is retried.
type DecideFunc func(current Balance) (*Entry, error)

// Store persists balances and transactions.
type Store interface {
	// EnsureAccount returns the balance, creating it with initial credits if
	// it does not exist. Concurrent first calls create exactly one account.
	EnsureAccount(ctx context.Context, accountID, initial int64) (Balance, error)

	// Update holds accountID exclusively (creating it with initial credits
	// if absent), calls decide, and atomically applies the returned entry to
	// both the balance and the log. The returned transaction is nil when
	// decide returned a nil entry.
	Update(ctx context.Context, accountID, initial int64, decide DecideFunc) (Balance, *Transaction, error)

	// ListTransactions returns the newest-first page and the total count.
	ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, int, error)
}

// Apply returns b with e applied. It refuses changes that would break the
// balance invariants, so a store cannot persist a negative balance even if a
// caller's decide function is wrong.
func Apply(b Balance, e Entry) (Balance, error) {
	if e.Amount <= 0 {
		return b, fmt.Errorf("ledger: entry amount %d must be positive", e.Amount)
	}
	switch e.Kind {
	case KindDeduction:
		if b.Available < e.Amount {
			return b, fmt.Errorf("ledger: deduction of %d exceeds available %d", e.Amount, b.Available)
		}
		b.Available -= e.Amount
		b.Used += e.Amount
	case KindGrant:
		b.Available += e.Amount
		b.Total += e.Amount
	default:
		return b, fmt.Errorf("ledger: unknown entry kind %q", e.Kind)
	}
	return b, nil
}
