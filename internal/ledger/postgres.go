package ledger

import (
	"context"
	"database/sql"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
)

// PostgresStore keeps balances in the credits table and serializes
// per-account changes with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *postgres.Client
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	insertAccountSQL = `
		INSERT INTO credits (user_id, total_credits, available_credits, used_credits)
		VALUES ($1, $2, $2, 0)
		ON CONFLICT (user_id) DO NOTHING`

	selectBalanceSQL = `
		SELECT user_id, total_credits, available_credits, used_credits, last_updated
		FROM credits WHERE user_id = $1`

	updateBalanceSQL = `
		UPDATE credits
		SET total_credits = $2, available_credits = $3, used_credits = $4, last_updated = NOW()
		WHERE user_id = $1
		RETURNING last_updated`

	insertTransactionSQL = `
		INSERT INTO credit_transactions (user_id, credit_id, transaction_type, amount, description)
		SELECT $1, id, $2, $3, $4 FROM credits WHERE user_id = $1
		RETURNING id, created_at`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensure(ctx context.Context, q querier, accountID, initial int64) error {
	if _, err := q.ExecContext(ctx, insertAccountSQL, accountID, initial); err != nil {
		return apperrors.Storage("creating credit account", err)
	}
	return nil
}

func scanBalance(row *sql.Row) (Balance, error) {
	var b Balance
	err := row.Scan(&b.AccountID, &b.Total, &b.Available, &b.Used, &b.UpdatedAt)
	return b, err
}

func (s *PostgresStore) EnsureAccount(ctx context.Context, accountID, initial int64) (Balance, error) {
	if err := ensure(ctx, s.db.DB, accountID, initial); err != nil {
		return Balance{}, err
	}
	b, err := scanBalance(s.db.DB.QueryRowContext(ctx, selectBalanceSQL, accountID))
	if err != nil {
		return Balance{}, apperrors.Storage("reading credit account", err)
	}
	return b, nil
}

func (s *PostgresStore) Update(ctx context.Context, accountID, initial int64, decide DecideFunc) (Balance, *Transaction, error) {
	var (
		result Balance
		txn    *Transaction
	)
	err := s.db.RetryTx(ctx, "credit update", func(tx *sql.Tx) error {
		result, txn = Balance{}, nil
		if err := ensure(ctx, tx, accountID, initial); err != nil {
			return err
		}
		current, err := scanBalance(tx.QueryRowContext(ctx, selectBalanceSQL+" FOR UPDATE", accountID))
		if err != nil {
			return apperrors.Storage("locking credit account", err)
		}
		result = current

		entry, err := decide(current)
		if err != nil || entry == nil {
			return err
		}
		next, err := Apply(current, *entry)
		if err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx, updateBalanceSQL,
			accountID, next.Total, next.Available, next.Used,
		).Scan(&next.UpdatedAt); err != nil {
			return apperrors.Storage("updating credit balance", err)
		}

		t := Transaction{
			AccountID:   accountID,
			Kind:        entry.Kind,
			Amount:      entry.Amount,
			Description: entry.Description,
		}
		if err := tx.QueryRowContext(ctx, insertTransactionSQL,
			accountID, string(entry.Kind), entry.Amount, entry.Description,
		).Scan(&t.ID, &t.CreatedAt); err != nil {
			return apperrors.Storage("appending credit transaction", err)
		}
		result, txn = next, &t
		return nil
	})
	if err != nil {
		return Balance{}, nil, err
	}
	return result, txn, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, int, error) {
	var total int
	if err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_transactions WHERE user_id = $1`, accountID,
	).Scan(&total); err != nil {
		return nil, 0, apperrors.Storage("counting credit transactions", err)
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, user_id, transaction_type, amount, COALESCE(description, ''), created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, apperrors.Storage("listing credit transactions", err)
	}
	defer rows.Close()

	txns := make([]Transaction, 0, limit)
	for rows.Next() {
		var t Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.AccountID, &kind, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, 0, apperrors.Storage("scanning credit transaction", err)
		}
		t.Kind = Kind(kind)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.Storage("iterating credit transactions", err)
	}
	return txns, total, nil
}
