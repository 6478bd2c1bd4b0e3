package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Per-account serialization uses a keyed
// mutex; mu only guards the maps and is never held while decide runs.
type MemoryStore struct {
	locks *keyedMutex

	mu       sync.RWMutex
	balances map[int64]Balance
	txns     map[int64][]Transaction
	nextID   int64
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    newKeyedMutex(),
		balances: make(map[int64]Balance),
		txns:     make(map[int64][]Transaction),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) EnsureAccount(ctx context.Context, accountID, initial int64) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(accountID, initial), nil
}

func (s *MemoryStore) ensureLocked(accountID, initial int64) Balance {
	if b, ok := s.balances[accountID]; ok {
		return b
	}
	b := Balance{
		AccountID: accountID,
		Total:     initial,
		Available: initial,
		UpdatedAt: s.now(),
	}
	s.balances[accountID] = b
	return b
}

func (s *MemoryStore) Update(ctx context.Context, accountID, initial int64, decide DecideFunc) (Balance, *Transaction, error) {
	unlock, err := s.locks.Lock(ctx, accountID)
	if err != nil {
		return Balance{}, nil, err
	}
	defer unlock()

	s.mu.Lock()
	current := s.ensureLocked(accountID, initial)
	s.mu.Unlock()

	entry, err := decide(current)
	if err != nil || entry == nil {
		return current, nil, err
	}
	next, err := Apply(current, *entry)
	if err != nil {
		return current, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	next.UpdatedAt = now
	txn := Transaction{
		ID:          s.nextID,
		AccountID:   accountID,
		Kind:        entry.Kind,
		Amount:      entry.Amount,
		Description: entry.Description,
		CreatedAt:   now,
	}
	s.balances[accountID] = next
	s.txns[accountID] = append(s.txns[accountID], txn)
	return next, &txn, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]Transaction, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	all := append([]Transaction(nil), s.txns[accountID]...)
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset < 0 || offset >= total {
		return []Transaction{}, total, nil
	}
	end := offset + limit
	if end > total || end < offset {
		end = total
	}
	return all[offset:end], total, nil
}

// AccountCount reports how many accounts exist.
func (s *MemoryStore) AccountCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.balances)
}
