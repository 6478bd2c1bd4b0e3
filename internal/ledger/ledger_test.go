package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pagination"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pgtest"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingSink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *recordingSink) Track(e analytics.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// storeFactories runs every ledger test against each Store implementation.
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(t *testing.T) Store { return NewMemoryStore() },
	"postgres": func(t *testing.T) Store {
		return NewPostgresStore(pgtest.Open(t))
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestDeductExample(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		sink := &recordingSink{}
		m := metrics.NewUnregistered()
		l := New(store, 1000, WithEvents(sink), WithMetrics(m))

		txn, err := l.Deduct(ctx, 1, 10, "search")
		if err != nil {
			t.Fatalf("Deduct: %v", err)
		}
		if txn.Amount != 10 || txn.Kind != KindDeduction || txn.Description != "search" {
			t.Errorf("transaction = %+v", txn)
		}

		bal, err := l.GetBalance(ctx, 1)
		if err != nil {
			t.Fatalf("GetBalance: %v", err)
		}
		if bal.Available != 990 || bal.Used != 10 || bal.Total != 1000 {
			t.Errorf("balance = %+v, want 990/10/1000", bal)
		}

		page, err := l.Transactions(ctx, 1, pagination.Params{Page: 1, Limit: 10})
		if err != nil {
			t.Fatalf("Transactions: %v", err)
		}
		if page.Pagination.Total != 1 || page.Transactions[0].Amount != 10 {
			t.Errorf("transactions = %+v", page)
		}
		if len(sink.events) != 1 || sink.events[0].Type != analytics.EventCreditsDeducted {
			t.Errorf("events = %+v", sink.events)
		}
		if got := testutil.ToFloat64(m.CreditsSpentTotal); got != 10 {
			t.Errorf("credits spent metric = %v", got)
		}
	})
}

func TestDeductInsufficientLeavesBalance(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		l := New(store, 5)

		_, err := l.Deduct(ctx, 2, 10, "search")
		if !errors.Is(err, apperrors.ErrInsufficientCredits) {
			t.Fatalf("err = %v, want ErrInsufficientCredits", err)
		}
		bal, _ := l.GetBalance(ctx, 2)
		if bal.Available != 5 || bal.Used != 0 {
			t.Errorf("balance = %+v, want available 5", bal)
		}
		page, _ := l.Transactions(ctx, 2, pagination.Params{Page: 1, Limit: 10})
		if page.Pagination.Total != 0 {
			t.Errorf("transactions logged on failure: %+v", page.Transactions)
		}
	})
}

func TestDeductValidation(t *testing.T) {
	l := New(NewMemoryStore(), 1000)
	ctx := context.Background()
	for _, tc := range []struct {
		account, amount int64
	}{
		{1, 0},
		{1, -5},
		{0, 10},
	} {
		if _, err := l.Deduct(ctx, tc.account, tc.amount, "x"); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("Deduct(%d, %d) err = %v, want ErrInvalidInput", tc.account, tc.amount, err)
		}
	}
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		l := New(store, 1000)

		const workers = 100
		const amount = 15
		var wg sync.WaitGroup
		var succeeded atomic.Int64
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Deduct(ctx, 3, amount, "concurrent")
				switch {
				case err == nil:
					succeeded.Add(1)
				case !errors.Is(err, apperrors.ErrInsufficientCredits):
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		// 1000 / 15 = 66 successful charges, 10 credits left.
		if got := succeeded.Load(); got != 66 {
			t.Errorf("successful deductions = %d, want 66", got)
		}
		bal, _ := l.GetBalance(ctx, 3)
		if bal.Available != 1000-succeeded.Load()*amount {
			t.Errorf("available = %d, want %d", bal.Available, 1000-succeeded.Load()*amount)
		}
		if bal.Total != bal.Available+bal.Used {
			t.Errorf("total %d != available %d + used %d", bal.Total, bal.Available, bal.Used)
		}
		page, _ := l.Transactions(ctx, 3, pagination.Params{Page: 1, Limit: 100})
		if int64(page.Pagination.Total) != succeeded.Load() {
			t.Errorf("logged %d transactions, want %d", page.Pagination.Total, succeeded.Load())
		}
	})
}

func TestConcurrentFirstAccessCreatesOneAccount(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bal, err := l.GetBalance(context.Background(), 42)
			if err != nil || bal.Available != 1000 {
				t.Errorf("GetBalance = %+v, %v", bal, err)
			}
		}()
	}
	wg.Wait()
	if n := store.AccountCount(); n != 1 {
		t.Errorf("accounts = %d, want 1", n)
	}
}

func TestConcurrentFirstAccessPostgres(t *testing.T) {
	db := pgtest.Open(t)
	l := New(NewPostgresStore(db), 1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.GetBalance(context.Background(), 77); err != nil {
				t.Errorf("GetBalance: %v", err)
			}
		}()
	}
	wg.Wait()

	var rows int
	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM credits WHERE user_id = 77`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("rows = %d, want 1", rows)
	}
}

func TestGrantIncreasesTotal(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		l := New(store, 100)
		if _, err := l.Deduct(ctx, 4, 40, "search"); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Grant(ctx, 4, 25, "refund"); err != nil {
			t.Fatal(err)
		}
		bal, _ := l.GetBalance(ctx, 4)
		if bal.Available != 85 || bal.Used != 40 || bal.Total != 125 {
			t.Errorf("balance = %+v, want 85/40/125", bal)
		}
	})
}

func TestUpdateAbortsOnDecideError(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		boom := errors.New("boom")
		_, txn, err := store.Update(context.Background(), 5, 100, func(Balance) (*Entry, error) {
			return nil, boom
		})
		if !errors.Is(err, boom) || txn != nil {
			t.Fatalf("Update = %v, %v", txn, err)
		}
		bal, err := store.EnsureAccount(context.Background(), 5, 100)
		if err != nil || bal.Available != 100 {
			t.Errorf("balance after abort = %+v, %v", bal, err)
		}
	})
}

func TestApplyRejectsOverdraw(t *testing.T) {
	_, err := Apply(Balance{Total: 5, Available: 5}, Entry{Kind: KindDeduction, Amount: 6})
	if err == nil {
		t.Error("expected overdraw error")
	}
	if _, err := Apply(Balance{}, Entry{Kind: "refund", Amount: 1}); err == nil {
		t.Error("expected unknown kind error")
	}
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := k.Lock(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	unlock()
	if len(k.locks) != 0 {
		t.Errorf("lock entries leaked: %d", len(k.locks))
	}
}
