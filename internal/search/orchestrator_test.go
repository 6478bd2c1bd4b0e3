package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ledger"
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

func (s *recordingSink) count(typ analytics.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	ledger  *ledger.Ledger
	store   Store
	runner  *Runner
	orch    *Orchestrator
	repo    *candidate.MemoryRepository
	sink    *recordingSink
	metrics *metrics.Metrics
}

type fixtureOpts struct {
	balance int64
	store   Store
	cfg     RunnerConfig
	hook    StageHook
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	if o.balance == 0 {
		o.balance = 1000
	}
	if o.store == nil {
		o.store = NewMemoryStore()
	}
	if o.cfg.StageMax == 0 {
		o.cfg.StageMax = 5 * time.Second
	}
	if o.cfg.MaxConcurrent == 0 {
		o.cfg.MaxConcurrent = 8
	}
	if o.cfg.ResultCount == 0 {
		o.cfg.ResultCount = 30
	}

	repo := candidate.NewMemoryRepository()
	for _, p := range candidate.DemoProfiles(30) {
		repo.Add(p)
	}
	l := ledger.New(ledger.NewMemoryStore(), o.balance)
	svc := candidate.NewService(repo, l, 5)
	sink := &recordingSink{}
	m := metrics.NewUnregistered()

	opts := []RunnerOption{WithCounter(svc), WithRunnerEvents(sink), WithRunnerMetrics(m)}
	if o.hook != nil {
		opts = append(opts, WithStageHook(o.hook))
	}
	runner := NewRunner(o.store, o.cfg, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runner.Shutdown(ctx)
	})

	return &fixture{
		ledger:  l,
		store:   o.store,
		runner:  runner,
		orch:    NewOrchestrator(l, o.store, runner, svc, 10, WithEvents(sink), WithMetrics(m)),
		repo:    repo,
		sink:    sink,
		metrics: m,
	}
}

func waitForTerminal(t *testing.T, o *Orchestrator, id int64) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := o.GetStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if st.Status.Terminal() {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("search %d did not finish", id)
	return Status{}
}

func TestInitiateSearchCompletesPipeline(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: RunnerConfig{StageMin: 10 * time.Millisecond}})
	ctx := context.Background()

	id, err := f.orch.InitiateSearch(ctx, 1, "senior frontend engineer", candidate.Filter{Location: "london"})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}

	bal, _ := f.ledger.GetBalance(ctx, 1)
	if bal.Available != 990 || bal.Used != 10 || bal.Total != 1000 {
		t.Errorf("balance after search = %+v", bal)
	}
	page, _ := f.ledger.Transactions(ctx, 1, pagination.Params{Page: 1, Limit: 10})
	if len(page.Transactions) != 1 || page.Transactions[0].Description != "Search: senior frontend engineer..." {
		t.Errorf("transactions = %+v", page.Transactions)
	}

	st := waitForTerminal(t, f.orch, id)
	if st.Status != JobCompleted {
		t.Fatalf("status = %s (%s), want completed", st.Status, st.FailureReason)
	}
	want, _ := f.repo.Count(ctx, candidate.Filter{Location: "london"})
	if st.ResultCount == nil || *st.ResultCount != want {
		t.Errorf("result count = %v, want %d", st.ResultCount, want)
	}
	if len(st.Stages) != len(DefaultStageNames) {
		t.Fatalf("stages = %d", len(st.Stages))
	}
	for i, s := range st.Stages {
		if s.Status != StageCompleted || s.StartedAt == nil || s.CompletedAt == nil {
			t.Fatalf("stage %d = %+v", i, s)
		}
		if s.StartedAt.After(*s.CompletedAt) {
			t.Errorf("stage %d started after it completed", i)
		}
		if d := s.CompletedAt.Sub(*s.StartedAt); d < 10*time.Millisecond {
			t.Errorf("stage %d loading for %v, want >= 10ms", i, d)
		}
		if i > 0 && st.Stages[i-1].CompletedAt.After(*s.StartedAt) {
			t.Errorf("stage %d started before stage %d completed", i, i-1)
		}
	}

	if n := f.sink.count(analytics.EventStageCompleted); n != len(DefaultStageNames) {
		t.Errorf("stage events = %d", n)
	}
	if f.sink.count(analytics.EventSearchInitiated) != 1 || f.sink.count(analytics.EventSearchCompleted) != 1 {
		t.Errorf("events = %+v", f.sink.events)
	}
	if got := testutil.ToFloat64(f.metrics.SearchJobsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed metric = %v", got)
	}
}

func TestInsufficientCreditsCreatesNoJob(t *testing.T) {
	store := NewMemoryStore()
	f := newFixture(t, fixtureOpts{balance: 5, store: store})
	ctx := context.Background()

	_, err := f.orch.InitiateSearch(ctx, 1, "anything", candidate.Filter{})
	if !errors.Is(err, apperrors.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if apperrors.HTTPStatusCode(err) != 402 {
		t.Errorf("status code = %d", apperrors.HTTPStatusCode(err))
	}
	if store.Count() != 0 {
		t.Errorf("%d jobs created", store.Count())
	}
	bal, _ := f.ledger.GetBalance(ctx, 1)
	if bal.Available != 5 || bal.Used != 0 {
		t.Errorf("balance = %+v, want unchanged", bal)
	}
}

func TestInitiateSearchValidation(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	cases := []struct {
		name    string
		account int64
		query   string
	}{
		{"empty query", 1, "   "},
		{"long query", 1, strings.Repeat("x", maxQueryLength+1)},
		{"bad account", 0, "go"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orch.InitiateSearch(context.Background(), tc.account, tc.query, candidate.Filter{})
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

type failingCreateStore struct {
	*MemoryStore
}

func (failingCreateStore) CreateJob(context.Context, NewJob) (int64, error) {
	return 0, apperrors.Storage("inserting search job", errors.New("connection reset"))
}

func TestCreateJobFailureRefundsCharge(t *testing.T) {
	f := newFixture(t, fixtureOpts{store: failingCreateStore{NewMemoryStore()}})
	ctx := context.Background()

	_, err := f.orch.InitiateSearch(ctx, 1, "refund me", candidate.Filter{})
	if !errors.Is(err, apperrors.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	bal, _ := f.ledger.GetBalance(ctx, 1)
	if bal.Available != 1000 {
		t.Errorf("available = %d, want refund to 1000", bal.Available)
	}
	page, _ := f.ledger.Transactions(ctx, 1, pagination.Params{Page: 1, Limit: 10})
	if len(page.Transactions) != 2 || page.Transactions[0].Kind != ledger.KindGrant {
		t.Errorf("transactions = %+v", page.Transactions)
	}
}

func TestStatusIsMonotonic(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: RunnerConfig{StageMin: 5 * time.Millisecond}})
	ctx := context.Background()

	id, err := f.orch.InitiateSearch(ctx, 1, "poll me", candidate.Filter{})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}

	var prev []Stage
	loadingSeen := false
	for {
		st, err := f.orch.GetStatus(ctx, id)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		loading := 0
		for i, s := range st.Stages {
			if s.Status == StageLoading {
				loading++
				loadingSeen = true
			}
			if prev != nil && s.Status.Rank() < prev[i].Status.Rank() {
				t.Fatalf("stage %d went from %s to %s", i, prev[i].Status, s.Status)
			}
			if i > 0 && s.Status.Rank() > StagePending.Rank() && st.Stages[i-1].Status != StageCompleted {
				t.Fatalf("stage %d progressed before stage %d completed", i, i-1)
			}
		}
		if loading > 1 {
			t.Fatalf("%d stages loading at once", loading)
		}
		prev = st.Stages
		if st.Status.Terminal() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !loadingSeen {
		t.Log("poll never observed a loading stage")
	}
}

func TestStageErrorFailsJobWithoutRollback(t *testing.T) {
	boom := errors.New("matcher unavailable")
	hook := func(ctx context.Context, job Job, stage Stage) error {
		if stage.Index == 1 {
			return boom
		}
		return nil
	}
	f := newFixture(t, fixtureOpts{hook: hook})

	id, err := f.orch.InitiateSearch(context.Background(), 1, "fail at stage two", candidate.Filter{})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}
	st := waitForTerminal(t, f.orch, id)
	if st.Status != JobFailed {
		t.Fatalf("status = %s, want failed", st.Status)
	}
	if !strings.Contains(st.FailureReason, "matcher unavailable") {
		t.Errorf("failure reason = %q", st.FailureReason)
	}
	want := []StageStatus{StageCompleted, StageLoading, StagePending, StagePending}
	for i, s := range st.Stages {
		if s.Status != want[i] {
			t.Errorf("stage %d = %s, want %s", i, s.Status, want[i])
		}
	}
	if st.ResultCount != nil {
		t.Errorf("failed job has result count %d", *st.ResultCount)
	}
	if f.sink.count(analytics.EventSearchFailed) != 1 {
		t.Errorf("failed events = %d", f.sink.count(analytics.EventSearchFailed))
	}
}

func TestStagePanicFailsJob(t *testing.T) {
	f := newFixture(t, fixtureOpts{hook: func(context.Context, Job, Stage) error {
		panic("nil map")
	}})
	id, err := f.orch.InitiateSearch(context.Background(), 1, "panic", candidate.Filter{})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}
	st := waitForTerminal(t, f.orch, id)
	if st.Status != JobFailed || !strings.Contains(st.FailureReason, "panic") {
		t.Errorf("status = %+v", st)
	}
}

func TestStageCeilingFailsSlowStage(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		cfg: RunnerConfig{StageMax: 20 * time.Millisecond},
		hook: func(ctx context.Context, _ Job, _ Stage) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	id, err := f.orch.InitiateSearch(context.Background(), 1, "slow", candidate.Filter{})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}
	st := waitForTerminal(t, f.orch, id)
	if st.Status != JobFailed || !strings.Contains(st.FailureReason, apperrors.ErrTimeout.Error()) {
		t.Errorf("status = %+v, want timeout failure", st)
	}
}

func TestShutdownMarksInFlightJobsFailed(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: RunnerConfig{StageMin: time.Hour, StageMax: 2 * time.Hour}})
	ctx := context.Background()

	id, err := f.orch.InitiateSearch(ctx, 1, "never finishes", candidate.Filter{})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := f.runner.Shutdown(shutdownCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown err = %v, want deadline exceeded", err)
	}

	st, err := f.orch.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.Status != JobFailed || st.FailureReason != reasonShutdown {
		t.Errorf("status after shutdown = %+v", st)
	}

	_, err = f.orch.InitiateSearch(ctx, 1, "after shutdown", candidate.Filter{})
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Fatalf("InitiateSearch after shutdown err = %v, want ErrUnavailable", err)
	}
	bal, _ := f.ledger.GetBalance(ctx, 1)
	if bal.Available != 990 {
		t.Errorf("available = %d, want 990 (second charge refunded)", bal.Available)
	}
}

func TestUnschedulableJobStaysFailedAndRefunded(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	if err := f.runner.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := f.orch.InitiateSearch(ctx, 1, "too late", candidate.Filter{}); !errors.Is(err, apperrors.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}

	st, err := f.orch.GetStatus(ctx, 1)
	if err != nil {
		t.Fatalf("GetStatus of the recorded job: %v", err)
	}
	if st.Status != JobFailed || st.FailureReason != reasonShutdown {
		t.Errorf("leftover job = %+v, want failed with reason %q", st, reasonShutdown)
	}
	bal, _ := f.ledger.GetBalance(ctx, 1)
	if bal.Available != 1000 {
		t.Errorf("available = %d, want 1000 after refund", bal.Available)
	}
}

func TestShutdownWaitsForInFlightJobs(t *testing.T) {
	f := newFixture(t, fixtureOpts{cfg: RunnerConfig{StageMin: 5 * time.Millisecond}})
	ctx := context.Background()
	id, err := f.orch.InitiateSearch(ctx, 1, "finish me", candidate.Filter{})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.runner.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	st, _ := f.orch.GetStatus(ctx, id)
	if st.Status != JobCompleted {
		t.Errorf("status = %s, want completed", st.Status)
	}
}

func TestConcurrentSearchesChargeExactly(t *testing.T) {
	f := newFixture(t, fixtureOpts{balance: 100, cfg: RunnerConfig{MaxConcurrent: 2}})
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []int64
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.orch.InitiateSearch(ctx, 1, "concurrent", candidate.Filter{})
			if err != nil {
				if !errors.Is(err, apperrors.ErrInsufficientCredits) {
					t.Errorf("InitiateSearch: %v", err)
				}
				return
			}
			mu.Lock()
			ids = append(ids, id)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != 10 {
		t.Errorf("%d searches accepted, want 10", len(ids))
	}
	bal, _ := f.ledger.GetBalance(ctx, 1)
	if bal.Available != 0 || bal.Used != 100 {
		t.Errorf("balance = %+v", bal)
	}
	for _, id := range ids {
		if st := waitForTerminal(t, f.orch, id); st.Status != JobCompleted {
			t.Errorf("search %d = %s", id, st.Status)
		}
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	if _, err := f.orch.GetStatus(context.Background(), 999); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := f.orch.GetStatus(context.Background(), -1); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGetResultsPaginationExample(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	page, err := f.orch.GetResults(context.Background(), 7, pagination.Params{Page: 2, Limit: 12}, candidate.Filter{})
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(page.Candidates) != 12 {
		t.Errorf("got %d candidates, want 12", len(page.Candidates))
	}
	want := pagination.Meta{Page: 2, Limit: 12, Total: 30, TotalPages: 3}
	if page.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", page.Pagination, want)
	}
}

func TestChargeDescription(t *testing.T) {
	cases := map[string]string{
		"go":                                     "Search: go...",
		"abcdefghijklmnopqrstuvwxyz0123456789":   "Search: abcdefghijklmnopqrstuvwxyz0123...",
		"über-engineer in München with 10 years": "Search: über-engineer in München with ...",
	}
	for in, want := range cases {
		if got := chargeDescription(in); got != want {
			t.Errorf("chargeDescription(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWatchdogReportsStuckJobs(t *testing.T) {
	store := NewMemoryStore()
	id := createTestJob(t, store)
	m := metrics.NewUnregistered()
	w := NewWatchdog(store, time.Minute, "@every 1m", m)

	stuck, err := w.Check(context.Background())
	if err != nil || len(stuck) != 0 {
		t.Fatalf("fresh check = %v, %v", stuck, err)
	}

	w.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	stuck, err = w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != id {
		t.Errorf("stuck = %+v", stuck)
	}
	if got := testutil.ToFloat64(m.StuckJobs); got != 1 {
		t.Errorf("stuck gauge = %v", got)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-w.Stop().Done()
}

func TestPipelineWithPostgresStore(t *testing.T) {
	db := pgtest.Open(t)
	f := newFixture(t, fixtureOpts{store: NewPostgresStore(db), cfg: RunnerConfig{StageMin: 5 * time.Millisecond}})

	id, err := f.orch.InitiateSearch(context.Background(), 1, "postgres backed", candidate.Filter{})
	if err != nil {
		t.Fatalf("InitiateSearch: %v", err)
	}
	st := waitForTerminal(t, f.orch, id)
	if st.Status != JobCompleted || st.ResultCount == nil || *st.ResultCount != 30 {
		t.Errorf("status = %+v", st)
	}
}
