package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/campaign"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/search"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/health"
)

type testEnv struct {
	handler http.Handler
	ledger  *ledger.Ledger
}

type envOpts struct {
	balance int64
	limiter *ratelimit.Limiter
}

func newTestEnv(t *testing.T, o envOpts) *testEnv {
	t.Helper()
	if o.balance == 0 {
		o.balance = 1000
	}
	l := ledger.New(ledger.NewMemoryStore(), o.balance)
	repo := candidate.NewMemoryRepository()
	var candidateIDs []int64
	for _, p := range candidate.DemoProfiles(30) {
		candidateIDs = append(candidateIDs, repo.Add(p))
	}
	svc := candidate.NewService(repo, l, 5)

	campaigns := campaign.NewMemoryStore()
	for _, d := range campaign.DemoCampaigns(candidateIDs, time.Now().UTC()) {
		if _, err := campaigns.Insert(context.Background(), 1, d); err != nil {
			t.Fatalf("seeding campaign: %v", err)
		}
	}

	store := search.NewMemoryStore()
	runner := search.NewRunner(store, search.RunnerConfig{
		StageMin:      time.Millisecond,
		StageMax:      time.Second,
		MaxConcurrent: 4,
		ResultCount:   30,
	}, search.WithCounter(svc))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runner.Shutdown(ctx)
	})
	orch := search.NewOrchestrator(l, store, runner, svc, 10)

	h := handler.New(handler.Config{DefaultPageSize: 12, MaxPageSize: 100}, orch, svc, campaign.NewService(campaigns), l)
	return &testEnv{
		handler: New(h, Options{
			DefaultAccountID: 1,
			CORSOrigin:       "http://localhost:3000",
			RequestTimeout:   5 * time.Second,
			SearchLimiter:    o.limiter,
			Health:           health.NewChecker(),
		}),
		ledger: l,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decoding %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decoding %s: %v", raw, err)
	}
	return v
}

func (e *testEnv) startSearch(t *testing.T, body any, headers ...string) int64 {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/v1/candidates/search", body, headers...)
	if rec.Code != http.StatusAccepted || !env.Success {
		t.Fatalf("initiate: status %d body %s", rec.Code, rec.Body)
	}
	return decode[struct {
		SearchID int64 `json:"searchId"`
	}](t, env.Data).SearchID
}

func (e *testEnv) waitForStatus(t *testing.T, id int64) search.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	path := "/api/v1/candidates/search/" + strconv.FormatInt(id, 10) + "/status"
	for {
		rec, env := e.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d %s", rec.Code, rec.Body)
		}
		st := decode[search.Status](t, env.Data)
		if st.Status.Terminal() {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("search %d still %s", id, st.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSearchLifecycle(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	id := env.startSearch(t, map[string]any{
		"query":   "senior go engineer",
		"filters": map[string]any{"location": "remote"},
	})

	st := env.waitForStatus(t, id)
	if st.Status != search.JobCompleted {
		t.Fatalf("status = %s (%s)", st.Status, st.FailureReason)
	}
	if st.ResultCount == nil || *st.ResultCount != 5 {
		t.Errorf("results_count = %v, want 5 remote candidates", st.ResultCount)
	}
	if len(st.Stages) != len(search.DefaultStageNames) {
		t.Fatalf("stages = %d", len(st.Stages))
	}
	for _, s := range st.Stages {
		if s.Status != search.StageCompleted || s.StartedAt == nil || s.CompletedAt == nil || s.CompletedAt.Before(*s.StartedAt) {
			t.Errorf("stage %+v", s)
		}
	}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/candidates/search/"+strconv.FormatInt(id, 10)+"/results?page=2&limit=12", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("results: %d %s", rec.Code, rec.Body)
	}
	page := decode[candidate.Page](t, resp.Data)
	if len(page.Candidates) != 12 || page.Pagination.Total != 30 || page.Pagination.TotalPages != 3 || page.Pagination.Page != 2 {
		t.Errorf("page = %d items, %+v", len(page.Candidates), page.Pagination)
	}
	for _, c := range page.Candidates {
		if c.Email != "" {
			t.Errorf("candidate %d email leaked while locked", c.ID)
		}
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/credits", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("credits: %d", rec.Code)
	}
	bal := decode[ledger.Balance](t, resp.Data)
	if bal.Available != 990 || bal.Used != 10 || bal.Total != 1000 {
		t.Errorf("balance = %+v", bal)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/credits/transactions", nil)
	txns := decode[ledger.TransactionPage](t, resp.Data)
	if len(txns.Transactions) != 1 || txns.Transactions[0].Description != "Search: senior go engineer..." {
		t.Errorf("transactions = %+v", txns.Transactions)
	}
}

func TestPageBeyondRangeIsEmpty(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	id := env.startSearch(t, map[string]any{"query": "go"})
	env.waitForStatus(t, id)

	const huge = "4611686018427387904"
	for _, path := range []string{
		"/api/v1/candidates/search/" + strconv.FormatInt(id, 10) + "/results?page=" + huge + "&limit=12",
		"/api/v1/candidates?page=" + huge + "&limit=12",
	} {
		rec, resp := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d %s", path, rec.Code, rec.Body)
		}
		page := decode[candidate.Page](t, resp.Data)
		if len(page.Candidates) != 0 || page.Pagination.Total != 30 {
			t.Errorf("%s: %d items, %+v", path, len(page.Candidates), page.Pagination)
		}
	}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/credits/transactions?page="+huge, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions: status %d %s", rec.Code, rec.Body)
	}
	if txns := decode[ledger.TransactionPage](t, resp.Data); len(txns.Transactions) != 0 {
		t.Errorf("transactions = %+v", txns.Transactions)
	}
}

func TestInsufficientCredits(t *testing.T) {
	env := newTestEnv(t, envOpts{balance: 5})
	rec, resp := env.do(t, http.MethodPost, "/api/v1/candidates/search", map[string]any{"query": "go"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if resp.Success || resp.Message == "" {
		t.Errorf("envelope = %+v", resp)
	}
	bal, _ := env.ledger.GetBalance(context.Background(), 1)
	if bal.Available != 5 {
		t.Errorf("available = %d, want 5", bal.Available)
	}
}

func TestRequestErrors(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		headers []string
		status  int
	}{
		{"empty body", http.MethodPost, "/api/v1/candidates/search", nil, nil, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/candidates/search", "{", nil, http.StatusBadRequest},
		{"blank query", http.MethodPost, "/api/v1/candidates/search", map[string]any{"query": "  "}, nil, http.StatusBadRequest},
		{"negative experience", http.MethodPost, "/api/v1/candidates/search", map[string]any{"query": "go", "filters": map[string]any{"experience_min": -1}}, nil, http.StatusBadRequest},
		{"bad search id", http.MethodGet, "/api/v1/candidates/search/abc/status", nil, nil, http.StatusBadRequest},
		{"unknown search", http.MethodGet, "/api/v1/candidates/search/999/status", nil, nil, http.StatusNotFound},
		{"bad experience_min", http.MethodGet, "/api/v1/candidates/search/1/results?experience_min=x", nil, nil, http.StatusBadRequest},
		{"bad page", http.MethodGet, "/api/v1/candidates?page=-1", nil, nil, http.StatusBadRequest},
		{"unknown candidate", http.MethodGet, "/api/v1/candidates/999", nil, nil, http.StatusNotFound},
		{"bad account header", http.MethodGet, "/api/v1/credits", nil, []string{"X-Account-ID", "nope"}, http.StatusBadRequest},
		{"blank campaign name", http.MethodPost, "/api/v1/campaigns", map[string]any{"name": " "}, nil, http.StatusBadRequest},
		{"bad campaign type", http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "x", "type": "fax"}, nil, http.StatusBadRequest},
		{"duplicate campaign", http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "Senior Backend Drive"}, nil, http.StatusConflict},
		{"bad campaign id", http.MethodGet, "/api/v1/campaigns/x/sequences", nil, nil, http.StatusBadRequest},
		{"unknown campaign", http.MethodGet, "/api/v1/campaigns/999/sequences", nil, nil, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := env.do(t, tc.method, tc.path, tc.body, tc.headers...)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body)
			}
			if resp.Success {
				t.Error("success = true on error")
			}
		})
	}
}

func TestUnlockContactChargesOnce(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	_, resp := env.do(t, http.MethodGet, "/api/v1/candidates/1", nil)
	if d := decode[candidate.Details](t, resp.Data); d.Email != "" || !d.ContactLocked {
		t.Fatalf("locked profile = %+v", d.Candidate)
	}

	rec, resp := env.do(t, http.MethodPost, "/api/v1/candidates/1/unlock", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock: %d %s", rec.Code, rec.Body)
	}
	res := decode[candidate.UnlockResult](t, resp.Data)
	if res.CreditsSpent != 5 || res.Candidate.Email == "" {
		t.Errorf("unlock = %+v", res)
	}

	_, resp = env.do(t, http.MethodPost, "/api/v1/candidates/1/unlock", nil)
	if res := decode[candidate.UnlockResult](t, resp.Data); res.CreditsSpent != 0 || resp.Message != "Contact already unlocked" {
		t.Errorf("second unlock = %+v, %q", res, resp.Message)
	}

	bal, _ := env.ledger.GetBalance(context.Background(), 1)
	if bal.Available != 995 {
		t.Errorf("available = %d, want 995", bal.Available)
	}
}

func TestShortlistIsPerAccount(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	rec, resp := env.do(t, http.MethodPost, "/api/v1/candidates/3/shortlist", nil, "X-Account-ID", "7")
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", rec.Code, rec.Body)
	}
	if got := decode[map[string]any](t, resp.Data); got["shortlisted"] != true {
		t.Errorf("toggle = %v", got)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/candidates/shortlist", nil, "X-Account-ID", "7")
	if list := decode[[]candidate.Candidate](t, resp.Data); len(list) != 1 || list[0].ID != 3 {
		t.Errorf("shortlist = %+v", list)
	}
	_, resp = env.do(t, http.MethodGet, "/api/v1/candidates/shortlist", nil)
	if list := decode[[]candidate.Candidate](t, resp.Data); len(list) != 0 {
		t.Errorf("default account shortlist = %+v", list)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/candidates/3", nil, "X-Account-ID", "7")
	if d := decode[candidate.Details](t, resp.Data); !d.IsShortlisted {
		t.Error("details not marked shortlisted")
	}

	_, resp = env.do(t, http.MethodPost, "/api/v1/candidates/3/shortlist", nil, "X-Account-ID", "7")
	if got := decode[map[string]any](t, resp.Data); got["shortlisted"] != false {
		t.Errorf("second toggle = %v", got)
	}
}

func TestSearchRateLimitPerAccount(t *testing.T) {
	env := newTestEnv(t, envOpts{limiter: ratelimit.New(2, time.Minute)})
	body := map[string]any{"query": "go"}

	env.startSearch(t, body)
	env.startSearch(t, body)
	rec, resp := env.do(t, http.MethodPost, "/api/v1/candidates/search", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || resp.Success {
		t.Errorf("headers %v, envelope %+v", rec.Header(), resp)
	}

	env.startSearch(t, body, "X-Account-ID", "2")

	if rec, _ := env.do(t, http.MethodGet, "/api/v1/credits", nil); rec.Code != http.StatusOK {
		t.Errorf("non-search route limited: %d", rec.Code)
	}
	bal, _ := env.ledger.GetBalance(context.Background(), 1)
	if bal.Available != 980 {
		t.Errorf("available = %d, want 980 (rejected request must not charge)", bal.Available)
	}
}

func TestCampaignRoutes(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	rec, resp := env.do(t, http.MethodGet, "/api/v1/campaigns", nil)
	if rec.Code != http.StatusOK || resp.Message != "Campaigns retrieved successfully" {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
	list := decode[[]campaign.Campaign](t, resp.Data)
	if len(list) != 4 {
		t.Fatalf("got %d campaigns, want 4", len(list))
	}
	var frontend campaign.Campaign
	for _, c := range list {
		if c.Name == "Q1 Frontend Recruitment" {
			frontend = c
		}
	}
	if frontend.Stats == nil || frontend.Stats.Sent != 10 || frontend.Stats.OpenRate != 80 || frontend.Stats.ReplyRate != 30 {
		t.Errorf("frontend campaign = %+v", frontend)
	}

	rec, resp = env.do(t, http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "Platform Hiring", "type": "linkedin"})
	if rec.Code != http.StatusCreated || resp.Message != "Campaign created successfully" {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	created := decode[campaign.Campaign](t, resp.Data)
	if created.Status != campaign.StatusDraft || created.Type != campaign.TypeLinkedIn || created.AccountID != 1 {
		t.Errorf("created = %+v", created)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/campaigns", nil)
	if list := decode[[]campaign.Campaign](t, resp.Data); len(list) != 5 || list[0].ID != created.ID {
		t.Errorf("list after create = %+v", list)
	}
	_, resp = env.do(t, http.MethodGet, "/api/v1/campaigns", nil, "X-Account-ID", "7")
	if list := decode[[]campaign.Campaign](t, resp.Data); len(list) != 0 {
		t.Errorf("other account sees %d campaigns", len(list))
	}

	path := "/api/v1/campaigns/" + strconv.FormatInt(frontend.ID, 10) + "/sequences"
	rec, resp = env.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK || resp.Message != "Sequences retrieved successfully" {
		t.Fatalf("sequences: %d %s", rec.Code, rec.Body)
	}
	seqs := decode[[]campaign.Sequence](t, resp.Data)
	if len(seqs) != 1 || len(seqs[0].Steps) != 2 || seqs[0].Steps[0].Order != 1 {
		t.Errorf("sequences = %+v", seqs)
	}
	if rec, _ := env.do(t, http.MethodGet, path, nil, "X-Account-ID", "7"); rec.Code != http.StatusNotFound {
		t.Errorf("foreign campaign status = %d, want 404", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	rec, _ := env.do(t, http.MethodOptions, "/api/v1/candidates/search", nil, "Origin", "http://localhost:3000")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/health", nil, "Origin", "http://evil.example")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got %q", got)
	}
}

func TestHealthRoutes(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK || decode[map[string]any](t, resp.Data)["status"] != "ok" {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}
}
