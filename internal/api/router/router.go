// Package router wires the API routes and applies the middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/handler"
	apimw "github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/middleware"
)

// Options carries the cross-cutting pieces of the chain. Nil fields turn
// the corresponding feature off.
type Options struct {
	DefaultAccountID int64
	CORSOrigin       string
	RequestTimeout   time.Duration
	SearchLimiter    *ratelimit.Limiter
	Metrics          *metrics.Metrics
	Health           *health.Checker
	Analytics        *analytics.Handler
}

// New builds the full HTTP handler.
//
// Route table:
//
//	POST   /api/v1/candidates/search               → initiate search (202)
//	GET    /api/v1/candidates/search/{id}/status   → pipeline progress
//	GET    /api/v1/candidates/search/{id}/results  → paginated candidates
//	GET    /api/v1/candidates                      → paginated candidates
//	GET    /api/v1/candidates/shortlist            → account shortlist
//	GET    /api/v1/candidates/{id}                 → candidate profile
//	POST   /api/v1/candidates/{id}/shortlist       → toggle shortlist
//	POST   /api/v1/candidates/{id}/unlock          → paid contact unlock
//	GET    /api/v1/credits                         → balance
//	GET    /api/v1/credits/transactions            → audit trail
//	GET    /api/v1/campaigns                       → campaigns with stats
//	POST   /api/v1/campaigns                       → create draft (201)
//	GET    /api/v1/campaigns/{id}/sequences        → sequences and steps
//	GET    /api/v1/analytics/stats                 → live stats (optional)
//	GET    /api/v1/health, /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → Account → SearchRateLimit → Timeout → mux
func New(h *handler.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	mux.HandleFunc("POST /api/v1/candidates/search", h.InitiateSearch)
	mux.HandleFunc("GET /api/v1/candidates/search/{id}/status", h.SearchStatus)
	mux.HandleFunc("GET /api/v1/candidates/search/{id}/results", h.SearchResults)

	mux.HandleFunc("GET /api/v1/candidates", h.ListCandidates)
	mux.HandleFunc("GET /api/v1/candidates/shortlist", h.Shortlist)
	mux.HandleFunc("GET /api/v1/candidates/{id}", h.GetCandidate)
	mux.HandleFunc("POST /api/v1/candidates/{id}/shortlist", h.ToggleShortlist)
	mux.HandleFunc("POST /api/v1/candidates/{id}/unlock", h.UnlockContact)

	mux.HandleFunc("GET /api/v1/credits", h.Balance)
	mux.HandleFunc("GET /api/v1/credits/transactions", h.Transactions)

	mux.HandleFunc("GET /api/v1/campaigns", h.ListCampaigns)
	mux.HandleFunc("POST /api/v1/campaigns", h.CreateCampaign)
	mux.HandleFunc("GET /api/v1/campaigns/{id}/sequences", h.CampaignSequences)

	if opts.Analytics != nil {
		opts.Analytics.Register(mux)
	}

	var chain http.Handler = mux
	if opts.RequestTimeout > 0 {
		chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	}
	chain = apimw.SearchRateLimit(opts.SearchLimiter)(chain)
	chain = apimw.Account(opts.DefaultAccountID)(chain)
	chain = apimw.CORS(apimw.NewCORSConfig(opts.CORSOrigin))(chain)
	chain = pkgmw.Metrics(opts.Metrics)(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
