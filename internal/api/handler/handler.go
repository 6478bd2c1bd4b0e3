// Package handler implements the recruiting API's HTTP endpoints on top of
// the search orchestrator, the candidate and campaign services and the credit
// ledger.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/respond"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/campaign"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/pagination"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

const maxBodyBytes = 1 << 20

// Config holds page-size limits applied to list endpoints.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Handler implements the API endpoints.
type Handler struct {
	cfg        Config
	searches   *search.Orchestrator
	candidates *candidate.Service
	campaigns  *campaign.Service
	ledger     *ledger.Ledger
	logger     *slog.Logger
}

func New(cfg Config, searches *search.Orchestrator, candidates *candidate.Service, campaigns *campaign.Service, l *ledger.Ledger) *Handler {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 12
	}
	return &Handler{
		cfg:        cfg,
		searches:   searches,
		candidates: candidates,
		campaigns:  campaigns,
		ledger:     l,
		logger:     slog.Default().With("component", "api-handler"),
	}
}

// ---------- Search ----------

type searchRequest struct {
	Query   string           `json:"query"`
	Filters candidate.Filter `json:"filters"`
}

// InitiateSearch handles POST /api/v1/candidates/search.
func (h *Handler) InitiateSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	if req.Filters.ExperienceMin < 0 {
		respond.Error(w, r, apperrors.Validation("filters.experience_min", "must be >= 0"))
		return
	}

	id, err := h.searches.InitiateSearch(r.Context(), middleware.AccountID(r.Context()), req.Query, req.Filters)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusAccepted, map[string]int64{"searchId": id}, "Search initiated")
}

// SearchStatus handles GET /api/v1/candidates/search/{id}/status.
func (h *Handler) SearchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	status, err := h.searches.GetStatus(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, status, "")
}

// SearchResults handles GET /api/v1/candidates/search/{id}/results.
func (h *Handler) SearchResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	page, filters, err := h.listParams(r.URL.Query())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.searches.GetResults(r.Context(), id, page, filters)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, res, "")
}

// ---------- Candidates ----------

// ListCandidates handles GET /api/v1/candidates.
func (h *Handler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	page, filters, err := h.listParams(r.URL.Query())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.candidates.List(r.Context(), filters, page)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, res, "")
}

// GetCandidate handles GET /api/v1/candidates/{id}.
func (h *Handler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	d, err := h.candidates.Details(r.Context(), middleware.AccountID(r.Context()), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, d, "")
}

// ToggleShortlist handles POST /api/v1/candidates/{id}/shortlist.
func (h *Handler) ToggleShortlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	on, err := h.candidates.ToggleShortlist(r.Context(), middleware.AccountID(r.Context()), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	msg := "Removed from shortlist"
	if on {
		msg = "Added to shortlist"
	}
	respond.OK(w, http.StatusOK, map[string]any{"candidateId": id, "shortlisted": on}, msg)
}

// Shortlist handles GET /api/v1/candidates/shortlist.
func (h *Handler) Shortlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.candidates.Shortlist(r.Context(), middleware.AccountID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if items == nil {
		items = []candidate.Candidate{}
	}
	respond.OK(w, http.StatusOK, items, "")
}

// UnlockContact handles POST /api/v1/candidates/{id}/unlock.
func (h *Handler) UnlockContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.candidates.UnlockContact(r.Context(), middleware.AccountID(r.Context()), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	msg := "Contact unlocked"
	if res.CreditsSpent == 0 {
		msg = "Contact already unlocked"
	}
	respond.OK(w, http.StatusOK, res, msg)
}

// ---------- Credits ----------

// Balance handles GET /api/v1/credits.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.GetBalance(r.Context(), middleware.AccountID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, b, "")
}

// Transactions handles GET /api/v1/credits/transactions.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromQuery(r.URL.Query(), h.cfg.DefaultPageSize, h.cfg.MaxPageSize)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.ledger.Transactions(r.Context(), middleware.AccountID(r.Context()), page)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, res, "")
}

// ---------- Campaigns ----------

// ListCampaigns handles GET /api/v1/campaigns.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := h.campaigns.List(r.Context(), middleware.AccountID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, list, "Campaigns retrieved successfully")
}

// CreateCampaign handles POST /api/v1/campaigns.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.NewCampaign
	if err := decodeBody(w, r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	c, err := h.campaigns.Create(r.Context(), middleware.AccountID(r.Context()), req)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusCreated, c, "Campaign created successfully")
}

func (h *Handler) CampaignSequences(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	seqs, err := h.campaigns.Sequences(r.Context(), middleware.AccountID(r.Context()), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, seqs, "Sequences retrieved successfully")
}

// ---------- Health ----------

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, respond.Envelope{
		Success: true,
		Data: map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		},
	})
}

// ---------- Helpers ----------

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.Validation("body", "must not be empty")
		case errors.As(err, &tooLarge):
			return apperrors.New(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			return apperrors.Validation("body", "invalid JSON")
		}
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation(name, "must be a positive integer")
	}
	return id, nil
}

// listParams reads pagination plus the location, experience_min, role and
// comma-separated skills filters.
func (h *Handler) listParams(q url.Values) (pagination.Params, candidate.Filter, error) {
	page, err := pagination.FromQuery(q, h.cfg.DefaultPageSize, h.cfg.MaxPageSize)
	if err != nil {
		return pagination.Params{}, candidate.Filter{}, err
	}
	f := candidate.Filter{
		Location: q.Get("location"),
		Role:     q.Get("role"),
	}
	if raw := q.Get("experience_min"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return pagination.Params{}, candidate.Filter{}, apperrors.Validation("experience_min", "must be a non-negative integer")
		}
		f.ExperienceMin = n
	}
	if raw := q.Get("skills"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Skills = append(f.Skills, s)
			}
		}
	}
	return page, f, nil
}
