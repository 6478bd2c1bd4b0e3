// Package pagination implements 1-indexed offset pagination shared by the
// candidate listing, search results and credit history endpoints.
package pagination

import (
	"math"
	"net/url"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

// Params is a normalized page request.
type Params struct {
	Page  int
	Limit int
}

// Offset is the number of rows to skip. It saturates at math.MaxInt rather
// than overflowing, so a page far past the end reads as empty.
func (p Params) Offset() int {
	if p.Limit > 0 && p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// New validates page and limit, applying defaultLimit when limit is zero
// and clamping to maxLimit.
func New(page, limit, defaultLimit, maxLimit int) (Params, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if page < 1 {
		return Params{}, apperrors.Validation("page", "must be >= 1")
	}
	if limit < 1 {
		return Params{}, apperrors.Validation("limit", "must be >= 1")
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Params{Page: page, Limit: limit}, nil
}

// FromQuery reads ?page= and ?limit= from q.
func FromQuery(q url.Values, defaultLimit, maxLimit int) (Params, error) {
	page, err := intParam(q, "page")
	if err != nil {
		return Params{}, err
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		return Params{}, err
	}
	return New(page, limit, defaultLimit, maxLimit)
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation(name, "must be an integer")
	}
	return n, nil
}

// Meta is the pagination block returned alongside a page of items.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewMeta computes totalPages = ceil(total / limit).
func NewMeta(p Params, total int) Meta {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}
