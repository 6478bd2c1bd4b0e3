// Package middleware provides the API's request-scoped middleware: account
// resolution, CORS, and search rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/respond"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
)

// AccountHeader selects the billed account. It identifies, it does not
// authenticate.
const AccountHeader = "X-Account-ID"

type contextKey string

const accountIDKey contextKey = "account_id"

// Account resolves the account for every request from AccountHeader, falling
// back to defaultID when the header is absent.
func Account(defaultID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := defaultID
			if raw := r.Header.Get(AccountHeader); raw != "" {
				parsed, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || parsed <= 0 {
					respond.Fail(w, http.StatusBadRequest, AccountHeader+": must be a positive integer")
					return
				}
				id = parsed
			}
			ctx := context.WithValue(r.Context(), accountIDKey, id)
			ctx = logger.WithAccountID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountID returns the account resolved by Account, or 0.
func AccountID(ctx context.Context) int64 {
	id, _ := ctx.Value(accountIDKey).(int64)
	return id
}
