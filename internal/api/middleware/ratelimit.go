package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/respond"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ratelimit"
)

// SearchRateLimit limits how often an account may initiate searches. Every
// other route passes through untouched. It must run after Account.
func SearchRateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/v1/candidates/search" {
				next.ServeHTTP(w, r)
				return
			}

			key := strconv.FormatInt(AccountID(r.Context()), 10)
			if !limiter.Allow(key) {
				wait := int(math.Ceil(limiter.RetryAfter(key).Seconds()))
				if wait < 1 {
					wait = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(wait))
				respond.Fail(w, http.StatusTooManyRequests, "search rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
