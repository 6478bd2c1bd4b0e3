package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
)

// WithTimeout bounds fn to limit. Hitting the limit yields ErrTimeout;
// cancellation of ctx itself yields ctx's error. fn is not waited for after
// the limit, so it must honour its context. A non-positive limit runs fn
// directly.
func WithTimeout(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(bounded) }()

	select {
	case err := <-result:
		if err == nil || bounded.Err() == nil {
			return err
		}
	case <-bounded.Done():
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s exceeded %v: %w", name, limit, apperrors.ErrTimeout)
}
