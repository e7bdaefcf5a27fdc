package resilience

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// NewLimiter returns a token bucket limiter, or nil when rps is not positive,
// meaning unlimited.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until l admits one event or ctx is done. A nil limiter admits
// everything immediately.
func Wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
