package clients

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests
type RateLimiter interface {
	// Wait blocks until a request is allowed
	Wait(ctx context.Context) error
}

type noLimit struct{}

func (noLimit) Wait(context.Context) error { return nil }

// NewRateLimiter returns a token bucket limiter. A non-positive rps disables
// limiting.
func NewRateLimiter(rps float64, burst int) RateLimiter {
	if rps <= 0 {
		return noLimit{}
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
