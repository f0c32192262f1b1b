package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to an underlying Provider with a token bucket.
// Chat blocks until a token is available or ctx is cancelled.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p so that at most rps requests per second start,
// with bursts of up to burst. A non-positive rps returns p unchanged.
func NewRateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}
	return r.Provider.Chat(ctx, req)
}
