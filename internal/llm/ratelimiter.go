package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitedProvider throttles completion calls to a requests-per-minute
// budget. Generation is the only outbound call worth limiting here; embedding
// requests are batched per document and stay far below provider quotas.
type RateLimitedProvider struct {
	inner Provider
	rpm   int

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// NewRateLimitedProvider caps the wrapped provider at rpm completions per
// minute. The bucket starts full, so a burst of up to rpm turns goes through
// before any caller waits.
func NewRateLimitedProvider(inner Provider, rpm int) Provider {
	return &RateLimitedProvider{
		inner:      inner,
		rpm:        rpm,
		tokens:     rpm,
		lastRefill: time.Now(),
	}
}

func (r *RateLimitedProvider) Name() string {
	return r.inner.Name()
}

func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	return r.inner.Complete(ctx, req)
}

// acquire blocks until a token is available or the context ends. Tokens
// accrue continuously at rpm per minute, capped at one minute's worth.
func (r *RateLimitedProvider) acquire(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := time.Now()
		earned := int(now.Sub(r.lastRefill).Seconds() * float64(r.rpm) / 60.0)
		if earned > 0 {
			r.tokens += earned
			if r.tokens > r.rpm {
				r.tokens = r.rpm
			}
			r.lastRefill = now
		}
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		// Poll rather than compute the exact wait; composer turns are
		// seconds long, so the extra wakeups are negligible.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
