package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// domainLimiter enforces a politeness delay between requests to one
// domain.
type domainLimiter struct {
	lastRequest time.Time
	mu          sync.Mutex
	delay       time.Duration
}

// RateLimiter spaces requests per domain so concurrent document fetches
// do not hammer a single site.
type RateLimiter struct {
	limiters     map[string]*domainLimiter
	mu           sync.RWMutex
	defaultDelay time.Duration
}

// NewRateLimiter creates a rate limiter with the given default delay.
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters:     make(map[string]*domainLimiter),
		defaultDelay: defaultDelay,
	}
}

// Wait blocks until the domain of rawURL may be hit again.
func (rl *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	domain := extractDomain(rawURL)
	if domain == "" || rl.defaultDelay <= 0 {
		return nil
	}

	rl.mu.Lock()
	limiter, exists := rl.limiters[domain]
	if !exists {
		limiter = &domainLimiter{delay: rl.defaultDelay}
		rl.limiters[domain] = limiter
	}
	rl.mu.Unlock()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()
	nextAllowed := limiter.lastRequest.Add(limiter.delay)
	if now.Before(nextAllowed) {
		timer := time.NewTimer(nextAllowed.Sub(now))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	limiter.lastRequest = time.Now()
	return nil
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
