package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ternarybob/profundo/internal/common"
	"github.com/ternarybob/profundo/internal/interfaces"
	"github.com/ternarybob/profundo/internal/models"
)

// Gate is the single choke point for remote calls. Every search, fetch,
// completion and embedding request passes through it and gets response
// caching, per-provider rate limiting, in-flight request collapsing and
// bounded retries.
type Gate struct {
	logger      arbor.ILogger
	cache       interfaces.CacheStorage
	group       singleflight.Group
	retry       RetryPolicy
	callTimeout time.Duration
	defaultTTL  time.Duration
	ttls        map[string]time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rates    map[string]float64
}

// NewGate builds a gate from configuration. Rates are expressed as
// requests per minute per provider; providers without a configured rate
// are not limited.
func NewGate(logger arbor.ILogger, cache interfaces.CacheStorage, cfg *common.GateConfig) *Gate {
	g := &Gate{
		logger:      logger,
		cache:       cache,
		callTimeout: common.Duration(cfg.CallTimeout, 2*time.Minute),
		defaultTTL:  common.Duration(cfg.CacheTTL, 24*time.Hour),
		ttls:        make(map[string]time.Duration),
		limiters:    make(map[string]*rate.Limiter),
		rates:       make(map[string]float64),
	}

	g.retry = RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: common.Duration(cfg.InitialBackoff, 1*time.Second),
		MaxBackoff:     common.Duration(cfg.MaxBackoff, 30*time.Second),
		Multiplier:     2.0,
	}
	if g.retry.MaxAttempts <= 0 {
		g.retry.MaxAttempts = 3
	}

	for provider, value := range cfg.ProviderTTLs {
		g.ttls[provider] = common.Duration(value, g.defaultTTL)
	}
	for provider, perMinute := range cfg.RatesPerMinute {
		g.rates[provider] = perMinute
	}

	return g
}

// TTL returns the cache lifetime for a provider's responses.
func (g *Gate) TTL(provider string) time.Duration {
	if ttl, ok := g.ttls[provider]; ok {
		return ttl
	}
	return g.defaultTTL
}

func (g *Gate) limiter(provider string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if limiter, ok := g.limiters[provider]; ok {
		return limiter
	}

	perMinute, ok := g.rates[provider]
	if !ok || perMinute <= 0 {
		return nil
	}

	limiter := rate.NewLimiter(rate.Limit(perMinute/60.0), 1)
	g.limiters[provider] = limiter
	return limiter
}

// Call executes a gated remote call. The request value is fingerprinted
// together with the provider name; a fresh cached response is returned
// without touching the limiter or the upstream. On a miss, concurrent
// calls with the same fingerprint collapse to one upstream invocation
// and all callers share its result.
func (g *Gate) Call(ctx context.Context, provider string, request interface{}, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	key, err := Fingerprint(provider, request)
	if err != nil {
		return nil, err
	}

	if entry, err := g.cache.Get(ctx, key); err == nil {
		g.logger.Debug().Str("provider", provider).Str("key", key).Msg("Gate cache hit")
		return entry.Value, nil
	} else if !errors.Is(err, models.ErrCacheMiss) {
		g.logger.Warn().Err(err).Str("key", key).Msg("Gate cache read failed, calling upstream")
	}

	value, err, shared := g.group.Do(key, func() (interface{}, error) {
		// Re-check under singleflight: a concurrent leader may have
		// populated the cache while this caller waited.
		if entry, err := g.cache.Get(ctx, key); err == nil {
			return entry.Value, nil
		}

		result, err := g.callUpstream(ctx, provider, fn)
		if err != nil {
			return nil, err
		}

		if err := g.cache.Put(ctx, key, provider, result, g.TTL(provider)); err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache gate response")
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		g.logger.Debug().Str("provider", provider).Str("key", key).Msg("Gate call collapsed into in-flight request")
	}
	return value.([]byte), nil
}

func (g *Gate) callUpstream(ctx context.Context, provider string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	var result []byte

	err := g.retry.Execute(ctx, func(ctx context.Context) error {
		if limiter := g.limiter(provider); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter wait interrupted for %s: %w", provider, err)
			}
		}

		callCtx := ctx
		if g.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.callTimeout)
			defer cancel()
		}

		value, err := fn(callCtx)
		if err != nil {
			g.logger.Warn().Err(err).Str("provider", provider).Msg("Upstream call failed")
			return err
		}

		result = value
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
