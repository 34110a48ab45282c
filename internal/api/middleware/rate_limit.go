package middleware

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"conduit/internal/pkg/errors"
)

// RateLimiter is a per-key token bucket refilled continuously at limit per
// minute. Idle buckets are swept lazily.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

const bucketIdleTTL = 10 * time.Minute

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

func (rl *RateLimiter) Allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > bucketIdleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.lastRefill) > bucketIdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(limit), lastRefill: now}
		rl.buckets[key] = b
	}

	refill := now.Sub(b.lastRefill).Seconds() * float64(limit) / 60.0
	b.tokens = min(float64(limit), b.tokens+refill)
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limit keys buckets by tenant when the request is authenticated and by
// client IP otherwise, scoped by name.
func (rl *RateLimiter) Limit(name string, perMinute int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var key string
			if tenant, ok := TenantFrom(r.Context()); ok {
				key = fmt.Sprintf("%s:%s", tenant.TenantID, name)
			} else {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				key = fmt.Sprintf("%s:%s", host, name)
			}

			if !rl.Allow(key, perMinute) {
				w.Header().Set("Retry-After", "60")
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}
