package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// sweepThreshold is the tracked-client count above which idle buckets are
// evicted on the next request.
const sweepThreshold = 10000

// bucket is one caller's token balance.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// ipLimiter hands out tokens per caller IP. A single mutex guards the map
// and the buckets; contention is acceptable at the request rates this
// service sees, and it keeps refill and take atomic without per-bucket
// locking.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*bucket),
		rate:    cfg.RequestsPerSecond,
		burst:   float64(cfg.BurstSize),
	}
}

// take consumes one token for key. When the bucket is empty it reports the
// whole seconds until the next token accrues (minimum 1).
func (l *ipLimiter) take(key string) (allowed bool, retryAfter int) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > sweepThreshold {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst}
		l.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		if l.rate <= 0 {
			return false, 1
		}
		wait := int((1 - b.tokens) / l.rate)
		if wait < 1 {
			wait = 1
		}
		return false, wait
	}
	b.tokens--
	return true, 0
}

// sweep drops buckets that have been idle long enough to refill completely.
// Caller must hold l.mu.
func (l *ipLimiter) sweep(now time.Time) {
	var idle time.Duration
	if l.rate > 0 {
		idle = time.Duration(l.burst/l.rate) * time.Second
	}
	if idle < time.Minute {
		idle = time.Minute
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(l.buckets, key)
		}
	}
}

// RateLimit returns middleware enforcing a per-IP token bucket. Exhausted
// callers receive 429 with a Retry-After header.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limiter := newIPLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, retryAfter := limiter.take(c.RealIP())

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !allowed {
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"success": false,
					"error":   "rate limit exceeded",
				})
			}

			return next(c)
		}
	}
}
