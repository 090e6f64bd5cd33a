package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig sizes the per-caller token buckets.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig is generous enough for a busy front desk while still
// cutting off a runaway client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucket is a token bucket refilled continuously at refillRate.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func newBucket(rate float64, burst int) *bucket {
	return &bucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

// take refills from elapsed time, then spends one token if available.
func (b *bucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfterSeconds estimates when the next token lands, floored at one
// second for the Retry-After header.
func (b *bucket) retryAfterSeconds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

// bucketStore lazily creates one bucket per caller key.
type bucketStore struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	config  RateLimitConfig
}

func newBucketStore(cfg RateLimitConfig) *bucketStore {
	return &bucketStore{
		buckets: make(map[string]*bucket),
		config:  cfg,
	}
}

func (s *bucketStore) bucket(key string) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[key]; ok {
		return b
	}
	b = newBucket(s.config.RequestsPerSecond, s.config.BurstSize)
	s.buckets[key] = b
	return b
}

// RateLimit throttles callers with per-key token buckets. Authenticated
// traffic keys on tenant plus source IP so one clinic flooding the API never
// starves another; unauthenticated traffic keys on IP alone.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newBucketStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if tenantID := c.Get("jwt_tenant_id"); tenantID != nil {
				key = tenantID.(string) + ":" + key
			}

			b := store.bucket(key)
			if !b.take() {
				c.Response().Header().Set("Retry-After", strconv.Itoa(b.retryAfterSeconds()))
				c.Response().Header().Set("X-RateLimit-Limit", limit)
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			c.Response().Header().Set("X-RateLimit-Limit", limit)
			return next(c)
		}
	}
}
