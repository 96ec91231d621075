// Package ratelimit implements per-principal token bucket rate limiting.
// Buckets are process-local, lazily created per key, refilled
// continuously, and evicted after an idle TTL.
package ratelimit

import (
	"io"
	"sync"
	"time"

	"github.com/vyrodovalexey/avaqa/internal/observability"
)

// Ensure Limiter implements io.Closer for proper resource cleanup.
var _ io.Closer = (*Limiter)(nil)

// Limiter defaults.
const (
	// DefaultCapacity is the default bucket capacity in tokens.
	DefaultCapacity = 20

	// DefaultRefillRate is the default refill rate in tokens per second.
	DefaultRefillRate = 10.0

	// DefaultBucketTTL is how long an idle bucket survives before eviction.
	DefaultBucketTTL = 10 * time.Minute

	// DefaultSweepInterval is how often idle buckets are swept.
	DefaultSweepInterval = time.Minute
)

// Result is the outcome of one admission check.
type Result struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Remaining is the whole number of tokens left in the bucket.
	Remaining int

	// RetryAfter is how long until one token is available. Zero when
	// the request was allowed.
	RetryAfter time.Duration
}

// bucket holds the token state for a single key. Each bucket carries its
// own lock so unrelated principals never contend.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Limiter is a token bucket rate limiter keyed by principal.
type Limiter struct {
	capacity   float64
	refillRate float64
	bucketTTL  time.Duration
	logger     observability.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// LimiterOption is a functional option for configuring the limiter.
type LimiterOption func(*Limiter)

// WithLimiterLogger sets the logger for the limiter.
func WithLimiterLogger(logger observability.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithBucketTTL overrides the idle eviction TTL.
func WithBucketTTL(ttl time.Duration) LimiterOption {
	return func(l *Limiter) {
		l.bucketTTL = ttl
	}
}

// NewLimiter creates a limiter and starts its idle-bucket sweeper.
// Call Close when done to stop the sweeper goroutine.
func NewLimiter(capacity int, refillRate float64, opts ...LimiterOption) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if refillRate <= 0 {
		refillRate = DefaultRefillRate
	}

	l := &Limiter{
		capacity:   float64(capacity),
		refillRate: refillRate,
		bucketTTL:  DefaultBucketTTL,
		logger:     observability.NopLogger(),
		buckets:    make(map[string]*bucket),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.sweepLoop()

	return l
}

// Allow performs one admission check for the key, consuming one token
// on success. The bucket lock is held only for the refill-and-decrement,
// never across any I/O.
func (l *Limiter) Allow(key string) Result {
	b := l.getBucket(key)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill based on elapsed time, clamped to capacity.
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * l.refillRate
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return Result{
			Allowed:   true,
			Remaining: int(b.tokens),
		}
	}

	needed := 1 - b.tokens
	return Result{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: time.Duration(needed / l.refillRate * float64(time.Second)),
	}
}

// getBucket returns the bucket for the key, creating it lazily. New
// buckets start full.
func (l *Limiter) getBucket(key string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{
		tokens:     l.capacity,
		lastRefill: time.Now(),
	}
	l.buckets[key] = b
	return b
}

// ActiveBuckets returns the number of live buckets.
func (l *Limiter) ActiveBuckets() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// sweepLoop periodically evicts idle buckets.
func (l *Limiter) sweepLoop() {
	interval := l.bucketTTL / 2
	if interval > DefaultSweepInterval {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(l.bucketTTL)
		case <-l.stopCh:
			return
		}
	}
}

// evictIdle removes buckets whose last refill is older than maxAge.
func (l *Limiter) evictIdle(maxAge time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastRefill) > maxAge
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("evicted idle rate limit buckets",
			observability.Int("removed", removed),
			observability.Int("remaining", len(l.buckets)),
		)
	}
}

// Close stops the sweeper goroutine. Safe to call multiple times.
func (l *Limiter) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	return nil
}
