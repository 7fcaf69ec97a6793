// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/danielhkuo/quickly-tally/auth"
	"github.com/danielhkuo/quickly-tally/metrics"
)

// DefaultLimiterSize is how many callers keep a token bucket at once. The
// least recently seen caller loses its bucket first.
const DefaultLimiterSize = 10_000

// Limiter throttles requests per caller with a token bucket. Callers are
// keyed by actor id, or by a salted hash of the client IP for anonymous
// requests.
type Limiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
	salt    string
	metrics *metrics.Metrics
}

func NewLimiter(qps float64, burst, size int, salt string, m *metrics.Metrics) (*Limiter, error) {
	if qps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %g/s burst %d", qps, burst)
	}
	buckets, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter cache: %w", err)
	}
	return &Limiter{
		buckets: buckets,
		limit:   rate.Limit(qps),
		burst:   burst,
		salt:    salt,
		metrics: m,
	}, nil
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(key, bucket)
	}
	l.mu.Unlock()
	return bucket.Allow()
}

func (l *Limiter) key(r *http.Request) string {
	if uid := r.Header.Get(HeaderActorID); uid != "" {
		return "actor:" + uid
	}
	return "ip:" + auth.HashIP(GetClientIP(r), l.salt)
}

// Wrap refuses requests over the caller's rate with 429.
func (l *Limiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(l.key(r)) {
			l.metrics.Throttled()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(1/float64(l.limit)))))
			ErrorResponse(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}
