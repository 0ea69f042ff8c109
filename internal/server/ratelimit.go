package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// staleBucketAge is how long an idle client's bucket is kept.
	staleBucketAge = 3 * time.Hour

	// pruneThreshold triggers a sweep of stale buckets on insert.
	pruneThreshold = 1024
)

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	limit   rate.Limit
	burst   int
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter builds a limiter allowing the given number of requests per
// window per client, with short bursts above the sustained rate.
func newIPLimiter(requests int, window time.Duration, burst int) *ipLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Hour
	}
	if burst <= 0 {
		burst = 20
	}
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   burst,
	}
}

// Allow reports whether the client may proceed, consuming one token.
func (l *ipLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= pruneThreshold {
			l.prune()
		}
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// prune drops buckets idle longer than staleBucketAge. Caller holds mu.
func (l *ipLimiter) prune() {
	cutoff := time.Now().Add(-staleBucketAge)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// clientIP extracts the requesting IP, preferring the first
// X-Forwarded-For entry when present.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
