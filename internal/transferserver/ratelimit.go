package transferserver

import (
	"sync"
	"time"
)

const (
	rateLimitWindow = 60 * time.Second
	rateLimitMax    = 60
)

// rateLimiter tracks a sliding window of request timestamps per client IP.
// Grounded on the spec's "ip -> sliding window" bucket rather than a
// token-bucket library, since the invariant under test is an exact count
// within an exact window rather than a smoothed rate.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{buckets: make(map[string][]time.Time)}
}

// Allow prunes timestamps older than the window for ip, and reports whether
// the caller may proceed. On allow, it records the current timestamp.
func (r *rateLimiter) Allow(ip string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-rateLimitWindow)
	bucket := r.buckets[ip]

	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rateLimitMax {
		r.buckets[ip] = kept
		return false
	}

	r.buckets[ip] = append(kept, now)
	return true
}
