package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// RateLimiter is the single-replica fallback used when Redis is not
// configured. Windows are fixed and start at a key's first hit.
type RateLimiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	hits  int
	reset time.Time
}

const maxBuckets = 10000

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{limit: limit, window: window, now: time.Now, buckets: map[string]*bucket{}}
}

func (rl *RateLimiter) Middleware(keyFn KeyFunc) Middleware {
	if keyFn == nil {
		keyFn = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits, reset := rl.take(keyFn(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.limit-hits, 0)))
			if hits > rl.limit {
				h.Set("Retry-After", strconv.Itoa(max(int(reset.Seconds()+0.999), 1)))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// take counts a hit and returns the hits so far in the window and the time
// left until it resets.
func (rl *RateLimiter) take(key string) (int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.buckets) > maxBuckets {
		for k, b := range rl.buckets {
			if !now.Before(b.reset) {
				delete(rl.buckets, k)
			}
		}
	}
	b := rl.buckets[key]
	if b == nil || !now.Before(b.reset) {
		b = &bucket{reset: now.Add(rl.window)}
		rl.buckets[key] = b
	}
	b.hits++
	return b.hits, b.reset.Sub(now)
}

// ClientKey keys by the first X-Forwarded-For hop, else the remote address.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
