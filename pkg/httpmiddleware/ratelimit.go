package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Limiter decides whether another request for key is allowed in the
// current window. Allow counts the request when it returns true and leaves
// the count unchanged when it returns false. An error means the backend
// could not decide; RateLimit lets such requests through.
//
// MemoryLimiter is the per-process implementation; the Redis backed one in
// internal/storage/redis shares counts across replicas.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. The Limiter enforces
	// it; the middleware only reports it in X-RateLimit-Limit.
	Max int
	// Window is the duration of the sliding window. Rejected requests get it,
	// rounded down to whole seconds and at least 1, in Retry-After.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, ClientIP is used.
	KeyFunc func(*http.Request) string
}

// RateLimit returns a middleware that asks l about every request under the
// key from cfg.KeyFunc. Every response carries X-RateLimit-Limit. A refused
// request gets 429 Too Many Requests with Retry-After and the JSON error
// body used by the other middlewares.
//
// The limiter fails open: when Allow returns an error, the error is logged
// at warn level and the request is served, so a Redis outage degrades rate
// limiting instead of the coupon API.
func RateLimit(l Limiter, cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	retryAfter := strconv.Itoa(max(1, int(cfg.Window.Seconds())))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), keyFunc(r))
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				ok = true
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			if !ok {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client address from the request. It trusts, in
// order, the first entry of X-Forwarded-For, then X-Real-IP, then the host
// part of RemoteAddr. RemoteAddr is returned as is when it has no port.
//
// The headers are taken at face value; the service is expected to sit
// behind a proxy that overwrites them.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// window tracks request counts across two adjacent fixed windows for the
// sliding window estimate. start is the beginning of the current fixed
// window, aligned to a multiple of the window duration.
type window struct {
	start time.Time
	curr  int
	prev  int
}

// MemoryLimiter is a per-process sliding window limiter.
//
// Time is split into fixed windows aligned to the window duration. For a
// request at time now the effective count is
//
//	prev*(1 - (now-start)/window) + curr
//
// that is, the previous window's count weighted by how much of it still
// overlaps the window-long span ending at now, plus the current window's
// count. A request is allowed while the effective count is below max.
//
// State is one entry per key guarded by a single mutex. Idle keys stay in
// memory until Cleanup removes them; Run calls it periodically.
type MemoryLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	keys map[string]*window
}

// NewMemoryLimiter returns a limiter that allows about limit requests per
// key within any window-long span. Call Run to evict idle keys.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:    limit,
		window: window,
		now:    time.Now,
		keys:   make(map[string]*window),
	}
}

// Allow implements Limiter. It rotates the key's windows when now has moved
// past the current one: by exactly one window the current count becomes the
// previous one, by two or more both are reset. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.window)
	w, ok := l.keys[key]
	switch {
	case !ok:
		w = &window{start: start}
		l.keys[key] = w
	case start.Sub(w.start) >= 2*l.window:
		*w = window{start: start}
	case start.After(w.start):
		*w = window{start: start, prev: w.curr}
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.window)
	overlap = min(max(overlap, 0), 1)
	if float64(w.prev)*overlap+float64(w.curr) >= float64(l.max) {
		return false, nil
	}
	w.curr++
	return true, nil
}

// Cleanup removes keys whose current window started two or more windows
// ago. Such keys carry no weight in Allow, so dropping them does not change
// any decision.
func (l *MemoryLimiter) Cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.keys {
		if now.Sub(w.start) >= 2*l.window {
			delete(l.keys, k)
		}
	}
}

// Run calls Cleanup every two windows. It blocks until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
