package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how fast one client address may hit the dashboard
// API.
type RateLimitConfig struct {
	Rate            rate.Limit    // sustained requests per second per client
	Burst           int           // extra requests allowed in a burst
	CleanupInterval time.Duration // sweep cadence for idle clients
	MaxAge          time.Duration // idle time before a client is forgotten
}

// DefaultRateLimitConfig allows 20 requests per second with a burst of 40,
// enough for a dashboard polling several endpoints at once.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:            rate.Limit(20),
		Burst:           40,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// clientBucket is one client's token bucket and its last activity.
type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// IPRateLimiter keeps one token bucket per client address. Idle buckets are
// swept in the background until Stop is called.
type IPRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	cfg     RateLimitConfig
	done    chan struct{}
}

// NewIPRateLimiter creates the limiter and starts its sweep loop.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	rl := &IPRateLimiter{
		clients: make(map[string]*clientBucket),
		cfg:     cfg,
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow reports whether a request from ip fits within its bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.clients[ip]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)}
		rl.clients[ip] = b
	}
	b.seen = time.Now()
	rl.mu.Unlock()

	return b.lim.Allow()
}

// Stop ends the background sweep.
func (rl *IPRateLimiter) Stop() {
	close(rl.done)
}

func (rl *IPRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep drops buckets of clients idle past MaxAge.
func (rl *IPRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.MaxAge)
	swept := 0
	for ip, b := range rl.clients {
		if b.seen.Before(cutoff) {
			delete(rl.clients, ip)
			swept++
		}
	}
	if swept > 0 {
		slog.Debug("swept idle rate limit buckets", "swept", swept, "remaining", len(rl.clients))
	}
}

// RateLimit rejects requests over the per-client budget with 429 and a
// Retry-After hint. Mount after chi's RealIP so proxied requests are keyed
// by the real client address.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				slog.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeMiddlewareError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
