package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const defaultMaxEntries = 10000

type window struct {
	count int
	ends  time.Time
}

// IPRateLimiter allows limit requests per client IP per fixed window.
type IPRateLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxEntries int
	clients    map[string]window
	now        func() time.Time
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return NewIPRateLimiterWithMaxEntries(limit, window, defaultMaxEntries)
}

// NewIPRateLimiterWithMaxEntries bounds how many client IPs are tracked.
// When full, expired windows are swept; if none expired, the map is reset.
func NewIPRateLimiterWithMaxEntries(limit int, win time.Duration, maxEntries int) *IPRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if win <= 0 {
		win = time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &IPRateLimiter{
		limit:      limit,
		window:     win,
		maxEntries: maxEntries,
		clients:    map[string]window{},
		now:        time.Now,
	}
}

func (rl *IPRateLimiter) Middleware(message string) func(http.Handler) http.Handler {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r.RemoteAddr)
			if ip == "" {
				ip = "unknown"
			}
			allowed, retryAfter := rl.allow(ip)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.5)))
				writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *IPRateLimiter) allow(ip string) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[ip]
	if !ok || entry.ends.Before(now) {
		if !ok && len(rl.clients) >= rl.maxEntries {
			rl.sweepLocked(now)
		}
		entry = window{ends: now.Add(rl.window)}
	}
	entry.count++
	rl.clients[ip] = entry
	if entry.count > rl.limit {
		return false, entry.ends.Sub(now)
	}
	return true, 0
}

func (rl *IPRateLimiter) sweepLocked(now time.Time) {
	for ip, entry := range rl.clients {
		if entry.ends.Before(now) {
			delete(rl.clients, ip)
		}
	}
	if len(rl.clients) >= rl.maxEntries {
		rl.clients = map[string]window{}
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
