package app

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"cbtexam/internal/app/apiresp"
	"cbtexam/internal/auth"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter keeps one token bucket per key. Buckets idle for longer
// than the idle TTL are dropped on the next sweep.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	store   map[string]*limiterEntry
	swept   time.Time
}

func NewKeyedRateLimiter(perMinute int) *KeyedRateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &KeyedRateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		store:   make(map[string]*limiterEntry),
	}
}

func (l *KeyedRateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > l.idleTTL {
		for k, e := range l.store {
			if now.Sub(e.lastSeen) > l.idleTTL {
				delete(l.store, k)
			}
		}
		l.swept = now
	}

	e, ok := l.store[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.store[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimitMiddleware limits per authenticated user when one is present,
// otherwise per client IP.
func RateLimitMiddleware(l *KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(rateKey(r)) {
				w.Header().Set("Retry-After", "60")
				apiresp.WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateKey(r *http.Request) string {
	if u, ok := auth.CurrentUser(r.Context()); ok {
		return "user:" + strconv.FormatInt(u.ID, 10)
	}
	ip := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return "ip:" + ip
}
