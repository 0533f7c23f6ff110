package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per user id.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	users     map[int64]*limiterEntry
	lastSweep time.Time
}

func newUserLimiter(limit rate.Limit, burst int) *userLimiter {
	if limit <= 0 {
		limit = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &userLimiter{limit: limit, burst: burst, users: make(map[int64]*limiterEntry)}
}

func (l *userLimiter) allow(userID int64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, e := range l.users {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.users, id)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.users[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (s *HTTPServer) rateLimit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(requester(r).UserID) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next(w, r)
	})
}
