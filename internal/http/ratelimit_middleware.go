package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry holds a rate limiter with its last-used timestamp.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// ipRateLimiter manages per-address limiters with periodic cleanup.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
}

// newIPRateLimiter creates a limiter set and starts its cleanup loop.
func newIPRateLimiter(limit rate.Limit, burst int) *ipRateLimiter {
	l := &ipRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
	}
	go l.cleanupLoop()
	return l
}

// get returns the limiter for an address, creating it when absent.
func (l *ipRateLimiter) get(addr string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[addr]
	if ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters[addr] = &limiterEntry{limiter: limiter, lastUsed: time.Now()}
	return limiter
}

// cleanupLoop removes limiters unused for ten minutes.
func (l *ipRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for addr, entry := range l.limiters {
			if entry.lastUsed.Before(cutoff) {
				delete(l.limiters, addr)
			}
		}
		l.mu.Unlock()
	}
}

// LoginRateLimit throttles authentication attempts per client address,
// ahead of the per-account lockout counter.
func LoginRateLimit(perMinute, burst int) gin.HandlerFunc {
	limiter := newIPRateLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	return func(c *gin.Context) {
		if !limiter.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
			return
		}
		c.Next()
	}
}
