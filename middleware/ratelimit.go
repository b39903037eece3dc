package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimitBy(r, b, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitBy limits per key, e.g. per seat on the choice route so both
// players behind one NAT get their own bucket.
func RateLimitBy(r rate.Limit, b int, key func(*gin.Context) string) gin.HandlerFunc {
	limiters := &sync.Map{}

	// Cleanup goroutine: remove stale entries every 5 minutes.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-10 * time.Minute).UnixNano()
			limiters.Range(func(k, v interface{}) bool {
				if v.(*keyLimiter).lastSeen.Load() < cutoff {
					limiters.Delete(k)
				}
				return true
			})
		}
	}()

	getLimiter := func(k string) *rate.Limiter {
		v, ok := limiters.Load(k)
		if !ok {
			v, _ = limiters.LoadOrStore(k, &keyLimiter{limiter: rate.NewLimiter(r, b)})
		}
		kl := v.(*keyLimiter)
		kl.lastSeen.Store(time.Now().UnixNano())
		return kl.limiter
	}

	return func(c *gin.Context) {
		if !getLimiter(key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
