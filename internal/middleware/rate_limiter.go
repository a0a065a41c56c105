package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultIdleTimeout is how long a client bucket survives without requests.
const DefaultIdleTimeout = 3 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than the idle timeout are swept on a later lookup.
type RateLimiter struct {
	bucket      map[string]*clientBucket
	rate        rate.Limit
	burstSize   int
	idleTimeout time.Duration
	lastSweep   time.Time
	now         func() time.Time
	mutex       sync.Mutex
	logger      *zap.Logger
}

// NewRateLimiter allows rps requests per second per client with the given burst.
func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		bucket:      make(map[string]*clientBucket),
		rate:        rate.Limit(rps),
		burstSize:   burst,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		logger:      logger,
	}
}

// LimiterFor returns the bucket of a client, creating it on first use.
func (r *RateLimiter) LimiterFor(ip string) *rate.Limiter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.idleTimeout {
		r.sweep(now)
	}

	entry, exists := r.bucket[ip]
	if !exists {
		entry = &clientBucket{limiter: rate.NewLimiter(r.rate, r.burstSize)}
		r.bucket[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Clients reports how many client buckets are currently tracked.
func (r *RateLimiter) Clients() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.bucket)
}

// sweep must be called with the mutex held.
func (r *RateLimiter) sweep(now time.Time) {
	for ip, entry := range r.bucket {
		if now.Sub(entry.lastSeen) >= r.idleTimeout {
			delete(r.bucket, ip)
		}
	}
	r.lastSweep = now
}

// Handler rejects requests over the client's budget with 429. A non-positive
// rate disables limiting. The client is whatever gin.Context.ClientIP resolves,
// so the engine's trusted proxies decide whether forwarding headers count.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.rate <= 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if !r.LimiterFor(clientIP).Allow() {
			r.logger.Warn("too many requests", zap.String("ip", clientIP))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
