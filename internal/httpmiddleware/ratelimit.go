package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"

	"shootday/internal/auth"
)

// TokenBucket is an in-memory per-caller rate limiter.
type TokenBucket struct {
	capacity int
	rate     int
	clock    clock.Clock
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates limiter with capacity tokens and rate per minute.
func NewTokenBucket(capacity, perMinute int, clk clock.Clock) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if clk == nil {
		clk = clock.New()
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		clock:    clk,
		state:    make(map[string]*bucket),
	}
}

// GinMiddleware limits authenticated callers by photographer and everyone
// else by client IP. Place it after auth.Bearer to key by photographer.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(callerKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return "sub:" + claims.Subject
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func (l *TokenBucket) allow(key string) bool {
	if l.rate <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.clock.Now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
