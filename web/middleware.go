package web

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands out a per-client-IP token bucket limiter, lazily
// creating one on first sight of an IP and discarding the whole set once
// it grows unreasonably large (cheaper than per-entry eviction).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter builds a RateLimiter issuing buckets of the given rate
// and burst size to each client IP.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// maxTrackedLimiters bounds memory growth from unbounded distinct IPs;
// past this the whole map is dropped and rebuilt from scratch.
const maxTrackedLimiters = 10000

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.limiters) > maxTrackedLimiters {
		rl.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := rl.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[ip] = limiter
	}
	return limiter
}

// RateLimitMiddleware rejects requests from a client IP that has exceeded
// its token bucket with 429 Too Many Requests.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.getLimiter(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// MaxBytesMiddleware rejects request bodies over maxBytes with 413, and
// caps the body reader so an oversized body can't be read into memory
// regardless of a missing or lying Content-Length header.
func MaxBytesMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// IsHTMLRequest reports whether accept looks like a browser's Accept
// header rather than an ActivityPub client's. ActivityPub requests are
// identified by an explicit activity+json/ld+json/json media type;
// everything else (including empty or */*) is treated as a browser so
// unrecognized clients get the human-readable page rather than a 406.
func IsHTMLRequest(accept string) bool {
	if accept == "" {
		return true
	}
	lower := strings.ToLower(accept)
	for _, mediaType := range strings.Split(lower, ",") {
		mediaType = strings.TrimSpace(mediaType)
		if idx := strings.Index(mediaType, ";"); idx != -1 {
			mediaType = mediaType[:idx]
		}
		switch mediaType {
		case "application/activity+json", "application/ld+json", "application/json":
			return false
		}
	}
	return true
}
