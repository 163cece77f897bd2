package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/bistro-api/internal/auth"
	"github.com/ksred/bistro-api/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	visitorTTL   = 3 * time.Minute
	authPerMin   = 10
	authPrefix   = "/auth"
	sweepEvery   = time.Minute
	claimsKey    = "claims"
	staffUserKey = "staffEmail"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client and route. Login gets a
// fixed tight limit; every other route shares perMinute.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perMinute int
	lastSweep time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		perMinute: perMinute,
		lastSweep: time.Now(),
	}
}

func (l *RateLimiter) limiter(path, client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > sweepEvery {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	key := client + ":" + path
	v, exists := l.visitors[key]
	if !exists {
		perMinute := l.perMinute
		if strings.HasPrefix(path, authPrefix) {
			perMinute = authPerMin
		}
		v = &visitor{
			limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimit answers 429 once a client exhausts its bucket for a route. A
// zero limit disables the middleware.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.perMinute <= 0 {
			c.Next()
			return
		}

		client := c.GetString(staffUserKey)
		if client == "" {
			client = c.ClientIP()
		}

		if !limiter.limiter(c.FullPath(), client).Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}
		c.Next()
	}
}

// JWTAuth requires a valid bearer token issued by the auth service
func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := strings.Split(c.GetHeader("Authorization"), " ")
		if len(bearer) != 2 || !strings.EqualFold(bearer[0], "bearer") {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(bearer[1])
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set(staffUserKey, claims.Email)
		c.Next()
	}
}

// RequestLogger writes one structured line per request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
