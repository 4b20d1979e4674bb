package middleware

import (
	"net/http"
	"sync"
	"time"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// 长时间没有请求的客户端限流器会被回收
const limiterIdleTTL = 10 * time.Minute

type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters *gocache.Cache
}

func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(requestsPerMinute) / 60),
		burst:    burst,
		limiters: gocache.New(limiterIdleTTL, limiterIdleTTL),
	}
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.limiters.Get(key); ok {
		limiter := v.(*rate.Limiter)
		r.limiters.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(r.limit, r.burst)
	r.limiters.SetDefault(key, limiter)
	return limiter
}

func (r *RateLimiter) Allow(key string) bool {
	return r.limiterFor(key).Allow()
}

// Middleware 按客户端 IP 限流，超限返回 429
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !r.Allow(ip) {
			logger.Warnf("rate limit exceeded for %s %s %s", ip, c.Request.Method, c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// RateLimit 未启用时返回空中间件
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst).Middleware()
}
