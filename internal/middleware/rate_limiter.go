package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/visual-health-insight/internal/domain"
)

// RateLimiterConfig configures the global request rate.
type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// RateLimiter rejects requests beyond a token-bucket rate shared by all clients.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(config.Rate, config.Burst),
	}
}

// NewRateLimiterFromConfig creates a rate limiter from application settings.
func NewRateLimiterFromConfig(cfg domain.RateLimitConfig) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(cfg.RPS), Burst: cfg.Burst})
}

// RateLimit aborts with 429 when no token is available.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":           domain.ErrCodeRateLimit,
				"error":          "rate limit exceeded",
				"correlation_id": c.GetString(CorrelationIDKey),
				"timestamp":      time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		c.Next()
	}
}
