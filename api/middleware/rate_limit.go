package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimit 按用户限制写接口频率（令牌桶），闲置的限流器自动过期
// 未认证请求按客户端 IP 计
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	limiters := cache.New(10*time.Minute, 10*time.Minute)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := c.Get(ContextKeyUserID); ok {
			key = userID.(string)
		}

		var limiter *rate.Limiter
		if v, found := limiters.Get(key); found {
			limiter = v.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
			if err := limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
				// 并发请求已经放入了一个
				if v, found := limiters.Get(key); found {
					limiter = v.(*rate.Limiter)
				}
			}
		}

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁", "code": "RATE_LIMITED"})
			return
		}
		// 活跃用户续期
		limiters.Set(key, limiter, cache.DefaultExpiration)
		c.Next()
	}
}
