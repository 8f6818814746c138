package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paysync/internal/admintoken"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	"github.com/smallbiznis/paysync/internal/ratelimit"
	"go.uber.org/zap"
)

var baseCORSHeaders = []string{"Content-Type", "Authorization", "X-Request-Id"}

// CORS answers every preflight with 204 and tags every response with a
// wildcard origin.
func CORS(signatureHeaders []string) gin.HandlerFunc {
	allowHeaders := strings.Join(append(append([]string{}, baseCORSHeaders...), signatureHeaders...), ", ")
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", allowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestTimeout bounds every downstream call of the request.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		d = 10 * time.Second
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func AdminAuth(checker *admintoken.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(strings.TrimSpace(c.GetHeader("Authorization")), "Bearer ")
		if !ok || !checker.Check(strings.TrimSpace(token)) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

type clientLimiter interface {
	Enabled() bool
	AllowClient(ctx context.Context, clientIP string) *ratelimit.RateLimitResult
}

// WebhookRateLimit rejects over-limit clients before any verification work.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		res := s.limiter.AllowClient(c.Request.Context(), c.ClientIP())
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int(res.RetryAfter.Round(time.Second) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		logger.FromContext(c.Request.Context()).Warn("webhook rate limited",
			zap.String("client_ip", c.ClientIP()),
			zap.String("route", c.FullPath()),
		)
		AbortWithError(c, ErrRateLimited)
	}
}
