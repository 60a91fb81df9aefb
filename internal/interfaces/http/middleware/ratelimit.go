package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/infrastructure/ratelimit"
	"github.com/codedrop-io/codedrop/internal/shared/constants"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

// ErrRateLimitingDisabled is returned by Reset when no limiter is configured.
var ErrRateLimitingDisabled = errors.New("rate limiting disabled")

// RateLimitMiddleware applies sliding-window limits backed by a shared
// RateLimiter, so every instance sees the same counters.
type RateLimitMiddleware struct {
	limiter ratelimit.RateLimiter
	logger  logger.Interface
}

func NewRateLimitMiddleware(limiter ratelimit.RateLimiter, logger logger.Interface) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit allows requestsPerMinute requests per caller within scope. The caller
// is the authenticated account or feed source when known, else the client IP.
// A non-positive limit or a nil receiver disables the middleware.
func (m *RateLimitMiddleware) Limit(scope string, requestsPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || requestsPerMinute <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:%s", scope, callerKey(c))
		limits := ratelimit.Limits{
			RequestsPerMinute: requestsPerMinute,
			RequestsPerHour:   requestsPerMinute * 60,
		}

		allowed, err := m.limiter.Allow(c.Request.Context(), key, limits)
		if err != nil {
			// Redis unavailable: let the request through rather than block all traffic.
			m.logger.Warnw("rate limit check failed", "error", err, "key", key)
			c.Next()
			return
		}

		remaining := int64(requestsPerMinute)
		if used, err := m.limiter.Count(c.Request.Context(), key, time.Minute); err == nil {
			remaining -= used
		}
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			m.logger.Warnw("rate limit exceeded",
				"key", key,
				"limit", requestsPerMinute,
			)
			c.Header("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			utils.ErrorResponse(c, http.StatusTooManyRequests, constants.ErrMsgTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Reset clears the counters of caller within scope. caller has the form
// produced by Limit, e.g. "account:<id>", "feed:<source>" or "ip:<addr>".
func (m *RateLimitMiddleware) Reset(ctx context.Context, scope, caller string) error {
	if m == nil {
		return ErrRateLimitingDisabled
	}
	key := fmt.Sprintf("%s:%s", scope, caller)
	if err := m.limiter.Reset(ctx, key); err != nil {
		return err
	}
	m.logger.Infow("rate limit reset", "key", key)
	return nil
}

func callerKey(c *gin.Context) string {
	if id := c.GetString(constants.ContextKeyAccountID); id != "" {
		return "account:" + id
	}
	if source := c.GetString(constants.ContextKeyFeedSource); source != "" {
		return "feed:" + source
	}
	return "ip:" + c.ClientIP()
}
