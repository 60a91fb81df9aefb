package admin

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

type rateLimitResetter interface {
	Reset(ctx context.Context, scope, caller string) error
}

type ResetRateLimitRequest struct {
	Scope  string `json:"scope" binding:"required"`
	Caller string `json:"caller" binding:"required"`
}

// RateLimitHandler lets operators lift a limit imposed on one caller.
type RateLimitHandler struct {
	limiter rateLimitResetter
	logger  logger.Interface
}

func NewRateLimitHandler(limiter rateLimitResetter, logger logger.Interface) *RateLimitHandler {
	return &RateLimitHandler{
		limiter: limiter,
		logger:  logger,
	}
}

// ResetRateLimit handles POST /api/admin/rate-limits/reset
func (h *RateLimitHandler) ResetRateLimit(c *gin.Context) {
	var req ResetRateLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	scope := strings.TrimSpace(req.Scope)
	caller := strings.TrimSpace(req.Caller)
	// the limiter scans by pattern
	if strings.ContainsAny(scope+caller, "*?[]") {
		utils.ErrorResponseWithError(c, errors.NewValidationError("scope and caller must not contain wildcards"))
		return
	}

	if err := h.limiter.Reset(c.Request.Context(), scope, caller); err != nil {
		if stderrors.Is(err, middleware.ErrRateLimitingDisabled) {
			utils.ErrorResponse(c, http.StatusServiceUnavailable, "rate limiting disabled")
			return
		}
		h.logger.Errorw("failed to reset rate limit", "scope", scope, "caller", caller, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Rate limit reset", gin.H{"scope": scope, "caller": caller})
}
