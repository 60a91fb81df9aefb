// Package codes provides the client-facing HTTP endpoints: the polling
// fallback, claim result reporting and passive heartbeats.
package codes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/application/broadcast"
	claimUsecases "github.com/codedrop-io/codedrop/internal/application/claim/usecases"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

type codeFeed interface {
	Snapshot() []code.Code
	Settings() broadcast.TurboSettings
}

type recordHeartbeatUseCase interface {
	Execute(ctx context.Context, accountID string) error
}

type reportClaimResultUseCase interface {
	Execute(ctx context.Context, cmd claimUsecases.ReportClaimResultCommand) (*claimUsecases.ReportClaimResultResult, error)
}

// SettingsResponse is the polling recommendation.
type SettingsResponse struct {
	TurboMode      bool  `json:"turboMode"`
	PollIntervalMs int64 `json:"pollIntervalMs"`
}

// CodesResponse is the cache snapshot served to polling clients.
type CodesResponse struct {
	Codes []live.CodePayload `json:"codes"`
	SettingsResponse
}

type ReportClaimResultRequest struct {
	Code    string `json:"code" binding:"required"`
	Success *bool  `json:"success" binding:"required"`
	Reason  string `json:"reason"`
	Value   string `json:"value"`
	Source  string `json:"source"`
}

type ClaimResultResponse struct {
	Code     string `json:"code"`
	Applied  bool   `json:"applied"`
	Result   string `json:"result"`
	Reason   string `json:"reason,omitempty"`
	Notified bool   `json:"notified"`
}

type Handler struct {
	feed        codeFeed
	heartbeatUC recordHeartbeatUseCase
	claimUC     reportClaimResultUseCase
	logger      logger.Interface
}

func NewHandler(
	feed codeFeed,
	heartbeatUC recordHeartbeatUseCase,
	claimUC reportClaimResultUseCase,
	logger logger.Interface,
) *Handler {
	return &Handler{
		feed:        feed,
		heartbeatUC: heartbeatUC,
		claimUC:     claimUC,
		logger:      logger,
	}
}

func settingsResponse(s broadcast.TurboSettings) SettingsResponse {
	return SettingsResponse{
		TurboMode:      s.Enabled,
		PollIntervalMs: s.PollInterval.Milliseconds(),
	}
}

// ListCodes handles GET /api/codes
func (h *Handler) ListCodes(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "", CodesResponse{
		Codes:            live.FromCodes(h.feed.Snapshot()),
		SettingsResponse: settingsResponse(h.feed.Settings()),
	})
}

// GetSettings handles GET /api/settings
func (h *Handler) GetSettings(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "", settingsResponse(h.feed.Settings()))
}

// Heartbeat handles POST /api/heartbeat
func (h *Handler) Heartbeat(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := h.heartbeatUC.Execute(c.Request.Context(), accountID); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", settingsResponse(h.feed.Settings()))
}

// ReportClaimResult handles POST /api/claim-result
func (h *Handler) ReportClaimResult(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req ReportClaimResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for claim result", "error", err, "account_id", accountID)
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	result, err := h.claimUC.Execute(c.Request.Context(), claimUsecases.ReportClaimResultCommand{
		AccountID: accountID,
		Token:     req.Code,
		Success:   *req.Success,
		Reason:    req.Reason,
		Value:     req.Value,
		Source:    req.Source,
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	message := "Claim result recorded"
	if !result.Applied {
		message = "Claim result already recorded"
	}
	utils.SuccessResponse(c, http.StatusOK, message, ClaimResultResponse{
		Code:     result.Outcome.Token,
		Applied:  result.Applied,
		Result:   string(result.Outcome.Result),
		Reason:   result.Outcome.Reason,
		Notified: result.Notified,
	})
}
