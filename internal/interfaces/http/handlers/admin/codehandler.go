// Package admin provides HTTP handlers for administrative operations.
package admin

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/application/broadcast"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/domain/shared"
	"github.com/codedrop-io/codedrop/internal/infrastructure/services"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

type codeBroadcaster interface {
	IngestExplicit(ctx context.Context, c code.Code) (broadcast.FanoutReport, error)
	Remove(token string) bool
	SetTurbo(enabled bool) (broadcast.TurboSettings, broadcast.FanoutReport)
}

type presenceDirectory interface {
	Online() []services.Connection
}

type CreateCodeRequest struct {
	Code             string `json:"code" binding:"required"`
	Value            string `json:"value"`
	Limit            string `json:"limit"`
	WagerRequirement string `json:"wagerRequirement"`
	Timeline         string `json:"timeline"`
}

type SetTurboRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type FanoutResponse struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type CreateCodeResponse struct {
	Code   live.CodePayload `json:"code"`
	Fanout FanoutResponse   `json:"fanout"`
}

type TurboResponse struct {
	TurboMode      bool           `json:"turboMode"`
	PollIntervalMs int64          `json:"pollIntervalMs"`
	Fanout         FanoutResponse `json:"fanout"`
}

type OnlineAccount struct {
	AccountID   string    `json:"accountId"`
	DisplayName string    `json:"displayName"`
	Live        bool      `json:"live"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

type OnlineResponse struct {
	Count    int             `json:"count"`
	Accounts []OnlineAccount `json:"accounts"`
}

// CodeHandler serves the operator endpoints for codes, turbo mode and presence.
type CodeHandler struct {
	broadcaster codeBroadcaster
	presence    presenceDirectory
	now         shared.Clock
	logger      logger.Interface
}

func NewCodeHandler(broadcaster codeBroadcaster, presence presenceDirectory, clock shared.Clock, logger logger.Interface) *CodeHandler {
	return &CodeHandler{
		broadcaster: broadcaster,
		presence:    presence,
		now:         clock.OrSystem(),
		logger:      logger,
	}
}

func fanoutResponse(r broadcast.FanoutReport) FanoutResponse {
	return FanoutResponse{Attempted: r.Attempted, Delivered: r.Delivered, Failed: r.Failed}
}

func normalizeToken(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// CreateCode handles POST /api/admin/codes
func (h *CodeHandler) CreateCode(c *gin.Context) {
	var req CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for create code", "error", err)
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	newCode, err := code.NewCode(normalizeToken(req.Code), code.SourceAdmin, h.now(), code.Metadata{
		Value:            strings.TrimSpace(req.Value),
		ClaimLimit:       strings.TrimSpace(req.Limit),
		WagerRequirement: strings.TrimSpace(req.WagerRequirement),
		Timeline:         strings.TrimSpace(req.Timeline),
	})
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid code", "code must be 4-20 letters or digits"))
		return
	}

	report, err := h.broadcaster.IngestExplicit(c.Request.Context(), *newCode)
	if err != nil {
		switch {
		case stderrors.Is(err, code.ErrDuplicateCode):
			utils.ErrorResponseWithError(c, errors.NewConflictError("code already exists", newCode.Token))
		case stderrors.Is(err, code.ErrInvalidToken):
			utils.ErrorResponseWithError(c, errors.NewValidationError("invalid code"))
		default:
			h.logger.Errorw("failed to broadcast admin code", "code", newCode.Token, "error", err)
			utils.ErrorResponseWithError(c, err)
		}
		return
	}

	h.logger.Infow("admin code broadcast",
		"code", newCode.Token,
		"delivered", report.Delivered,
		"failed", report.Failed,
	)

	utils.CreatedResponse(c, CreateCodeResponse{
		Code:   live.FromCode(*newCode),
		Fanout: fanoutResponse(report),
	}, "Code broadcast")
}

// DeleteCode handles DELETE /api/admin/codes/:token
func (h *CodeHandler) DeleteCode(c *gin.Context) {
	token := normalizeToken(c.Param("token"))
	if !code.IsValidToken(token) {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid code"))
		return
	}

	if !h.broadcaster.Remove(token) {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("code not found", token))
		return
	}

	h.logger.Infow("admin code removed", "code", token)
	utils.SuccessResponse(c, http.StatusOK, "Code removed", gin.H{"code": token})
}

// SetTurbo handles POST /api/admin/turbo
func (h *CodeHandler) SetTurbo(c *gin.Context) {
	var req SetTurboRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	settings, report := h.broadcaster.SetTurbo(*req.Enabled)

	h.logger.Infow("turbo mode changed",
		"enabled", settings.Enabled,
		"poll_interval", settings.PollInterval,
		"delivered", report.Delivered,
	)

	utils.SuccessResponse(c, http.StatusOK, "Turbo mode updated", TurboResponse{
		TurboMode:      settings.Enabled,
		PollIntervalMs: settings.PollInterval.Milliseconds(),
		Fanout:         fanoutResponse(report),
	})
}

// ListOnline handles GET /api/admin/online
func (h *CodeHandler) ListOnline(c *gin.Context) {
	conns := h.presence.Online()
	accounts := make([]OnlineAccount, 0, len(conns))
	for _, conn := range conns {
		accounts = append(accounts, OnlineAccount{
			AccountID:   conn.AccountID,
			DisplayName: conn.DisplayName,
			Live:        conn.Live,
			ConnectedAt: conn.ConnectedAt,
			LastSeenAt:  conn.LastSeenAt,
		})
	}

	utils.SuccessResponse(c, http.StatusOK, "", OnlineResponse{
		Count:    len(accounts),
		Accounts: accounts,
	})
}
