// Package accounts provides the username connect and notification
// preference endpoints.
package accounts

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	accountUsecases "github.com/codedrop-io/codedrop/internal/application/account/usecases"
	"github.com/codedrop-io/codedrop/internal/interfaces/http/middleware"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

type connectUseCase interface {
	Execute(ctx context.Context, username string) (*accountUsecases.ConnectResult, error)
}

type syncNotificationsUseCase interface {
	Execute(ctx context.Context, accountID string, enabled bool) (bool, error)
}

type ConnectRequest struct {
	Username string `json:"username" binding:"required"`
}

type ConnectResponse struct {
	AccessToken    string `json:"accessToken"`
	AccountID      string `json:"accountId"`
	Username       string `json:"username"`
	DisplayName    string `json:"displayName"`
	TelegramLinked bool   `json:"telegramLinked"`
	NotifyEnabled  bool   `json:"notifyEnabled"`
}

type SyncNotificationsRequest struct {
	TelegramNotifyEnabled *bool `json:"telegramNotifyEnabled" binding:"required"`
}

type SyncNotificationsResponse struct {
	TelegramNotifyEnabled bool `json:"telegramNotifyEnabled"`
}

type Handler struct {
	connectUC connectUseCase
	syncUC    syncNotificationsUseCase
	logger    logger.Interface
}

func NewHandler(connectUC connectUseCase, syncUC syncNotificationsUseCase, logger logger.Interface) *Handler {
	return &Handler{
		connectUC: connectUC,
		syncUC:    syncUC,
		logger:    logger,
	}
}

// Connect handles POST /api/auth/connect
func (h *Handler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for connect", "error", err)
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	result, err := h.connectUC.Execute(c.Request.Context(), req.Username)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	acct := result.Account
	utils.SuccessResponse(c, http.StatusOK, "Connected", ConnectResponse{
		AccessToken:    result.AccessToken,
		AccountID:      acct.ID(),
		Username:       acct.Username(),
		DisplayName:    acct.DisplayName(),
		TelegramLinked: acct.TelegramChatID() != 0,
		NotifyEnabled:  acct.NotifyEnabled(),
	})
}

// SyncNotifications handles POST /api/notifications/sync
func (h *Handler) SyncNotifications(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req SyncNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid request body for notification sync", "error", err, "account_id", accountID)
		utils.ErrorResponseWithError(c, errors.NewValidationError("telegramNotifyEnabled must be a boolean", err.Error()))
		return
	}

	enabled, err := h.syncUC.Execute(c.Request.Context(), accountID, *req.TelegramNotifyEnabled)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Notification preference updated", SyncNotificationsResponse{
		TelegramNotifyEnabled: enabled,
	})
}
