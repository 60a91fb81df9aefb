// Package ingest provides the HTTP entry point for chat-feed messages.
package ingest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/application/broadcast"
	"github.com/codedrop-io/codedrop/internal/domain/code"
	"github.com/codedrop-io/codedrop/internal/shared/constants"
	"github.com/codedrop-io/codedrop/internal/shared/errors"
	"github.com/codedrop-io/codedrop/internal/shared/hubprotocol/live"
	"github.com/codedrop-io/codedrop/internal/shared/logger"
	"github.com/codedrop-io/codedrop/internal/shared/utils"
)

type messageIngester interface {
	Ingest(ctx context.Context, rawText string, source code.Source) (broadcast.IngestResult, error)
}

type IngestMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

type IngestMessageResponse struct {
	Detected  bool              `json:"detected"`
	Accepted  bool              `json:"accepted"`
	Code      *live.CodePayload `json:"code,omitempty"`
	Delivered int               `json:"delivered"`
}

type Handler struct {
	ingester messageIngester
	logger   logger.Interface
}

func NewHandler(ingester messageIngester, logger logger.Interface) *Handler {
	return &Handler{
		ingester: ingester,
		logger:   logger,
	}
}

// IngestMessage handles POST /api/ingest
func (h *Handler) IngestMessage(c *gin.Context) {
	var req IngestMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), req.Message, code.SourceIngest)
	if err != nil {
		h.logger.Warnw("failed to ingest message",
			"feed_source", c.GetString(constants.ContextKeyFeedSource),
			"error", err,
		)
		utils.ErrorResponseWithError(c, err)
		return
	}

	resp := IngestMessageResponse{
		Detected:  result.Detected,
		Accepted:  result.Accepted,
		Delivered: result.Fanout.Delivered,
	}
	if result.Code != nil {
		payload := live.FromCode(*result.Code)
		resp.Code = &payload
	}

	utils.SuccessResponse(c, http.StatusOK, "", resp)
}
