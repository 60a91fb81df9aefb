package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedrop-io/codedrop/internal/shared/errors"
)

// APIResponse is the envelope every HTTP endpoint answers with. The client
// SDK unwraps Data on success and Error otherwise.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{Success: true, Data: data, Message: message})
}

func CreatedResponse(c *gin.Context, data interface{}, message string) {
	SuccessResponse(c, http.StatusCreated, message, data)
}

// ErrorResponse answers with a generic error carrying message.
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{Error: &ErrorInfo{Type: "error", Message: message}})
}

// ErrorResponseWithError maps err to its status and error type. Errors that
// are not AppErrors become a 500 without leaking their text.
func ErrorResponseWithError(c *gin.Context, err error) {
	status, info := describeError(err)
	c.JSON(status, APIResponse{Error: &info})
}

func describeError(err error) (int, ErrorInfo) {
	appErr := errors.GetAppError(err)
	if appErr == nil {
		return http.StatusInternalServerError, ErrorInfo{
			Type:    string(errors.ErrorTypeInternal),
			Message: "Internal server error occurred",
		}
	}
	return appErr.Code, ErrorInfo{
		Type:    string(appErr.Type),
		Message: appErr.Message,
		Details: appErr.Details,
	}
}
