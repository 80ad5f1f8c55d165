package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/estatehub/pkg/errors"
)

// Response is the envelope of every ops endpoint payload.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the client facing part of an AppError. The internal cause is
// never rendered.
type ErrorInfo struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Details []appErrors.FieldDetail `json:"details,omitempty"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// Error writes a JSON error response derived from an AppError. Errors of
// any other type render as INTERNAL_SERVER_ERROR.
func Error(c *gin.Context, err error) {
	c.JSON(Status(err), Response{
		Success: false,
		Error:   Info(err),
	})
}

// Abort is Error for middleware that must stop the handler chain.
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(Status(err), Response{
		Success: false,
		Error:   Info(err),
	})
}

// Status maps err onto its HTTP status hint.
func Status(err error) int {
	appErr := appErrors.FromError(orInternal(err))
	if appErr.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return appErr.StatusCode
}

// Info extracts the renderable part of err.
func Info(err error) *ErrorInfo {
	appErr := appErrors.FromError(orInternal(err))
	return &ErrorInfo{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}
}

func orInternal(err error) error {
	if err == nil {
		return appErrors.ErrInternalServer
	}
	return err
}
