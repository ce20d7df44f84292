package response

import (
	"errors"
	"net/http"
	"time"

	"custody-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Envelope is the single response shape of the internal API. OK and Message
// carry the (ok, message) pair collaborators act on.
type Envelope struct {
	OK        bool        `json:"ok"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"error_code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, "ok", data)
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, "ok", data)
}

// Message sends a 200 response with a custom message.
func Message(c *gin.Context, message string, data interface{}) {
	write(c, http.StatusOK, message, data)
}

// Error sends an error response. *apperror.AppError values keep their status
// and code, anything else becomes a 500.
func Error(c *gin.Context, err error) {
	_, message := apperror.Outcome(err)
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, Envelope{
			OK:        false,
			Message:   message,
			ErrorCode: appErr.Code,
			RequestID: getRequestID(c),
			Timestamp: now(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, Envelope{
		OK:        false,
		Message:   message,
		ErrorCode: "SYS_000",
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

func write(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		OK:        true,
		Message:   message,
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
