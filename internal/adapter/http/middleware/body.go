package middleware

import (
	"mime"
	"net/http"

	"custody-ledger/pkg/apperror"
	"custody-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize caps the request body. Reads past maxBytes fail, which the
// JSON binder reports as a validation error.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequireJSON rejects write requests whose body is not application/json.
// Requests without a body pass through.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength == 0 || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
		if err != nil || mt != "application/json" {
			response.Error(c, apperror.ErrUnsupportedMediaType())
			c.Abort()
			return
		}
		c.Next()
	}
}
