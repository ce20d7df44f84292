package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditDenied records rejected authentication and authorization attempts.
// Successful mutations are audited by the services themselves.
func AuditDenied(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    status,
			"role":      c.GetString(CtxRole),
			"client_ip": c.ClientIP(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        Subject(c),
			Action:       domain.AuditActionAccessDenied,
			ResourceType: "route",
			ResourceID:   c.FullPath(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}
