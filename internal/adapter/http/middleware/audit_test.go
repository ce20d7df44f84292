package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditDenied_RecordsForbidden(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAudit := mocks.NewMockAuditService(ctrl)
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(
		func(_ context.Context, log *domain.AuditLog) {
			assert.Equal(t, domain.AuditActionAccessDenied, log.Action)
			assert.Equal(t, "order-service", log.Actor)
			assert.Equal(t, "/api/v1/admin/reconciliation/run", log.ResourceID)
			assert.Contains(t, log.Details, `"status":403`)
		},
	)

	r := gin.New()
	r.Use(AuditDenied(mockAudit))
	r.POST("/api/v1/admin/reconciliation/run",
		func(c *gin.Context) {
			c.Set(CtxSubject, "order-service")
			c.Set(CtxRole, ports.RoleService)
		},
		RequireRole(ports.RoleOperator),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconciliation/run", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditDenied_SkipsOtherStatuses(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No expectations: Log must not be called.
	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditDenied(mockAudit))
	r.POST("/ok", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/bad"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
	}
}
