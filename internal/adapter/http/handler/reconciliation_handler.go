package handler

import (
	"custody-ledger/internal/adapter/http/dto"
	"custody-ledger/internal/adapter/http/middleware"
	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReconciliationHandler exposes balance verification to operators.
type ReconciliationHandler struct {
	svc ports.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(svc ports.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc}
}

// Run handles POST /api/v1/admin/reconciliation/run. The pass runs
// synchronously under the request context.
func (h *ReconciliationHandler) Run(c *gin.Context) {
	summary, err := h.svc.RunPass(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// ListChecks handles GET /api/v1/admin/reconciliation/checks.
func (h *ReconciliationHandler) ListChecks(c *gin.Context) {
	var q dto.CheckQuery
	if !bindQuery(c, &q) {
		return
	}

	checks, total, err := h.svc.ListChecks(c.Request.Context(), ports.CheckListParams{
		UserID:          optionalUUID(q.UserID),
		OnlyDiscrepancy: q.OnlyDiscrepancy,
		OnlyUnresolved:  q.OnlyUnresolved,
		Page:            q.Page,
		PageSize:        q.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if checks == nil {
		checks = []domain.BalanceCheck{}
	}
	response.OK(c, dto.NewListResponse(checks, total, q.Page, q.PageSize))
}

// Resolve handles POST /api/v1/admin/reconciliation/checks/:id/resolve.
func (h *ReconciliationHandler) Resolve(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	check, err := h.svc.Resolve(c.Request.Context(), id, middleware.Subject(c), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, check)
}
