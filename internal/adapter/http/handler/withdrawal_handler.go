package handler

import (
	"custody-ledger/internal/adapter/http/dto"
	"custody-ledger/internal/adapter/http/middleware"
	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WithdrawalHandler handles withdrawal submission and operator decisions.
type WithdrawalHandler struct {
	svc ports.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(svc ports.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: svc}
}

// Submit handles POST /api/v1/withdrawals.
func (h *WithdrawalHandler) Submit(c *gin.Context) {
	var req dto.WithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}
	cur, _ := domain.ParseCurrency(req.Currency)

	wr, err := h.svc.Submit(c.Request.Context(), ports.WithdrawalSubmission{
		UserID:   uuid.MustParse(req.UserID),
		Currency: cur,
		Amount:   mustDecimal(req.Amount),
		Address:  req.Address,
		PIN:      req.PIN,
		OTPCode:  req.OTPCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, wr)
}

// Get handles GET /api/v1/withdrawals/:id.
func (h *WithdrawalHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	wr, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wr)
}

// List handles GET /api/v1/withdrawals.
func (h *WithdrawalHandler) List(c *gin.Context) {
	var q dto.WithdrawalQuery
	if !bindQuery(c, &q) {
		return
	}
	params := ports.WithdrawalListParams{
		UserID:   optionalUUID(q.UserID),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Status != "" {
		st := domain.WithdrawalStatus(q.Status)
		params.Status = &st
	}

	items, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []domain.WithdrawalRequest{}
	}
	response.OK(c, dto.NewListResponse(items, total, q.Page, q.PageSize))
}

// Cancel handles POST /api/v1/withdrawals/:id/cancel.
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.CancelWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	wr, err := h.svc.Cancel(c.Request.Context(), uuid.MustParse(req.UserID), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wr)
}

// StartReview handles POST /api/v1/admin/withdrawals/:id/review.
func (h *WithdrawalHandler) StartReview(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	wr, err := h.svc.StartReview(c.Request.Context(), id, middleware.Subject(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wr)
}

// Approve handles POST /api/v1/admin/withdrawals/:id/approve.
func (h *WithdrawalHandler) Approve(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	wr, err := h.svc.Approve(c.Request.Context(), id, middleware.Subject(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wr)
}

// Reject handles POST /api/v1/admin/withdrawals/:id/reject.
func (h *WithdrawalHandler) Reject(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.RejectRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	wr, err := h.svc.Reject(c.Request.Context(), id, middleware.Subject(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wr)
}

// Complete handles POST /api/v1/admin/withdrawals/:id/complete.
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.CompleteRequest
	if !bindJSON(c, &req) {
		return
	}

	wr, err := h.svc.Complete(c.Request.Context(), id, middleware.Subject(c), req.TxHash)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wr)
}
