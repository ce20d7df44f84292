package handler

import (
	"context"

	"custody-ledger/internal/adapter/http/dto"
	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler exposes the escrow state machine to the order service.
type OrderHandler struct {
	engine ports.EscrowEngine
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(engine ports.EscrowEngine) *OrderHandler {
	return &OrderHandler{engine: engine}
}

// Register handles POST /api/v1/orders.
func (h *OrderHandler) Register(c *gin.Context) {
	var req dto.RegisterOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	cur, _ := domain.ParseCurrency(req.Currency)

	order, err := h.engine.Register(c.Request.Context(), ports.RegisterOrderRequest{
		OrderID:  uuid.MustParse(req.OrderID),
		BuyerID:  uuid.MustParse(req.BuyerID),
		VendorID: uuid.MustParse(req.VendorID),
		Currency: cur,
		Total:    mustDecimal(req.Total),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	h.withOrder(c, h.engine.Get)
}

// Lock handles POST /api/v1/orders/:id/lock.
func (h *OrderHandler) Lock(c *gin.Context) {
	h.withOrder(c, h.engine.LockFunds)
}

// Ship handles POST /api/v1/orders/:id/ship.
func (h *OrderHandler) Ship(c *gin.Context) {
	h.withOrder(c, h.engine.MarkShipped)
}

// Release handles POST /api/v1/orders/:id/release.
func (h *OrderHandler) Release(c *gin.Context) {
	h.withOrder(c, h.engine.Release)
}

// Dispute handles POST /api/v1/orders/:id/dispute.
func (h *OrderHandler) Dispute(c *gin.Context) {
	h.withOrder(c, h.engine.MarkDisputed)
}

// Cancel handles POST /api/v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	h.withOrder(c, h.engine.Cancel)
}

// Refund handles POST /api/v1/orders/:id/refund. The body is optional.
func (h *OrderHandler) Refund(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.RefundRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	order, err := h.engine.Refund(c.Request.Context(), orderID, optionalDecimal(req.Percent))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

func (h *OrderHandler) withOrder(c *gin.Context, op func(context.Context, uuid.UUID) (*domain.EscrowedOrder, error)) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := op(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}
