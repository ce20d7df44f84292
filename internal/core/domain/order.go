package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the escrow-relevant state of a marketplace order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderLocked     OrderStatus = "locked"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderCompleted  OrderStatus = "completed"
	OrderDisputed   OrderStatus = "disputed"
	OrderRefunded   OrderStatus = "refunded"
	OrderCancelled  OrderStatus = "cancelled"
)

// OrderAction names an escrow transition.
type OrderAction string

const (
	ActionLock    OrderAction = "lock"
	ActionShip    OrderAction = "ship"
	ActionRelease OrderAction = "release"
	ActionRefund  OrderAction = "refund"
	ActionDispute OrderAction = "dispute"
	ActionCancel  OrderAction = "cancel"
)

// orderTransitions maps each action to the states it may start from and the
// state it ends in.
var orderTransitions = map[OrderAction]struct {
	from []OrderStatus
	to   OrderStatus
}{
	ActionLock:    {[]OrderStatus{OrderPending}, OrderLocked},
	ActionShip:    {[]OrderStatus{OrderLocked}, OrderShipped},
	ActionRelease: {[]OrderStatus{OrderShipped, OrderDisputed}, OrderCompleted},
	ActionRefund:  {[]OrderStatus{OrderLocked, OrderShipped, OrderDisputed}, OrderRefunded},
	ActionDispute: {[]OrderStatus{OrderLocked, OrderProcessing, OrderShipped}, OrderDisputed},
	ActionCancel:  {[]OrderStatus{OrderPending, OrderLocked}, OrderCancelled},
}

// CanApply reports whether action is valid from status s.
func (s OrderStatus) CanApply(action OrderAction) bool {
	t, ok := orderTransitions[action]
	if !ok {
		return false
	}
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

// Target returns the state action leads to.
func (a OrderAction) Target() OrderStatus {
	return orderTransitions[a].to
}

// EscrowedOrder is the slice of an order the escrow engine reads and writes.
type EscrowedOrder struct {
	ID             uuid.UUID       `json:"id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	VendorID       uuid.UUID       `json:"vendor_id"`
	Status         OrderStatus     `json:"status"`
	Currency       Currency        `json:"currency"`
	Total          decimal.Decimal `json:"total"`
	EscrowAmount   decimal.Decimal `json:"escrow_amount"`
	EscrowReleased bool            `json:"escrow_released"`
	AutoFinalizeAt *time.Time      `json:"auto_finalize_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HoldsEscrow reports whether the buyer's funds are currently earmarked.
func (o *EscrowedOrder) HoldsEscrow() bool {
	switch o.Status {
	case OrderLocked, OrderProcessing, OrderShipped, OrderDisputed:
		return !o.EscrowReleased
	}
	return false
}

// IsTerminal returns true if no further escrow transitions are possible.
func (o *EscrowedOrder) IsTerminal() bool {
	return o.Status == OrderCompleted ||
		o.Status == OrderRefunded ||
		o.Status == OrderCancelled
}
