package dto

import (
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// DepositRequest credits confirmed incoming funds.
type DepositRequest struct {
	Currency string `json:"currency" binding:"required,currency"`
	Amount   string `json:"amount" binding:"required,amount"`
	Source   string `json:"source" binding:"required,max=128,safe_id"`
}

// AdjustmentRequest is an operator correction. Amount is signed.
type AdjustmentRequest struct {
	Currency string `json:"currency" binding:"required,currency"`
	Amount   string `json:"amount" binding:"required,signed_amount"`
	Reason   string `json:"reason" binding:"required,max=500"`
}

// SecurityRequest sets withdrawal credentials and daily limits.
type SecurityRequest struct {
	PIN           *string `json:"pin,omitempty" binding:"omitempty,min=4,max=64"`
	OTPSecret     *string `json:"otp_secret,omitempty" binding:"omitempty,min=16,max=64,otp_secret"`
	DailyLimitBTC *string `json:"daily_limit_btc,omitempty" binding:"omitempty,limit"`
	DailyLimitXMR *string `json:"daily_limit_xmr,omitempty" binding:"omitempty,limit"`
}

// RegisterOrderRequest registers the escrow slice of a new order.
type RegisterOrderRequest struct {
	OrderID  string `json:"order_id" binding:"required,uuid"`
	BuyerID  string `json:"buyer_id" binding:"required,uuid"`
	VendorID string `json:"vendor_id" binding:"required,uuid,nefield=BuyerID"`
	Currency string `json:"currency" binding:"required,currency"`
	Total    string `json:"total" binding:"required,amount"`
}

// RefundRequest is an optional partial refund. An omitted percent refunds in full.
type RefundRequest struct {
	Percent *string `json:"percent,omitempty" binding:"omitempty,limit"`
}

// WithdrawalRequest submits a withdrawal on behalf of a user.
type WithdrawalRequest struct {
	UserID   string `json:"user_id" binding:"required,uuid"`
	Currency string `json:"currency" binding:"required,currency"`
	Amount   string `json:"amount" binding:"required,amount"`
	Address  string `json:"address" binding:"required,max=128"`
	PIN      string `json:"pin,omitempty" binding:"max=64"`
	OTPCode  string `json:"otp_code,omitempty" binding:"omitempty,numeric,len=6"`
}

// CancelWithdrawalRequest identifies the owner cancelling a pending request.
type CancelWithdrawalRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// RejectRequest carries an operator's rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// CompleteRequest carries the broadcast transaction hash.
type CompleteRequest struct {
	TxHash string `json:"tx_hash" binding:"required,max=128,hexadecimal"`
}

// ResolveRequest closes a reconciliation finding.
type ResolveRequest struct {
	Note string `json:"note" binding:"required,max=1000"`
}

// LedgerQuery filters a wallet's ledger listing.
type LedgerQuery struct {
	Currency string `form:"currency" binding:"omitempty,currency"`
	Type     string `form:"type" binding:"omitempty,entry_type"`
	From     string `form:"from" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To       string `form:"to" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// WithdrawalQuery filters withdrawal listings.
type WithdrawalQuery struct {
	UserID   string `form:"user_id" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=pending reviewing approved processing completed rejected cancelled"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// CheckQuery filters reconciliation check listings.
type CheckQuery struct {
	UserID          string `form:"user_id" binding:"omitempty,uuid"`
	OnlyDiscrepancy bool   `form:"only_discrepancy"`
	OnlyUnresolved  bool   `form:"only_unresolved"`
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// CurrencyBalance is one currency slice of a wallet.
type CurrencyBalance struct {
	Currency   domain.Currency `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	Escrow     decimal.Decimal `json:"escrow"`
	Available  decimal.Decimal `json:"available"`
	Total      decimal.Decimal `json:"total"`
	DailyLimit decimal.Decimal `json:"daily_limit"`
}

// WalletResponse is the response for a wallet balance query.
type WalletResponse struct {
	UserID          string            `json:"user_id"`
	Balances        []CurrencyBalance `json:"balances"`
	HasPIN          bool              `json:"has_pin"`
	HasSecondFactor bool              `json:"has_second_factor"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewWalletResponse flattens a wallet into per-currency balances.
func NewWalletResponse(w *domain.Wallet) WalletResponse {
	resp := WalletResponse{
		UserID:          w.UserID.String(),
		HasPIN:          w.HasPIN(),
		HasSecondFactor: w.HasSecondFactor(),
		UpdatedAt:       w.UpdatedAt,
	}
	for _, c := range domain.Currencies {
		resp.Balances = append(resp.Balances, CurrencyBalance{
			Currency:   c,
			Balance:    w.Balance(c),
			Escrow:     w.Escrow(c),
			Available:  w.Available(c),
			Total:      w.Total(c),
			DailyLimit: w.DailyLimit(c),
		})
	}
	return resp
}

// VerifyResponse lists ledger entries whose integrity hash does not match.
type VerifyResponse struct {
	UserID     string   `json:"user_id"`
	Intact     bool     `json:"intact"`
	TamperedID []string `json:"tampered_ids"`
}

// ListResponse wraps a paginated listing.
type ListResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// NewListResponse computes page metadata for items.
func NewListResponse(items interface{}, total int64, page, pageSize int) ListResponse {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return ListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}
