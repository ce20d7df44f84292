package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the lifecycle state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalReviewing  WithdrawalStatus = "reviewing"
	WithdrawalApproved   WithdrawalStatus = "approved"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

// Risk factor names.
const (
	RiskLargeAmount    = "large_amount"
	RiskNewDestination = "new_destination"
	RiskNewAccount     = "new_account"
	RiskHighVelocity   = "high_velocity"
)

// ManualReviewScore is the score at or above which a human must approve.
const ManualReviewScore = 40

// WithdrawalRequest is a user's request to move funds off-platform.
type WithdrawalRequest struct {
	ID                   uuid.UUID        `json:"id"`
	UserID               uuid.UUID        `json:"user_id"`
	Amount               decimal.Decimal  `json:"amount"`
	Currency             Currency         `json:"currency"`
	Address              string           `json:"address"`
	Status               WithdrawalStatus `json:"status"`
	RiskScore            int              `json:"risk_score"`
	RiskFactors          []string         `json:"risk_factors"`
	ManualReviewRequired bool             `json:"manual_review_required"`
	ProcessedBy          *string          `json:"processed_by,omitempty"`
	ProcessedAt          *time.Time       `json:"processed_at,omitempty"`
	RejectionReason      *string          `json:"rejection_reason,omitempty"`
	TxHash               *string          `json:"tx_hash,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// IsTerminal returns true if the request is in a final state.
func (w *WithdrawalRequest) IsTerminal() bool {
	return w.Status == WithdrawalCompleted ||
		w.Status == WithdrawalRejected ||
		w.Status == WithdrawalCancelled
}

// IsCancellable returns true while the user may still withdraw the request.
func (w *WithdrawalRequest) IsCancellable() bool {
	return w.Status == WithdrawalPending
}

// IsApprovable returns true if an operator may approve the request.
func (w *WithdrawalRequest) IsApprovable() bool {
	return w.Status == WithdrawalPending || w.Status == WithdrawalReviewing
}

// RiskInput is everything the risk score depends on. It is captured once at
// submission so scoring never reads the clock.
type RiskInput struct {
	Amount           decimal.Decimal
	Currency         Currency
	Address          string
	CreatedAt        time.Time
	AccountCreatedAt time.Time
	KnownAddresses   []string
	RecentRequests   int // requests by this user in the 24h before CreatedAt
}

// RiskAssessment is the output of the risk engine.
type RiskAssessment struct {
	Score                int      `json:"score"`
	Factors              []string `json:"factors"`
	ManualReviewRequired bool     `json:"manual_review_required"`
}
