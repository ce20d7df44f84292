package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the kind of balance mutation a ledger entry documents.
type EntryType string

const (
	EntryDeposit       EntryType = "deposit"
	EntryWithdrawal    EntryType = "withdrawal"
	EntryEscrowLock    EntryType = "escrow_lock"
	EntryEscrowRelease EntryType = "escrow_release"
	EntryEscrowRefund  EntryType = "escrow_refund"
	EntryEscrowCapture EntryType = "escrow_capture"
	EntryFee           EntryType = "fee"
	EntryAdjustment    EntryType = "adjustment"
)

// EntryTypes lists every entry type.
var EntryTypes = []EntryType{
	EntryDeposit, EntryWithdrawal, EntryEscrowLock, EntryEscrowRelease,
	EntryEscrowRefund, EntryEscrowCapture, EntryFee, EntryAdjustment,
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	for _, et := range EntryTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Effect returns the change an entry of type t with the given amount makes to
// a wallet's (balance, escrow). Only adjustments carry a signed amount.
func (t EntryType) Effect(amount decimal.Decimal) (balance, escrow decimal.Decimal) {
	zero := decimal.Zero
	switch t {
	case EntryDeposit, EntryAdjustment:
		return amount, zero
	case EntryWithdrawal:
		return amount.Neg(), zero
	case EntryEscrowLock:
		return amount.Neg(), amount
	case EntryEscrowRelease, EntryEscrowRefund:
		return amount, amount.Neg()
	case EntryEscrowCapture, EntryFee:
		return zero, amount.Neg()
	default:
		return zero, zero
	}
}

// LedgerEntry is an immutable record of one wallet mutation.
type LedgerEntry struct {
	ID            uuid.UUID              `json:"id"`
	UserID        uuid.UUID              `json:"user_id"`
	Type          EntryType              `json:"type"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      Currency               `json:"currency"`
	BalanceBefore decimal.Decimal        `json:"balance_before"`
	BalanceAfter  decimal.Decimal        `json:"balance_after"`
	EscrowBefore  decimal.Decimal        `json:"escrow_before"`
	EscrowAfter   decimal.Decimal        `json:"escrow_after"`
	Reference     string                 `json:"reference"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	IntegrityHash string                 `json:"integrity_hash"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Mutation describes a single change requested of a wallet.
type Mutation struct {
	Type      EntryType
	Currency  Currency
	Amount    decimal.Decimal
	Reference string
	Metadata  map[string]interface{}
}

// LedgerTotals holds per-type amount sums for one user and currency.
type LedgerTotals map[EntryType]decimal.Decimal

// Expected folds the totals through the entry effects into the balance and
// escrow the wallet should hold.
func (t LedgerTotals) Expected() (balance, escrow decimal.Decimal) {
	balance, escrow = decimal.Zero, decimal.Zero
	for typ, sum := range t {
		db, de := typ.Effect(sum)
		balance = balance.Add(db)
		escrow = escrow.Add(de)
	}
	return balance, escrow
}

// Reference helpers used across components.
func OrderRef(id uuid.UUID) string      { return "order:" + id.String() }
func WithdrawalRef(id uuid.UUID) string { return "withdrawal:" + id.String() }
