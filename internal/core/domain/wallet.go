package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrBalanceShort is returned when a mutation would take balance below zero.
	ErrBalanceShort = errors.New("balance would go negative")
	// ErrEscrowShort is returned when a mutation would take escrow below zero.
	ErrEscrowShort = errors.New("escrow would go negative")
)

// Wallet holds one user's spendable and escrowed funds for every currency.
// Balance is spendable, escrow is earmarked for open orders.
type Wallet struct {
	UserID            uuid.UUID       `json:"user_id"`
	BalanceBTC        decimal.Decimal `json:"balance_btc"`
	EscrowBTC         decimal.Decimal `json:"escrow_btc"`
	BalanceXMR        decimal.Decimal `json:"balance_xmr"`
	EscrowXMR         decimal.Decimal `json:"escrow_xmr"`
	WithdrawalPINHash *string         `json:"-"`               // Argon2id
	SecondFactorEnc   *string         `json:"-"`               // AES-256-GCM sealed TOTP secret
	DailyLimitBTC     decimal.Decimal `json:"daily_limit_btc"` // zero = unlimited
	DailyLimitXMR     decimal.Decimal `json:"daily_limit_xmr"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewWallet returns an empty wallet for user.
func NewWallet(userID uuid.UUID, now time.Time) *Wallet {
	return &Wallet{
		UserID:     userID,
		BalanceBTC: decimal.Zero,
		EscrowBTC:  decimal.Zero,
		BalanceXMR: decimal.Zero,
		EscrowXMR:  decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (w *Wallet) Balance(c Currency) decimal.Decimal {
	if c == CurrencyXMR {
		return w.BalanceXMR
	}
	return w.BalanceBTC
}

func (w *Wallet) Escrow(c Currency) decimal.Decimal {
	if c == CurrencyXMR {
		return w.EscrowXMR
	}
	return w.EscrowBTC
}

// Available is what the owner may withdraw or spend: escrowed funds have
// already left the balance.
func (w *Wallet) Available(c Currency) decimal.Decimal {
	return w.Balance(c)
}

// Total is everything the wallet holds in c.
func (w *Wallet) Total(c Currency) decimal.Decimal {
	return w.Balance(c).Add(w.Escrow(c))
}

func (w *Wallet) DailyLimit(c Currency) decimal.Decimal {
	if c == CurrencyXMR {
		return w.DailyLimitXMR
	}
	return w.DailyLimitBTC
}

// Set overwrites the stored balance and escrow of c.
func (w *Wallet) Set(c Currency, balance, escrow decimal.Decimal) {
	if c == CurrencyXMR {
		w.BalanceXMR, w.EscrowXMR = balance, escrow
		return
	}
	w.BalanceBTC, w.EscrowBTC = balance, escrow
}

// HasPIN reports whether a withdrawal PIN is set.
func (w *Wallet) HasPIN() bool {
	return w.WithdrawalPINHash != nil && *w.WithdrawalPINHash != ""
}

// HasSecondFactor reports whether a second-factor secret is set.
func (w *Wallet) HasSecondFactor() bool {
	return w.SecondFactorEnc != nil && *w.SecondFactorEnc != ""
}

// Apply performs m on the wallet and returns the ledger entry documenting it.
// The wallet is left untouched on error.
func (w *Wallet) Apply(m Mutation, now time.Time) (*LedgerEntry, error) {
	balBefore, escBefore := w.Balance(m.Currency), w.Escrow(m.Currency)
	db, de := m.Type.Effect(m.Amount)
	balAfter, escAfter := balBefore.Add(db), escBefore.Add(de)

	if balAfter.IsNegative() {
		return nil, ErrBalanceShort
	}
	if escAfter.IsNegative() {
		return nil, ErrEscrowShort
	}

	w.Set(m.Currency, balAfter, escAfter)
	w.UpdatedAt = now

	return &LedgerEntry{
		UserID:        w.UserID,
		Type:          m.Type,
		Amount:        m.Amount,
		Currency:      m.Currency,
		BalanceBefore: balBefore,
		BalanceAfter:  balAfter,
		EscrowBefore:  escBefore,
		EscrowAfter:   escAfter,
		Reference:     m.Reference,
		Metadata:      m.Metadata,
		CreatedAt:     now,
	}, nil
}

// Clone returns a deep copy of the wallet.
func (w *Wallet) Clone() *Wallet {
	cp := *w
	if w.WithdrawalPINHash != nil {
		h := *w.WithdrawalPINHash
		cp.WithdrawalPINHash = &h
	}
	if w.SecondFactorEnc != nil {
		s := *w.SecondFactorEnc
		cp.SecondFactorEnc = &s
	}
	return &cp
}
