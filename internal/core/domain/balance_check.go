package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Severity grades a reconciliation discrepancy.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// Worse returns the more severe of s and o.
func (s Severity) Worse(o Severity) Severity {
	if o.rank() > s.rank() {
		return o
	}
	return s
}

// BalanceLine compares ledger-derived and stored state for one currency.
type BalanceLine struct {
	Currency        Currency        `json:"currency"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	ActualBalance   decimal.Decimal `json:"actual_balance"`
	ExpectedEscrow  decimal.Decimal `json:"expected_escrow"`
	ActualEscrow    decimal.Decimal `json:"actual_escrow"`
	ExpectedTotal   decimal.Decimal `json:"expected_total"`
	Difference      decimal.Decimal `json:"difference"` // largest absolute drift of balance or escrow
	Severity        Severity        `json:"severity"`
}

// Drifted reports whether the line is off by more than one smallest unit.
func (l BalanceLine) Drifted() bool {
	return l.Difference.GreaterThan(l.Currency.Epsilon())
}

// BalanceCheck is the result of reconciling one wallet in one pass.
type BalanceCheck struct {
	ID               uuid.UUID     `json:"id"`
	PassID           uuid.UUID     `json:"pass_id"`
	UserID           uuid.UUID     `json:"user_id"`
	Lines            []BalanceLine `json:"lines"`
	DiscrepancyFound bool          `json:"discrepancy_found"`
	MaxSeverity      Severity      `json:"max_severity"`
	AutoCorrected    bool          `json:"auto_corrected"`
	Resolved         bool          `json:"resolved"`
	ResolvedBy       *string       `json:"resolved_by,omitempty"`
	ResolutionNote   *string       `json:"resolution_note,omitempty"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Line returns the line for c, if present.
func (b *BalanceCheck) Line(c Currency) (BalanceLine, bool) {
	for _, l := range b.Lines {
		if l.Currency == c {
			return l, true
		}
	}
	return BalanceLine{}, false
}

// PassSummary aggregates one reconciliation pass.
type PassSummary struct {
	PassID         uuid.UUID     `json:"pass_id"`
	WalletsChecked int           `json:"wallets_checked"`
	Discrepancies  int           `json:"discrepancies"`
	AutoCorrected  int           `json:"auto_corrected"`
	Critical       int           `json:"critical"`
	Errors         int           `json:"errors"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}
