package ports

import (
	"errors"

	"custody-ledger/internal/core/domain"
)

//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks

// ErrLockTimeout is wrapped by storage adapters when a row lock could not be
// acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Metrics receives domain events for instrumentation.
type Metrics interface {
	LedgerAppended(entryType domain.EntryType, currency domain.Currency)
	OrderTransition(action domain.OrderAction, outcome string)
	WithdrawalStatus(status domain.WithdrawalStatus, manualReview bool)
	ReconciliationPass(summary *domain.PassSummary)
	Discrepancy(currency domain.Currency, severity domain.Severity)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) LedgerAppended(domain.EntryType, domain.Currency) {}
func (NopMetrics) OrderTransition(domain.OrderAction, string)       {}
func (NopMetrics) WithdrawalStatus(domain.WithdrawalStatus, bool)   {}
func (NopMetrics) ReconciliationPass(*domain.PassSummary)           {}
func (NopMetrics) Discrepancy(domain.Currency, domain.Severity)     {}
