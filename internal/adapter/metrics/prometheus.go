// Package metrics exposes ledger events as Prometheus collectors.
package metrics

import (
	"net/http"

	"custody-ledger/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "custody_ledger"

// Prometheus implements ports.Metrics.
type Prometheus struct {
	registry *prometheus.Registry

	ledgerEntries    *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
	withdrawals      *prometheus.CounterVec
	passes           prometheus.Counter
	passDuration     prometheus.Histogram
	walletsChecked   prometheus.Counter
	passErrors       prometheus.Counter
	autoCorrected    prometheus.Counter
	discrepancies    *prometheus.CounterVec
	lastPass         prometheus.Gauge
}

// NewPrometheus registers all collectors on a fresh registry together with
// the Go runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	m := &Prometheus{
		registry: reg,
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Ledger entries appended, by type and currency.",
		}, []string{"type", "currency"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Escrow order transitions attempted, by action and outcome.",
		}, []string{"action", "outcome"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawal_status_total",
			Help:      "Withdrawal requests entering each status.",
		}, []string{"status", "manual_review"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_passes_total",
			Help:      "Completed reconciliation passes.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciliation_pass_duration_seconds",
			Help:      "Wall time of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		walletsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_wallets_checked_total",
			Help:      "Wallets compared against the ledger.",
		}),
		passErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_errors_total",
			Help:      "Wallet checks that failed.",
		}),
		autoCorrected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_auto_corrected_total",
			Help:      "Wallets whose minor drift was repaired.",
		}),
		discrepancies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_discrepancies_total",
			Help:      "Balance discrepancies found, by currency and severity.",
		}, []string{"currency", "severity"}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciliation_last_pass_timestamp_seconds",
			Help:      "Start time of the most recent reconciliation pass.",
		}),
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.ledgerEntries, m.orderTransitions, m.withdrawals,
		m.passes, m.passDuration, m.walletsChecked, m.passErrors,
		m.autoCorrected, m.discrepancies, m.lastPass,
	)
	return m
}

func (m *Prometheus) LedgerAppended(t domain.EntryType, c domain.Currency) {
	m.ledgerEntries.WithLabelValues(string(t), string(c)).Inc()
}

func (m *Prometheus) OrderTransition(action domain.OrderAction, outcome string) {
	m.orderTransitions.WithLabelValues(string(action), outcome).Inc()
}

func (m *Prometheus) WithdrawalStatus(status domain.WithdrawalStatus, manualReview bool) {
	review := "false"
	if manualReview {
		review = "true"
	}
	m.withdrawals.WithLabelValues(string(status), review).Inc()
}

func (m *Prometheus) ReconciliationPass(s *domain.PassSummary) {
	m.passes.Inc()
	m.passDuration.Observe(s.Duration.Seconds())
	m.walletsChecked.Add(float64(s.WalletsChecked))
	m.passErrors.Add(float64(s.Errors))
	m.autoCorrected.Add(float64(s.AutoCorrected))
	m.lastPass.Set(float64(s.StartedAt.Unix()))
}

func (m *Prometheus) Discrepancy(c domain.Currency, severity domain.Severity) {
	m.discrepancies.WithLabelValues(string(c), string(severity)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
