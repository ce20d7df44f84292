package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Metrics = (*Prometheus)(nil)

func TestPrometheus_Counters(t *testing.T) {
	m := NewPrometheus()

	m.LedgerAppended(domain.EntryDeposit, domain.CurrencyBTC)
	m.LedgerAppended(domain.EntryDeposit, domain.CurrencyBTC)
	m.OrderTransition(domain.ActionLock, "ok")
	m.WithdrawalStatus(domain.WithdrawalReviewing, true)
	m.Discrepancy(domain.CurrencyXMR, domain.SeverityCritical)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ledgerEntries.WithLabelValues("deposit", "btc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orderTransitions.WithLabelValues("lock", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.withdrawals.WithLabelValues("reviewing", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discrepancies.WithLabelValues("xmr", "critical")))
}

func TestPrometheus_ReconciliationPass(t *testing.T) {
	m := NewPrometheus()
	started := time.Unix(1700000000, 0)

	m.ReconciliationPass(&domain.PassSummary{
		PassID:         uuid.New(),
		WalletsChecked: 40,
		AutoCorrected:  2,
		Errors:         1,
		StartedAt:      started,
		Duration:       3 * time.Second,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.walletsChecked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.autoCorrected))
	assert.Equal(t, float64(started.Unix()), testutil.ToFloat64(m.lastPass))
}

func TestPrometheus_Handler(t *testing.T) {
	m := NewPrometheus()
	m.LedgerAppended(domain.EntryFee, domain.CurrencyXMR)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `custody_ledger_ledger_entries_total{currency="xmr",type="fee"} 1`)
}
