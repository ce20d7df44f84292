package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want Currency
		ok   bool
	}{
		{"btc", CurrencyBTC, true},
		{" XMR ", CurrencyXMR, true},
		{"eth", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCurrency(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrency_ValidAmount(t *testing.T) {
	tests := []struct {
		name     string
		currency Currency
		amount   string
		want     bool
	}{
		{"btc 8 places", CurrencyBTC, "0.00000001", true},
		{"btc 9 places", CurrencyBTC, "0.000000001", false},
		{"xmr 12 places", CurrencyXMR, "0.000000000001", true},
		{"xmr 13 places", CurrencyXMR, "0.0000000000001", false},
		{"zero", CurrencyBTC, "0", false},
		{"negative", CurrencyBTC, "-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.currency.ValidAmount(dec(tt.amount)))
		})
	}
}

func TestCurrency_Epsilon(t *testing.T) {
	assert.True(t, CurrencyBTC.Epsilon().Equal(dec("0.00000001")))
	assert.True(t, CurrencyXMR.Epsilon().Equal(dec("0.000000000001")))
}

func TestEntryType_Effect(t *testing.T) {
	a := dec("0.3")
	tests := []struct {
		typ     EntryType
		balance string
		escrow  string
	}{
		{EntryDeposit, "0.3", "0"},
		{EntryWithdrawal, "-0.3", "0"},
		{EntryEscrowLock, "-0.3", "0.3"},
		{EntryEscrowRelease, "0.3", "-0.3"},
		{EntryEscrowRefund, "0.3", "-0.3"},
		{EntryEscrowCapture, "0", "-0.3"},
		{EntryFee, "0", "-0.3"},
		{EntryAdjustment, "0.3", "0"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			b, e := tt.typ.Effect(a)
			assert.True(t, b.Equal(dec(tt.balance)), "balance effect %s", b)
			assert.True(t, e.Equal(dec(tt.escrow)), "escrow effect %s", e)
		})
	}
}

func TestLedgerTotals_Expected(t *testing.T) {
	totals := LedgerTotals{
		EntryDeposit:    dec("0.5"),
		EntryEscrowLock: dec("0.2"),
	}

	balance, escrow := totals.Expected()
	assert.True(t, balance.Equal(dec("0.3")))
	assert.True(t, escrow.Equal(dec("0.2")))
	assert.True(t, balance.Add(escrow).Equal(dec("0.5")))
}

func TestWallet_Apply(t *testing.T) {
	now := time.Now()
	w := NewWallet(uuid.New(), now)

	entry, err := w.Apply(Mutation{Type: EntryDeposit, Currency: CurrencyBTC, Amount: dec("1.0")}, now)
	require.NoError(t, err)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.True(t, entry.BalanceAfter.Equal(dec("1.0")))

	entry, err = w.Apply(Mutation{Type: EntryEscrowLock, Currency: CurrencyBTC, Amount: dec("0.4"), Reference: "order:1"}, now)
	require.NoError(t, err)
	assert.True(t, w.BalanceBTC.Equal(dec("0.6")))
	assert.True(t, w.EscrowBTC.Equal(dec("0.4")))
	assert.True(t, entry.EscrowAfter.Equal(dec("0.4")))
	assert.Equal(t, "order:1", entry.Reference)

	assert.True(t, w.Available(CurrencyBTC).Equal(dec("0.6")))
	assert.True(t, w.Total(CurrencyBTC).Equal(dec("1.0")))
	assert.True(t, w.Total(CurrencyXMR).IsZero())
}

func TestWallet_Apply_RejectsNegative(t *testing.T) {
	now := time.Now()
	w := NewWallet(uuid.New(), now)
	w.Set(CurrencyXMR, dec("1"), dec("0.5"))

	_, err := w.Apply(Mutation{Type: EntryWithdrawal, Currency: CurrencyXMR, Amount: dec("1.000000000001")}, now)
	assert.ErrorIs(t, err, ErrBalanceShort)

	_, err = w.Apply(Mutation{Type: EntryEscrowRelease, Currency: CurrencyXMR, Amount: dec("0.6")}, now)
	assert.ErrorIs(t, err, ErrEscrowShort)

	_, err = w.Apply(Mutation{Type: EntryAdjustment, Currency: CurrencyXMR, Amount: dec("-2")}, now)
	assert.ErrorIs(t, err, ErrBalanceShort)

	assert.True(t, w.BalanceXMR.Equal(dec("1")), "failed mutations leave the wallet unchanged")
	assert.True(t, w.EscrowXMR.Equal(dec("0.5")))
}

func TestWallet_Clone(t *testing.T) {
	pin := "hash"
	w := NewWallet(uuid.New(), time.Now())
	w.WithdrawalPINHash = &pin

	cp := w.Clone()
	*cp.WithdrawalPINHash = "other"
	cp.BalanceBTC = dec("5")

	assert.Equal(t, "hash", *w.WithdrawalPINHash)
	assert.True(t, w.BalanceBTC.IsZero())
}

func TestOrderStatus_CanApply(t *testing.T) {
	tests := []struct {
		status OrderStatus
		action OrderAction
		want   bool
	}{
		{OrderPending, ActionLock, true},
		{OrderLocked, ActionLock, false},
		{OrderLocked, ActionShip, true},
		{OrderPending, ActionShip, false},
		{OrderShipped, ActionRelease, true},
		{OrderDisputed, ActionRelease, true},
		{OrderLocked, ActionRelease, false},
		{OrderLocked, ActionRefund, true},
		{OrderShipped, ActionRefund, true},
		{OrderDisputed, ActionRefund, true},
		{OrderPending, ActionRefund, false},
		{OrderProcessing, ActionDispute, true},
		{OrderCompleted, ActionDispute, false},
		{OrderPending, ActionCancel, true},
		{OrderShipped, ActionCancel, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.CanApply(tt.action))
		})
	}
}

func TestOrderAction_Target(t *testing.T) {
	assert.Equal(t, OrderLocked, ActionLock.Target())
	assert.Equal(t, OrderCompleted, ActionRelease.Target())
	assert.Equal(t, OrderRefunded, ActionRefund.Target())
	assert.Equal(t, OrderDisputed, ActionDispute.Target())
}

func TestWithdrawalRequest_States(t *testing.T) {
	tests := []struct {
		status      WithdrawalStatus
		terminal    bool
		cancellable bool
		approvable  bool
	}{
		{WithdrawalPending, false, true, true},
		{WithdrawalReviewing, false, false, true},
		{WithdrawalApproved, false, false, false},
		{WithdrawalProcessing, false, false, false},
		{WithdrawalCompleted, true, false, false},
		{WithdrawalRejected, true, false, false},
		{WithdrawalCancelled, true, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			w := &WithdrawalRequest{Status: tt.status}
			assert.Equal(t, tt.terminal, w.IsTerminal())
			assert.Equal(t, tt.cancellable, w.IsCancellable())
			assert.Equal(t, tt.approvable, w.IsApprovable())
		})
	}
}

func TestSeverity_Worse(t *testing.T) {
	assert.Equal(t, SeverityMajor, SeverityMinor.Worse(SeverityMajor))
	assert.Equal(t, SeverityCritical, SeverityCritical.Worse(SeverityMinor))
	assert.Equal(t, SeverityMinor, SeverityNone.Worse(SeverityMinor))
}

func TestBalanceLine_Drifted(t *testing.T) {
	l := BalanceLine{Currency: CurrencyBTC, Difference: dec("0.00000001")}
	assert.False(t, l.Drifted())

	l.Difference = dec("0.00000002")
	assert.True(t, l.Drifted())
}
