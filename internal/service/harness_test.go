package service

import (
	"context"
	"testing"
	"time"

	"custody-ledger/internal/adapter/storage/memory"
	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// harness wires the real services over the in-memory store.
type harness struct {
	store   *memory.Store
	ledger  *LedgerServiceImpl
	wallets *WalletStoreImpl
	escrow  *EscrowEngineImpl
	recon   *ReconciliationServiceImpl
	alerts  *recordingNotifier
}

type recordingNotifier struct {
	alerts []ports.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a ports.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

type syncAudit struct{}

func (syncAudit) Log(context.Context, *domain.AuditLog) {}

func newHarness(t *testing.T, escrow EscrowSettings, recon ReconciliationSettings) *harness {
	t.Helper()
	store := memory.NewStore(time.Second)
	log := newTestLogger()
	enc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	h := &harness{store: store, alerts: &recordingNotifier{}}
	h.ledger = NewLedgerService(store.Ledger(), NewLedgerHasher("test-key"), log)
	h.wallets = NewWalletStore(store.Wallets(), h.ledger, store, NewArgon2HashService(), enc, syncAudit{}, nil, log)
	h.escrow = NewEscrowEngine(store.Orders(), h.wallets, store, syncAudit{}, nil, escrow, log)
	h.recon = NewReconciliationService(store.Wallets(), h.ledger, store.Checks(), store, h.alerts, syncAudit{}, nil, recon, log)
	return h
}

func defaultEscrowSettings() EscrowSettings {
	return EscrowSettings{FeePercent: decimal.NewFromInt(2), AutoFinalize: 14 * 24 * time.Hour}
}

func defaultReconSettings() ReconciliationSettings {
	return ReconciliationSettings{
		PageSize:    100,
		RecordClean: true,
		Minor: map[domain.Currency]decimal.Decimal{
			domain.CurrencyBTC: decimal.RequireFromString("0.000001"),
			domain.CurrencyXMR: decimal.RequireFromString("0.000000001"),
		},
		Alert: map[domain.Currency]decimal.Decimal{
			domain.CurrencyBTC: decimal.RequireFromString("0.001"),
			domain.CurrencyXMR: decimal.RequireFromString("0.1"),
		},
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (h *harness) fund(t *testing.T, user uuid.UUID, c domain.Currency, amount string) {
	t.Helper()
	_, err := h.wallets.AddFunds(context.Background(), user, c, dec(amount), "test-deposit")
	require.NoError(t, err)
}

func (h *harness) wallet(t *testing.T, user uuid.UUID) *domain.Wallet {
	t.Helper()
	w, err := h.wallets.GetWallet(context.Background(), user)
	require.NoError(t, err)
	return w
}

// tamper overwrites stored balances without writing a ledger entry.
func (h *harness) tamper(t *testing.T, user uuid.UUID, c domain.Currency, balance, escrow string) {
	t.Helper()
	ctx := context.Background()
	tx, err := h.store.Begin(ctx)
	require.NoError(t, err)
	locked, err := h.store.Wallets().LockForUpdate(ctx, tx, user)
	require.NoError(t, err)
	w := locked[user]
	w.Set(c, dec(balance), dec(escrow))
	require.NoError(t, h.store.Wallets().Update(ctx, tx, w))
	require.NoError(t, tx.Commit(ctx))
}
