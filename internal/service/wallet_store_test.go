package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/internal/core/ports/mocks"
	"custody-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestWalletStore_AddFundsCreatesWalletAndEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	user := uuid.New()

	entry, err := h.wallets.AddFunds(ctx, user, domain.CurrencyXMR, dec("2.5"), "deposit:tx1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryDeposit, entry.Type)
	assert.True(t, entry.BalanceBefore.IsZero())
	assert.Equal(t, "2.5", entry.BalanceAfter.String())
	assert.NotEmpty(t, entry.IntegrityHash)

	bal, err := h.wallets.GetBalance(ctx, user, domain.CurrencyXMR)
	require.NoError(t, err)
	assert.Equal(t, "2.5", bal.String())
}

func TestWalletStore_ValidatesAmountAndCurrency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	user := uuid.New()

	_, err := h.wallets.AddFunds(ctx, user, domain.CurrencyBTC, dec("0"), "x")
	assertAppError(t, err, "WAL_005")
	_, err = h.wallets.AddFunds(ctx, user, domain.CurrencyBTC, dec("-1"), "x")
	assertAppError(t, err, "WAL_005")
	_, err = h.wallets.AddFunds(ctx, user, domain.CurrencyBTC, dec("0.000000001"), "x")
	assertAppError(t, err, "WAL_005")
	_, err = h.wallets.AddFunds(ctx, user, "eth", dec("1"), "x")
	assertAppError(t, err, "WAL_002")
	_, err = h.wallets.GetBalance(ctx, user, "eth")
	assertAppError(t, err, "WAL_002")
}

func TestWalletStore_DeductAndEscrowRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	user := uuid.New()
	h.fund(t, user, domain.CurrencyBTC, "1")

	_, err := h.wallets.DeductFunds(ctx, user, domain.CurrencyBTC, dec("1.1"), "withdrawal:x")
	assertAppError(t, err, "WAL_003")

	_, err = h.wallets.MoveToEscrow(ctx, user, domain.CurrencyBTC, dec("0.3"), "order:1")
	require.NoError(t, err)
	avail, err := h.wallets.GetAvailableBalance(ctx, user, domain.CurrencyBTC)
	require.NoError(t, err)
	assert.Equal(t, "0.7", avail.String())

	_, err = h.wallets.ReleaseFromEscrow(ctx, user, domain.CurrencyBTC, dec("0.4"), "order:1")
	assertAppError(t, err, "WAL_004")

	_, err = h.wallets.ReleaseFromEscrow(ctx, user, domain.CurrencyBTC, dec("0.3"), "order:1")
	require.NoError(t, err)

	_, err = h.wallets.DeductFunds(ctx, user, domain.CurrencyBTC, dec("1"), "withdrawal:x")
	require.NoError(t, err)
	w := h.wallet(t, user)
	assert.True(t, w.BalanceBTC.IsZero())
	assert.True(t, w.EscrowBTC.IsZero())
}

func TestWalletStore_DeductUnknownWallet(t *testing.T) {
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	_, err := h.wallets.DeductFunds(context.Background(), uuid.New(), domain.CurrencyBTC, dec("1"), "x")
	assertAppError(t, err, "WAL_001")
}

func TestWalletStore_ConcurrentDeductsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	user := uuid.New()
	h.fund(t, user, domain.CurrencyBTC, "1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.wallets.DeductFunds(ctx, user, domain.CurrencyBTC, dec("0.6"), "withdrawal:race")
		}(i)
	}
	wg.Wait()

	ok, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperror.ErrInsufficientBalance()):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, "0.4", h.wallet(t, user).BalanceBTC.String())
}

func TestWalletStore_AdjustRequiresReasonAndAllowsNegative(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	user := uuid.New()
	h.fund(t, user, domain.CurrencyBTC, "1")

	_, err := h.wallets.Adjust(ctx, user, domain.CurrencyBTC, dec("-0.1"), "", "ops")
	assertAppError(t, err, "WAL_005")

	entry, err := h.wallets.Adjust(ctx, user, domain.CurrencyBTC, dec("-0.1"), "chargeback", "ops")
	require.NoError(t, err)
	assert.Equal(t, "adjustment:chargeback", entry.Reference)
	assert.Equal(t, "0.9", h.wallet(t, user).BalanceBTC.String())

	_, err = h.wallets.Adjust(ctx, user, domain.CurrencyBTC, dec("-5"), "too much", "ops")
	assertAppError(t, err, "WAL_003")
}

func TestWalletStore_AdjustCreditOpensWallet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())

	newcomer := uuid.New()
	entry, err := h.wallets.Adjust(ctx, newcomer, domain.CurrencyBTC, dec("0.25"), "migration", "ops")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryAdjustment, entry.Type)
	assert.Equal(t, "0.25", h.wallet(t, newcomer).BalanceBTC.String())

	_, err = h.wallets.Adjust(ctx, uuid.New(), domain.CurrencyBTC, dec("-0.25"), "chargeback", "ops")
	assertAppError(t, err, "WAL_001")
}

func TestWalletStore_SetSecurity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	user := uuid.New()

	bad := "12ab"
	err := h.wallets.SetSecurity(ctx, ports.SecurityUpdate{UserID: user, PIN: &bad})
	assertAppError(t, err, "WAL_005")

	notBase32 := "not base32!"
	err = h.wallets.SetSecurity(ctx, ports.SecurityUpdate{UserID: user, OTPSecret: &notBase32})
	assertAppError(t, err, "WAL_005")

	negative := dec("-1")
	err = h.wallets.SetSecurity(ctx, ports.SecurityUpdate{UserID: user, DailyLimitBTC: &negative})
	assertAppError(t, err, "WAL_005")

	pin := "4821"
	secret := "JBSWY3DPEHPK3PXP"
	limit := dec("0.5")
	require.NoError(t, h.wallets.SetSecurity(ctx, ports.SecurityUpdate{UserID: user, PIN: &pin, OTPSecret: &secret, DailyLimitBTC: &limit}))

	w := h.wallet(t, user)
	require.True(t, w.HasPIN())
	require.True(t, w.HasSecondFactor())
	assert.NotEqual(t, secret, *w.SecondFactorEnc)
	assert.Equal(t, "0.5", w.DailyLimitBTC.String())

	ok, err := NewArgon2HashService().Verify(pin, *w.WithdrawalPINHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWalletStore_LedgerEntriesVerify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultEscrowSettings(), defaultReconSettings())
	user := uuid.New()
	h.fund(t, user, domain.CurrencyBTC, "1")
	_, err := h.wallets.MoveToEscrow(ctx, user, domain.CurrencyBTC, dec("0.25"), "order:1")
	require.NoError(t, err)

	tampered, err := h.ledger.VerifyUser(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, tampered)
}

func TestWalletStore_MutationRollsBackOnLedgerFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	ledger := mocks.NewMockLedgerService(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	audit := mocks.NewMockAuditService(ctrl)
	store := NewWalletStore(walletRepo, ledger, transactor, nil, nil, audit, nil, newTestLogger())

	user := uuid.New()
	w := domain.NewWallet(user, store.now())
	w.BalanceBTC = dec("1")

	transactor.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	walletRepo.EXPECT().LockForUpdate(gomock.Any(), gomock.Any(), user).Return(map[uuid.UUID]*domain.Wallet{user: w}, nil)
	walletRepo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	ledger.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, apperror.InternalError(errors.New("disk full")))

	_, err := store.DeductFunds(context.Background(), user, domain.CurrencyBTC, dec("0.5"), "x")
	assertAppError(t, err, "SYS_001")
}

func TestWalletStore_LockTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	store := NewWalletStore(walletRepo, mocks.NewMockLedgerService(ctrl), transactor, nil, nil, mocks.NewMockAuditService(ctrl), nil, newTestLogger())

	transactor.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	walletRepo.EXPECT().LockForUpdate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, ports.ErrLockTimeout)

	_, err := store.DeductFunds(context.Background(), uuid.New(), domain.CurrencyBTC, dec("0.5"), "x")
	assertAppError(t, err, "SYS_002")
}
