package postgres

import (
	"context"
	"testing"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet() *domain.Wallet {
	w := domain.NewWallet(uuid.New(), time.Now().UTC().Truncate(time.Microsecond))
	w.BalanceBTC = decimal.RequireFromString("1.25")
	w.EscrowBTC = decimal.RequireFromString("0.5")
	return w
}

func walletRowColumns() []string {
	return []string{"user_id", "balance_btc", "escrow_btc", "balance_xmr", "escrow_xmr",
		"withdrawal_pin_hash", "second_factor_enc", "daily_limit_btc", "daily_limit_xmr", "created_at", "updated_at"}
}

func addWalletRow(rows *pgxmock.Rows, w *domain.Wallet) *pgxmock.Rows {
	return rows.AddRow(
		w.UserID, w.BalanceBTC, w.EscrowBTC, w.BalanceXMR, w.EscrowXMR,
		w.WithdrawalPINHash, w.SecondFactorEnc, w.DailyLimitBTC, w.DailyLimitXMR,
		w.CreatedAt, w.UpdatedAt,
	)
}

func TestWalletRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").
		WithArgs(w.UserID).
		WillReturnRows(addWalletRow(pgxmock.NewRows(walletRowColumns()), w))

	result, err := repo.Get(context.Background(), w.UserID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.UserID, result.UserID)
	assert.True(t, w.BalanceBTC.Equal(result.BalanceBTC))
	assert.True(t, w.EscrowBTC.Equal(result.EscrowBTC))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_CreateIfMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO wallets .+ ON CONFLICT \\(user_id\\) DO NOTHING").
		WithArgs(id, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, repo.CreateIfMissing(context.Background(), id, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_LockForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	a, b := newTestWallet(), newTestWallet()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets .+ ORDER BY user_id FOR UPDATE").
		WithArgs([]string{a.UserID.String(), b.UserID.String()}).
		WillReturnRows(addWalletRow(addWalletRow(pgxmock.NewRows(walletRowColumns()), a), b))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	locked, err := repo.LockForUpdate(context.Background(), tx, a.UserID, b.UserID)
	require.NoError(t, err)
	assert.Len(t, locked, 2)
	assert.Equal(t, a.UserID, locked[a.UserID].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_LockForUpdate_Timeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs([]string{id.String()}).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, err = repo.LockForUpdate(context.Background(), tx, id)
	assert.ErrorIs(t, err, ports.ErrLockTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets SET").
		WithArgs(w.BalanceBTC, w.EscrowBTC, w.BalanceXMR, w.EscrowXMR,
			w.WithdrawalPINHash, w.SecondFactorEnc, w.DailyLimitBTC, w.DailyLimitXMR,
			w.UpdatedAt, w.UserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Update(context.Background(), tx, w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallets SET").
		WithArgs(w.BalanceBTC, w.EscrowBTC, w.BalanceXMR, w.EscrowXMR,
			w.WithdrawalPINHash, w.SecondFactorEnc, w.DailyLimitBTC, w.DailyLimitXMR,
			w.UpdatedAt, w.UserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, w)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_ListIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT user_id FROM wallets WHERE user_id > \\$1 ORDER BY user_id LIMIT \\$2").
		WithArgs(uuid.Nil, 2).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(a).AddRow(b))

	ids, err := repo.ListIDs(context.Background(), uuid.Nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
