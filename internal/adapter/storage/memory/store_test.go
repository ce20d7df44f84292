package memory

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, s *Store, btc string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, s.Wallets().CreateIfMissing(context.Background(), id, time.Now()))

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	locked, err := s.Wallets().LockForUpdate(context.Background(), tx, id)
	require.NoError(t, err)
	w := locked[id]
	w.BalanceBTC = decimal.RequireFromString(btc)
	require.NoError(t, s.Wallets().Update(context.Background(), tx, w))
	require.NoError(t, tx.Commit(context.Background()))
	return id
}

func TestTx_WritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	id := seedWallet(t, s, "1")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	locked, err := s.Wallets().LockForUpdate(ctx, tx, id)
	require.NoError(t, err)
	w := locked[id]
	w.BalanceBTC = decimal.RequireFromString("0.25")
	require.NoError(t, s.Wallets().Update(ctx, tx, w))

	committed, err := s.Wallets().Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, committed.BalanceBTC.Equal(decimal.NewFromInt(1)), "staged write leaked before commit")

	again, err := s.Wallets().LockForUpdate(ctx, tx, id)
	require.NoError(t, err)
	assert.True(t, again[id].BalanceBTC.Equal(decimal.RequireFromString("0.25")), "tx must read its own writes")

	require.NoError(t, tx.Commit(ctx))
	committed, err = s.Wallets().Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, committed.BalanceBTC.Equal(decimal.RequireFromString("0.25")))
}

func TestTx_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	id := seedWallet(t, s, "1")

	tx, _ := s.Begin(ctx)
	locked, err := s.Wallets().LockForUpdate(ctx, tx, id)
	require.NoError(t, err)
	w := locked[id]
	w.BalanceBTC = decimal.Zero
	require.NoError(t, s.Wallets().Update(ctx, tx, w))
	require.NoError(t, s.Ledger().Insert(ctx, tx, &domain.LedgerEntry{ID: uuid.New(), UserID: id}))
	require.NoError(t, tx.Rollback(ctx))

	committed, _ := s.Wallets().Get(ctx, id)
	assert.True(t, committed.BalanceBTC.Equal(decimal.NewFromInt(1)))
	entries, _ := s.Ledger().ListByUser(ctx, id)
	assert.Empty(t, entries)

	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)
	assert.ErrorIs(t, tx.Commit(ctx), pgx.ErrTxClosed)
}

func TestLock_TimesOutWhileHeld(t *testing.T) {
	ctx := context.Background()
	s := NewStore(20 * time.Millisecond)
	id := seedWallet(t, s, "1")

	holder, _ := s.Begin(ctx)
	_, err := s.Wallets().LockForUpdate(ctx, holder, id)
	require.NoError(t, err)

	waiter, _ := s.Begin(ctx)
	_, err = s.Wallets().LockForUpdate(ctx, waiter, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrLockTimeout)
	_ = waiter.Rollback(ctx)

	require.NoError(t, holder.Rollback(ctx))

	next, _ := s.Begin(ctx)
	_, err = s.Wallets().LockForUpdate(ctx, next, id)
	assert.NoError(t, err, "lock must be free after rollback")
	_ = next.Rollback(ctx)
}

func TestLock_HonoursContextCancellation(t *testing.T) {
	s := NewStore(0)
	id := seedWallet(t, s, "1")

	holder, _ := s.Begin(context.Background())
	_, err := s.Wallets().LockForUpdate(context.Background(), holder, id)
	require.NoError(t, err)
	defer holder.Rollback(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	waiter, _ := s.Begin(ctx)
	_, err = s.Wallets().LockForUpdate(ctx, waiter, id)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ports.ErrLockTimeout))
}

func TestLock_WaiterProceedsAfterCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	id := seedWallet(t, s, "1")

	holder, _ := s.Begin(ctx)
	_, err := s.Wallets().LockForUpdate(ctx, holder, id)
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		waiter, _ := s.Begin(ctx)
		defer waiter.Rollback(ctx) //nolint:errcheck
		_, err := s.Wallets().LockForUpdate(ctx, waiter, id)
		got <- err
	}()

	select {
	case <-got:
		t.Fatal("waiter acquired a held lock")
	case <-time.After(30 * time.Millisecond):
	}
	require.NoError(t, holder.Commit(ctx))
	assert.NoError(t, <-got)
}

func TestRepositories_RejectForeignTx(t *testing.T) {
	s := NewStore(time.Second)
	_, err := s.Wallets().LockForUpdate(context.Background(), nil, uuid.New())
	assert.ErrorIs(t, err, ErrForeignTx)
}

func TestWalletRepository_ListIDsPages(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Wallets().CreateIfMissing(ctx, uuid.New(), time.Now()))
	}

	var seen []uuid.UUID
	after := uuid.Nil
	for {
		ids, err := s.Wallets().ListIDs(ctx, after, 2)
		require.NoError(t, err)
		seen = append(seen, ids...)
		if len(ids) < 2 {
			break
		}
		after = ids[len(ids)-1]
	}
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1].String(), seen[i].String())
	}
}

func TestLedgerRepository_TotalsAndSums(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	user := uuid.New()
	now := time.Now().UTC()

	tx, _ := s.Begin(ctx)
	for _, e := range []domain.LedgerEntry{
		{ID: uuid.New(), UserID: user, Type: domain.EntryDeposit, Currency: domain.CurrencyBTC, Amount: decimal.RequireFromString("0.5"), CreatedAt: now.Add(-48 * time.Hour)},
		{ID: uuid.New(), UserID: user, Type: domain.EntryEscrowLock, Currency: domain.CurrencyBTC, Amount: decimal.RequireFromString("0.2"), CreatedAt: now.Add(-time.Hour)},
		{ID: uuid.New(), UserID: user, Type: domain.EntryWithdrawal, Currency: domain.CurrencyBTC, Amount: decimal.RequireFromString("0.1"), CreatedAt: now.Add(-time.Hour)},
		{ID: uuid.New(), UserID: user, Type: domain.EntryDeposit, Currency: domain.CurrencyXMR, Amount: decimal.NewFromInt(3), CreatedAt: now},
	} {
		e := e
		require.NoError(t, s.Ledger().Insert(ctx, tx, &e))
	}
	require.NoError(t, tx.Commit(ctx))

	totals, err := s.Ledger().Totals(ctx, user, domain.CurrencyBTC)
	require.NoError(t, err)
	bal, esc := totals.Expected()
	assert.Equal(t, "0.2", bal.String())
	assert.Equal(t, "0.2", esc.String())

	from := now.Add(-24 * time.Hour)
	sum, err := s.Ledger().SumByUser(ctx, user, domain.CurrencyBTC, []domain.EntryType{domain.EntryWithdrawal, domain.EntryDeposit}, &from, &now)
	require.NoError(t, err)
	assert.Equal(t, "0.1", sum.String())

	btc := domain.CurrencyBTC
	page, total, err := s.Ledger().List(ctx, ports.LedgerListParams{UserID: user, Currency: &btc, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.False(t, page[0].CreatedAt.Before(page[1].CreatedAt), "newest first")
}

func TestOrderRepository_DueForFinalize(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &domain.EscrowedOrder{ID: uuid.New(), Status: domain.OrderShipped, AutoFinalizeAt: &past}
	notYet := &domain.EscrowedOrder{ID: uuid.New(), Status: domain.OrderShipped, AutoFinalizeAt: &future}
	disputed := &domain.EscrowedOrder{ID: uuid.New(), Status: domain.OrderDisputed, AutoFinalizeAt: &past}
	for _, o := range []*domain.EscrowedOrder{due, notYet, disputed} {
		require.NoError(t, s.Orders().Create(ctx, o))
	}
	assert.ErrorIs(t, s.Orders().Create(ctx, due), ErrDuplicateOrder)

	ids, err := s.Orders().ListDueForFinalize(ctx, now, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{due.ID}, ids)

	ids, err = s.Orders().ListDueForFinalize(ctx, now, due.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOrderRepository_DueForFinalizePagesByID(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	past := time.Now().UTC().Add(-time.Minute)

	want := make([]uuid.UUID, 5)
	for i := range want {
		want[i] = uuid.New()
		require.NoError(t, s.Orders().Create(ctx, &domain.EscrowedOrder{ID: want[i], Status: domain.OrderShipped, AutoFinalizeAt: &past}))
	}
	sort.Slice(want, func(i, j int) bool { return bytes.Compare(want[i][:], want[j][:]) < 0 })

	var got []uuid.UUID
	after := uuid.Nil
	for {
		page, err := s.Orders().ListDueForFinalize(ctx, time.Now().UTC(), after, 2)
		require.NoError(t, err)
		got = append(got, page...)
		if len(page) < 2 {
			break
		}
		after = page[len(page)-1]
	}
	assert.Equal(t, want, got)
}

func TestWithdrawalRepository_Aggregates(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	user := uuid.New()
	now := time.Now().UTC()

	tx, _ := s.Begin(ctx)
	for _, w := range []domain.WithdrawalRequest{
		{ID: uuid.New(), UserID: user, Currency: domain.CurrencyBTC, Amount: decimal.RequireFromString("0.1"), Status: domain.WithdrawalPending, Address: "a", CreatedAt: now},
		{ID: uuid.New(), UserID: user, Currency: domain.CurrencyBTC, Amount: decimal.RequireFromString("0.2"), Status: domain.WithdrawalReviewing, Address: "b", CreatedAt: now.Add(-time.Hour)},
		{ID: uuid.New(), UserID: user, Currency: domain.CurrencyBTC, Amount: decimal.RequireFromString("0.4"), Status: domain.WithdrawalCompleted, Address: "c", CreatedAt: now.Add(-48 * time.Hour)},
	} {
		w := w
		require.NoError(t, s.Withdrawals().Create(ctx, tx, &w))
	}
	require.NoError(t, tx.Commit(ctx))

	open, err := s.Withdrawals().SumOpen(ctx, user, domain.CurrencyBTC)
	require.NoError(t, err)
	assert.Equal(t, "0.3", open.String())

	n, err := s.Withdrawals().CountSince(ctx, user, now.Add(-24*time.Hour), now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	addrs, err := s.Withdrawals().CompletedAddresses(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, addrs)
}

func TestBalanceCheckRepository_ResolveOnlyTouchesResolution(t *testing.T) {
	ctx := context.Background()
	s := NewStore(time.Second)
	check := &domain.BalanceCheck{ID: uuid.New(), UserID: uuid.New(), DiscrepancyFound: true, MaxSeverity: domain.SeverityMajor}
	require.NoError(t, s.Checks().Create(ctx, check))

	by := "ops"
	update := *check
	update.Resolved = true
	update.ResolvedBy = &by
	update.MaxSeverity = domain.SeverityNone
	require.NoError(t, s.Checks().MarkResolved(ctx, &update))

	got, err := s.Checks().Get(ctx, check.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, domain.SeverityMajor, got.MaxSeverity)

	items, total, err := s.Checks().List(ctx, ports.CheckListParams{OnlyUnresolved: true})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	assert.ErrorIs(t, s.Checks().MarkResolved(ctx, &domain.BalanceCheck{ID: uuid.New()}), ErrCheckNotFound)
}
