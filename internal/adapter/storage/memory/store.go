// Package memory is an in-process storage backend with the same locking and
// atomicity contract as the Postgres adapter. Writes made inside a Tx are
// staged and become visible only on Commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrForeignTx is returned when a repository receives a transaction that was
// not started by the same Store.
var ErrForeignTx = errors.New("memory: transaction does not belong to this store")

// Store holds all state and hands out the per-entity repositories.
type Store struct {
	mu          sync.RWMutex
	wallets     map[uuid.UUID]domain.Wallet
	entries     []domain.LedgerEntry
	orders      map[uuid.UUID]domain.EscrowedOrder
	withdrawals map[uuid.UUID]domain.WithdrawalRequest
	checks      map[uuid.UUID]domain.BalanceCheck
	audit       []domain.AuditLog

	locks       *keyLocks
	lockTimeout time.Duration
}

// NewStore returns an empty store. lockTimeout bounds every row-lock wait;
// zero means wait until the context is done.
func NewStore(lockTimeout time.Duration) *Store {
	return &Store{
		wallets:     map[uuid.UUID]domain.Wallet{},
		orders:      map[uuid.UUID]domain.EscrowedOrder{},
		withdrawals: map[uuid.UUID]domain.WithdrawalRequest{},
		checks:      map[uuid.UUID]domain.BalanceCheck{},
		locks:       newKeyLocks(),
		lockTimeout: lockTimeout,
	}
}

func (s *Store) Wallets() *WalletRepository         { return &WalletRepository{s: s} }
func (s *Store) Ledger() *LedgerRepository          { return &LedgerRepository{s: s} }
func (s *Store) Orders() *OrderRepository           { return &OrderRepository{s: s} }
func (s *Store) Withdrawals() *WithdrawalRepository { return &WithdrawalRepository{s: s} }
func (s *Store) Checks() *BalanceCheckRepository    { return &BalanceCheckRepository{s: s} }
func (s *Store) AuditLogs() *AuditRepository        { return &AuditRepository{s: s} }
func (s *Store) Transactor() ports.DBTransactor     { return s }
func (s *Store) HealthChecker() ports.HealthChecker { return healthChecker{} }

// Begin starts a transaction.
func (s *Store) Begin(_ context.Context) (pgx.Tx, error) {
	return &Tx{store: s, held: map[string]bool{}}, nil
}

// Tx is a unit of work over Store. It embeds pgx.Tx only to satisfy the
// interface; calling any method other than Commit or Rollback panics.
type Tx struct {
	pgx.Tx

	store  *Store
	held   map[string]bool
	order  []string
	writes []func()
	done   bool

	wallets     map[uuid.UUID]domain.Wallet
	orders      map[uuid.UUID]domain.EscrowedOrder
	withdrawals map[uuid.UUID]domain.WithdrawalRequest
}

// Commit applies the staged writes atomically and releases all locks.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	for _, w := range t.writes {
		w()
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards the staged writes and releases all locks.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	t.writes = nil
	for i := len(t.order) - 1; i >= 0; i-- {
		t.store.locks.release(t.order[i])
	}
	t.order = nil
	t.held = nil
}

func (t *Tx) stage(fn func()) { t.writes = append(t.writes, fn) }

// lock acquires key for the rest of the transaction. Re-locking a key the
// transaction already holds is a no-op.
func (t *Tx) lock(ctx context.Context, key string) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	if t.held[key] {
		return nil
	}
	if err := t.store.locks.acquire(ctx, key, t.store.lockTimeout); err != nil {
		return err
	}
	t.held[key] = true
	t.order = append(t.order, key)
	return nil
}

func txFrom(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// keyLocks is a set of exclusive locks keyed by row identity. Each lock is a
// one-slot channel so waiters can give up when their context ends.
type keyLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{slots: map[string]chan struct{}{}}
}

func (l *keyLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *keyLocks) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := l.slot(key)

	wait := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-wait.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for %s: %w", key, ctx.Err())
		}
		return fmt.Errorf("waiting for %s: %w", key, ports.ErrLockTimeout)
	}
}

func (l *keyLocks) release(key string) {
	<-l.slot(key)
}

type healthChecker struct{}

func (healthChecker) Ping(context.Context) error { return nil }
func (healthChecker) Name() string               { return "memory" }

func pageBounds(total, page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}
