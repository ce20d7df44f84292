package ports

import (
	"context"
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
// Reads return (nil, nil) when the wallet does not exist.
type WalletRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// CreateIfMissing commits an empty wallet for userID unless one exists.
	CreateIfMissing(ctx context.Context, userID uuid.UUID, now time.Time) error
	// LockForUpdate locks the given wallets in ascending user id order.
	// Missing wallets are absent from the result.
	LockForUpdate(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*domain.Wallet, error)
	Update(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	// ListIDs pages wallet owners in ascending order starting after the given id.
	ListIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// LedgerRepository defines persistence for the append-only ledger.
type LedgerRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	SumByUser(ctx context.Context, userID uuid.UUID, currency domain.Currency, types []domain.EntryType, from, to *time.Time) (decimal.Decimal, error)
	// Totals sums every entry type for one user and currency in a single statement.
	Totals(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.LedgerTotals, error)
	List(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error)
}

// LedgerListParams holds filter + pagination for listing ledger entries.
type LedgerListParams struct {
	UserID   uuid.UUID
	Currency *domain.Currency
	Type     *domain.EntryType
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// OrderRepository defines persistence for the escrow slice of orders.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.EscrowedOrder) error
	Get(ctx context.Context, id uuid.UUID) (*domain.EscrowedOrder, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.EscrowedOrder, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.EscrowedOrder) error
	// ListDueForFinalize returns shipped orders whose auto-finalize time has
	// passed, in ascending id order starting after the given id.
	ListDueForFinalize(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// WithdrawalRepository defines persistence for withdrawal requests.
type WithdrawalRepository interface {
	Create(ctx context.Context, tx pgx.Tx, req *domain.WithdrawalRequest) error
	Get(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error)
	Update(ctx context.Context, tx pgx.Tx, req *domain.WithdrawalRequest) error
	// CountSince counts requests by userID created in [since, until).
	CountSince(ctx context.Context, userID uuid.UUID, since, until time.Time) (int, error)
	// CompletedAddresses lists destinations of the user's completed withdrawals.
	CompletedAddresses(ctx context.Context, userID uuid.UUID) ([]string, error)
	// SumOpen sums requests still awaiting a decision (pending, reviewing).
	SumOpen(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error)
	List(ctx context.Context, params WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error)
}

// WithdrawalListParams holds filter + pagination for listing withdrawals.
type WithdrawalListParams struct {
	UserID   *uuid.UUID
	Status   *domain.WithdrawalStatus
	Page     int
	PageSize int
}

// BalanceCheckRepository defines persistence for reconciliation results.
type BalanceCheckRepository interface {
	Create(ctx context.Context, check *domain.BalanceCheck) error
	Get(ctx context.Context, id uuid.UUID) (*domain.BalanceCheck, error)
	// MarkResolved sets the resolution fields; it never touches the compared amounts.
	MarkResolved(ctx context.Context, check *domain.BalanceCheck) error
	List(ctx context.Context, params CheckListParams) ([]domain.BalanceCheck, int64, error)
}

// CheckListParams holds filter + pagination for listing balance checks.
type CheckListParams struct {
	UserID          *uuid.UUID
	OnlyDiscrepancy bool
	OnlyUnresolved  bool
	Page            int
	PageSize        int
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// AccountDirectory answers questions about users owned by the account aggregate.
type AccountDirectory interface {
	AccountCreatedAt(ctx context.Context, userID uuid.UUID) (time.Time, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
