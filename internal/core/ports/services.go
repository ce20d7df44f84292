package ports

import (
	"context"
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// --- Infrastructure Ports ---

// EncryptionService handles AES-256-GCM sealing. aad binds a ciphertext to
// its owner so it cannot be moved between rows.
type EncryptionService interface {
	Encrypt(plaintext, aad string) (string, error)
	Decrypt(ciphertext, aad string) (string, error)
}

// IntegrityHasher derives and checks ledger entry integrity hashes.
type IntegrityHasher interface {
	Sum(entry *domain.LedgerEntry) string
	Verify(entry *domain.LedgerEntry) bool
}

// HashService handles PIN hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// OTPVerifier checks time-based one-time codes.
type OTPVerifier interface {
	Verify(secret, code string, at time.Time) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string, role Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// Role is the caller class of the internal API.
type Role string

const (
	RoleService  Role = "service"
	RoleOperator Role = "operator"
)

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    Role
}

// VelocityGuard is a fixed-window attempt counter.
type VelocityGuard interface {
	// CheckAndIncrement records one attempt for key and reports whether the
	// caller is still within limit for the current window.
	CheckAndIncrement(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// AuditService records every mutation for the external audit collaborator.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// AuditPublisher streams audit entries to an external sink.
type AuditPublisher interface {
	Publish(ctx context.Context, entry *domain.AuditLog) error
	Close() error
}

// Alert is an operator notification.
type Alert struct {
	Kind     string                 `json:"kind"`
	Severity domain.Severity        `json:"severity"`
	Summary  string                 `json:"summary"`
	Details  map[string]interface{} `json:"details,omitempty"`
	RaisedAt time.Time              `json:"raised_at"`
}

// AlertNotifier delivers operator alerts.
type AlertNotifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// --- Service Ports (Business Logic) ---

// WalletStore owns per-user balances and exposes atomic mutation primitives.
// Every mutation runs in one transaction with its ledger entry.
type WalletStore interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error)
	GetAvailableBalance(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error)
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)

	AddFunds(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, source string) (*domain.LedgerEntry, error)
	DeductFunds(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error)
	MoveToEscrow(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, orderRef string) (*domain.LedgerEntry, error)
	ReleaseFromEscrow(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, orderRef string) (*domain.LedgerEntry, error)
	Adjust(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, operator string) (*domain.LedgerEntry, error)
	SetSecurity(ctx context.Context, req SecurityUpdate) error

	// Lock acquires exclusive locks on existing wallets inside tx.
	Lock(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*domain.Wallet, error)
	// Apply mutates a locked wallet and appends its ledger entry inside tx.
	Apply(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, mut domain.Mutation) (*domain.LedgerEntry, error)
}

// SecurityUpdate sets withdrawal credentials and limits. Nil fields are left as is.
type SecurityUpdate struct {
	UserID        uuid.UUID
	PIN           *string
	OTPSecret     *string
	DailyLimitBTC *decimal.Decimal
	DailyLimitXMR *decimal.Decimal
}

// LedgerService appends and queries immutable ledger entries.
type LedgerService interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	SumByUser(ctx context.Context, userID uuid.UUID, currency domain.Currency, types []domain.EntryType, from, to *time.Time) (decimal.Decimal, error)
	Totals(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.LedgerTotals, error)
	List(ctx context.Context, params LedgerListParams) ([]domain.LedgerEntry, int64, error)
	// VerifyUser recomputes integrity hashes and returns ids of entries that do not match.
	VerifyUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// EscrowEngine drives the order funds state machine.
type EscrowEngine interface {
	Register(ctx context.Context, req RegisterOrderRequest) (*domain.EscrowedOrder, error)
	Get(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error)
	LockFunds(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error)
	MarkShipped(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error)
	Release(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error)
	// Refund returns escrow to the buyer. A nil percent refunds everything,
	// otherwise the buyer gets percent of the total and the vendor the rest.
	Refund(ctx context.Context, orderID uuid.UUID, percent *decimal.Decimal) (*domain.EscrowedOrder, error)
	MarkDisputed(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error)
	// AutoFinalizeDue releases every shipped order whose grace period has
	// expired, reading pageSize orders at a time.
	AutoFinalizeDue(ctx context.Context, now time.Time, pageSize int) (int, error)
}

// RegisterOrderRequest holds the escrow slice of a newly created order.
type RegisterOrderRequest struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	VendorID uuid.UUID
	Currency domain.Currency
	Total    decimal.Decimal
}

// WithdrawalRiskEngine scores withdrawal requests. Score is pure.
type WithdrawalRiskEngine interface {
	Score(in domain.RiskInput) domain.RiskAssessment
}

// WithdrawalService drives the withdrawal approval lifecycle.
type WithdrawalService interface {
	Submit(ctx context.Context, req WithdrawalSubmission) (*domain.WithdrawalRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	List(ctx context.Context, params WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error)
	StartReview(ctx context.Context, id uuid.UUID, operator string) (*domain.WithdrawalRequest, error)
	Approve(ctx context.Context, id uuid.UUID, operator string) (*domain.WithdrawalRequest, error)
	Complete(ctx context.Context, id uuid.UUID, operator, txHash string) (*domain.WithdrawalRequest, error)
	Reject(ctx context.Context, id uuid.UUID, operator, reason string) (*domain.WithdrawalRequest, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) (*domain.WithdrawalRequest, error)
}

// WithdrawalSubmission holds validated input for a withdrawal request.
type WithdrawalSubmission struct {
	UserID   uuid.UUID
	Currency domain.Currency
	Amount   decimal.Decimal
	Address  string
	PIN      string
	OTPCode  string
}

// ReconciliationService compares stored balances against the ledger.
type ReconciliationService interface {
	RunPass(ctx context.Context) (*domain.PassSummary, error)
	CheckWallet(ctx context.Context, passID, userID uuid.UUID) (*domain.BalanceCheck, error)
	Resolve(ctx context.Context, checkID uuid.UUID, operator, note string) (*domain.BalanceCheck, error)
	ListChecks(ctx context.Context, params CheckListParams) ([]domain.BalanceCheck, int64, error)
}
