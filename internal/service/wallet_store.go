package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,12}$`)

// WalletStoreImpl implements ports.WalletStore on top of pessimistic row locks.
type WalletStoreImpl struct {
	walletRepo ports.WalletRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	hasher     ports.HashService
	enc        ports.EncryptionService
	audit      ports.AuditService
	metrics    ports.Metrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewWalletStore creates a new WalletStoreImpl.
func NewWalletStore(
	walletRepo ports.WalletRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	hasher ports.HashService,
	enc ports.EncryptionService,
	audit ports.AuditService,
	metrics ports.Metrics,
	log zerolog.Logger,
) *WalletStoreImpl {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &WalletStoreImpl{
		walletRepo: walletRepo,
		ledger:     ledger,
		transactor: transactor,
		hasher:     hasher,
		enc:        enc,
		audit:      audit,
		metrics:    metrics,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetWallet returns committed wallet state without locking.
func (s *WalletStoreImpl) GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.walletRepo.Get(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// GetBalance returns the spendable balance.
func (s *WalletStoreImpl) GetBalance(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	if !currency.Valid() {
		return decimal.Zero, apperror.ErrUnsupportedCurrency(string(currency))
	}
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance(currency), nil
}

// GetAvailableBalance returns what the user may withdraw or spend.
func (s *WalletStoreImpl) GetAvailableBalance(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	if !currency.Valid() {
		return decimal.Zero, apperror.ErrUnsupportedCurrency(string(currency))
	}
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Available(currency), nil
}

// EnsureWallet creates an empty wallet on first financial activity.
func (s *WalletStoreImpl) EnsureWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	if userID == uuid.Nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if err := s.walletRepo.CreateIfMissing(ctx, userID, s.now()); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	return s.GetWallet(ctx, userID)
}

// AddFunds credits balance, creating the wallet if needed.
func (s *WalletStoreImpl) AddFunds(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, source string) (*domain.LedgerEntry, error) {
	if err := validateAmount(currency, amount); err != nil {
		return nil, err
	}
	if _, err := s.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, domain.Mutation{
		Type: domain.EntryDeposit, Currency: currency, Amount: amount, Reference: source,
	}, "")
}

// DeductFunds debits balance. Fails with InsufficientBalance when amount > balance.
func (s *WalletStoreImpl) DeductFunds(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	if err := validateAmount(currency, amount); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, domain.Mutation{
		Type: domain.EntryWithdrawal, Currency: currency, Amount: amount, Reference: reason,
	}, "")
}

// MoveToEscrow earmarks part of the balance for an order.
func (s *WalletStoreImpl) MoveToEscrow(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, orderRef string) (*domain.LedgerEntry, error) {
	if err := validateAmount(currency, amount); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, domain.Mutation{
		Type: domain.EntryEscrowLock, Currency: currency, Amount: amount, Reference: orderRef,
	}, "")
}

// ReleaseFromEscrow returns earmarked funds to the owner's balance.
func (s *WalletStoreImpl) ReleaseFromEscrow(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, orderRef string) (*domain.LedgerEntry, error) {
	if err := validateAmount(currency, amount); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, domain.Mutation{
		Type: domain.EntryEscrowRelease, Currency: currency, Amount: amount, Reference: orderRef,
	}, "")
}

// Adjust applies a signed operator correction to the balance. A credit
// creates the wallet if needed; a debit needs an existing wallet.
func (s *WalletStoreImpl) Adjust(ctx context.Context, userID uuid.UUID, currency domain.Currency, amount decimal.Decimal, reason, operator string) (*domain.LedgerEntry, error) {
	if !currency.Valid() {
		return nil, apperror.ErrUnsupportedCurrency(string(currency))
	}
	if amount.IsZero() || !currency.ValidAmount(amount.Abs()) {
		return nil, apperror.ErrInvalidAmount()
	}
	if reason == "" {
		return nil, apperror.Validation("Adjustment reason is required")
	}
	if amount.IsPositive() {
		if _, err := s.EnsureWallet(ctx, userID); err != nil {
			return nil, err
		}
	}
	return s.mutate(ctx, userID, domain.Mutation{
		Type:      domain.EntryAdjustment,
		Currency:  currency,
		Amount:    amount,
		Reference: "adjustment:" + reason,
		Metadata:  map[string]interface{}{"operator": operator},
	}, operator)
}

// SetSecurity updates withdrawal credentials and daily limits.
func (s *WalletStoreImpl) SetSecurity(ctx context.Context, req ports.SecurityUpdate) error {
	var pinHash, otpSealed *string
	if req.PIN != nil {
		if !pinPattern.MatchString(*req.PIN) {
			return apperror.Validation("PIN must be 4 to 12 digits")
		}
		h, err := s.hasher.Hash(*req.PIN)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("hash pin: %w", err))
		}
		pinHash = &h
	}
	if req.OTPSecret != nil {
		if _, err := decodeOTPSecret(*req.OTPSecret); err != nil {
			return apperror.Validation("Second factor secret must be base32")
		}
		sealed, err := s.enc.Encrypt(*req.OTPSecret, req.UserID.String())
		if err != nil {
			return apperror.ErrEncryptionFailure(fmt.Errorf("seal otp secret: %w", err))
		}
		otpSealed = &sealed
	}
	for _, l := range []*decimal.Decimal{req.DailyLimitBTC, req.DailyLimitXMR} {
		if l != nil && l.IsNegative() {
			return apperror.Validation("Daily limit cannot be negative")
		}
	}

	if _, err := s.EnsureWallet(ctx, req.UserID); err != nil {
		return err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallets, err := s.Lock(ctx, dbTx, req.UserID)
	if err != nil {
		return err
	}
	w := wallets[req.UserID]
	if pinHash != nil {
		w.WithdrawalPINHash = pinHash
	}
	if otpSealed != nil {
		w.SecondFactorEnc = otpSealed
	}
	if req.DailyLimitBTC != nil {
		w.DailyLimitBTC = domain.CurrencyBTC.Truncate(*req.DailyLimitBTC)
	}
	if req.DailyLimitXMR != nil {
		w.DailyLimitXMR = domain.CurrencyXMR.Truncate(*req.DailyLimitXMR)
	}
	w.UpdatedAt = s.now()

	if err := s.walletRepo.Update(ctx, dbTx, w); err != nil {
		return apperror.InternalError(fmt.Errorf("update wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	userID := req.UserID
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionSecurityUpdate,
		ResourceType: "wallet",
		ResourceID:   userID.String(),
		Details: auditDetails(map[string]interface{}{
			"pin_changed":        req.PIN != nil,
			"second_factor_set":  req.OTPSecret != nil,
			"daily_limit_change": req.DailyLimitBTC != nil || req.DailyLimitXMR != nil,
		}),
		CreatedAt: s.now(),
	})
	return nil
}

// Lock acquires exclusive locks on the wallets in ascending id order.
func (s *WalletStoreImpl) Lock(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	wallets, err := s.walletRepo.LockForUpdate(ctx, tx, userIDs...)
	if err != nil {
		return nil, storageError("lock wallets", err)
	}
	for _, id := range userIDs {
		if wallets[id] == nil {
			return nil, apperror.ErrWalletNotFound()
		}
	}
	return wallets, nil
}

// Apply mutates a locked wallet, persists it and appends the ledger entry.
func (s *WalletStoreImpl) Apply(ctx context.Context, tx pgx.Tx, w *domain.Wallet, m domain.Mutation) (*domain.LedgerEntry, error) {
	entry, err := w.Apply(m, s.now())
	switch {
	case errors.Is(err, domain.ErrBalanceShort):
		return nil, apperror.ErrInsufficientBalance()
	case errors.Is(err, domain.ErrEscrowShort):
		return nil, apperror.ErrInsufficientEscrow()
	case err != nil:
		return nil, apperror.InternalError(err)
	}

	if err := s.walletRepo.Update(ctx, tx, w); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update wallet: %w", err))
	}
	stored, err := s.ledger.Append(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	s.metrics.LedgerAppended(stored.Type, stored.Currency)
	return stored, nil
}

// mutate runs one single-wallet mutation as its own atomic unit.
func (s *WalletStoreImpl) mutate(ctx context.Context, userID uuid.UUID, m domain.Mutation, actor string) (*domain.LedgerEntry, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallets, err := s.Lock(ctx, dbTx, userID)
	if err != nil {
		return nil, err
	}
	entry, err := s.Apply(ctx, dbTx, wallets[userID], m)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("type", string(entry.Type)).
		Str("currency", string(entry.Currency)).
		Str("amount", entry.Amount.String()).
		Str("reference", entry.Reference).
		Msg("wallet mutated")

	s.audit.Log(ctx, entryAudit(entry, actor))
	return entry, nil
}

func validateAmount(currency domain.Currency, amount decimal.Decimal) error {
	if !currency.Valid() {
		return apperror.ErrUnsupportedCurrency(string(currency))
	}
	if !currency.ValidAmount(amount) {
		return apperror.ErrInvalidAmount()
	}
	return nil
}

// storageError maps lock timeouts to SYS_002 and everything else to SYS_001.
func storageError(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ports.ErrLockTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return apperror.ErrLockTimeout(fmt.Errorf("%s: %w", op, err))
	}
	return apperror.InternalError(fmt.Errorf("%s: %w", op, err))
}

var entryActions = map[domain.EntryType]domain.AuditAction{
	domain.EntryDeposit:       domain.AuditActionDeposit,
	domain.EntryWithdrawal:    domain.AuditActionDeduct,
	domain.EntryEscrowLock:    domain.AuditActionEscrowLock,
	domain.EntryEscrowRelease: domain.AuditActionEscrowRelease,
	domain.EntryAdjustment:    domain.AuditActionAdjustment,
}

func entryAudit(e *domain.LedgerEntry, actor string) *domain.AuditLog {
	userID := e.UserID
	action, ok := entryActions[e.Type]
	if !ok {
		action = domain.AuditActionOrderTransition
	}
	return &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Actor:        actor,
		Action:       action,
		ResourceType: "ledger_entry",
		ResourceID:   e.ID.String(),
		Details: auditDetails(map[string]interface{}{
			"type":           e.Type,
			"currency":       e.Currency,
			"amount":         e.Amount.String(),
			"balance_before": e.BalanceBefore.String(),
			"balance_after":  e.BalanceAfter.String(),
			"escrow_before":  e.EscrowBefore.String(),
			"escrow_after":   e.EscrowAfter.String(),
			"reference":      e.Reference,
		}),
		CreatedAt: e.CreatedAt,
	}
}

func auditDetails(v map[string]interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
