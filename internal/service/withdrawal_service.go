package service

import (
	"context"
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

const (
	autoApprover = "system:auto"
	dailyWindow  = 24 * time.Hour
)

var addressPatterns = map[domain.Currency]*regexp.Regexp{
	domain.CurrencyBTC: regexp.MustCompile(`^(bc1[02-9ac-hj-np-z]{11,71}|[13][1-9A-HJ-NP-Za-km-z]{25,34})$`),
	domain.CurrencyXMR: regexp.MustCompile(`^[48][1-9A-HJ-NP-Za-km-z]{94}([1-9A-HJ-NP-Za-km-z]{11})?$`),
}

// WithdrawalSettings holds the withdrawal policy.
type WithdrawalSettings struct {
	VelocityLimit  int64
	VelocityWindow time.Duration
	AutoApprove    bool
}

// WithdrawalDeps groups the collaborators of WithdrawalServiceImpl.
type WithdrawalDeps struct {
	Repo       ports.WithdrawalRepository
	Wallets    ports.WalletStore
	Ledger     ports.LedgerService
	Risk       ports.WithdrawalRiskEngine
	Velocity   ports.VelocityGuard
	Accounts   ports.AccountDirectory
	Hasher     ports.HashService
	Encryption ports.EncryptionService
	OTP        ports.OTPVerifier
	Transactor ports.DBTransactor
	Audit      ports.AuditService
	Metrics    ports.Metrics
}

// WithdrawalServiceImpl implements ports.WithdrawalService.
type WithdrawalServiceImpl struct {
	WithdrawalDeps
	settings WithdrawalSettings
	log      zerolog.Logger
	now      func() time.Time
}

// NewWithdrawalService creates a new WithdrawalServiceImpl.
func NewWithdrawalService(deps WithdrawalDeps, settings WithdrawalSettings, log zerolog.Logger) *WithdrawalServiceImpl {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	return &WithdrawalServiceImpl{
		WithdrawalDeps: deps,
		settings:       settings,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates, scores and records a withdrawal request.
func (s *WithdrawalServiceImpl) Submit(ctx context.Context, req ports.WithdrawalSubmission) (*domain.WithdrawalRequest, error) {
	if err := validateAmount(req.Currency, req.Amount); err != nil {
		return nil, err
	}
	if !addressPatterns[req.Currency].MatchString(req.Address) {
		return nil, apperror.ErrInvalidAddress()
	}

	allowed, err := s.Velocity.CheckAndIncrement(ctx, "withdraw:"+req.UserID.String(), s.settings.VelocityLimit, s.settings.VelocityWindow)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("velocity check: %w", err))
	}
	if !allowed {
		return nil, apperror.ErrRateLimitExceeded()
	}

	wallet, err := s.Wallets.GetWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCredentials(wallet, req); err != nil {
		return nil, err
	}

	now := s.now()
	input, err := s.riskInput(ctx, req, now)
	if err != nil {
		return nil, err
	}
	assessment := s.Risk.Score(input)

	wr := &domain.WithdrawalRequest{
		ID:                   uuid.New(),
		UserID:               req.UserID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Address:              req.Address,
		Status:               domain.WithdrawalPending,
		RiskScore:            assessment.Score,
		RiskFactors:          assessment.Factors,
		ManualReviewRequired: assessment.ManualReviewRequired,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if wr.ManualReviewRequired {
		wr.Status = domain.WithdrawalReviewing
	}

	dbTx, err := s.Transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// The wallet lock serializes submissions per user, so the limit check
	// below sees every request committed before this one.
	locked, err := s.Wallets.Lock(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, err
	}
	wallet = locked[req.UserID]
	if req.Amount.GreaterThan(wallet.Available(req.Currency)) {
		return nil, apperror.ErrInsufficientBalance()
	}
	if err := s.checkDailyLimit(ctx, wallet, req.Currency, req.Amount, true, now); err != nil {
		return nil, err
	}

	if err := s.Repo.Create(ctx, dbTx, wr); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create withdrawal: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.Metrics.WithdrawalStatus(wr.Status, wr.ManualReviewRequired)
	s.log.Info().
		Str("withdrawal_id", wr.ID.String()).
		Str("user_id", wr.UserID.String()).
		Int("risk_score", wr.RiskScore).
		Strs("risk_factors", wr.RiskFactors).
		Bool("manual_review", wr.ManualReviewRequired).
		Msg("withdrawal submitted")
	s.auditRequest(ctx, wr, domain.AuditActionWithdrawalSubmit, "", nil)

	if !wr.ManualReviewRequired && s.settings.AutoApprove {
		approved, err := s.Approve(ctx, wr.ID, autoApprover)
		if err != nil {
			// Left pending for an operator.
			s.log.Warn().Err(err).Str("withdrawal_id", wr.ID.String()).Msg("auto-approve failed")
			return wr, nil
		}
		return approved, nil
	}
	return wr, nil
}

// Get returns a withdrawal request.
func (s *WithdrawalServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	wr, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get withdrawal: %w", err))
	}
	if wr == nil {
		return nil, apperror.ErrWithdrawalNotFound()
	}
	return wr, nil
}

// List returns withdrawal requests matching params.
func (s *WithdrawalServiceImpl) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	items, total, err := s.Repo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list withdrawals: %w", err))
	}
	return items, total, nil
}

// StartReview moves a pending request into manual review.
func (s *WithdrawalServiceImpl) StartReview(ctx context.Context, id uuid.UUID, operator string) (*domain.WithdrawalRequest, error) {
	return s.decide(ctx, id, "review", operator,
		func(wr *domain.WithdrawalRequest) bool { return wr.Status == domain.WithdrawalPending },
		func(_ context.Context, _ pgx.Tx, wr *domain.WithdrawalRequest) error {
			wr.Status = domain.WithdrawalReviewing
			return nil
		})
}

// Approve deducts the funds and hands the request to the payout processor.
// If the balance no longer covers it the request is left unchanged.
func (s *WithdrawalServiceImpl) Approve(ctx context.Context, id uuid.UUID, operator string) (*domain.WithdrawalRequest, error) {
	return s.decide(ctx, id, "approve", operator,
		(*domain.WithdrawalRequest).IsApprovable,
		func(ctx context.Context, tx pgx.Tx, wr *domain.WithdrawalRequest) error {
			wr.Status = domain.WithdrawalApproved
			wallets, err := s.Wallets.Lock(ctx, tx, wr.UserID)
			if err != nil {
				return err
			}
			if err := s.checkDailyLimit(ctx, wallets[wr.UserID], wr.Currency, wr.Amount, false, s.now()); err != nil {
				return err
			}
			_, err = s.Wallets.Apply(ctx, tx, wallets[wr.UserID], domain.Mutation{
				Type:      domain.EntryWithdrawal,
				Currency:  wr.Currency,
				Amount:    wr.Amount,
				Reference: domain.WithdrawalRef(wr.ID),
				Metadata:  map[string]interface{}{"address": wr.Address, "approved_by": operator},
			})
			if err != nil {
				return err
			}
			wr.Status = domain.WithdrawalProcessing
			s.stamp(wr, operator)
			return nil
		})
}

// Complete records the payout transaction hash.
func (s *WithdrawalServiceImpl) Complete(ctx context.Context, id uuid.UUID, operator, txHash string) (*domain.WithdrawalRequest, error) {
	if txHash == "" {
		return nil, apperror.Validation("tx_hash is required")
	}
	return s.decide(ctx, id, "complete", operator,
		func(wr *domain.WithdrawalRequest) bool { return wr.Status == domain.WithdrawalProcessing },
		func(_ context.Context, _ pgx.Tx, wr *domain.WithdrawalRequest) error {
			wr.Status = domain.WithdrawalCompleted
			wr.TxHash = &txHash
			s.stamp(wr, operator)
			return nil
		})
}

// Reject declines the request. Funds already deducted are credited back.
func (s *WithdrawalServiceImpl) Reject(ctx context.Context, id uuid.UUID, operator, reason string) (*domain.WithdrawalRequest, error) {
	if reason == "" {
		return nil, apperror.Validation("rejection reason is required")
	}
	return s.decide(ctx, id, "reject", operator,
		func(wr *domain.WithdrawalRequest) bool {
			return wr.IsApprovable() || wr.Status == domain.WithdrawalProcessing
		},
		func(ctx context.Context, tx pgx.Tx, wr *domain.WithdrawalRequest) error {
			if wr.Status == domain.WithdrawalProcessing {
				wallets, err := s.Wallets.Lock(ctx, tx, wr.UserID)
				if err != nil {
					return err
				}
				_, err = s.Wallets.Apply(ctx, tx, wallets[wr.UserID], domain.Mutation{
					Type:      domain.EntryDeposit,
					Currency:  wr.Currency,
					Amount:    wr.Amount,
					Reference: "withdrawal_reversal:" + wr.ID.String(),
					Metadata:  map[string]interface{}{"rejected_by": operator},
				})
				if err != nil {
					return err
				}
			}
			wr.Status = domain.WithdrawalRejected
			wr.RejectionReason = &reason
			s.stamp(wr, operator)
			return nil
		})
}

// Cancel lets the owner withdraw a request that is still pending.
// Requests owned by someone else are reported as not found whatever their
// status.
func (s *WithdrawalServiceImpl) Cancel(ctx context.Context, userID, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	existing, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get withdrawal: %w", err))
	}
	if existing == nil || existing.UserID != userID {
		return nil, apperror.ErrWithdrawalNotFound()
	}
	return s.decide(ctx, id, "cancel", userID.String(),
		func(wr *domain.WithdrawalRequest) bool { return wr.IsCancellable() },
		func(_ context.Context, _ pgx.Tx, wr *domain.WithdrawalRequest) error {
			wr.Status = domain.WithdrawalCancelled
			return nil
		})
}

type decisionFunc func(ctx context.Context, tx pgx.Tx, wr *domain.WithdrawalRequest) error

// decide runs one status change atomically: request row first, wallet second.
func (s *WithdrawalServiceImpl) decide(
	ctx context.Context,
	id uuid.UUID,
	action, actor string,
	allowed func(*domain.WithdrawalRequest) bool,
	fn decisionFunc,
) (*domain.WithdrawalRequest, error) {
	dbTx, err := s.Transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wr, err := s.Repo.GetForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, storageError("lock withdrawal", err)
	}
	if wr == nil {
		return nil, apperror.ErrWithdrawalNotFound()
	}
	if !allowed(wr) {
		return nil, apperror.ErrInvalidStateTransition(string(wr.Status), action)
	}

	from := wr.Status
	if err := fn(ctx, dbTx, wr); err != nil {
		return nil, err
	}
	wr.UpdatedAt = s.now()

	if err := s.Repo.Update(ctx, dbTx, wr); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update withdrawal: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.Metrics.WithdrawalStatus(wr.Status, wr.ManualReviewRequired)
	s.log.Info().
		Str("withdrawal_id", wr.ID.String()).
		Str("from", string(from)).
		Str("to", string(wr.Status)).
		Str("actor", actor).
		Msg("withdrawal transition")
	s.auditRequest(ctx, wr, domain.AuditActionWithdrawalDecision, actor, map[string]interface{}{"from": from})
	return wr, nil
}

func (s *WithdrawalServiceImpl) checkCredentials(w *domain.Wallet, req ports.WithdrawalSubmission) error {
	if w.HasPIN() {
		ok, err := s.Hasher.Verify(req.PIN, *w.WithdrawalPINHash)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("verify pin: %w", err))
		}
		if !ok {
			return apperror.ErrInvalidPIN()
		}
	}
	if w.HasSecondFactor() {
		secret, err := s.Encryption.Decrypt(*w.SecondFactorEnc, w.UserID.String())
		if err != nil {
			return apperror.ErrEncryptionFailure(fmt.Errorf("open otp secret: %w", err))
		}
		if !s.OTP.Verify(secret, req.OTPCode, s.now()) {
			return apperror.ErrInvalidSecondFactor()
		}
	}
	return nil
}

// checkDailyLimit fails when withdrawals settled in the trailing 24h plus
// amount exceed the wallet's limit. Callers must hold the wallet lock.
func (s *WithdrawalServiceImpl) checkDailyLimit(ctx context.Context, w *domain.Wallet, currency domain.Currency, amount decimal.Decimal, includeOpen bool, now time.Time) error {
	limit := w.DailyLimit(currency)
	if !limit.IsPositive() {
		return nil
	}
	from := now.Add(-dailyWindow)
	used, err := s.Ledger.SumByUser(ctx, w.UserID, currency, []domain.EntryType{domain.EntryWithdrawal}, &from, &now)
	if err != nil {
		return err
	}
	if includeOpen {
		open, err := s.Repo.SumOpen(ctx, w.UserID, currency)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("sum open withdrawals: %w", err))
		}
		used = used.Add(open)
	}
	if used.Add(amount).GreaterThan(limit) {
		return apperror.ErrDailyLimitExceeded()
	}
	return nil
}

func (s *WithdrawalServiceImpl) riskInput(ctx context.Context, req ports.WithdrawalSubmission, now time.Time) (domain.RiskInput, error) {
	createdAt, err := s.Accounts.AccountCreatedAt(ctx, req.UserID)
	if err != nil {
		return domain.RiskInput{}, apperror.InternalError(fmt.Errorf("account age: %w", err))
	}
	known, err := s.Repo.CompletedAddresses(ctx, req.UserID)
	if err != nil {
		return domain.RiskInput{}, apperror.InternalError(fmt.Errorf("known addresses: %w", err))
	}
	recent, err := s.Repo.CountSince(ctx, req.UserID, now.Add(-dailyWindow), now)
	if err != nil {
		return domain.RiskInput{}, apperror.InternalError(fmt.Errorf("recent withdrawals: %w", err))
	}
	return domain.RiskInput{
		Amount:           req.Amount,
		Currency:         req.Currency,
		Address:          req.Address,
		CreatedAt:        now,
		AccountCreatedAt: createdAt,
		KnownAddresses:   known,
		RecentRequests:   recent,
	}, nil
}

func (s *WithdrawalServiceImpl) stamp(wr *domain.WithdrawalRequest, operator string) {
	now := s.now()
	wr.ProcessedBy = &operator
	wr.ProcessedAt = &now
}

func (s *WithdrawalServiceImpl) auditRequest(ctx context.Context, wr *domain.WithdrawalRequest, action domain.AuditAction, actor string, extra map[string]interface{}) {
	details := map[string]interface{}{
		"status":     wr.Status,
		"currency":   wr.Currency,
		"amount":     wr.Amount.String(),
		"risk_score": wr.RiskScore,
	}
	for k, v := range extra {
		details[k] = v
	}
	userID := wr.UserID
	s.Audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Actor:        actor,
		Action:       action,
		ResourceType: "withdrawal",
		ResourceID:   wr.ID.String(),
		Details:      auditDetails(details),
		CreatedAt:    s.now(),
	})
}

// WalletAccountDirectory implements ports.AccountDirectory using the wallet
// creation time, which is the user's first financial activity.
type WalletAccountDirectory struct {
	wallets ports.WalletRepository
}

// NewWalletAccountDirectory creates a new WalletAccountDirectory.
func NewWalletAccountDirectory(wallets ports.WalletRepository) *WalletAccountDirectory {
	return &WalletAccountDirectory{wallets: wallets}
}

// AccountCreatedAt returns when the user's wallet was created.
func (d *WalletAccountDirectory) AccountCreatedAt(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	w, err := d.wallets.Get(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	if w == nil {
		return time.Time{}, nil
	}
	return w.CreatedAt, nil
}
