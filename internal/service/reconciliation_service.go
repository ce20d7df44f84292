package service

import (
	"context"
	"fmt"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ReconciliationSettings controls drift grading and repair.
type ReconciliationSettings struct {
	PageSize     int
	MaxWallets   int // 0 = unlimited
	AutoFix      bool
	RecordClean  bool
	AlertOnMajor bool
	Minor        map[domain.Currency]decimal.Decimal
	Alert        map[domain.Currency]decimal.Decimal
}

// Grade maps an absolute difference to a severity.
func (s ReconciliationSettings) Grade(c domain.Currency, diff decimal.Decimal) domain.Severity {
	switch {
	case !diff.GreaterThan(c.Epsilon()):
		return domain.SeverityNone
	case !diff.GreaterThan(s.Minor[c]):
		return domain.SeverityMinor
	case diff.GreaterThan(s.Alert[c]):
		return domain.SeverityCritical
	}
	return domain.SeverityMajor
}

// ReconciliationServiceImpl implements ports.ReconciliationService.
type ReconciliationServiceImpl struct {
	wallets    ports.WalletRepository
	ledger     ports.LedgerService
	checks     ports.BalanceCheckRepository
	transactor ports.DBTransactor
	alerts     ports.AlertNotifier
	audit      ports.AuditService
	metrics    ports.Metrics
	settings   ReconciliationSettings
	log        zerolog.Logger
	now        func() time.Time
}

// NewReconciliationService creates a new ReconciliationServiceImpl.
func NewReconciliationService(
	wallets ports.WalletRepository,
	ledger ports.LedgerService,
	checks ports.BalanceCheckRepository,
	transactor ports.DBTransactor,
	alerts ports.AlertNotifier,
	audit ports.AuditService,
	metrics ports.Metrics,
	settings ReconciliationSettings,
	log zerolog.Logger,
) *ReconciliationServiceImpl {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if settings.PageSize <= 0 {
		settings.PageSize = 500
	}
	return &ReconciliationServiceImpl{
		wallets:    wallets,
		ledger:     ledger,
		checks:     checks,
		transactor: transactor,
		alerts:     alerts,
		audit:      audit,
		metrics:    metrics,
		settings:   settings,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunPass checks every wallet once. A failing wallet is counted and skipped;
// cancellation stops the pass and returns the partial summary.
func (s *ReconciliationServiceImpl) RunPass(ctx context.Context) (*domain.PassSummary, error) {
	summary := &domain.PassSummary{PassID: uuid.New(), StartedAt: s.now()}
	defer func() {
		summary.Duration = s.now().Sub(summary.StartedAt)
		s.metrics.ReconciliationPass(summary)
		s.log.Info().
			Str("pass_id", summary.PassID.String()).
			Int("wallets", summary.WalletsChecked).
			Int("discrepancies", summary.Discrepancies).
			Int("auto_corrected", summary.AutoCorrected).
			Int("critical", summary.Critical).
			Int("errors", summary.Errors).
			Dur("duration", summary.Duration).
			Msg("reconciliation pass finished")
	}()

	after := uuid.Nil
	for {
		ids, err := s.wallets.ListIDs(ctx, after, s.settings.PageSize)
		if err != nil {
			return summary, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if s.settings.MaxWallets > 0 && summary.WalletsChecked >= s.settings.MaxWallets {
				return summary, nil
			}
			check, err := s.CheckWallet(ctx, summary.PassID, id)
			summary.WalletsChecked++
			if err != nil {
				summary.Errors++
				s.log.Error().Err(err).Str("user_id", id.String()).Msg("wallet check failed")
				continue
			}
			if check.DiscrepancyFound {
				summary.Discrepancies++
			}
			if check.AutoCorrected {
				summary.AutoCorrected++
			}
			if check.MaxSeverity == domain.SeverityCritical {
				summary.Critical++
			}
		}
		if len(ids) < s.settings.PageSize {
			return summary, nil
		}
		after = ids[len(ids)-1]
	}
}

// CheckWallet compares one wallet against its ledger. Drift seen without a
// lock is confirmed under the wallet lock before it is reported or repaired.
func (s *ReconciliationServiceImpl) CheckWallet(ctx context.Context, passID, userID uuid.UUID) (*domain.BalanceCheck, error) {
	w, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	lines, err := s.compare(ctx, w)
	if err != nil {
		return nil, err
	}

	check := &domain.BalanceCheck{
		ID:        uuid.New(),
		PassID:    passID,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if drifted(lines) {
		lines, check.AutoCorrected, err = s.confirm(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	check.Lines = lines
	check.MaxSeverity = maxSeverity(lines)
	check.DiscrepancyFound = drifted(lines)
	if check.AutoCorrected {
		check.Resolved = true
		by := "system:reconciliation"
		check.ResolvedBy = &by
		check.ResolvedAt = &check.CreatedAt
	}

	if check.DiscrepancyFound || s.settings.RecordClean {
		if err := s.checks.Create(ctx, check); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("record check: %w", err))
		}
	}
	if check.DiscrepancyFound {
		s.report(ctx, check)
	}
	return check, nil
}

// Resolve marks a discrepancy as handled by an operator.
func (s *ReconciliationServiceImpl) Resolve(ctx context.Context, checkID uuid.UUID, operator, note string) (*domain.BalanceCheck, error) {
	check, err := s.checks.Get(ctx, checkID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get check: %w", err))
	}
	if check == nil {
		return nil, apperror.ErrCheckNotFound()
	}
	if !check.DiscrepancyFound {
		return nil, apperror.ErrInvalidStateTransition("clean", "resolve")
	}
	if check.Resolved {
		return nil, apperror.ErrInvalidStateTransition("resolved", "resolve")
	}

	now := s.now()
	check.Resolved = true
	check.ResolvedBy = &operator
	check.ResolutionNote = &note
	check.ResolvedAt = &now
	if err := s.checks.MarkResolved(ctx, check); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("resolve check: %w", err))
	}

	userID := check.UserID
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Actor:        operator,
		Action:       domain.AuditActionReconcileResolve,
		ResourceType: "balance_check",
		ResourceID:   check.ID.String(),
		Details:      auditDetails(map[string]interface{}{"note": note, "severity": check.MaxSeverity}),
		CreatedAt:    now,
	})
	return check, nil
}

// ListChecks returns balance checks matching params.
func (s *ReconciliationServiceImpl) ListChecks(ctx context.Context, params ports.CheckListParams) ([]domain.BalanceCheck, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	items, total, err := s.checks.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list checks: %w", err))
	}
	return items, total, nil
}

// confirm re-derives the lines while holding the wallet lock, so no ledger
// entry for the user can commit in between. Minor drift is repaired here.
func (s *ReconciliationServiceImpl) confirm(ctx context.Context, userID uuid.UUID) ([]domain.BalanceLine, bool, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.wallets.LockForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, false, storageError("lock wallet", err)
	}
	w := locked[userID]
	if w == nil {
		return nil, false, apperror.ErrWalletNotFound()
	}

	lines, err := s.compare(ctx, w)
	if err != nil {
		return nil, false, err
	}
	if !s.settings.AutoFix || !drifted(lines) || maxSeverity(lines) != domain.SeverityMinor {
		return lines, false, nil
	}

	before := w.Clone()
	for _, l := range lines {
		if l.Drifted() {
			w.Set(l.Currency, l.ExpectedBalance, l.ExpectedEscrow)
		}
	}
	w.UpdatedAt = s.now()
	if err := s.wallets.Update(ctx, dbTx, w); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("update wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	for _, l := range lines {
		if !l.Drifted() {
			continue
		}
		s.log.Warn().
			Str("user_id", userID.String()).
			Str("currency", string(l.Currency)).
			Str("difference", l.Difference.String()).
			Msg("minor drift auto-corrected")
		s.audit.Log(ctx, &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       &userID,
			Actor:        "system:reconciliation",
			Action:       domain.AuditActionReconcileFix,
			ResourceType: "wallet",
			ResourceID:   userID.String(),
			Details: auditDetails(map[string]interface{}{
				"currency":       l.Currency,
				"balance_before": before.Balance(l.Currency).String(),
				"escrow_before":  before.Escrow(l.Currency).String(),
				"balance_after":  l.ExpectedBalance.String(),
				"escrow_after":   l.ExpectedEscrow.String(),
			}),
			CreatedAt: s.now(),
		})
	}
	return lines, true, nil
}

func (s *ReconciliationServiceImpl) compare(ctx context.Context, w *domain.Wallet) ([]domain.BalanceLine, error) {
	lines := make([]domain.BalanceLine, 0, len(domain.Currencies))
	for _, c := range domain.Currencies {
		totals, err := s.ledger.Totals(ctx, w.UserID, c)
		if err != nil {
			return nil, err
		}
		expBal, expEsc := totals.Expected()
		diff := decimal.Max(expBal.Sub(w.Balance(c)).Abs(), expEsc.Sub(w.Escrow(c)).Abs())
		lines = append(lines, domain.BalanceLine{
			Currency:        c,
			ExpectedBalance: expBal,
			ActualBalance:   w.Balance(c),
			ExpectedEscrow:  expEsc,
			ActualEscrow:    w.Escrow(c),
			ExpectedTotal:   expBal.Add(expEsc),
			Difference:      diff,
			Severity:        s.settings.Grade(c, diff),
		})
	}
	return lines, nil
}

func (s *ReconciliationServiceImpl) report(ctx context.Context, check *domain.BalanceCheck) {
	for _, l := range check.Lines {
		if !l.Drifted() {
			continue
		}
		s.metrics.Discrepancy(l.Currency, l.Severity)
		finding := apperror.ErrReconciliationDiscrepancy(fmt.Sprintf("%s wallet %s off by %s", l.Currency, check.UserID, l.Difference))
		s.log.Warn().
			Str("code", finding.Code).
			Str("user_id", check.UserID.String()).
			Str("currency", string(l.Currency)).
			Str("expected_balance", l.ExpectedBalance.String()).
			Str("actual_balance", l.ActualBalance.String()).
			Str("expected_escrow", l.ExpectedEscrow.String()).
			Str("actual_escrow", l.ActualEscrow.String()).
			Str("severity", string(l.Severity)).
			Msg("balance discrepancy")

		alert := l.Severity == domain.SeverityCritical ||
			(l.Severity == domain.SeverityMajor && s.settings.AlertOnMajor)
		if !alert {
			continue
		}
		err := s.alerts.Notify(ctx, ports.Alert{
			Kind:     "balance_discrepancy",
			Severity: l.Severity,
			Summary:  finding.Message,
			Details: map[string]interface{}{
				"check_id":         check.ID.String(),
				"pass_id":          check.PassID.String(),
				"user_id":          check.UserID.String(),
				"expected_balance": l.ExpectedBalance.String(),
				"actual_balance":   l.ActualBalance.String(),
				"expected_escrow":  l.ExpectedEscrow.String(),
				"actual_escrow":    l.ActualEscrow.String(),
			},
			RaisedAt: s.now(),
		})
		if err != nil {
			s.log.Error().Err(err).Str("check_id", check.ID.String()).Msg("failed to deliver discrepancy alert")
		}
	}
}

func drifted(lines []domain.BalanceLine) bool {
	for _, l := range lines {
		if l.Drifted() {
			return true
		}
	}
	return false
}

func maxSeverity(lines []domain.BalanceLine) domain.Severity {
	sev := domain.SeverityNone
	for _, l := range lines {
		sev = sev.Worse(l.Severity)
	}
	return sev
}
