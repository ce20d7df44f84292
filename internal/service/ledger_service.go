package service

import (
	"context"
	"fmt"
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
	defaultPageSize = 20
	maxPageSize     = 100
)

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	repo   ports.LedgerRepository
	hasher ports.IntegrityHasher
	log    zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(repo ports.LedgerRepository, hasher ports.IntegrityHasher, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{repo: repo, hasher: hasher, log: log}
}

// Append stamps, hashes and inserts the entry inside tx.
func (s *LedgerServiceImpl) Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if !entry.Type.Valid() {
		return nil, apperror.InternalError(fmt.Errorf("unknown entry type %q", entry.Type))
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	// Postgres keeps microseconds; hash what will be read back.
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	entry.IntegrityHash = s.hasher.Sum(entry)

	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("insert ledger entry: %w", err))
	}
	return entry, nil
}

// SumByUser sums committed entries of the given types.
func (s *LedgerServiceImpl) SumByUser(ctx context.Context, userID uuid.UUID, currency domain.Currency, types []domain.EntryType, from, to *time.Time) (decimal.Decimal, error) {
	sum, err := s.repo.SumByUser(ctx, userID, currency, types, from, to)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("sum ledger: %w", err))
	}
	return sum, nil
}

// Totals returns per-type sums for one user and currency.
func (s *LedgerServiceImpl) Totals(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.LedgerTotals, error) {
	totals, err := s.repo.Totals(ctx, userID, currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("ledger totals: %w", err))
	}
	return totals, nil
}

// List returns paginated history.
func (s *LedgerServiceImpl) List(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	entries, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list ledger: %w", err))
	}
	return entries, total, nil
}

// VerifyUser recomputes every entry hash for the user.
func (s *LedgerServiceImpl) VerifyUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	entries, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load ledger: %w", err))
	}

	var tampered []uuid.UUID
	for i := range entries {
		if !s.hasher.Verify(&entries[i]) {
			tampered = append(tampered, entries[i].ID)
		}
	}
	if len(tampered) > 0 {
		s.log.Error().
			Str("user_id", userID.String()).
			Int("tampered", len(tampered)).
			Msg("ledger integrity check failed")
	}
	return tampered, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
