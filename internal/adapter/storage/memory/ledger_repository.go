package memory

import (
	"context"
	"sort"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepository implements ports.LedgerRepository. Entries are only ever
// appended.
type LedgerRepository struct {
	s *Store
}

func (r *LedgerRepository) Insert(_ context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	t, err := txFrom(tx)
	if err != nil {
		return err
	}
	e := *entry
	t.stage(func() { r.s.entries = append(r.s.entries, e) })
	return nil
}

func (r *LedgerRepository) SumByUser(_ context.Context, userID uuid.UUID, currency domain.Currency, types []domain.EntryType, from, to *time.Time) (decimal.Decimal, error) {
	want := make(map[domain.EntryType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range r.s.entries {
		if e.UserID != userID || e.Currency != currency || !want[e.Type] {
			continue
		}
		if from != nil && e.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && e.CreatedAt.After(*to) {
			continue
		}
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

func (r *LedgerRepository) Totals(_ context.Context, userID uuid.UUID, currency domain.Currency) (domain.LedgerTotals, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	totals := domain.LedgerTotals{}
	for _, e := range r.s.entries {
		if e.UserID != userID || e.Currency != currency {
			continue
		}
		totals[e.Type] = totals[e.Type].Add(e.Amount)
	}
	return totals, nil
}

// List returns matching entries newest first.
func (r *LedgerRepository) List(_ context.Context, p ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	r.s.mu.RLock()
	var matched []domain.LedgerEntry
	for _, e := range r.s.entries {
		if e.UserID != p.UserID {
			continue
		}
		if p.Currency != nil && e.Currency != *p.Currency {
			continue
		}
		if p.Type != nil && e.Type != *p.Type {
			continue
		}
		if p.From != nil && e.CreatedAt.Before(*p.From) {
			continue
		}
		if p.To != nil && e.CreatedAt.After(*p.To) {
			continue
		}
		matched = append(matched, e)
	}
	r.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	start, end := pageBounds(len(matched), p.Page, p.PageSize)
	return matched[start:end], int64(len(matched)), nil
}

// ListByUser returns every entry of the user oldest first.
func (r *LedgerRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range r.s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}
