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

// WithdrawalRepository implements ports.WithdrawalRepository.
type WithdrawalRepository struct {
	s *Store
}

func (r *WithdrawalRepository) Create(_ context.Context, tx pgx.Tx, req *domain.WithdrawalRequest) error {
	t, err := txFrom(tx)
	if err != nil {
		return err
	}
	w := *req
	t.stage(func() { r.s.withdrawals[w.ID] = w })
	return nil
}

func (r *WithdrawalRepository) Get(_ context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.withdrawals[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	t, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "withdrawal:"+id.String()); err != nil {
		return nil, err
	}
	if w, ok := t.withdrawals[id]; ok {
		return &w, nil
	}
	return r.Get(ctx, id)
}

func (r *WithdrawalRepository) Update(_ context.Context, tx pgx.Tx, req *domain.WithdrawalRequest) error {
	t, err := txFrom(tx)
	if err != nil {
		return err
	}
	w := *req
	if t.withdrawals == nil {
		t.withdrawals = map[uuid.UUID]domain.WithdrawalRequest{}
	}
	t.withdrawals[w.ID] = w
	t.stage(func() { r.s.withdrawals[w.ID] = w })
	return nil
}

func (r *WithdrawalRepository) CountSince(_ context.Context, userID uuid.UUID, since, until time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, w := range r.s.withdrawals {
		if w.UserID == userID && !w.CreatedAt.Before(since) && w.CreatedAt.Before(until) {
			n++
		}
	}
	return n, nil
}

func (r *WithdrawalRepository) CompletedAddresses(_ context.Context, userID uuid.UUID) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for _, w := range r.s.withdrawals {
		if w.UserID == userID && w.Status == domain.WithdrawalCompleted && !seen[w.Address] {
			seen[w.Address] = true
			out = append(out, w.Address)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *WithdrawalRepository) SumOpen(_ context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, w := range r.s.withdrawals {
		if w.UserID != userID || w.Currency != currency {
			continue
		}
		if w.Status == domain.WithdrawalPending || w.Status == domain.WithdrawalReviewing {
			sum = sum.Add(w.Amount)
		}
	}
	return sum, nil
}

// List returns matching requests newest first.
func (r *WithdrawalRepository) List(_ context.Context, p ports.WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error) {
	r.s.mu.RLock()
	var matched []domain.WithdrawalRequest
	for _, w := range r.s.withdrawals {
		if p.UserID != nil && w.UserID != *p.UserID {
			continue
		}
		if p.Status != nil && w.Status != *p.Status {
			continue
		}
		matched = append(matched, w)
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	start, end := pageBounds(len(matched), p.Page, p.PageSize)
	return matched[start:end], int64(len(matched)), nil
}
