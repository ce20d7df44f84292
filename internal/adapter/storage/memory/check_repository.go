package memory

import (
	"context"
	"errors"
	"sort"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
)

// ErrCheckNotFound is returned by MarkResolved for an unknown check.
var ErrCheckNotFound = errors.New("memory: balance check not found")

// BalanceCheckRepository implements ports.BalanceCheckRepository.
type BalanceCheckRepository struct {
	s *Store
}

func (r *BalanceCheckRepository) Create(_ context.Context, check *domain.BalanceCheck) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *check
	c.Lines = append([]domain.BalanceLine(nil), check.Lines...)
	r.s.checks[c.ID] = c
	return nil
}

func (r *BalanceCheckRepository) Get(_ context.Context, id uuid.UUID) (*domain.BalanceCheck, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.checks[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *BalanceCheckRepository) MarkResolved(_ context.Context, check *domain.BalanceCheck) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.checks[check.ID]
	if !ok {
		return ErrCheckNotFound
	}
	c.Resolved = check.Resolved
	c.ResolvedBy = check.ResolvedBy
	c.ResolutionNote = check.ResolutionNote
	c.ResolvedAt = check.ResolvedAt
	r.s.checks[c.ID] = c
	return nil
}

// List returns matching checks newest first.
func (r *BalanceCheckRepository) List(_ context.Context, p ports.CheckListParams) ([]domain.BalanceCheck, int64, error) {
	r.s.mu.RLock()
	var matched []domain.BalanceCheck
	for _, c := range r.s.checks {
		if p.UserID != nil && c.UserID != *p.UserID {
			continue
		}
		if p.OnlyDiscrepancy && !c.DiscrepancyFound {
			continue
		}
		if p.OnlyUnresolved && c.Resolved {
			continue
		}
		matched = append(matched, c)
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	start, end := pageBounds(len(matched), p.Page, p.PageSize)
	return matched[start:end], int64(len(matched)), nil
}
