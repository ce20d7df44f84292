package memory

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateOrder is returned when an order id is registered twice.
var ErrDuplicateOrder = errors.New("memory: order already exists")

// OrderRepository implements ports.OrderRepository.
type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(_ context.Context, order *domain.EscrowedOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; ok {
		return ErrDuplicateOrder
	}
	r.s.orders[order.ID] = *order
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id uuid.UUID) (*domain.EscrowedOrder, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *OrderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.EscrowedOrder, error) {
	t, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "order:"+id.String()); err != nil {
		return nil, err
	}
	if o, ok := t.orders[id]; ok {
		return &o, nil
	}
	return r.Get(ctx, id)
}

func (r *OrderRepository) Update(_ context.Context, tx pgx.Tx, order *domain.EscrowedOrder) error {
	t, err := txFrom(tx)
	if err != nil {
		return err
	}
	o := *order
	if t.orders == nil {
		t.orders = map[uuid.UUID]domain.EscrowedOrder{}
	}
	t.orders[o.ID] = o
	t.stage(func() { r.s.orders[o.ID] = o })
	return nil
}

func (r *OrderRepository) ListDueForFinalize(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	var ids []uuid.UUID
	for _, o := range r.s.orders {
		if o.Status != domain.OrderShipped || o.AutoFinalizeAt == nil || o.AutoFinalizeAt.After(now) {
			continue
		}
		if bytes.Compare(o.ID[:], after[:]) > 0 {
			ids = append(ids, o.ID)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
