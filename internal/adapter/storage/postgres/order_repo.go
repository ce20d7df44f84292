package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateOrder is returned when an order id is registered twice.
var ErrDuplicateOrder = errors.New("postgres: order already exists")

const orderColumns = `id, buyer_id, vendor_id, status, currency, total, escrow_amount,
		escrow_released, auto_finalize_at, created_at, updated_at`

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts the escrow slice of a new order.
func (r *OrderRepo) Create(ctx context.Context, o *domain.EscrowedOrder) error {
	query := `INSERT INTO escrow_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.BuyerID, o.VendorID, string(o.Status), string(o.Currency), o.Total, o.EscrowAmount,
		o.EscrowReleased, o.AutoFinalizeAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Get fetches an order (without locking).
func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*domain.EscrowedOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM escrow_orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetForUpdate fetches an order with pessimistic locking.
// This MUST be called within a transaction, before any wallet lock.
func (r *OrderRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.EscrowedOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM escrow_orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockError("get order for update", err)
	}
	return o, nil
}

// Update writes the order state within a transaction.
func (r *OrderRepo) Update(ctx context.Context, tx pgx.Tx, o *domain.EscrowedOrder) error {
	query := `UPDATE escrow_orders SET status = $1, escrow_amount = $2, escrow_released = $3,
		auto_finalize_at = $4, updated_at = $5 WHERE id = $6`

	tag, err := tx.Exec(ctx, query,
		string(o.Status), o.EscrowAmount, o.EscrowReleased, o.AutoFinalizeAt, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", o.ID)
	}
	return nil
}

// ListDueForFinalize returns shipped orders whose grace period has passed,
// keyed by id so callers can page past orders that fail to release.
func (r *OrderRepo) ListDueForFinalize(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM escrow_orders
		WHERE status = $1 AND auto_finalize_at <= $2 AND id > $3
		ORDER BY id LIMIT $4`

	rows, err := r.pool.Query(ctx, query, string(domain.OrderShipped), now, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list due orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due orders: %w", err)
	}
	return ids, nil
}

func scanOrder(row pgx.Row) (*domain.EscrowedOrder, error) {
	var (
		o                domain.EscrowedOrder
		status, currency string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.VendorID, &status, &currency, &o.Total, &o.EscrowAmount,
		&o.EscrowReleased, &o.AutoFinalizeAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.Currency = domain.Currency(currency)
	return &o, nil
}
