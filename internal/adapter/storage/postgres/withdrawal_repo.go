package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const withdrawalColumns = `id, user_id, amount, currency, address, status, risk_score, risk_factors,
		manual_review_required, processed_by, processed_at, rejection_reason, tx_hash, created_at, updated_at`

// WithdrawalRepo implements ports.WithdrawalRepository.
type WithdrawalRepo struct {
	pool Pool
}

// NewWithdrawalRepo creates a new WithdrawalRepo.
func NewWithdrawalRepo(pool Pool) *WithdrawalRepo {
	return &WithdrawalRepo{pool: pool}
}

// Create inserts a withdrawal request within a transaction.
func (r *WithdrawalRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error {
	query := `INSERT INTO withdrawal_requests (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	factors := w.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	_, err := tx.Exec(ctx, query,
		w.ID, w.UserID, w.Amount, string(w.Currency), w.Address, string(w.Status), w.RiskScore, factors,
		w.ManualReviewRequired, w.ProcessedBy, w.ProcessedAt, w.RejectionReason, w.TxHash,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// Get fetches a withdrawal request (without locking).
func (r *WithdrawalRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1`

	w, err := scanWithdrawal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// GetForUpdate fetches a withdrawal request with pessimistic locking.
// This MUST be called within a transaction, before any wallet lock.
func (r *WithdrawalRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`

	w, err := scanWithdrawal(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, lockError("get withdrawal for update", err)
	}
	return w, nil
}

// Update writes the decision fields within a transaction.
func (r *WithdrawalRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.WithdrawalRequest) error {
	query := `UPDATE withdrawal_requests SET status = $1, processed_by = $2, processed_at = $3,
		rejection_reason = $4, tx_hash = $5, updated_at = $6 WHERE id = $7`

	tag, err := tx.Exec(ctx, query,
		string(w.Status), w.ProcessedBy, w.ProcessedAt, w.RejectionReason, w.TxHash, w.UpdatedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("withdrawal not found: %s", w.ID)
	}
	return nil
}

// CountSince counts the user's requests created in [since, until).
func (r *WithdrawalRepo) CountSince(ctx context.Context, userID uuid.UUID, since, until time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM withdrawal_requests WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`

	var n int
	if err := r.pool.QueryRow(ctx, query, userID, since, until).Scan(&n); err != nil {
		return 0, fmt.Errorf("count withdrawals: %w", err)
	}
	return n, nil
}

// CompletedAddresses lists distinct destinations of completed withdrawals.
func (r *WithdrawalRepo) CompletedAddresses(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `SELECT DISTINCT address FROM withdrawal_requests WHERE user_id = $1 AND status = $2 ORDER BY address`

	rows, err := r.pool.Query(ctx, query, userID, string(domain.WithdrawalCompleted))
	if err != nil {
		return nil, fmt.Errorf("list completed addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return out, nil
}

// SumOpen sums requests still awaiting a decision.
func (r *WithdrawalRepo) SumOpen(ctx context.Context, userID uuid.UUID, currency domain.Currency) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM withdrawal_requests
		WHERE user_id = $1 AND currency = $2 AND status IN ($3, $4)`

	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, query, userID, string(currency),
		string(domain.WithdrawalPending), string(domain.WithdrawalReviewing)).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum open withdrawals: %w", err)
	}
	return sum, nil
}

// List fetches withdrawal requests with filtering and pagination.
func (r *WithdrawalRepo) List(ctx context.Context, params ports.WithdrawalListParams) ([]domain.WithdrawalRequest, int64, error) {
	var conditions []string
	var args []any

	if params.UserID != nil {
		args = append(args, *params.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if params.Status != nil {
		args = append(args, string(*params.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM withdrawal_requests "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM withdrawal_requests %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		withdrawalColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan withdrawal row: %w", err)
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate withdrawal rows: %w", err)
	}
	return out, total, nil
}

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var (
		w                domain.WithdrawalRequest
		currency, status string
	)
	err := row.Scan(
		&w.ID, &w.UserID, &w.Amount, &currency, &w.Address, &status, &w.RiskScore, &w.RiskFactors,
		&w.ManualReviewRequired, &w.ProcessedBy, &w.ProcessedAt, &w.RejectionReason, &w.TxHash,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	w.Currency = domain.Currency(currency)
	w.Status = domain.WithdrawalStatus(status)
	return &w, nil
}
