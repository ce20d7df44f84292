package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const checkColumns = `id, pass_id, user_id, lines, discrepancy_found, max_severity, auto_corrected,
		resolved, resolved_by, resolution_note, resolved_at, created_at`

// BalanceCheckRepo implements ports.BalanceCheckRepository.
type BalanceCheckRepo struct {
	pool Pool
}

// NewBalanceCheckRepo creates a new BalanceCheckRepo.
func NewBalanceCheckRepo(pool Pool) *BalanceCheckRepo {
	return &BalanceCheckRepo{pool: pool}
}

// Create records a reconciliation result.
func (r *BalanceCheckRepo) Create(ctx context.Context, c *domain.BalanceCheck) error {
	lines, err := json.Marshal(c.Lines)
	if err != nil {
		return fmt.Errorf("marshal check lines: %w", err)
	}

	query := `INSERT INTO balance_checks (` + checkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.pool.Exec(ctx, query,
		c.ID, c.PassID, c.UserID, lines, c.DiscrepancyFound, string(c.MaxSeverity), c.AutoCorrected,
		c.Resolved, c.ResolvedBy, c.ResolutionNote, c.ResolvedAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert balance check: %w", err)
	}
	return nil
}

// Get fetches a balance check by id.
func (r *BalanceCheckRepo) Get(ctx context.Context, id uuid.UUID) (*domain.BalanceCheck, error) {
	query := `SELECT ` + checkColumns + ` FROM balance_checks WHERE id = $1`

	c, err := scanCheck(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance check: %w", err)
	}
	return c, nil
}

// MarkResolved writes only the resolution fields.
func (r *BalanceCheckRepo) MarkResolved(ctx context.Context, c *domain.BalanceCheck) error {
	query := `UPDATE balance_checks SET resolved = $1, resolved_by = $2, resolution_note = $3, resolved_at = $4
		WHERE id = $5`

	tag, err := r.pool.Exec(ctx, query, c.Resolved, c.ResolvedBy, c.ResolutionNote, c.ResolvedAt, c.ID)
	if err != nil {
		return fmt.Errorf("resolve balance check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("balance check not found: %s", c.ID)
	}
	return nil
}

// List fetches checks with filtering and pagination, newest first.
func (r *BalanceCheckRepo) List(ctx context.Context, params ports.CheckListParams) ([]domain.BalanceCheck, int64, error) {
	var conditions []string
	var args []any

	if params.UserID != nil {
		args = append(args, *params.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if params.OnlyDiscrepancy {
		conditions = append(conditions, "discrepancy_found")
	}
	if params.OnlyUnresolved {
		conditions = append(conditions, "NOT resolved")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM balance_checks "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count balance checks: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM balance_checks %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		checkColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list balance checks: %w", err)
	}
	defer rows.Close()

	var out []domain.BalanceCheck
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan balance check row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate balance check rows: %w", err)
	}
	return out, total, nil
}

func scanCheck(row pgx.Row) (*domain.BalanceCheck, error) {
	var (
		c        domain.BalanceCheck
		lines    []byte
		severity string
	)
	err := row.Scan(
		&c.ID, &c.PassID, &c.UserID, &lines, &c.DiscrepancyFound, &severity, &c.AutoCorrected,
		&c.Resolved, &c.ResolvedBy, &c.ResolutionNote, &c.ResolvedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.MaxSeverity = domain.Severity(severity)
	if err := json.Unmarshal(lines, &c.Lines); err != nil {
		return nil, fmt.Errorf("decode check lines: %w", err)
	}
	return &c, nil
}
