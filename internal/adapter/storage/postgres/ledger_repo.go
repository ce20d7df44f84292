package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `id, user_id, entry_type, amount, currency, balance_before, balance_after,
		escrow_before, escrow_after, reference, metadata, integrity_hash, created_at`

// LedgerRepo implements ports.LedgerRepository. Rows are insert-only.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Insert appends an entry within a database transaction.
func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("marshal ledger metadata: %w", err)
		}
	}

	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.UserID, string(e.Type), e.Amount, string(e.Currency),
		e.BalanceBefore, e.BalanceAfter, e.EscrowBefore, e.EscrowAfter,
		e.Reference, metadata, e.IntegrityHash, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// SumByUser sums amounts of the given types. Nil bounds are open; set bounds
// are inclusive.
func (r *LedgerRepo) SumByUser(ctx context.Context, userID uuid.UUID, currency domain.Currency, types []domain.EntryType, from, to *time.Time) (decimal.Decimal, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	conditions := []string{"user_id = $1", "currency = $2", "entry_type = ANY($3::text[])"}
	args := []any{userID, string(currency), names}
	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE ` + strings.Join(conditions, " AND ")

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

// Totals sums every entry type for one user and currency.
func (r *LedgerRepo) Totals(ctx context.Context, userID uuid.UUID, currency domain.Currency) (domain.LedgerTotals, error) {
	query := `SELECT entry_type, COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE user_id = $1 AND currency = $2 GROUP BY entry_type`

	rows, err := r.pool.Query(ctx, query, userID, string(currency))
	if err != nil {
		return nil, fmt.Errorf("ledger totals: %w", err)
	}
	defer rows.Close()

	totals := domain.LedgerTotals{}
	for rows.Next() {
		var (
			typ string
			sum decimal.Decimal
		)
		if err := rows.Scan(&typ, &sum); err != nil {
			return nil, fmt.Errorf("scan ledger total: %w", err)
		}
		totals[domain.EntryType(typ)] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger totals: %w", err)
	}
	return totals, nil
}

// List fetches entries with filtering and pagination, newest first.
func (r *LedgerRepo) List(ctx context.Context, params ports.LedgerListParams) ([]domain.LedgerEntry, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, params.UserID)
	argIdx++

	if params.Currency != nil {
		conditions = append(conditions, fmt.Sprintf("currency = $%d", argIdx))
		args = append(args, string(*params.Currency))
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("entry_type = $%d", argIdx))
		args = append(args, string(*params.Type))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM ledger_entries %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM ledger_entries %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		ledgerColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	entries, err := r.query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListByUser returns all entries of a user, oldest first.
func (r *LedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE user_id = $1 ORDER BY created_at, id`
	return r.query(ctx, query, userID)
}

func (r *LedgerRepo) query(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e             domain.LedgerEntry
			typ, currency string
			metadata      []byte
		)
		err := rows.Scan(
			&e.ID, &e.UserID, &typ, &e.Amount, &currency,
			&e.BalanceBefore, &e.BalanceAfter, &e.EscrowBefore, &e.EscrowAfter,
			&e.Reference, &metadata, &e.IntegrityHash, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		e.Type = domain.EntryType(typ)
		e.Currency = domain.Currency(currency)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode ledger metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}
