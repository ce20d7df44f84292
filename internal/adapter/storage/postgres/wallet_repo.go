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

const walletColumns = `user_id, balance_btc, escrow_btc, balance_xmr, escrow_xmr,
		withdrawal_pin_hash, second_factor_enc, daily_limit_btc, daily_limit_xmr, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Get fetches a wallet by owner (without locking).
func (r *WalletRepo) Get(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// CreateIfMissing inserts an empty wallet unless the user already has one.
func (r *WalletRepo) CreateIfMissing(ctx context.Context, userID uuid.UUID, now time.Time) error {
	query := `INSERT INTO wallets (user_id, created_at, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, userID, now, now); err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// LockForUpdate fetches wallets with pessimistic locking, in ascending owner
// order so concurrent multi-wallet transactions cannot deadlock.
// This MUST be called within a transaction.
func (r *WalletRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE user_id = ANY($1::uuid[]) ORDER BY user_id FOR UPDATE`

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		return nil, lockError("lock wallets", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*domain.Wallet, len(userIDs))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, lockError("scan wallet", err)
		}
		out[w.UserID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, lockError("lock wallets", err)
	}
	return out, nil
}

// Update writes balances and security settings within a transaction.
func (r *WalletRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `UPDATE wallets SET balance_btc = $1, escrow_btc = $2, balance_xmr = $3, escrow_xmr = $4,
		withdrawal_pin_hash = $5, second_factor_enc = $6, daily_limit_btc = $7, daily_limit_xmr = $8, updated_at = $9
		WHERE user_id = $10`

	tag, err := tx.Exec(ctx, query,
		w.BalanceBTC, w.EscrowBTC, w.BalanceXMR, w.EscrowXMR,
		w.WithdrawalPINHash, w.SecondFactorEnc, w.DailyLimitBTC, w.DailyLimitXMR,
		w.UpdatedAt, w.UserID,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.UserID)
	}
	return nil
}

// ListIDs pages wallet owners in ascending order.
func (r *WalletRepo) ListIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM wallets WHERE user_id > $1 ORDER BY user_id LIMIT $2`

	rows, err := r.pool.Query(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet ids: %w", err)
	}
	return ids, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.UserID, &w.BalanceBTC, &w.EscrowBTC, &w.BalanceXMR, &w.EscrowXMR,
		&w.WithdrawalPINHash, &w.SecondFactorEnc, &w.DailyLimitBTC, &w.DailyLimitXMR,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}
