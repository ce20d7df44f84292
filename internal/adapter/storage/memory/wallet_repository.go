package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepository implements ports.WalletRepository.
type WalletRepository struct {
	s *Store
}

func (r *WalletRepository) Get(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepository) CreateIfMissing(_ context.Context, userID uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.wallets[userID]; !ok {
		r.s.wallets[userID] = *domain.NewWallet(userID, now)
	}
	return nil
}

// LockForUpdate locks in ascending byte order of the ids, matching the
// ORDER BY of the Postgres adapter.
func (r *WalletRepository) LockForUpdate(ctx context.Context, tx pgx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	t, err := txFrom(tx)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(userIDs))
	copy(ids, userIDs)
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	out := make(map[uuid.UUID]*domain.Wallet, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		if err := t.lock(ctx, "wallet:"+id.String()); err != nil {
			return nil, err
		}
		if w, ok := t.wallets[id]; ok {
			out[id] = &w
			continue
		}
		r.s.mu.RLock()
		w, ok := r.s.wallets[id]
		r.s.mu.RUnlock()
		if ok {
			out[id] = &w
		}
	}
	return out, nil
}

func (r *WalletRepository) Update(_ context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	t, err := txFrom(tx)
	if err != nil {
		return err
	}
	w := *wallet
	if t.wallets == nil {
		t.wallets = map[uuid.UUID]domain.Wallet{}
	}
	t.wallets[w.UserID] = w
	t.stage(func() { r.s.wallets[w.UserID] = w })
	return nil
}

func (r *WalletRepository) ListIDs(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.s.wallets))
	for id := range r.s.wallets {
		if bytes.Compare(id[:], after[:]) > 0 {
			ids = append(ids, id)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
