package memory

import (
	"context"

	"custody-ledger/internal/core/domain"
)

// AuditRepository implements ports.AuditRepository.
type AuditRepository struct {
	s *Store
}

func (r *AuditRepository) Create(_ context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// All returns a copy of every recorded entry in insertion order.
func (r *AuditRepository) All() []domain.AuditLog {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.AuditLog(nil), r.s.audit...)
}
