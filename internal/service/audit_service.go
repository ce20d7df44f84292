package service

import (
	"context"
	"sync"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

// AuditServiceImpl implements ports.AuditService.
type AuditServiceImpl struct {
	repo      ports.AuditRepository
	publisher ports.AuditPublisher
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger. If publisher is
// non-nil every entry is also streamed to it.
func NewAuditService(repo ports.AuditRepository, publisher ports.AuditPublisher, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, publisher: publisher, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *AuditServiceImpl) Log(_ context.Context, entry *domain.AuditLog) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info().
			Str("action", string(entry.Action)).
			Str("actor", entry.Actor).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Msg("audit")

		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()

		if s.repo != nil {
			if err := s.repo.Create(ctx, entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
			}
		}
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to publish audit log")
			}
		}
	}()
}

// Flush waits for in-flight entries. Called on shutdown.
func (s *AuditServiceImpl) Flush() {
	s.wg.Wait()
}
