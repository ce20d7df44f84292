package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
)

func testAuditEntry() *domain.AuditLog {
	return &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        "ops",
		Action:       domain.AuditActionWithdrawalDecision,
		ResourceType: "withdrawal",
		ResourceID:   uuid.NewString(),
		CreatedAt:    time.Now(),
	}
}

func TestAuditService_FansOutToRepoAndPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockAuditRepository(ctrl)
	publisher := mocks.NewMockAuditPublisher(ctrl)
	svc := NewAuditService(repo, publisher, newTestLogger())

	entry := testAuditEntry()
	repo.EXPECT().Create(gomock.Any(), entry).Return(nil)
	publisher.EXPECT().Publish(gomock.Any(), entry).Return(nil)

	svc.Log(context.Background(), entry)
	svc.Flush()
}

func TestAuditService_PublishesEvenWhenPersistFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockAuditRepository(ctrl)
	publisher := mocks.NewMockAuditPublisher(ctrl)
	svc := NewAuditService(repo, publisher, newTestLogger())

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down")).Times(3)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(3)

	for i := 0; i < 3; i++ {
		svc.Log(context.Background(), testAuditEntry())
	}
	svc.Flush()
}

func TestAuditService_LogOnly(t *testing.T) {
	svc := NewAuditService(nil, nil, newTestLogger())
	svc.Log(context.Background(), testAuditEntry())
	svc.Flush()
}
