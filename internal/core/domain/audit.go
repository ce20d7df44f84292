package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionDeposit            AuditAction = "DEPOSIT"
	AuditActionDeduct             AuditAction = "DEDUCT"
	AuditActionEscrowLock         AuditAction = "ESCROW_LOCK"
	AuditActionEscrowRelease      AuditAction = "ESCROW_RELEASE"
	AuditActionAdjustment         AuditAction = "ADJUSTMENT"
	AuditActionSecurityUpdate     AuditAction = "SECURITY_UPDATE"
	AuditActionOrderTransition    AuditAction = "ORDER_TRANSITION"
	AuditActionWithdrawalSubmit   AuditAction = "WITHDRAWAL_SUBMIT"
	AuditActionWithdrawalDecision AuditAction = "WITHDRAWAL_DECISION"
	AuditActionReconcileFix       AuditAction = "RECONCILE_FIX"
	AuditActionReconcileResolve   AuditAction = "RECONCILE_RESOLVE"
	AuditActionAccessDenied       AuditAction = "ACCESS_DENIED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Actor        string      `json:"actor,omitempty"` // operator or service subject
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time   `json:"created_at"`
}
