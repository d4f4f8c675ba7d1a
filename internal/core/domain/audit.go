package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegister         AuditAction = "REGISTER"
	AuditActionLogin            AuditAction = "LOGIN"
	AuditActionCancelOrder      AuditAction = "CANCEL_ORDER"
	AuditActionOpenDispute      AuditAction = "OPEN_DISPUTE"
	AuditActionSyncOrder        AuditAction = "SYNC_ORDER"
	AuditActionSyncTransactions AuditAction = "SYNC_TRANSACTIONS"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ProfileID    *string     `json:"profile_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
