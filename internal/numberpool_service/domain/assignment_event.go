package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentAction identifies the pool entry transition that produced an event.
type AssignmentAction string

const (
	ActionReserved  AssignmentAction = "reserved"
	ActionAssigned  AssignmentAction = "assigned"
	ActionReleased  AssignmentAction = "released"
	ActionCancelled AssignmentAction = "cancelled"
)

// AssignmentEvent is an append-only audit record of a pool entry transition.
// Events are never mutated or deleted; they exist for forensics.
type AssignmentEvent struct {
	ID        uuid.UUID        `json:"id"`
	EntryID   uuid.UUID        `json:"entry_id"`
	TenantID  uuid.NullUUID    `json:"tenant_id,omitempty"` // Null for sweep-driven transitions with no owner
	Action    AssignmentAction `json:"action"`
	Reason    string           `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewAssignmentEvent creates an audit record for an entry transition.
func NewAssignmentEvent(entryID uuid.UUID, tenantID uuid.NullUUID, action AssignmentAction, reason string) *AssignmentEvent {
	return &AssignmentEvent{
		ID:        uuid.New(),
		EntryID:   entryID,
		TenantID:  tenantID,
		Action:    action,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}
