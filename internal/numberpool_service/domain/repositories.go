package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PoolEntryRepository defines persistence for pool entries.
//
// All Set*/Claim*/Recycle methods are conditional single-row updates: the write
// only lands if the row's current status (and owner, where relevant) still
// matches the expected transition source. They return false when zero rows were
// affected, which callers treat as a lost race, never as corruption.
type PoolEntryRepository interface {
	Create(ctx context.Context, entry *PoolEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*PoolEntry, error)

	// OldestAvailable returns up to limit available entries in the region,
	// oldest first (FIFO keeps long-idle numbers from starving).
	OldestAvailable(ctx context.Context, region string, limit int) ([]*PoolEntry, error)

	ClaimReserved(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, reservedUntil time.Time) (bool, error)
	SetAssigned(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error)
	SetReleased(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error)
	SetAvailable(ctx context.Context, id uuid.UUID) (bool, error)

	// SetExternalVoiceID persists the import gateway's identifier, write-once.
	SetExternalVoiceID(ctx context.Context, id uuid.UUID, externalID string) error

	FindReservedByTenant(ctx context.Context, tenantID uuid.UUID) (*PoolEntry, error)
	FindAssignedByTenant(ctx context.Context, tenantID uuid.UUID) (*PoolEntry, error)

	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*PoolEntry, error)
	ReleaseExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	RecyclableEntries(ctx context.Context, cutoff time.Time, limit int) ([]*PoolEntry, error)
	Recycle(ctx context.Context, id uuid.UUID) (bool, error)

	// Stats aggregates entry counts; region narrows the result when non-empty.
	Stats(ctx context.Context, region string) (*PoolStats, error)
}

// AssignmentEventRepository persists append-only audit events.
type AssignmentEventRepository interface {
	Append(ctx context.Context, event *AssignmentEvent) error
}
