package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QueueItemRepository defines persistence for provisioning queue items.
type QueueItemRepository interface {
	Create(ctx context.Context, item *QueueItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueItem, error)

	// AcquireDueItems selects up to limit items with status pending or failed,
	// attempts below MaxAttempts and next_retry_at due, oldest first, flips
	// them to processing and stamps last_attempt_at. Returns ErrNoDueItems
	// when nothing is due.
	AcquireDueItems(ctx context.Context, dueTime time.Time, limit int) ([]*QueueItem, error)

	MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	// MarkPartial terminates an item whose retries are exhausted with a partial yield.
	MarkPartial(ctx context.Context, id uuid.UUID, attempts int, result json.RawMessage, errorMessage string) error
	// RescheduleRemainder shrinks numbers_requested to the unprovisioned
	// remainder and re-queues the item as pending.
	RescheduleRemainder(ctx context.Context, id uuid.UUID, remaining int, attempts int, nextRetryAt time.Time, result json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time, errorMessage string) error
	// MarkExhausted terminates an item that failed on every attempt.
	MarkExhausted(ctx context.Context, id uuid.UUID, attempts int, errorMessage string) error
}

// DrainLeaseRepository guards the drain loop with a durable singleton lease,
// so at most one drainer is active cluster-wide. Lease expiry doubles as
// crash recovery.
type DrainLeaseRepository interface {
	// Acquire takes the lease for owner if it is unheld, expired, or already
	// held by the same owner. Returns false when another owner holds it.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}
