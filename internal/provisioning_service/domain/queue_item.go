package domain

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ItemStatus represents the status of a provisioning queue item.
type ItemStatus string

const (
	StatusPending            ItemStatus = "pending"
	StatusProcessing         ItemStatus = "processing" // Picked up by the drain worker
	StatusCompleted          ItemStatus = "completed"  // All requested numbers provisioned
	StatusPartial            ItemStatus = "partial"    // Terminal: retries exhausted with a partial yield
	StatusFailed             ItemStatus = "failed"     // Will be retried at next_retry_at
	StatusMaxAttemptsReached ItemStatus = "max_attempts_reached" // Terminal: needs operator intervention
)

// MaxAttempts is the retry budget per queue item. Once attempts reaches it the
// item is terminal and never drained again.
const MaxAttempts = 5

// backoffSchedule is the fixed retry ladder: 1m, 5m, 15m, 1h, 2h.
var backoffSchedule = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
	3600 * time.Second,
	7200 * time.Second,
}

// Backoff returns the delay before the next retry for the given attempt count
// (1-based). Attempts past the ladder clamp to the last rung.
func Backoff(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}

// QueueItem is a durable unit of work: "give tenant T up to N numbers for plan P".
// NumbersRequested shrinks on partial success so only the shortfall is retried.
// Items are never deleted; terminal items are kept for audit and support.
type QueueItem struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	PlanID           string          `json:"plan_id"`
	Region           string          `json:"region"`
	NumbersRequested int             `json:"numbers_requested"`
	Status           ItemStatus      `json:"status"`
	Attempts         int             `json:"attempts"`
	NextRetryAt      time.Time       `json:"next_retry_at"`
	LastAttemptAt    sql.NullTime    `json:"last_attempt_at,omitempty"`
	ErrorMessage     sql.NullString  `json:"error_message,omitempty"`
	Result           json.RawMessage `json:"result,omitempty"` // Last outcome payload
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewQueueItem creates a pending queue item due immediately.
func NewQueueItem(id uuid.UUID, tenantID uuid.UUID, planID string, region string, numbersRequested int) *QueueItem {
	now := time.Now().UTC()
	return &QueueItem{
		ID:               id,
		TenantID:         tenantID,
		PlanID:           planID,
		Region:           region,
		NumbersRequested: numbersRequested,
		Status:           StatusPending,
		Attempts:         0,
		NextRetryAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ProvisionResult is the outcome payload stored on a queue item after an attempt.
type ProvisionResult struct {
	Requested   int `json:"requested"`
	Provisioned int `json:"provisioned"`
}
