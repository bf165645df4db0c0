package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yomariano/numberpool-service/internal/provisioning_service/domain"
)

const queueItemColumns = `id, tenant_id, plan_id, region, numbers_requested, status, attempts, next_retry_at, last_attempt_at, error_message, result, created_at, updated_at`

type PgQueueItemRepository struct {
	db     PgxPool
	logger *slog.Logger
}

func NewPgQueueItemRepository(db PgxPool, logger *slog.Logger) *PgQueueItemRepository {
	return &PgQueueItemRepository{db: db, logger: logger.With("component", "queue_item_repository_pg")}
}

func (r *PgQueueItemRepository) Create(ctx context.Context, item *domain.QueueItem) error {
	query := `
		INSERT INTO provisioning_queue_items (id, tenant_id, plan_id, region, numbers_requested, status, attempts, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		item.ID, item.TenantID, item.PlanID, item.Region, item.NumbersRequested,
		item.Status, item.Attempts, item.NextRetryAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating queue item", "error", err, "tenant_id", item.TenantID)
		return fmt.Errorf("creating queue item: %w", err)
	}
	return nil
}

func (r *PgQueueItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM provisioning_queue_items WHERE id = $1`
	item, err := r.scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting queue item by ID", "error", err, "item_id", id)
		return nil, err
	}
	return item, nil
}

// AcquireDueItems selects and claims due items in one statement. SKIP LOCKED
// keeps concurrent drainers (should the lease ever be split) from double
// processing the same item.
func (r *PgQueueItemRepository) AcquireDueItems(ctx context.Context, dueTime time.Time, limit int) ([]*domain.QueueItem, error) {
	query := `
		WITH due_item_ids AS (
			SELECT id
			FROM provisioning_queue_items
			WHERE (status = $1 OR status = $2) AND attempts < $3 AND next_retry_at <= $4
			ORDER BY next_retry_at ASC, created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		UPDATE provisioning_queue_items qi
		SET status = $6, last_attempt_at = $7, updated_at = $7
		FROM due_item_ids di
		WHERE qi.id = di.id
		RETURNING qi.id, qi.tenant_id, qi.plan_id, qi.region, qi.numbers_requested, qi.status, qi.attempts, qi.next_retry_at, qi.last_attempt_at, qi.error_message, qi.result, qi.created_at, qi.updated_at
	`
	now := time.Now().UTC()
	rows, err := r.db.Query(ctx, query,
		domain.StatusPending, domain.StatusFailed, domain.MaxAttempts, dueTime,
		limit, domain.StatusProcessing, now,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error acquiring due queue items", "error", err)
		return nil, err
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		item := &domain.QueueItem{}
		if err := r.scanItemFields(rows, item); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning acquired queue item", "error", err)
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, domain.ErrNoDueItems
	}
	return items, nil
}

func (r *PgQueueItemRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	query := `
		UPDATE provisioning_queue_items
		SET status = $1, result = $2, error_message = NULL, updated_at = $3
		WHERE id = $4
	`
	return r.exec(ctx, query, id, domain.StatusCompleted, result, time.Now().UTC(), id)
}

func (r *PgQueueItemRepository) MarkPartial(ctx context.Context, id uuid.UUID, attempts int, result json.RawMessage, errorMessage string) error {
	query := `
		UPDATE provisioning_queue_items
		SET status = $1, attempts = $2, result = $3, error_message = $4, updated_at = $5
		WHERE id = $6
	`
	return r.exec(ctx, query, id, domain.StatusPartial, attempts, result, errorMessage, time.Now().UTC(), id)
}

func (r *PgQueueItemRepository) RescheduleRemainder(ctx context.Context, id uuid.UUID, remaining int, attempts int, nextRetryAt time.Time, result json.RawMessage) error {
	query := `
		UPDATE provisioning_queue_items
		SET status = $1, numbers_requested = $2, attempts = $3, next_retry_at = $4, result = $5, updated_at = $6
		WHERE id = $7
	`
	return r.exec(ctx, query, id, domain.StatusPending, remaining, attempts, nextRetryAt, result, time.Now().UTC(), id)
}

func (r *PgQueueItemRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time, errorMessage string) error {
	query := `
		UPDATE provisioning_queue_items
		SET status = $1, attempts = $2, next_retry_at = $3, error_message = $4, updated_at = $5
		WHERE id = $6
	`
	return r.exec(ctx, query, id, domain.StatusFailed, attempts, nextRetryAt, errorMessage, time.Now().UTC(), id)
}

func (r *PgQueueItemRepository) MarkExhausted(ctx context.Context, id uuid.UUID, attempts int, errorMessage string) error {
	query := `
		UPDATE provisioning_queue_items
		SET status = $1, attempts = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`
	return r.exec(ctx, query, id, domain.StatusMaxAttemptsReached, attempts, errorMessage, time.Now().UTC(), id)
}

func (r *PgQueueItemRepository) exec(ctx context.Context, query string, itemID uuid.UUID, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating queue item", "error", err, "item_id", itemID)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Queue item not found for update", "item_id", itemID)
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgQueueItemRepository) scanItem(row pgx.Row) (*domain.QueueItem, error) {
	item := &domain.QueueItem{}
	if err := r.scanItemFields(row, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PgQueueItemRepository) scanItemFields(row pgx.Row, item *domain.QueueItem) error {
	var result []byte
	err := row.Scan(
		&item.ID, &item.TenantID, &item.PlanID, &item.Region, &item.NumbersRequested,
		&item.Status, &item.Attempts, &item.NextRetryAt, &item.LastAttemptAt,
		&item.ErrorMessage, &result, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	item.Result = json.RawMessage(result)
	return nil
}
