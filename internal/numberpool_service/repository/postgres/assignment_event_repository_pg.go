package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
)

type PgAssignmentEventRepository struct {
	db     PgxPool
	logger *slog.Logger
}

func NewPgAssignmentEventRepository(db PgxPool, logger *slog.Logger) *PgAssignmentEventRepository {
	return &PgAssignmentEventRepository{db: db, logger: logger.With("component", "assignment_event_repository_pg")}
}

// Append inserts an audit event. Events are write-once; there is no update or delete path.
func (r *PgAssignmentEventRepository) Append(ctx context.Context, event *domain.AssignmentEvent) error {
	query := `
		INSERT INTO number_assignment_events (id, entry_id, tenant_id, action, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID, event.EntryID, event.TenantID, event.Action, event.Reason, event.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error appending assignment event", "error", err, "entry_id", event.EntryID, "action", event.Action)
		return fmt.Errorf("appending assignment event: %w", err)
	}
	return nil
}
