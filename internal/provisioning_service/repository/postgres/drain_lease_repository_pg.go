package postgres

import (
	"context"
	"log/slog"
	"time"
)

// PgDrainLeaseRepository implements the singleton drain lease over a one-row
// table. The conditional update is the mutual exclusion primitive: the lease
// only changes hands when it is unheld, expired, or re-acquired by its
// current owner.
type PgDrainLeaseRepository struct {
	db     PgxPool
	logger *slog.Logger
}

func NewPgDrainLeaseRepository(db PgxPool, logger *slog.Logger) *PgDrainLeaseRepository {
	return &PgDrainLeaseRepository{db: db, logger: logger.With("component", "drain_lease_repository_pg")}
}

func (r *PgDrainLeaseRepository) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE provisioning_drain_lease
		SET owner = $1, expires_at = $2
		WHERE id = 1 AND (owner IS NULL OR owner = $1 OR expires_at < $3)
	`
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, query, owner, now.Add(ttl), now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error acquiring drain lease", "error", err, "owner", owner)
		return false, err
	}
	acquired := tag.RowsAffected() > 0
	if !acquired {
		r.logger.DebugContext(ctx, "Drain lease held by another owner", "owner", owner)
	}
	return acquired, nil
}

func (r *PgDrainLeaseRepository) Release(ctx context.Context, owner string) error {
	// Only the current owner may release; an expired lease taken over by
	// another instance is left alone.
	query := `
		UPDATE provisioning_drain_lease
		SET owner = NULL, expires_at = NULL
		WHERE id = 1 AND owner = $1
	`
	_, err := r.db.Exec(ctx, query, owner)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error releasing drain lease", "error", err, "owner", owner)
		return err
	}
	return nil
}
