package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
)

const poolEntryColumns = `id, phone_number, region, provider_tag, status, owner, reserved_at, reserved_until, assigned_at, external_voice_id, created_at, updated_at`

type PgPoolEntryRepository struct {
	db     PgxPool
	logger *slog.Logger
}

func NewPgPoolEntryRepository(db PgxPool, logger *slog.Logger) *PgPoolEntryRepository {
	return &PgPoolEntryRepository{db: db, logger: logger.With("component", "pool_entry_repository_pg")}
}

func (r *PgPoolEntryRepository) Create(ctx context.Context, entry *domain.PoolEntry) error {
	query := `
		INSERT INTO number_pool_entries (id, phone_number, region, provider_tag, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.PhoneNumber, entry.Region, entry.ProviderTag, entry.Status,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating pool entry", "error", err, "phone_number", entry.PhoneNumber)
		return fmt.Errorf("creating pool entry: %w", err)
	}
	return nil
}

func (r *PgPoolEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PoolEntry, error) {
	query := `SELECT ` + poolEntryColumns + ` FROM number_pool_entries WHERE id = $1`
	entry, err := r.scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting pool entry by ID", "error", err, "entry_id", id)
		return nil, err
	}
	return entry, nil
}

func (r *PgPoolEntryRepository) OldestAvailable(ctx context.Context, region string, limit int) ([]*domain.PoolEntry, error) {
	query := `
		SELECT ` + poolEntryColumns + `
		FROM number_pool_entries
		WHERE status = $1 AND region = $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, domain.StatusAvailable, region, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error selecting available pool entries", "error", err, "region", region)
		return nil, err
	}
	defer rows.Close()
	return r.scanEntries(rows)
}

// ClaimReserved performs the atomic conditional claim: the row only flips to
// reserved if it is still available at write time. A false return means a
// concurrent caller won the race.
func (r *PgPoolEntryRepository) ClaimReserved(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, reservedUntil time.Time) (bool, error) {
	query := `
		UPDATE number_pool_entries
		SET status = $1, owner = $2, reserved_at = $3, reserved_until = $4, updated_at = $3
		WHERE id = $5 AND status = $6
	`
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, query, domain.StatusReserved, tenantID, now, reservedUntil, id, domain.StatusAvailable)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming pool entry", "error", err, "entry_id", id)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgPoolEntryRepository) SetAssigned(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error) {
	query := `
		UPDATE number_pool_entries
		SET status = $1, assigned_at = $2, reserved_at = NULL, reserved_until = NULL, updated_at = $2
		WHERE id = $3 AND status = $4 AND owner = $5
	`
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, query, domain.StatusAssigned, now, id, domain.StatusReserved, tenantID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error assigning pool entry", "error", err, "entry_id", id)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgPoolEntryRepository) SetReleased(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error) {
	query := `
		UPDATE number_pool_entries
		SET status = $1, owner = NULL, reserved_at = NULL, reserved_until = NULL, assigned_at = NULL, updated_at = $2
		WHERE id = $3 AND status = $4 AND owner = $5
	`
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, query, domain.StatusReleased, now, id, domain.StatusAssigned, tenantID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error releasing pool entry", "error", err, "entry_id", id)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgPoolEntryRepository) SetAvailable(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE number_pool_entries
		SET status = $1, owner = NULL, reserved_at = NULL, reserved_until = NULL, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, query, domain.StatusAvailable, now, id, domain.StatusReserved)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error returning pool entry to available", "error", err, "entry_id", id)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgPoolEntryRepository) SetExternalVoiceID(ctx context.Context, id uuid.UUID, externalID string) error {
	// Write-once: a populated external_voice_id is never overwritten.
	query := `
		UPDATE number_pool_entries
		SET external_voice_id = $1, updated_at = $2
		WHERE id = $3 AND external_voice_id IS NULL
	`
	tag, err := r.db.Exec(ctx, query, externalID, time.Now().UTC(), id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error persisting external voice ID", "error", err, "entry_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "External voice ID already set, skipping", "entry_id", id)
	}
	return nil
}

func (r *PgPoolEntryRepository) FindReservedByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.PoolEntry, error) {
	query := `
		SELECT ` + poolEntryColumns + `
		FROM number_pool_entries
		WHERE status = $1 AND owner = $2
		ORDER BY reserved_at ASC
		LIMIT 1
	`
	entry, err := r.scanEntry(r.db.QueryRow(ctx, query, domain.StatusReserved, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error finding reserved entry for tenant", "error", err, "tenant_id", tenantID)
		return nil, err
	}
	return entry, nil
}

func (r *PgPoolEntryRepository) FindAssignedByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.PoolEntry, error) {
	query := `
		SELECT ` + poolEntryColumns + `
		FROM number_pool_entries
		WHERE status = $1 AND owner = $2
		ORDER BY assigned_at ASC
		LIMIT 1
	`
	entry, err := r.scanEntry(r.db.QueryRow(ctx, query, domain.StatusAssigned, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error finding assigned entry for tenant", "error", err, "tenant_id", tenantID)
		return nil, err
	}
	return entry, nil
}

func (r *PgPoolEntryRepository) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*domain.PoolEntry, error) {
	query := `
		SELECT ` + poolEntryColumns + `
		FROM number_pool_entries
		WHERE status = $1 AND reserved_until < $2
		ORDER BY reserved_until ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, domain.StatusReserved, now, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error selecting expired reservations", "error", err)
		return nil, err
	}
	defer rows.Close()
	return r.scanEntries(rows)
}

// ReleaseExpired returns an expired reservation to the available pool. The
// deadline is re-checked in the WHERE clause so a reservation renewed between
// selection and update is left alone.
func (r *PgPoolEntryRepository) ReleaseExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE number_pool_entries
		SET status = $1, owner = NULL, reserved_at = NULL, reserved_until = NULL, updated_at = $2
		WHERE id = $3 AND status = $4 AND reserved_until < $2
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusAvailable, now, id, domain.StatusReserved)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error releasing expired reservation", "error", err, "entry_id", id)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgPoolEntryRepository) RecyclableEntries(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PoolEntry, error) {
	query := `
		SELECT ` + poolEntryColumns + `
		FROM number_pool_entries
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, domain.StatusReleased, cutoff, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error selecting recyclable entries", "error", err)
		return nil, err
	}
	defer rows.Close()
	return r.scanEntries(rows)
}

func (r *PgPoolEntryRepository) Recycle(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE number_pool_entries
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusAvailable, time.Now().UTC(), id, domain.StatusReleased)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error recycling pool entry", "error", err, "entry_id", id)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgPoolEntryRepository) Stats(ctx context.Context, region string) (*domain.PoolStats, error) {
	query := `SELECT region, status, COUNT(*) FROM number_pool_entries GROUP BY region, status`
	args := []any{}
	if region != "" {
		query = `SELECT region, status, COUNT(*) FROM number_pool_entries WHERE region = $1 GROUP BY region, status`
		args = append(args, region)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error aggregating pool stats", "error", err)
		return nil, err
	}
	defer rows.Close()

	stats := &domain.PoolStats{ByRegion: make(map[string]domain.RegionCounts)}
	for rows.Next() {
		var rowRegion string
		var status domain.EntryStatus
		var count int
		if err := rows.Scan(&rowRegion, &status, &count); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning pool stats row", "error", err)
			return nil, err
		}

		counts := stats.ByRegion[rowRegion]
		counts.Total += count
		stats.Total += count
		switch status {
		case domain.StatusAvailable:
			counts.Available += count
			stats.Available += count
		case domain.StatusReserved:
			counts.Reserved += count
			stats.Reserved += count
		case domain.StatusAssigned:
			counts.Assigned += count
			stats.Assigned += count
		case domain.StatusReleased:
			counts.Released += count
			stats.Released += count
		}
		stats.ByRegion[rowRegion] = counts
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *PgPoolEntryRepository) scanEntry(row pgx.Row) (*domain.PoolEntry, error) {
	entry := &domain.PoolEntry{}
	err := row.Scan(
		&entry.ID, &entry.PhoneNumber, &entry.Region, &entry.ProviderTag, &entry.Status,
		&entry.Owner, &entry.ReservedAt, &entry.ReservedUntil, &entry.AssignedAt,
		&entry.ExternalVoiceID, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *PgPoolEntryRepository) scanEntries(rows pgx.Rows) ([]*domain.PoolEntry, error) {
	var entries []*domain.PoolEntry
	for rows.Next() {
		entry := &domain.PoolEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.PhoneNumber, &entry.Region, &entry.ProviderTag, &entry.Status,
			&entry.Owner, &entry.ReservedAt, &entry.ReservedUntil, &entry.AssignedAt,
			&entry.ExternalVoiceID, &entry.CreatedAt, &entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
