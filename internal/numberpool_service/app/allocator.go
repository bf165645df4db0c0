package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/adapters/telephony"
	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
)

const (
	// Claim races are retried against the next-oldest candidate, bounded.
	maxClaimAttempts = 5
	sweepBatchSize   = 100
)

// AllocatorConfig holds allocator tuning knobs.
type AllocatorConfig struct {
	ReservationTTL time.Duration // Default hold duration for reservations
	ImportTimeout  time.Duration // Timeout around the import gateway call
}

// Allocator implements the number pool state machine: reserve, assign,
// release, cancel, the expiry and recycle sweeps, and stats aggregation.
type Allocator struct {
	entries   domain.PoolEntryRepository
	events    domain.AssignmentEventRepository
	gateway   telephony.ImportGateway
	publisher *EventPublisher
	logger    *slog.Logger
	config    AllocatorConfig
}

func NewAllocator(
	entries domain.PoolEntryRepository,
	events domain.AssignmentEventRepository,
	gateway telephony.ImportGateway,
	publisher *EventPublisher,
	logger *slog.Logger,
	config AllocatorConfig,
) *Allocator {
	return &Allocator{
		entries:   entries,
		events:    events,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger.With("component", "allocator"),
		config:    config,
	}
}

// Reserve places a time-bounded hold on the oldest available entry in the
// region. Losing the conditional claim to a concurrent caller moves on to the
// next candidate; after maxClaimAttempts lost races it fails with
// ErrPoolExhausted rather than retrying indefinitely.
func (a *Allocator) Reserve(ctx context.Context, tenantID uuid.UUID, region string, ttl time.Duration) (*domain.PoolEntry, error) {
	if ttl <= 0 {
		ttl = a.config.ReservationTTL
	}

	candidates, err := a.entries.OldestAvailable(ctx, region, maxClaimAttempts)
	if err != nil {
		reservationsCounter.WithLabelValues(region, "error").Inc()
		return nil, fmt.Errorf("selecting reservation candidates: %w", err)
	}
	if len(candidates) == 0 {
		reservationsCounter.WithLabelValues(region, "no_available").Inc()
		return nil, domain.ErrNoAvailableNumber
	}

	now := time.Now().UTC()
	reservedUntil := now.Add(ttl)

	for _, candidate := range candidates {
		claimed, err := a.entries.ClaimReserved(ctx, candidate.ID, tenantID, reservedUntil)
		if err != nil {
			reservationsCounter.WithLabelValues(region, "error").Inc()
			return nil, fmt.Errorf("claiming entry %s: %w", candidate.ID, err)
		}
		if !claimed {
			a.logger.DebugContext(ctx, "Lost claim race, trying next candidate", "entry_id", candidate.ID, "region", region)
			continue
		}

		candidate.Status = domain.StatusReserved
		candidate.Owner = uuid.NullUUID{UUID: tenantID, Valid: true}
		candidate.ReservedAt = sql.NullTime{Time: now, Valid: true}
		candidate.ReservedUntil = sql.NullTime{Time: reservedUntil, Valid: true}
		candidate.UpdatedAt = now

		a.appendEvent(ctx, domain.NewAssignmentEvent(candidate.ID, candidate.Owner, domain.ActionReserved, ""))
		a.publisher.PublishEntryEvent(ctx, SubjectEntryReserved, candidate, domain.ActionReserved, "")
		reservationsCounter.WithLabelValues(region, "success").Inc()

		a.logger.InfoContext(ctx, "Entry reserved", "entry_id", candidate.ID, "tenant_id", tenantID, "region", region, "reserved_until", reservedUntil)
		return candidate, nil
	}

	reservationsCounter.WithLabelValues(region, "exhausted").Inc()
	a.logger.WarnContext(ctx, "All reservation candidates lost to concurrent claims", "region", region, "candidates", len(candidates))
	return nil, domain.ErrPoolExhausted
}

// Assign commits a reservation to the tenant. The number is imported into the
// voice provider first (skipped when external_voice_id is already set), so a
// gateway failure leaves the entry reserved and the call safely retryable.
func (a *Allocator) Assign(ctx context.Context, tenantID uuid.UUID, entryID uuid.NullUUID) (*domain.PoolEntry, error) {
	var entry *domain.PoolEntry
	var err error
	if entryID.Valid {
		entry, err = a.entries.GetByID(ctx, entryID.UUID)
	} else {
		entry, err = a.entries.FindReservedByTenant(ctx, tenantID)
	}
	if err != nil {
		assignmentsCounter.WithLabelValues("error").Inc()
		return nil, err
	}

	switch {
	case entry.Status == domain.StatusAssigned:
		assignmentsCounter.WithLabelValues("already_assigned").Inc()
		return nil, domain.ErrAlreadyAssigned
	case entry.Status == domain.StatusReserved && entry.Owner.UUID != tenantID:
		assignmentsCounter.WithLabelValues("reserved_by_other").Inc()
		return nil, domain.ErrReservedByOther
	case entry.Status != domain.StatusReserved:
		assignmentsCounter.WithLabelValues("error").Inc()
		return nil, domain.ErrNotFound
	}

	if !entry.ExternalVoiceID.Valid {
		externalID, err := a.importNumber(ctx, entry)
		if err != nil {
			assignmentsCounter.WithLabelValues("gateway_error").Inc()
			return nil, err
		}
		if err := a.entries.SetExternalVoiceID(ctx, entry.ID, externalID); err != nil {
			assignmentsCounter.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("persisting external voice id: %w", err)
		}
		entry.ExternalVoiceID = sql.NullString{String: externalID, Valid: true}
	}

	assigned, err := a.entries.SetAssigned(ctx, entry.ID, tenantID)
	if err != nil {
		assignmentsCounter.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("assigning entry %s: %w", entry.ID, err)
	}
	if !assigned {
		// Reservation no longer held: expired and reclaimed, or raced.
		assignmentsCounter.WithLabelValues("error").Inc()
		a.logger.WarnContext(ctx, "Assign lost conditional update, reservation no longer held", "entry_id", entry.ID, "tenant_id", tenantID)
		return nil, domain.ErrNotFound
	}

	now := time.Now().UTC()
	entry.Status = domain.StatusAssigned
	entry.AssignedAt = sql.NullTime{Time: now, Valid: true}
	entry.ReservedAt = sql.NullTime{}
	entry.ReservedUntil = sql.NullTime{}
	entry.UpdatedAt = now

	a.appendEvent(ctx, domain.NewAssignmentEvent(entry.ID, entry.Owner, domain.ActionAssigned, ""))
	a.publisher.PublishEntryEvent(ctx, SubjectEntryAssigned, entry, domain.ActionAssigned, "")
	assignmentsCounter.WithLabelValues("success").Inc()

	a.logger.InfoContext(ctx, "Entry assigned", "entry_id", entry.ID, "tenant_id", tenantID, "external_voice_id", entry.ExternalVoiceID.String)
	return entry, nil
}

// Release returns the tenant's assigned number to the released (cooldown)
// state. Idempotent: no assigned entry means (false, nil), not an error.
func (a *Allocator) Release(ctx context.Context, tenantID uuid.UUID, reason string) (bool, error) {
	entry, err := a.entries.FindAssignedByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			releasesCounter.WithLabelValues("release", "noop").Inc()
			return false, nil
		}
		releasesCounter.WithLabelValues("release", "error").Inc()
		return false, err
	}

	released, err := a.entries.SetReleased(ctx, entry.ID, tenantID)
	if err != nil {
		releasesCounter.WithLabelValues("release", "error").Inc()
		return false, fmt.Errorf("releasing entry %s: %w", entry.ID, err)
	}
	if !released {
		releasesCounter.WithLabelValues("release", "noop").Inc()
		return false, nil
	}

	tenant := uuid.NullUUID{UUID: tenantID, Valid: true}
	a.appendEvent(ctx, domain.NewAssignmentEvent(entry.ID, tenant, domain.ActionReleased, reason))
	a.publisher.PublishEntryEvent(ctx, SubjectEntryReleased, entry, domain.ActionReleased, reason)
	releasesCounter.WithLabelValues("release", "success").Inc()

	a.logger.InfoContext(ctx, "Entry released", "entry_id", entry.ID, "tenant_id", tenantID, "reason", reason)
	return true, nil
}

// CancelReservation returns a reservation straight to available, skipping the
// cooldown since the tenant never took possession. Idempotent.
func (a *Allocator) CancelReservation(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	entry, err := a.entries.FindReservedByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			releasesCounter.WithLabelValues("cancel", "noop").Inc()
			return false, nil
		}
		releasesCounter.WithLabelValues("cancel", "error").Inc()
		return false, err
	}

	cancelled, err := a.entries.SetAvailable(ctx, entry.ID)
	if err != nil {
		releasesCounter.WithLabelValues("cancel", "error").Inc()
		return false, fmt.Errorf("cancelling reservation %s: %w", entry.ID, err)
	}
	if !cancelled {
		releasesCounter.WithLabelValues("cancel", "noop").Inc()
		return false, nil
	}

	tenant := uuid.NullUUID{UUID: tenantID, Valid: true}
	a.appendEvent(ctx, domain.NewAssignmentEvent(entry.ID, tenant, domain.ActionCancelled, "cancelled by tenant"))
	a.publisher.PublishEntryEvent(ctx, SubjectEntryCancelled, entry, domain.ActionCancelled, "cancelled by tenant")
	releasesCounter.WithLabelValues("cancel", "success").Inc()

	a.logger.InfoContext(ctx, "Reservation cancelled", "entry_id", entry.ID, "tenant_id", tenantID)
	return true, nil
}

// SweepExpiredReservations converts reservations past their hold deadline back
// to available. A single row's failure is logged and skipped; the sweep never
// raises per-row.
func (a *Allocator) SweepExpiredReservations(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := a.entries.ExpiredReservations(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("selecting expired reservations: %w", err)
	}

	count := 0
	for _, entry := range expired {
		released, err := a.entries.ReleaseExpired(ctx, entry.ID, now)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to release expired reservation, skipping", "error", err, "entry_id", entry.ID)
			continue
		}
		if !released {
			// Lost race with a sibling sweep or a concurrent assign.
			continue
		}

		a.appendEvent(ctx, domain.NewAssignmentEvent(entry.ID, entry.Owner, domain.ActionCancelled, "expired"))
		a.publisher.PublishEntryEvent(ctx, SubjectEntryCancelled, entry, domain.ActionCancelled, "expired")
		sweepTransitionsCounter.WithLabelValues("expire").Inc()
		count++
	}

	if count > 0 {
		a.logger.InfoContext(ctx, "Expired reservations swept", "count", count)
	}
	return count, nil
}

// SweepRecycle returns released entries to the pool once the cooldown since
// their last update has elapsed. The cooldown keeps a number from being
// re-handed to a new tenant while stale routing may still point at it.
func (a *Allocator) SweepRecycle(ctx context.Context, cooldown time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-cooldown)
	recyclable, err := a.entries.RecyclableEntries(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("selecting recyclable entries: %w", err)
	}

	count := 0
	for _, entry := range recyclable {
		recycled, err := a.entries.Recycle(ctx, entry.ID)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to recycle entry, skipping", "error", err, "entry_id", entry.ID)
			continue
		}
		if !recycled {
			continue
		}
		sweepTransitionsCounter.WithLabelValues("recycle").Inc()
		count++
	}

	if count > 0 {
		a.logger.InfoContext(ctx, "Released entries recycled", "count", count)
	}
	return count, nil
}

// Stats aggregates pool counts. Pure read; also refreshes the per-region
// availability gauge that backs low-inventory alerting.
func (a *Allocator) Stats(ctx context.Context, region string) (*domain.PoolStats, error) {
	stats, err := a.entries.Stats(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("aggregating pool stats: %w", err)
	}
	for r, counts := range stats.ByRegion {
		availableEntriesGauge.WithLabelValues(r).Set(float64(counts.Available))
	}
	return stats, nil
}

// ProvisionNumbers reserves and immediately assigns up to count numbers for
// the tenant. It returns how many were fully provisioned together with the
// error that stopped it short, so the provisioning queue can record partial
// success and retry only the remainder.
func (a *Allocator) ProvisionNumbers(ctx context.Context, tenantID uuid.UUID, region string, count int) (int, error) {
	provisioned := 0
	for provisioned < count {
		entry, err := a.Reserve(ctx, tenantID, region, a.config.ReservationTTL)
		if err != nil {
			return provisioned, err
		}
		if _, err := a.Assign(ctx, tenantID, uuid.NullUUID{UUID: entry.ID, Valid: true}); err != nil {
			// The entry stays reserved; the expiry sweep reclaims it if the
			// queue item exhausts its retries.
			return provisioned, err
		}
		provisioned++
	}
	return provisioned, nil
}

func (a *Allocator) importNumber(ctx context.Context, entry *domain.PoolEntry) (string, error) {
	importCtx := ctx
	if a.config.ImportTimeout > 0 {
		var cancel context.CancelFunc
		importCtx, cancel = context.WithTimeout(ctx, a.config.ImportTimeout)
		defer cancel()
	}

	timer := prometheus.NewTimer(importGatewayDurationHist)
	defer timer.ObserveDuration()

	result, err := a.gateway.ImportNumber(importCtx, telephony.ImportRequest{
		PhoneNumber: entry.PhoneNumber,
		ProviderTag: entry.ProviderTag,
		Region:      entry.Region,
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "Telephony import failed, entry stays reserved", "error", err, "entry_id", entry.ID)
		return "", err
	}
	return result.ExternalID, nil
}

// appendEvent records an audit event. Audit append failures never undo the
// state transition that already committed; they are logged and dropped.
func (a *Allocator) appendEvent(ctx context.Context, event *domain.AssignmentEvent) {
	if err := a.events.Append(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "Failed to append assignment event", "error", err, "entry_id", event.EntryID, "action", event.Action)
	}
}
