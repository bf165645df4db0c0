package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
	"github.com/yomariano/numberpool-service/internal/platform/messagebroker"
)

// NATS subjects for pool domain events. Notification and alerting
// collaborators subscribe to these; the allocator never calls them directly.
const (
	SubjectEntryReserved  = "numberpool.entry.reserved"
	SubjectEntryAssigned  = "numberpool.entry.assigned"
	SubjectEntryReleased  = "numberpool.entry.released"
	SubjectEntryCancelled = "numberpool.entry.cancelled"
	SubjectInventoryLow   = "numberpool.inventory.low"
)

// EntryEventPayload is the wire form of a pool entry transition event.
type EntryEventPayload struct {
	EntryID     string    `json:"entry_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	PhoneNumber string    `json:"phone_number"`
	Region      string    `json:"region"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// LowInventoryPayload is published when a region drops below the alert threshold.
type LowInventoryPayload struct {
	Region     string    `json:"region"`
	Available  int       `json:"available"`
	Threshold  int       `json:"threshold"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher publishes pool domain events to NATS. Publish failures are
// logged and swallowed: the state transition already committed and alerting
// is best-effort.
type EventPublisher struct {
	natsClient messagebroker.NATSClient
	logger     *slog.Logger
}

func NewEventPublisher(natsClient messagebroker.NATSClient, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		natsClient: natsClient,
		logger:     logger.With("component", "numberpool_event_publisher"),
	}
}

func (p *EventPublisher) PublishEntryEvent(ctx context.Context, subject string, entry *domain.PoolEntry, action domain.AssignmentAction, reason string) {
	payload := EntryEventPayload{
		EntryID:     entry.ID.String(),
		PhoneNumber: entry.PhoneNumber,
		Region:      entry.Region,
		Action:      string(action),
		Reason:      reason,
		OccurredAt:  time.Now().UTC(),
	}
	if entry.Owner.Valid {
		payload.TenantID = entry.Owner.UUID.String()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to marshal entry event", "error", err, "subject", subject)
		return
	}
	if err := p.natsClient.Publish(ctx, subject, data); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish entry event", "error", err, "subject", subject, "entry_id", entry.ID)
	}
}

func (p *EventPublisher) PublishLowInventory(ctx context.Context, region string, available int, threshold int) error {
	payload := LowInventoryPayload{
		Region:     region,
		Available:  available,
		Threshold:  threshold,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.natsClient.Publish(ctx, SubjectInventoryLow, data); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish low inventory alert", "error", err, "region", region)
		return err
	}
	p.logger.WarnContext(ctx, "Low inventory alert published", "region", region, "available", available, "threshold", threshold)
	return nil
}
