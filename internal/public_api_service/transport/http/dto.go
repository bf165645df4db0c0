package http

import (
	"time"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
	provdomain "github.com/yomariano/numberpool-service/internal/provisioning_service/domain"
)

type ReserveNumberRequestDTO struct {
	TenantID   string `json:"tenant_id" validate:"required,uuid"`
	Region     string `json:"region" validate:"required,min=2,max=8"`
	TTLMinutes int    `json:"ttl_minutes" validate:"omitempty,min=1,max=1440"`
}

type AssignNumberRequestDTO struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	EntryID  string `json:"entry_id" validate:"omitempty,uuid"`
}

type ReleaseNumberRequestDTO struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
	Reason   string `json:"reason" validate:"required,max=512"`
}

type EnqueueProvisioningRequestDTO struct {
	TenantID         string `json:"tenant_id" validate:"required,uuid"`
	PlanID           string `json:"plan_id" validate:"required,max=64"`
	Region           string `json:"region" validate:"required,min=2,max=8"`
	NumbersRequested int    `json:"numbers_requested" validate:"required,min=1,max=100"`
}

type PoolEntryResponseDTO struct {
	ID              string     `json:"id"`
	PhoneNumber     string     `json:"phone_number"`
	Region          string     `json:"region"`
	Status          string     `json:"status"`
	TenantID        string     `json:"tenant_id,omitempty"`
	ReservedUntil   *time.Time `json:"reserved_until,omitempty"`
	ExternalVoiceID string     `json:"external_voice_id,omitempty"`
}

type ReleaseResponseDTO struct {
	Released bool `json:"released"`
}

type CancelResponseDTO struct {
	Cancelled bool `json:"cancelled"`
}

type QueueItemResponseDTO struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	PlanID           string     `json:"plan_id"`
	Region           string     `json:"region"`
	NumbersRequested int        `json:"numbers_requested"`
	Status           string     `json:"status"`
	Attempts         int        `json:"attempts"`
	NextRetryAt      time.Time  `json:"next_retry_at"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type ErrorResponseDTO struct {
	Error string `json:"error"`
}

func toPoolEntryDTO(entry *domain.PoolEntry) PoolEntryResponseDTO {
	dto := PoolEntryResponseDTO{
		ID:          entry.ID.String(),
		PhoneNumber: entry.PhoneNumber,
		Region:      entry.Region,
		Status:      string(entry.Status),
	}
	if entry.Owner.Valid {
		dto.TenantID = entry.Owner.UUID.String()
	}
	if entry.ReservedUntil.Valid {
		t := entry.ReservedUntil.Time
		dto.ReservedUntil = &t
	}
	if entry.ExternalVoiceID.Valid {
		dto.ExternalVoiceID = entry.ExternalVoiceID.String
	}
	return dto
}

func toQueueItemDTO(item *provdomain.QueueItem) QueueItemResponseDTO {
	dto := QueueItemResponseDTO{
		ID:               item.ID.String(),
		TenantID:         item.TenantID.String(),
		PlanID:           item.PlanID,
		Region:           item.Region,
		NumbersRequested: item.NumbersRequested,
		Status:           string(item.Status),
		Attempts:         item.Attempts,
		NextRetryAt:      item.NextRetryAt,
		CreatedAt:        item.CreatedAt,
	}
	if item.LastAttemptAt.Valid {
		t := item.LastAttemptAt.Time
		dto.LastAttemptAt = &t
	}
	if item.ErrorMessage.Valid {
		dto.ErrorMessage = item.ErrorMessage.String
	}
	return dto
}
