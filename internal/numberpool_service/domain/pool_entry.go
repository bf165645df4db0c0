package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EntryStatus represents the lifecycle status of a pool entry.
type EntryStatus string

const (
	StatusAvailable EntryStatus = "available" // Free to be reserved
	StatusReserved  EntryStatus = "reserved"  // Held for a tenant pending confirmation
	StatusAssigned  EntryStatus = "assigned"  // In active use by a tenant
	StatusReleased  EntryStatus = "released"  // Returned, cooling down before reuse
)

// PoolEntry is a single telephony number under management.
// Owner is only set while the entry is reserved or assigned, and
// ReservedUntil is set iff the entry is reserved.
type PoolEntry struct {
	ID              uuid.UUID      `json:"id"`
	PhoneNumber     string         `json:"phone_number"` // Unique across the pool
	Region          string         `json:"region"`       // e.g. "IE", "US"
	ProviderTag     string         `json:"provider_tag"` // Upstream carrier the number was bought from
	Status          EntryStatus    `json:"status"`
	Owner           uuid.NullUUID  `json:"owner,omitempty"`
	ReservedAt      sql.NullTime   `json:"reserved_at,omitempty"`
	ReservedUntil   sql.NullTime   `json:"reserved_until,omitempty"`
	AssignedAt      sql.NullTime   `json:"assigned_at,omitempty"`
	ExternalVoiceID sql.NullString `json:"external_voice_id,omitempty"` // Set once imported into the voice provider, never re-imported
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"` // Also the recycle-cooldown clock after release
}

// NewPoolEntry creates an available pool entry. Entries are normally
// inserted by the out-of-band admin ingestion path.
func NewPoolEntry(id uuid.UUID, phoneNumber, region, providerTag string) *PoolEntry {
	now := time.Now().UTC()
	return &PoolEntry{
		ID:          id,
		PhoneNumber: phoneNumber,
		Region:      region,
		ProviderTag: providerTag,
		Status:      StatusAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RegionCounts holds per-status entry counts.
type RegionCounts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Assigned  int `json:"assigned"`
	Released  int `json:"released"`
}

// PoolStats is the aggregate view used for low-inventory alerting.
type PoolStats struct {
	Total     int                     `json:"total"`
	Available int                     `json:"available"`
	Reserved  int                     `json:"reserved"`
	Assigned  int                     `json:"assigned"`
	Released  int                     `json:"released"`
	ByRegion  map[string]RegionCounts `json:"by_region"`
}
