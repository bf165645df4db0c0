package domain

import "errors"

var (
	// ErrNotFound indicates that a requested pool entry was not found.
	ErrNotFound = errors.New("pool entry not found")
	// ErrNoAvailableNumber indicates the region has zero available entries.
	ErrNoAvailableNumber = errors.New("no available number in region")
	// ErrPoolExhausted indicates every claim candidate was lost to concurrent callers.
	ErrPoolExhausted = errors.New("number pool exhausted")
	// ErrAlreadyAssigned indicates the entry is already assigned.
	ErrAlreadyAssigned = errors.New("number already assigned")
	// ErrReservedByOther indicates the entry is reserved for a different tenant.
	ErrReservedByOther = errors.New("number reserved by another tenant")
	// ErrImportGateway indicates a transient failure of the telephony import gateway.
	// The entry stays reserved, so the caller can safely retry the assign.
	ErrImportGateway = errors.New("telephony import gateway failure")
)
