package telephony

import "context"

// ImportRequest asks the voice-call provider to register a raw number.
type ImportRequest struct {
	PhoneNumber string `json:"phone_number"`
	ProviderTag string `json:"provider_tag"`
	Region      string `json:"region"`
}

// ImportResult carries the provider-side identifier of an imported number.
type ImportResult struct {
	ExternalID string `json:"external_id"`
}

// ImportGateway registers numbers with the voice-call provider.
// The allocator treats it as idempotent: an entry with a persisted
// external_voice_id is never imported again.
type ImportGateway interface {
	ImportNumber(ctx context.Context, req ImportRequest) (*ImportResult, error)
}
