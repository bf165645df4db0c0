package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
)

type importResponse struct {
	ExternalID string `json:"external_id"`
}

// RestyGateway is the HTTP implementation of ImportGateway.
// The request timeout is enforced here because the import call is the one
// unbounded external dependency in the allocation path.
type RestyGateway struct {
	httpClient *resty.Client
	logger     *slog.Logger
}

func NewRestyGateway(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *RestyGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &RestyGateway{
		httpClient: client,
		logger:     logger.With("component", "telephony_resty_gateway"),
	}
}

func (g *RestyGateway) ImportNumber(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	g.logger.InfoContext(ctx, "Importing number into voice provider", "phone_number", req.PhoneNumber, "provider_tag", req.ProviderTag)

	var result importResponse
	resp, err := g.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/numbers/import")
	if err != nil {
		g.logger.ErrorContext(ctx, "Telephony import request failed", "error", err, "phone_number", req.PhoneNumber)
		return nil, fmt.Errorf("%w: %v", domain.ErrImportGateway, err)
	}
	if resp.IsError() {
		g.logger.ErrorContext(ctx, "Telephony import returned error status", "status", resp.StatusCode(), "body", resp.String(), "phone_number", req.PhoneNumber)
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrImportGateway, resp.StatusCode())
	}
	if result.ExternalID == "" {
		return nil, fmt.Errorf("%w: empty external_id in response", domain.ErrImportGateway)
	}

	return &ImportResult{ExternalID: result.ExternalID}, nil
}
