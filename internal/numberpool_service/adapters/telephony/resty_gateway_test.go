package telephony

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
)

func newGatewayAgainst(t *testing.T, handler http.HandlerFunc) *RestyGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRestyGateway(server.URL, "test-api-key", 5*time.Second, logger)
}

func TestRestyGateway_ImportNumber_Success(t *testing.T) {
	gateway := newGatewayAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/numbers/import", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req ImportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+35315550100", req.PhoneNumber)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"external_id": "PN-abc123"})
	})

	result, err := gateway.ImportNumber(context.Background(), ImportRequest{
		PhoneNumber: "+35315550100",
		ProviderTag: "carrier-a",
		Region:      "IE",
	})

	require.NoError(t, err)
	assert.Equal(t, "PN-abc123", result.ExternalID)
}

func TestRestyGateway_ImportNumber_ErrorStatus(t *testing.T) {
	gateway := newGatewayAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	})

	_, err := gateway.ImportNumber(context.Background(), ImportRequest{
		PhoneNumber: "+35315550100",
		ProviderTag: "carrier-a",
		Region:      "IE",
	})

	assert.ErrorIs(t, err, domain.ErrImportGateway)
}

func TestRestyGateway_ImportNumber_EmptyExternalID(t *testing.T) {
	gateway := newGatewayAgainst(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"external_id": ""})
	})

	_, err := gateway.ImportNumber(context.Background(), ImportRequest{
		PhoneNumber: "+35315550100",
		ProviderTag: "carrier-a",
		Region:      "IE",
	})

	assert.ErrorIs(t, err, domain.ErrImportGateway)
}
