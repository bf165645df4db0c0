package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	provdomain "github.com/yomariano/numberpool-service/internal/provisioning_service/domain"
)

func TestEnqueueProvisioning_Created(t *testing.T) {
	queue := &MockProvisioningService{}
	router := newTestRouter(&MockAllocatorService{}, queue)
	tenantID := uuid.New()
	item := provdomain.NewQueueItem(uuid.New(), tenantID, "plan-pro", "IE", 3)

	queue.On("Enqueue", mock.Anything, tenantID, "plan-pro", "IE", 3).Return(item, nil)

	rr := doJSONRequest(t, router, http.MethodPost, "/provisioning/queue", map[string]any{
		"tenant_id":         tenantID.String(),
		"plan_id":           "plan-pro",
		"region":            "IE",
		"numbers_requested": 3,
	})

	require.Equal(t, http.StatusCreated, rr.Code)
	var dto QueueItemResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dto))
	assert.Equal(t, item.ID.String(), dto.ID)
	assert.Equal(t, "pending", dto.Status)
	assert.Equal(t, 3, dto.NumbersRequested)
	queue.AssertExpectations(t)
}

func TestEnqueueProvisioning_RejectsZeroCount(t *testing.T) {
	queue := &MockProvisioningService{}
	router := newTestRouter(&MockAllocatorService{}, queue)

	rr := doJSONRequest(t, router, http.MethodPost, "/provisioning/queue", map[string]any{
		"tenant_id":         uuid.NewString(),
		"plan_id":           "plan-pro",
		"region":            "IE",
		"numbers_requested": 0,
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetQueueItem_NotFound(t *testing.T) {
	queue := &MockProvisioningService{}
	router := newTestRouter(&MockAllocatorService{}, queue)
	id := uuid.New()

	queue.On("GetItem", mock.Anything, id).Return(nil, provdomain.ErrNotFound)

	rr := doJSONRequest(t, router, http.MethodGet, "/provisioning/queue/"+id.String(), nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetQueueItem_ReturnsSupportView(t *testing.T) {
	queue := &MockProvisioningService{}
	router := newTestRouter(&MockAllocatorService{}, queue)
	item := provdomain.NewQueueItem(uuid.New(), uuid.New(), "plan-pro", "IE", 2)
	item.Status = provdomain.StatusFailed
	item.Attempts = 2

	queue.On("GetItem", mock.Anything, item.ID).Return(item, nil)

	rr := doJSONRequest(t, router, http.MethodGet, "/provisioning/queue/"+item.ID.String(), nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var dto QueueItemResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dto))
	assert.Equal(t, "failed", dto.Status)
	assert.Equal(t, 2, dto.Attempts)
}
