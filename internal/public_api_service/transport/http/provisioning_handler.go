package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	provdomain "github.com/yomariano/numberpool-service/internal/provisioning_service/domain"
)

// ProvisioningService is the queue surface exposed over HTTP.
type ProvisioningService interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, planID string, region string, numbersRequested int) (*provdomain.QueueItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*provdomain.QueueItem, error)
}

type ProvisioningHandler struct {
	queue    ProvisioningService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewProvisioningHandler(queue ProvisioningService, logger *slog.Logger, validate *validator.Validate) *ProvisioningHandler {
	return &ProvisioningHandler{
		queue:    queue,
		logger:   logger.With("component", "provisioning_handler"),
		validate: validate,
	}
}

func (h *ProvisioningHandler) EnqueueProvisioning(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var reqDTO EnqueueProvisioningRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		logger.WarnContext(ctx, "Validation failed for enqueue request", "error", err)
		respondError(w, logger, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(reqDTO.TenantID)
	if err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid tenant_id")
		return
	}

	item, err := h.queue.Enqueue(ctx, tenantID, reqDTO.PlanID, reqDTO.Region, reqDTO.NumbersRequested)
	if err != nil {
		logger.ErrorContext(ctx, "Enqueue failed", "error", err)
		respondError(w, logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, logger, http.StatusCreated, toQueueItemDTO(item))
}

func (h *ProvisioningHandler) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid queue item ID in path")
		return
	}

	item, err := h.queue.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, provdomain.ErrNotFound) {
			respondError(w, logger, http.StatusNotFound, err.Error())
			return
		}
		logger.ErrorContext(ctx, "Get queue item failed", "error", err)
		respondError(w, logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, logger, http.StatusOK, toQueueItemDTO(item))
}
