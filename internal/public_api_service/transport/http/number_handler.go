package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
)

// AllocatorService is the allocator surface exposed over HTTP.
type AllocatorService interface {
	Reserve(ctx context.Context, tenantID uuid.UUID, region string, ttl time.Duration) (*domain.PoolEntry, error)
	Assign(ctx context.Context, tenantID uuid.UUID, entryID uuid.NullUUID) (*domain.PoolEntry, error)
	Release(ctx context.Context, tenantID uuid.UUID, reason string) (bool, error)
	CancelReservation(ctx context.Context, tenantID uuid.UUID) (bool, error)
	Stats(ctx context.Context, region string) (*domain.PoolStats, error)
}

type NumberHandler struct {
	allocator AllocatorService
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewNumberHandler(allocator AllocatorService, logger *slog.Logger, validate *validator.Validate) *NumberHandler {
	return &NumberHandler{
		allocator: allocator,
		logger:    logger.With("component", "number_handler"),
		validate:  validate,
	}
}

func (h *NumberHandler) ReserveNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var reqDTO ReserveNumberRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		logger.WarnContext(ctx, "Validation failed for reserve request", "error", err)
		respondError(w, logger, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(reqDTO.TenantID)
	if err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid tenant_id")
		return
	}

	entry, err := h.allocator.Reserve(ctx, tenantID, reqDTO.Region, time.Duration(reqDTO.TTLMinutes)*time.Minute)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoAvailableNumber), errors.Is(err, domain.ErrPoolExhausted):
			respondError(w, logger, http.StatusConflict, err.Error())
		default:
			logger.ErrorContext(ctx, "Reserve failed", "error", err)
			respondError(w, logger, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	respondJSON(w, logger, http.StatusCreated, toPoolEntryDTO(entry))
}

func (h *NumberHandler) AssignNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var reqDTO AssignNumberRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		respondError(w, logger, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(reqDTO.TenantID)
	if err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid tenant_id")
		return
	}

	var entryID uuid.NullUUID
	if reqDTO.EntryID != "" {
		id, err := uuid.Parse(reqDTO.EntryID)
		if err != nil {
			respondError(w, logger, http.StatusBadRequest, "Invalid entry_id")
			return
		}
		entryID = uuid.NullUUID{UUID: id, Valid: true}
	}

	entry, err := h.allocator.Assign(ctx, tenantID, entryID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyAssigned), errors.Is(err, domain.ErrReservedByOther):
			respondError(w, logger, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			respondError(w, logger, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrImportGateway):
			// The reservation is intact; the caller may retry.
			respondError(w, logger, http.StatusBadGateway, err.Error())
		default:
			logger.ErrorContext(ctx, "Assign failed", "error", err)
			respondError(w, logger, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	respondJSON(w, logger, http.StatusOK, toPoolEntryDTO(entry))
}

func (h *NumberHandler) ReleaseNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var reqDTO ReleaseNumberRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		respondError(w, logger, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	tenantID, err := uuid.Parse(reqDTO.TenantID)
	if err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid tenant_id")
		return
	}

	released, err := h.allocator.Release(ctx, tenantID, reqDTO.Reason)
	if err != nil {
		logger.ErrorContext(ctx, "Release failed", "error", err)
		respondError(w, logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, logger, http.StatusOK, ReleaseResponseDTO{Released: released})
}

func (h *NumberHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		respondError(w, logger, http.StatusBadRequest, "Invalid tenant ID in path")
		return
	}

	cancelled, err := h.allocator.CancelReservation(ctx, tenantID)
	if err != nil {
		logger.ErrorContext(ctx, "Cancel reservation failed", "error", err)
		respondError(w, logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, logger, http.StatusOK, CancelResponseDTO{Cancelled: cancelled})
}

func (h *NumberHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	stats, err := h.allocator.Stats(ctx, r.URL.Query().Get("region"))
	if err != nil {
		logger.ErrorContext(ctx, "Stats aggregation failed", "error", err)
		respondError(w, logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, logger, http.StatusOK, stats)
}
