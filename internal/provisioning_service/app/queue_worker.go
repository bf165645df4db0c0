package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yomariano/numberpool-service/internal/provisioning_service/domain"
)

// NumberProvisioner is the allocator capability the queue depends on: reserve
// and assign up to count numbers, reporting how many landed before the error.
type NumberProvisioner interface {
	ProvisionNumbers(ctx context.Context, tenantID uuid.UUID, region string, count int) (int, error)
}

// WorkerConfig holds drain worker tuning knobs.
type WorkerConfig struct {
	BatchSize  int
	LeaseTTL   time.Duration
	InstanceID string // Lease owner identity, unique per process
}

// QueueWorker drains the provisioning retry queue. One item's failure never
// halts the rest of the batch; every outcome is converted into a status and
// attempts update on the item.
type QueueWorker struct {
	items       domain.QueueItemRepository
	lease       domain.DrainLeaseRepository
	provisioner NumberProvisioner
	logger      *slog.Logger
	config      WorkerConfig
}

func NewQueueWorker(
	items domain.QueueItemRepository,
	lease domain.DrainLeaseRepository,
	provisioner NumberProvisioner,
	logger *slog.Logger,
	config WorkerConfig,
) *QueueWorker {
	return &QueueWorker{
		items:       items,
		lease:       lease,
		provisioner: provisioner,
		logger:      logger.With("component", "queue_worker"),
		config:      config,
	}
}

// Enqueue inserts a pending item due immediately.
func (w *QueueWorker) Enqueue(ctx context.Context, tenantID uuid.UUID, planID string, region string, numbersRequested int) (*domain.QueueItem, error) {
	if numbersRequested <= 0 {
		return nil, fmt.Errorf("numbers_requested must be positive, got %d", numbersRequested)
	}
	item := domain.NewQueueItem(uuid.New(), tenantID, planID, region, numbersRequested)
	if err := w.items.Create(ctx, item); err != nil {
		return nil, err
	}
	w.logger.InfoContext(ctx, "Provisioning request enqueued", "item_id", item.ID, "tenant_id", tenantID, "plan_id", planID, "numbers_requested", numbersRequested)
	return item, nil
}

// GetItem exposes an item's support-facing status.
func (w *QueueWorker) GetItem(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	return w.items.GetByID(ctx, id)
}

// Drain runs one drain pass: acquire the cluster-wide lease, claim due items
// and process each independently. Returns the number of items attempted.
// A pass skipped because another instance holds the lease is a no-op, not an
// error; the next scheduler tick retries.
func (w *QueueWorker) Drain(ctx context.Context) (int, error) {
	acquired, err := w.lease.Acquire(ctx, w.config.InstanceID, w.config.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("acquiring drain lease: %w", err)
	}
	if !acquired {
		drainLeaseContentionCounter.Inc()
		w.logger.DebugContext(ctx, "Skipping drain, lease held elsewhere")
		return 0, nil
	}
	defer func() {
		if err := w.lease.Release(ctx, w.config.InstanceID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to release drain lease", "error", err)
		}
	}()

	timer := prometheus.NewTimer(drainDurationHist)
	defer timer.ObserveDuration()

	items, err := w.items.AcquireDueItems(ctx, time.Now().UTC(), w.config.BatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNoDueItems) {
			return 0, nil
		}
		return 0, fmt.Errorf("acquiring due items: %w", err)
	}

	w.logger.InfoContext(ctx, "Draining provisioning queue", "count", len(items))
	for _, item := range items {
		w.processItem(ctx, item)
	}
	return len(items), nil
}

// processItem runs one provisioning attempt and records its outcome.
// Outcomes:
//   - everything provisioned: completed.
//   - partial yield: shrink numbers_requested to the remainder and reschedule,
//     or terminal partial once the retry budget is spent.
//   - nothing provisioned: failed with backoff, or terminal
//     max_attempts_reached once the retry budget is spent.
func (w *QueueWorker) processItem(ctx context.Context, item *domain.QueueItem) {
	logger := w.logger.With("item_id", item.ID, "tenant_id", item.TenantID, "attempts", item.Attempts)

	provisioned, provErr := w.provisioner.ProvisionNumbers(ctx, item.TenantID, item.Region, item.NumbersRequested)
	if provisioned > 0 {
		numbersProvisionedCounter.Add(float64(provisioned))
	}

	result, err := json.Marshal(domain.ProvisionResult{
		Requested:   item.NumbersRequested,
		Provisioned: provisioned,
	})
	if err != nil {
		// Marshaling two ints cannot realistically fail; guard anyway.
		logger.ErrorContext(ctx, "Failed to marshal provision result", "error", err)
		result = nil
	}

	now := time.Now().UTC()

	switch {
	case provErr == nil && provisioned >= item.NumbersRequested:
		if err := w.items.MarkCompleted(ctx, item.ID, result); err != nil {
			logger.ErrorContext(ctx, "Failed to mark item completed", "error", err)
			itemsProcessedCounter.WithLabelValues("error_bookkeeping").Inc()
			return
		}
		itemsProcessedCounter.WithLabelValues("completed").Inc()
		logger.InfoContext(ctx, "Provisioning completed", "provisioned", provisioned)

	case provisioned > 0:
		attempts := item.Attempts + 1
		errMsg := w.errorMessage(provErr)
		if attempts >= domain.MaxAttempts {
			if err := w.items.MarkPartial(ctx, item.ID, attempts, result, errMsg); err != nil {
				logger.ErrorContext(ctx, "Failed to mark item partial", "error", err)
				itemsProcessedCounter.WithLabelValues("error_bookkeeping").Inc()
				return
			}
			itemsProcessedCounter.WithLabelValues("partial").Inc()
			logger.WarnContext(ctx, "Retries exhausted with partial yield", "provisioned", provisioned, "requested", item.NumbersRequested)
			return
		}

		remaining := item.NumbersRequested - provisioned
		nextRetryAt := now.Add(domain.Backoff(attempts))
		if err := w.items.RescheduleRemainder(ctx, item.ID, remaining, attempts, nextRetryAt, result); err != nil {
			logger.ErrorContext(ctx, "Failed to reschedule remainder", "error", err)
			itemsProcessedCounter.WithLabelValues("error_bookkeeping").Inc()
			return
		}
		itemsProcessedCounter.WithLabelValues("rescheduled").Inc()
		logger.InfoContext(ctx, "Partial success, remainder rescheduled", "provisioned", provisioned, "remaining", remaining, "next_retry_at", nextRetryAt)

	default:
		attempts := item.Attempts + 1
		errMsg := w.errorMessage(provErr)
		if attempts >= domain.MaxAttempts {
			if err := w.items.MarkExhausted(ctx, item.ID, attempts, errMsg); err != nil {
				logger.ErrorContext(ctx, "Failed to mark item exhausted", "error", err)
				itemsProcessedCounter.WithLabelValues("error_bookkeeping").Inc()
				return
			}
			itemsProcessedCounter.WithLabelValues("max_attempts_reached").Inc()
			logger.WarnContext(ctx, "Item failed after max attempts, operator intervention required", "error", errMsg)
			return
		}

		nextRetryAt := now.Add(domain.Backoff(attempts))
		if err := w.items.MarkFailed(ctx, item.ID, attempts, nextRetryAt, errMsg); err != nil {
			logger.ErrorContext(ctx, "Failed to mark item failed", "error", err)
			itemsProcessedCounter.WithLabelValues("error_bookkeeping").Inc()
			return
		}
		itemsProcessedCounter.WithLabelValues("failed").Inc()
		logger.InfoContext(ctx, "Attempt failed, retry scheduled", "error", errMsg, "next_retry_at", nextRetryAt)
	}
}

func (w *QueueWorker) errorMessage(err error) string {
	if err != nil {
		return err.Error()
	}
	return "number pool exhausted"
}
