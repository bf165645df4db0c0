package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	numberpooldomain "github.com/yomariano/numberpool-service/internal/numberpool_service/domain"
)

// PoolMaintainer is the allocator surface the scheduler drives.
type PoolMaintainer interface {
	SweepExpiredReservations(ctx context.Context) (int, error)
	SweepRecycle(ctx context.Context, cooldown time.Duration) (int, error)
	Stats(ctx context.Context, region string) (*numberpooldomain.PoolStats, error)
}

// QueueDrainer is the provisioning queue surface the scheduler drives.
type QueueDrainer interface {
	Drain(ctx context.Context) (int, error)
}

// InventoryAlerter publishes low-inventory alerts for external collaborators.
type InventoryAlerter interface {
	PublishLowInventory(ctx context.Context, region string, available int, threshold int) error
}

// SchedulerConfig holds the periodic driver's intervals and thresholds.
type SchedulerConfig struct {
	SweepInterval         time.Duration
	DrainInterval         time.Duration
	RecycleCooldown       time.Duration
	LowInventoryThreshold int
}

// Scheduler is the periodic driver for allocator sweeps, queue draining and
// low-inventory alerting. Every operation it invokes is safe to run on a
// fixed period with no state carried between ticks.
type Scheduler struct {
	pool    PoolMaintainer
	queue   QueueDrainer
	alerter InventoryAlerter
	logger  *slog.Logger
	config  SchedulerConfig
}

func NewScheduler(
	pool PoolMaintainer,
	queue QueueDrainer,
	alerter InventoryAlerter,
	logger *slog.Logger,
	config SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		pool:    pool,
		queue:   queue,
		alerter: alerter,
		logger:  logger.With("component", "maintenance_scheduler"),
		config:  config,
	}
}

// Run drives the sweep and drain loops until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.RunSweeps(ctx)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.config.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.RunDrain(ctx)
			}
		}
	})

	s.logger.Info("Maintenance scheduler started", "sweep_interval", s.config.SweepInterval, "drain_interval", s.config.DrainInterval)
	return g.Wait()
}

// RunSweeps executes one expiry sweep, one recycle sweep and one inventory
// check. Failures are logged; the next tick retries.
func (s *Scheduler) RunSweeps(ctx context.Context) {
	if expired, err := s.pool.SweepExpiredReservations(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Expiry sweep failed", "error", err)
	} else if expired > 0 {
		s.logger.InfoContext(ctx, "Expiry sweep done", "expired", expired)
	}

	if recycled, err := s.pool.SweepRecycle(ctx, s.config.RecycleCooldown); err != nil {
		s.logger.ErrorContext(ctx, "Recycle sweep failed", "error", err)
	} else if recycled > 0 {
		s.logger.InfoContext(ctx, "Recycle sweep done", "recycled", recycled)
	}

	s.checkInventory(ctx)
}

// RunDrain executes one queue drain pass.
func (s *Scheduler) RunDrain(ctx context.Context) {
	if processed, err := s.queue.Drain(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Queue drain failed", "error", err)
	} else if processed > 0 {
		s.logger.InfoContext(ctx, "Queue drain done", "processed", processed)
	}
}

func (s *Scheduler) checkInventory(ctx context.Context) {
	stats, err := s.pool.Stats(ctx, "")
	if err != nil {
		s.logger.ErrorContext(ctx, "Inventory stats failed", "error", err)
		return
	}
	for region, counts := range stats.ByRegion {
		if counts.Available < s.config.LowInventoryThreshold {
			if err := s.alerter.PublishLowInventory(ctx, region, counts.Available, s.config.LowInventoryThreshold); err != nil {
				s.logger.ErrorContext(ctx, "Low inventory alert failed", "error", err, "region", region)
			}
		}
	}
}
