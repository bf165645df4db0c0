package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yomariano/numberpool-service/internal/platform/config"
	"github.com/yomariano/numberpool-service/internal/platform/database"
	"github.com/yomariano/numberpool-service/internal/platform/logger"
	"github.com/yomariano/numberpool-service/internal/platform/messagebroker"

	maintenanceapp "github.com/yomariano/numberpool-service/internal/maintenance_service/app"
	"github.com/yomariano/numberpool-service/internal/numberpool_service/adapters/telephony"
	numberpoolapp "github.com/yomariano/numberpool-service/internal/numberpool_service/app"
	numberpoolpg "github.com/yomariano/numberpool-service/internal/numberpool_service/repository/postgres"
	provisioningapp "github.com/yomariano/numberpool-service/internal/provisioning_service/app"
	provisioningpg "github.com/yomariano/numberpool-service/internal/provisioning_service/repository/postgres"
	transporthttp "github.com/yomariano/numberpool-service/internal/public_api_service/transport/http"
)

const (
	serviceName     = "numberpool-service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	log.Info("Starting service")

	dbPool, err := database.NewPostgresPool(mainCtx, cfg.PostgresDSN, log)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, log, serviceName)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	// Repositories
	poolEntryRepo := numberpoolpg.NewPgPoolEntryRepository(dbPool, log)
	assignmentEventRepo := numberpoolpg.NewPgAssignmentEventRepository(dbPool, log)
	queueItemRepo := provisioningpg.NewPgQueueItemRepository(dbPool, log)
	drainLeaseRepo := provisioningpg.NewPgDrainLeaseRepository(dbPool, log)

	// Allocator and its collaborators
	gateway := telephony.NewRestyGateway(cfg.TelephonyBaseURL, cfg.TelephonyAPIKey, cfg.TelephonyTimeout, log)
	publisher := numberpoolapp.NewEventPublisher(natsClient, log)
	allocator := numberpoolapp.NewAllocator(poolEntryRepo, assignmentEventRepo, gateway, publisher, log, numberpoolapp.AllocatorConfig{
		ReservationTTL: time.Duration(cfg.ReservationTTLMinutes) * time.Minute,
		ImportTimeout:  cfg.TelephonyTimeout,
	})

	// Provisioning queue worker
	worker := provisioningapp.NewQueueWorker(queueItemRepo, drainLeaseRepo, allocator, log, provisioningapp.WorkerConfig{
		BatchSize:  cfg.DrainBatchSize,
		LeaseTTL:   cfg.DrainLeaseTTL,
		InstanceID: serviceName + "-" + uuid.NewString(),
	})

	// Maintenance scheduler
	scheduler := maintenanceapp.NewScheduler(allocator, worker, publisher, log, maintenanceapp.SchedulerConfig{
		SweepInterval:         cfg.SweepInterval,
		DrainInterval:         cfg.DrainInterval,
		RecycleCooldown:       time.Duration(cfg.RecycleCooldownHours) * time.Hour,
		LowInventoryThreshold: cfg.LowInventoryThreshold,
	})

	// HTTP transport
	validate := validator.New()
	numberHandler := transporthttp.NewNumberHandler(allocator, log, validate)
	provisioningHandler := transporthttp.NewProvisioningHandler(worker, log, validate)
	router := transporthttp.NewRouter(numberHandler, provisioningHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service stopped")
}
