package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/example/lesson-scheduler/internal/application"
	"github.com/example/lesson-scheduler/internal/config"
	httptransport "github.com/example/lesson-scheduler/internal/http"
	"github.com/example/lesson-scheduler/internal/notify"
	"github.com/example/lesson-scheduler/internal/persistence"
	"github.com/example/lesson-scheduler/internal/persistence/postgres"
	"github.com/example/lesson-scheduler/internal/persistence/sqlite"
	"github.com/example/lesson-scheduler/internal/telemetry"
)

const serviceName = "lesson-scheduler"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeNotifier(); cerr != nil {
			logger.Error("failed to close notifier", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(store, notifier, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "database", cfg.DatabaseDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

type migratingStore interface {
	persistence.Store
	Migrate(ctx context.Context) error
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context, cfg config.Config) (persistence.Store, error) {
	var (
		store migratingStore
		err   error
	)
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		store, err = sqlite.Open(cfg.SQLiteDSN)
	case config.DriverPostgres:
		store, err = postgres.Open(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return store, nil
}

// newNotifier publishes to Kafka when brokers are configured and logs events
// otherwise.
func newNotifier(cfg config.Config, logger *slog.Logger) (application.BookingNotifier, func() error, error) {
	if cfg.KafkaBrokers == "" {
		return notify.Log{Logger: logger}, func() error { return nil }, nil
	}
	notifier, err := notify.NewKafkaNotifier(notify.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka notifier: %w", err)
	}
	return notifier, notifier.Close, nil
}

func newHandler(store persistence.Store, notifier application.BookingNotifier, cfg config.Config, logger *slog.Logger) http.Handler {
	deps := application.Dependencies{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
	}
	configurations := application.NewConfigurationService(deps)
	availability := application.NewAvailabilityService(deps)
	bookings := application.NewBookingCoordinator(deps)

	checks := map[string]httptransport.ReadinessCheck{
		"database": store.Ping,
	}
	if cfg.KafkaBrokers != "" {
		checks["kafka"] = notify.ReadyCheck(cfg.KafkaBrokers)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Public: httptransport.NewPublicHandler(availability, bookings, logger),
		Admin:  httptransport.NewAdminHandler(configurations, availability, bookings, logger),
		Health: httptransport.NewHealthHandler(checks, logger),
		Logger: logger,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	})
	return otelhttp.NewHandler(router, serviceName)
}
