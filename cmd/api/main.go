package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medspa-booking/cmd/mainconfig"
	"github.com/wolfman30/medspa-booking/internal/api/router"
	"github.com/wolfman30/medspa-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/medspa-booking/internal/config"
	"github.com/wolfman30/medspa-booking/internal/events"
	"github.com/wolfman30/medspa-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medspa-booking/internal/http/middleware"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medspa booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic_id", cfg.ClinicID,
		"timezone", cfg.ClinicTimezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool, err := bootstrap.OpenPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	sqlDB, err := bootstrap.OpenSQL(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var sqsSender events.SQSSender
	sqsClient, err := mainconfig.NewSQSClient(ctx, cfg)
	if err != nil {
		return err
	}
	if sqsClient != nil {
		sqsSender = sqsClient
	}

	registry, metricsHandler := setupMetrics()
	backend, err := bootstrap.BuildBackend(cfg, bootstrap.BackendDeps{
		Pool:       pool,
		SQL:        sqlDB,
		Redis:      redisClient,
		SQS:        sqsSender,
		Registerer: registry,
	}, logger)
	if err != nil {
		return err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go evictLoop(ctx, limiter)
	go backend.Deliverer.Start(ctx)

	r := router.New(&router.Config{
		Logger:           logger,
		Booking:          handlers.NewBookingHandler(backend.Catalog, backend.Service, logger.Component("http")),
		PatientJWTSecret: cfg.PatientJWTSecret,
		RateLimiter:      limiter,
		MetricsHandler:   metricsHandler,
		Ping:             pool.Ping,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// One last pass so events committed just before shutdown are not held
	// until the next start.
	backend.Deliverer.Drain(shutdownCtx)
	return nil
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func evictLoop(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Evict(10 * time.Minute)
		}
	}
}
