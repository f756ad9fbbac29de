package bootstrap

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-booking/internal/availability"
	"github.com/wolfman30/medspa-booking/internal/catalog"
	appconfig "github.com/wolfman30/medspa-booking/internal/config"
	"github.com/wolfman30/medspa-booking/internal/events"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/internal/scheduling"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

// Backend groups the wired server-side components.
type Backend struct {
	Catalog   *catalog.CachedProvider
	Resolver  *availability.Resolver
	Service   *scheduling.Service
	Outbox    *events.OutboxStore
	Deliverer *events.Deliverer
	Metrics   *metrics.BookingMetrics
}

// BackendDeps are the connections the backend runs on. Redis and SQS are optional.
type BackendDeps struct {
	Pool       scheduling.DB
	SQL        *sql.DB
	Redis      *redis.Client
	SQS        events.SQSSender
	Registerer prometheus.Registerer
}

// BuildBackend wires catalog, availability, scheduling and outbox delivery.
func BuildBackend(cfg *appconfig.Config, deps BackendDeps, logger *logging.Logger) (*Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Pool == nil || deps.SQL == nil {
		return nil, fmt.Errorf("bootstrap: database handles are required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cat := catalog.NewCachedProvider(catalog.NewSQLStore(deps.SQL), deps.Redis, cfg.CatalogCacheTTL, logger.Component("catalog"))
	store := scheduling.NewStore(deps.Pool)
	resolver := availability.NewResolver(cat, store,
		availability.WithInterval(cfg.SlotInterval),
		availability.WithLocation(cfg.Location()),
		availability.WithLogger(logger.Component("availability")),
	)
	m := metrics.NewBookingMetrics(deps.Registerer)
	outbox := events.NewOutboxStore(deps.Pool)
	service := scheduling.NewService(store, cat, resolver, outbox,
		scheduling.WithClinicID(cfg.ClinicID),
		scheduling.WithAutoConfirm(cfg.AutoConfirm),
		scheduling.WithMetrics(m),
		scheduling.WithLogger(logger.Component("scheduling")),
	)
	deliverer := events.NewDeliverer(outbox, EventHandler(cfg, deps.SQS, logger), logger.Component("outbox")).
		WithInterval(cfg.OutboxPollInterval).
		WithMetrics(m)

	return &Backend{
		Catalog:   cat,
		Resolver:  resolver,
		Service:   service,
		Outbox:    outbox,
		Deliverer: deliverer,
		Metrics:   m,
	}, nil
}

// EventHandler publishes to SQS when a queue is configured and logs otherwise.
func EventHandler(cfg *appconfig.Config, client events.SQSSender, logger *logging.Logger) events.DeliveryHandler {
	if client != nil && cfg != nil && strings.TrimSpace(cfg.EventsQueueURL) != "" {
		return events.NewSQSPublisher(client, cfg.EventsQueueURL)
	}
	logger.Info("no events queue configured; booking events will be logged")
	return events.LogHandler{Logger: logger.Component("events")}
}
