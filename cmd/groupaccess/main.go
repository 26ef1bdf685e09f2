package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/groupaccess/pkg/access"
	"github.com/platinummonkey/groupaccess/pkg/cache"
	"github.com/platinummonkey/groupaccess/pkg/config"
	"github.com/platinummonkey/groupaccess/pkg/events"
	"github.com/platinummonkey/groupaccess/pkg/group"
	"github.com/platinummonkey/groupaccess/pkg/httpapi"
	"github.com/platinummonkey/groupaccess/pkg/httputil"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/permissions"
	"github.com/platinummonkey/groupaccess/pkg/queryaccess"
	"github.com/platinummonkey/groupaccess/pkg/relation"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "groupaccess: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := storage.Open(ctx, cfg.Database.ConnectionConfig)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := storage.RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	registry := relation.NewRegistry(newRegistryLogger(cfg.Observability.LogLevel))
	if cfg.Permissions.ManifestDir != "" {
		n, err := registry.LoadDir(cfg.Permissions.ManifestDir)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to load plugin manifests: %w", err)
		}
		logger.Infof("loaded %d plugin manifests from %s", n, cfg.Permissions.ManifestDir)
	}
	var manifestWatcher *relation.ManifestWatcher
	if cfg.Permissions.WatchManifests {
		if manifestWatcher, err = registry.WatchDir(cfg.Permissions.ManifestDir); err != nil {
			_ = db.Close()
			return err
		}
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	backend, err := cache.New(&cfg.Cache)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create permission cache: %w", err)
	}

	bus := events.NewBus(logger)
	store, err := storage.New(db, cfg.Database.Driver, registry,
		storage.WithPublisher(bus),
		storage.WithMetrics(metrics),
		storage.WithLogger(logger),
	)
	if err != nil {
		_ = backend.Close()
		_ = db.Close()
		return err
	}
	bus.Subscribe(events.InvalidateTags(metrics, backend))
	bus.Subscribe(events.ResetRoleCache(store))
	bus.Subscribe(events.TouchRelatedEntity(touchEntity(registry, backend)))

	gdb, err := storage.OpenGorm(db, cfg.Database.Driver)
	if err != nil {
		_ = backend.Close()
		_ = db.Close()
		return err
	}

	chain := permissions.NewChain([]permissions.Calculator{
		permissions.NewSynchronizedCalculator(store),
		permissions.NewIndividualCalculator(store, store),
	}, backend, logger, metrics)
	checker := permissions.NewChecker(chain, store)

	var limiter *httputil.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter, err = httputil.NewRateLimiter(&httputil.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimit,
			WindowDuration:    cfg.Server.RateLimitWindow,
			BurstSize:         cfg.Server.RateLimitBurst,
		})
		if err != nil {
			_ = backend.Close()
			_ = db.Close()
			return err
		}
	}

	api := httpapi.NewServer(httpapi.Deps{
		Loader:      store,
		Registry:    registry,
		Calculation: chain,
		Checker:     checker,
		Hasher:      permissions.NewHashGenerator(chain, cfg.Permissions.HashSalt, backend),
		Engine:      access.NewEngine(registry, checker, store, access.WithLogger(logger), access.WithMetrics(metrics)),
		Rewriter:    queryaccess.NewRewriter(chain, registry, queryaccess.WithLogger(logger), queryaccess.WithMetrics(metrics)),
		DB:          gdb,
		RateLimiter: limiter,
		Logger:      logger,
		Metrics:     metrics,
	})

	var pinger observability.Pinger
	if p, ok := backend.(observability.Pinger); ok {
		pinger = p
	}
	health := observability.NewHealthChecker(db, pinger, metrics, cfg.Observability.OTelServiceVersion)
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, health)
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.MetricsHandler(promRegistry)).Methods(http.MethodGet)
	}

	collector, err := observability.NewStatsCollector(cfg.Observability.StatsSchedule, db, metrics, logger)
	if err != nil {
		_ = backend.Close()
		_ = db.Close()
		return err
	}
	collector.Start()

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthRouter,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterServer(apiServer)
	shutdown.RegisterServer(healthServer)
	shutdown.RegisterShutdownFunc(collector.Stop)
	if manifestWatcher != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return manifestWatcher.Close() })
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return backend.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return db.Close() })
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	serverErr := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		defer observability.RecoverPanic(logger, name+" server")
		logger.Infof("%s server listening on %s", name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("api", apiServer)
	go serve("health", healthServer)

	return shutdown.WaitForShutdown(serverErr)
}

// touchEntity invalidates the cache tag of the entity on the other end of a
// relationship, so rendered access results for it are recomputed
func touchEntity(registry *relation.Registry, backend cache.Backend) events.TouchFunc {
	return func(ctx context.Context, rel *group.Relationship) error {
		def, err := registry.Definition(rel.PluginID)
		if err != nil {
			return err
		}
		entity := group.Entity{TypeID: def.EntityTypeID, ID: rel.EntityID}
		return backend.InvalidateTags(ctx, entity.CacheTag())
	}
}

func newRegistryLogger(level observability.LogLevel) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(level.Logrus())
	return log
}
