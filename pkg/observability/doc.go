// Package observability provides structured logging, Prometheus metrics, health
// checks, OpenTelemetry tracing and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("group_id", 7).Info("group saved")
//
// Request scoped loggers carry the request ID, the account ID and the trace IDs
// of the active span:
//
//	ctx = observability.WithAccountID(ctx, account.ID)
//	observability.FromContext(ctx).Debug("calculating permissions")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAccessDecision("group", "view", "allowed")
//
// Every recorder is a no-op on a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisBackend, metrics, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// Connection pool gauges are refreshed on a cron schedule:
//
//	collector, err := observability.NewStatsCollector("@every 15s", db, metrics, logger)
//	collector.Start()
//	defer collector.Stop(ctx)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "groupaccess",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
//	ctx, span := observability.StartSpan(ctx, "permissions.calculate")
//	defer func() { observability.EndSpan(span, err) }()
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	sm.RegisterServer(server)
//	sm.RegisterShutdownFunc(func(ctx context.Context) error { return db.Close() })
//	err := sm.WaitForShutdown(serverErrors)
package observability
