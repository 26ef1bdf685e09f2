// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for everything except the database DSN and the permission
// hash salt.
//
// # Configuration Structure
//
// Server settings:
//
//	GROUPACCESS_HOST="0.0.0.0"
//	GROUPACCESS_PORT="8080"
//	GROUPACCESS_HEALTH_PORT="9090"
//	GROUPACCESS_READ_TIMEOUT="15s"
//	GROUPACCESS_WRITE_TIMEOUT="15s"
//	GROUPACCESS_RATE_LIMIT="0"  # requests per window and account, 0 disables
//	GROUPACCESS_RATE_LIMIT_WINDOW="1m"
//	GROUPACCESS_RATE_LIMIT_BURST="0"
//
// Database settings:
//
//	GROUPACCESS_DB_DRIVER="postgres"  # postgres, sqlite3
//	GROUPACCESS_DB_DSN="postgres://localhost/groupaccess?sslmode=disable"
//	GROUPACCESS_DB_MAX_CONNS="20"
//	GROUPACCESS_DB_AUTO_MIGRATE="true"
//
// Cache settings:
//
//	GROUPACCESS_CACHE_BACKEND="memory"  # memory, redis
//	GROUPACCESS_CACHE_MAX_ENTRIES="10000"
//	GROUPACCESS_REDIS_URL="redis://localhost:6379"
//
// Permission settings:
//
//	GROUPACCESS_HASH_SALT="change-me"
//	GROUPACCESS_MANIFEST_DIR="/etc/groupaccess/plugins"
//	GROUPACCESS_MANIFEST_WATCH="false"  # register manifests added at runtime
//
// Observability settings:
//
//	GROUPACCESS_LOG_LEVEL="info"  # debug, info, warn, error
//	GROUPACCESS_METRICS_ENABLED="true"
//	GROUPACCESS_STATS_SCHEDULE="@every 15s"
//	GROUPACCESS_OTEL_ENABLED="true"
//	GROUPACCESS_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	db, err := storage.Open(ctx, cfg.Database.ConnectionConfig)
//
// # Related Packages
//
//   - pkg/storage: Uses database configuration
//   - pkg/cache: Uses cache configuration
//   - pkg/observability: Uses observability configuration
package config
