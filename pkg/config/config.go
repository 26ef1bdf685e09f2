package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/groupaccess/pkg/cache"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Permission cache configuration
	Cache cache.Config

	// Permission calculation settings
	Permissions PermissionsConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Per-account request throttling, disabled when RateLimit is 0
	RateLimit       int // Requests per RateLimitWindow
	RateLimitWindow time.Duration
	RateLimitBurst  int
}

// DatabaseConfig holds the connection and schema settings
type DatabaseConfig struct {
	storage.ConnectionConfig
	AutoMigrate bool
}

// PermissionsConfig holds settings of the permission engine
type PermissionsConfig struct {
	HashSalt    string // Salt of the permission hash, required
	ManifestDir string // Directory of relation plugin YAML manifests

	// WatchManifests registers manifests added to ManifestDir while running
	WatchManifests bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
	StatsSchedule  string // Cron spec of the connection pool collector

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Permissions:   loadPermissionsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GROUPACCESS_HOST", "0.0.0.0"),
		Port:            getEnv("GROUPACCESS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GROUPACCESS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GROUPACCESS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GROUPACCESS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GROUPACCESS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GROUPACCESS_HEALTH_PORT", "9090"),
		RateLimit:       getEnvInt("GROUPACCESS_RATE_LIMIT", 0),
		RateLimitWindow: getEnvDuration("GROUPACCESS_RATE_LIMIT_WINDOW", time.Minute),
		RateLimitBurst:  getEnvInt("GROUPACCESS_RATE_LIMIT_BURST", 0),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		ConnectionConfig: storage.ConnectionConfig{
			Driver:      getEnv("GROUPACCESS_DB_DRIVER", storage.DialectPostgres),
			DSN:         getEnv("GROUPACCESS_DB_DSN", ""),
			MaxConns:    getEnvInt("GROUPACCESS_DB_MAX_CONNS", 20),
			MinConns:    getEnvInt("GROUPACCESS_DB_MIN_CONNS", 5),
			Timeout:     getEnvDuration("GROUPACCESS_DB_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("GROUPACCESS_DB_MAX_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("GROUPACCESS_DB_MAX_IDLE_TIME", 10*time.Minute),
		},
		AutoMigrate: getEnvBool("GROUPACCESS_DB_AUTO_MIGRATE", true),
	}
}

// loadCacheConfig loads permission cache configuration from environment
func loadCacheConfig() cache.Config {
	cfg := *cache.DefaultConfig()

	if backend := getEnv("GROUPACCESS_CACHE_BACKEND", ""); backend != "" {
		cfg.Backend = strings.ToLower(backend)
	}
	if maxEntries := getEnvInt("GROUPACCESS_CACHE_MAX_ENTRIES", 0); maxEntries > 0 {
		cfg.MaxEntries = maxEntries
	}
	if ttl := getEnvDuration("GROUPACCESS_CACHE_TTL", 0); ttl > 0 {
		cfg.TTL = ttl
	}
	if prefix := getEnv("GROUPACCESS_CACHE_KEY_PREFIX", ""); prefix != "" {
		cfg.KeyPrefix = prefix
	}

	// Redis config
	cfg.RedisURL = getEnv("GROUPACCESS_REDIS_URL", "")
	cfg.RedisPassword = getEnv("GROUPACCESS_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("GROUPACCESS_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}

	return cfg
}

// loadPermissionsConfig loads permission engine settings from environment
func loadPermissionsConfig() PermissionsConfig {
	return PermissionsConfig{
		HashSalt:       getEnv("GROUPACCESS_HASH_SALT", ""),
		ManifestDir:    getEnv("GROUPACCESS_MANIFEST_DIR", ""),
		WatchManifests: getEnvBool("GROUPACCESS_MANIFEST_WATCH", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("GROUPACCESS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GROUPACCESS_METRICS_ENABLED", true),
		StatsSchedule:      getEnv("GROUPACCESS_STATS_SCHEDULE", observability.DefaultStatsSchedule),
		OTelEnabled:        getEnvBool("GROUPACCESS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GROUPACCESS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GROUPACCESS_OTEL_SERVICE_NAME", "groupaccess"),
		OTelServiceVersion: getEnv("GROUPACCESS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GROUPACCESS_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Server.RateLimit < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit and burst must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	// Validate database config
	switch c.Database.Driver {
	case storage.DialectPostgres, storage.DialectSQLite:
	default:
		return fmt.Errorf("invalid database driver: %s (must be %s or %s)", c.Database.Driver, storage.DialectPostgres, storage.DialectSQLite)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min connections (%d) exceed max connections (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	// Validate cache config
	switch c.Cache.Backend {
	case cache.BackendMemory:
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("cache max entries must be positive")
		}
	case cache.BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be %s or %s)", c.Cache.Backend, cache.BackendMemory, cache.BackendRedis)
	}

	if c.Permissions.HashSalt == "" {
		return fmt.Errorf("permission hash salt is required")
	}
	if c.Permissions.WatchManifests && c.Permissions.ManifestDir == "" {
		return fmt.Errorf("manifest directory is required to watch manifests")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string, falling back to info
func parseLogLevel(level string) observability.LogLevel {
	parsed, err := observability.ParseLogLevel(level)
	if err != nil {
		return observability.InfoLevel
	}
	return parsed
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
