package config

import (
	"testing"
	"time"

	"github.com/platinummonkey/groupaccess/pkg/cache"
	"github.com/platinummonkey/groupaccess/pkg/observability"
	"github.com/platinummonkey/groupaccess/pkg/storage"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"returns true for 'true'", "true", false, true},
		{"returns true for 'TRUE'", "TRUE", false, true},
		{"returns true for '1'", "1", false, true},
		{"returns false for 'false'", "false", true, false},
		{"returns false for garbage", "yes please", true, false},
		{"returns default when unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_BOOL", tt.envValue)
			}
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{"parses integer", "42", 42},
		{"parses negative", "-1", -1},
		{"invalid falls back to default", "abc", 7},
		{"unset falls back to default", "", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_INT", tt.envValue)
			}
			if got := getEnvInt("TEST_INT", 7); got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{"parses seconds", "30s", 30 * time.Second},
		{"parses minutes", "5m", 5 * time.Minute},
		{"invalid falls back to default", "soon", time.Second},
		{"unset falls back to default", "", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_DURATION", tt.envValue)
			}
			if got := getEnvDuration("TEST_DURATION", time.Second); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestParseLogLevel tests the parseLogLevel function
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  observability.LogLevel
	}{
		{"debug", observability.DebugLevel},
		{"DEBUG", observability.DebugLevel},
		{"info", observability.InfoLevel},
		{"warn", observability.WarnLevel},
		{"warning", observability.WarnLevel},
		{"error", observability.ErrorLevel},
		{"invalid", observability.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := parseLogLevel(tt.level); got != tt.want {
				t.Errorf("parseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadServerConfig()
		want := ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			RateLimitWindow: time.Minute,
		}
		if got != want {
			t.Errorf("loadServerConfig() = %+v, want %+v", got, want)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("GROUPACCESS_HOST", "localhost")
		t.Setenv("GROUPACCESS_PORT", "3000")
		t.Setenv("GROUPACCESS_READ_TIMEOUT", "30s")
		t.Setenv("GROUPACCESS_SHUTDOWN_TIMEOUT", "60s")
		t.Setenv("GROUPACCESS_HEALTH_PORT", "9091")
		t.Setenv("GROUPACCESS_RATE_LIMIT", "600")

		got := loadServerConfig()
		if got.Host != "localhost" {
			t.Errorf("Host = %v, want localhost", got.Host)
		}
		if got.Port != "3000" {
			t.Errorf("Port = %v, want 3000", got.Port)
		}
		if got.ReadTimeout != 30*time.Second {
			t.Errorf("ReadTimeout = %v, want 30s", got.ReadTimeout)
		}
		if got.ShutdownTimeout != 60*time.Second {
			t.Errorf("ShutdownTimeout = %v, want 60s", got.ShutdownTimeout)
		}
		if got.HealthPort != "9091" {
			t.Errorf("HealthPort = %v, want 9091", got.HealthPort)
		}
		if got.RateLimit != 600 {
			t.Errorf("RateLimit = %v, want 600", got.RateLimit)
		}
	})
}

// TestLoadDatabaseConfig tests the loadDatabaseConfig function
func TestLoadDatabaseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadDatabaseConfig()
		if got.Driver != storage.DialectPostgres {
			t.Errorf("Driver = %v, want %v", got.Driver, storage.DialectPostgres)
		}
		if got.MaxConns != 20 || got.MinConns != 5 {
			t.Errorf("pool = %d/%d, want 20/5", got.MaxConns, got.MinConns)
		}
		if got.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", got.Timeout)
		}
		if !got.AutoMigrate {
			t.Error("AutoMigrate = false, want true")
		}
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("GROUPACCESS_DB_DRIVER", "sqlite3")
		t.Setenv("GROUPACCESS_DB_DSN", "file:groups.db")
		t.Setenv("GROUPACCESS_DB_MAX_CONNS", "4")
		t.Setenv("GROUPACCESS_DB_AUTO_MIGRATE", "false")

		got := loadDatabaseConfig()
		if got.Driver != storage.DialectSQLite {
			t.Errorf("Driver = %v, want %v", got.Driver, storage.DialectSQLite)
		}
		if got.DSN != "file:groups.db" {
			t.Errorf("DSN = %v, want file:groups.db", got.DSN)
		}
		if got.MaxConns != 4 {
			t.Errorf("MaxConns = %v, want 4", got.MaxConns)
		}
		if got.AutoMigrate {
			t.Error("AutoMigrate = true, want false")
		}
	})
}

// TestLoadCacheConfig tests the loadCacheConfig function
func TestLoadCacheConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := loadCacheConfig()
		if got.Backend != cache.BackendMemory {
			t.Errorf("Backend = %v, want %v", got.Backend, cache.BackendMemory)
		}
		if got.MaxEntries != cache.DefaultConfig().MaxEntries {
			t.Errorf("MaxEntries = %v, want %v", got.MaxEntries, cache.DefaultConfig().MaxEntries)
		}
		if got.RedisDB != 0 {
			t.Errorf("RedisDB = %v, want 0", got.RedisDB)
		}
	})

	t.Run("redis", func(t *testing.T) {
		t.Setenv("GROUPACCESS_CACHE_BACKEND", "Redis")
		t.Setenv("GROUPACCESS_REDIS_URL", "redis://cache:6379")
		t.Setenv("GROUPACCESS_REDIS_PASSWORD", "secret")
		t.Setenv("GROUPACCESS_REDIS_DB", "3")
		t.Setenv("GROUPACCESS_CACHE_TTL", "1h")

		got := loadCacheConfig()
		if got.Backend != cache.BackendRedis {
			t.Errorf("Backend = %v, want %v", got.Backend, cache.BackendRedis)
		}
		if got.RedisURL != "redis://cache:6379" || got.RedisPassword != "secret" || got.RedisDB != 3 {
			t.Errorf("redis settings = %q/%q/%d", got.RedisURL, got.RedisPassword, got.RedisDB)
		}
		if got.TTL != time.Hour {
			t.Errorf("TTL = %v, want 1h", got.TTL)
		}
	})
}

// TestLoadObservabilityConfig tests the loadObservabilityConfig function
func TestLoadObservabilityConfig(t *testing.T) {
	got := loadObservabilityConfig()
	if got.LogLevel != observability.InfoLevel {
		t.Errorf("LogLevel = %v, want info", got.LogLevel)
	}
	if !got.MetricsEnabled {
		t.Error("MetricsEnabled = false, want true")
	}
	if got.OTelEnabled {
		t.Error("OTelEnabled = true, want false")
	}
	if got.OTelServiceName != "groupaccess" {
		t.Errorf("OTelServiceName = %v, want groupaccess", got.OTelServiceName)
	}
	if got.StatsSchedule != observability.DefaultStatsSchedule {
		t.Errorf("StatsSchedule = %v, want %v", got.StatsSchedule, observability.DefaultStatsSchedule)
	}

	t.Setenv("GROUPACCESS_LOG_LEVEL", "debug")
	t.Setenv("GROUPACCESS_OTEL_ENABLED", "true")
	got = loadObservabilityConfig()
	if got.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", got.LogLevel)
	}
	if !got.OTelEnabled {
		t.Error("OTelEnabled = false, want true")
	}
}

func validConfig() Config {
	return Config{
		Server: ServerConfig{Port: "8080", HealthPort: "9090"},
		Database: DatabaseConfig{ConnectionConfig: storage.ConnectionConfig{
			Driver:   storage.DialectSQLite,
			DSN:      ":memory:",
			MaxConns: 1,
		}},
		Cache:       *cache.DefaultConfig(),
		Permissions: PermissionsConfig{HashSalt: "salt"},
	}
}

// TestConfigValidate tests the Validate method
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing server port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "missing health port",
			mutate:  func(c *Config) { c.Server.HealthPort = "" },
			wantErr: "health port is required",
		},
		{
			name:    "same server and health port",
			mutate:  func(c *Config) { c.Server.HealthPort = "8080" },
			wantErr: "server port and health port must be different",
		},
		{
			name:    "watch without manifest directory",
			mutate:  func(c *Config) { c.Permissions.WatchManifests = true },
			wantErr: "manifest directory is required to watch manifests",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Server.RateLimit = -1 },
			wantErr: "rate limit and burst must not be negative",
		},
		{
			name:    "rate limit without window",
			mutate:  func(c *Config) { c.Server.RateLimit = 10 },
			wantErr: "rate limit window must be positive",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "invalid database driver: mysql (must be postgres or sqlite3)",
		},
		{
			name:    "missing DSN",
			mutate:  func(c *Config) { c.Database.DSN = "" },
			wantErr: "database DSN is required",
		},
		{
			name:    "min above max connections",
			mutate:  func(c *Config) { c.Database.MinConns = 5 },
			wantErr: "database min connections (5) exceed max connections (1)",
		},
		{
			name:    "redis without URL",
			mutate:  func(c *Config) { c.Cache.Backend = cache.BackendRedis },
			wantErr: "redis URL is required for the redis cache backend",
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "invalid cache backend: memcached (must be memory or redis)",
		},
		{
			name:    "missing hash salt",
			mutate:  func(c *Config) { c.Permissions.HashSalt = "" },
			wantErr: "permission hash salt is required",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "test"
			},
			wantErr: "OpenTelemetry endpoint is required when OTel is enabled",
		},
		{
			name: "otel enabled without service name",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = "localhost:4317"
			},
			wantErr: "OpenTelemetry service name is required when OTel is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error %q, got nil", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"GROUPACCESS_DB_DRIVER": "sqlite3",
				"GROUPACCESS_DB_DSN":    ":memory:",
				"GROUPACCESS_HASH_SALT": "salt",
			},
		},
		{
			name: "missing salt",
			env: map[string]string{
				"GROUPACCESS_DB_DSN": "postgres://localhost/groupaccess",
			},
			wantErr: true,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"GROUPACCESS_PORT":        "8080",
				"GROUPACCESS_HEALTH_PORT": "8080",
				"GROUPACCESS_DB_DSN":      "postgres://localhost/groupaccess",
				"GROUPACCESS_HASH_SALT":   "salt",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
