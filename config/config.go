package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	apperrors "github.com/rajasatyajit/brocante/internal/errors"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Ingest   IngestConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
	Admin    AdminConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Host                    string
	Port                    int
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	IdleTimeout             time.Duration
	GracefulShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// StoreConfig selects the event store. "auto" uses Postgres when
// DATABASE_URL is set and memory otherwise.
type StoreConfig struct {
	Driver     string // auto, memory, postgres or sqlite
	SQLitePath string
}

type IngestConfig struct {
	TourismEnabled      bool
	TourismManifestPath string
	TourismObjectsDir   string
	GeoFeedEnabled      bool
	GeoFeedURL          string
	GeoFeedLimit        int
	GeoFeedTimeout      time.Duration
	Timezone            string
	DefaultStartHour    int
	LookaheadMonths     int
	TaxonomyPath        string
}

type PipelineConfig struct {
	RateLimit        float64
	WorkerCount      int
	ScheduleInterval time.Duration
	RunOnStart       bool
	RunLockTTL       time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type AdminConfig struct {
	AdminSecret string
}

// Load loads configuration from environment variables with sensible
// defaults. Variables from ENV_FILE (or ./.env when present) fill in any
// that are not already set.
func Load() (*Config, error) {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	} else {
		_ = godotenv.Load()
	}

	manifest := getEnv("TOURISM_MANIFEST_PATH", "")
	geoURL := getEnv("GEOFEED_URL", "")

	cfg := &Config{
		Server: ServerConfig{
			Host:                    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:                    getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:             getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:            getEnvDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			IdleTimeout:             getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			GracefulShutdownTimeout: getEnvDuration("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvDuration("DB_MAX_CONN_LIFETIME", 1*time.Hour),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},
		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", "auto"),
			SQLitePath: getEnv("SQLITE_PATH", "brocante.db"),
		},
		Ingest: IngestConfig{
			TourismEnabled:      getEnvBool("TOURISM_ENABLED", manifest != ""),
			TourismManifestPath: manifest,
			TourismObjectsDir:   getEnv("TOURISM_OBJECTS_DIR", ""),
			GeoFeedEnabled:      getEnvBool("GEOFEED_ENABLED", geoURL != ""),
			GeoFeedURL:          geoURL,
			GeoFeedLimit:        getEnvInt("GEOFEED_LIMIT", 10000),
			GeoFeedTimeout:      getEnvDuration("GEOFEED_TIMEOUT", 30*time.Second),
			Timezone:            getEnv("INGEST_TIMEZONE", "Europe/Paris"),
			DefaultStartHour:    getEnvInt("INGEST_DEFAULT_START_HOUR", 6),
			LookaheadMonths:     getEnvInt("INGEST_LOOKAHEAD_MONTHS", 6),
			TaxonomyPath:        getEnv("TAXONOMY_PATH", ""),
		},
		Pipeline: PipelineConfig{
			RateLimit:        getEnvFloat("PIPELINE_RATE_LIMIT", 2.0),
			WorkerCount:      getEnvInt("PIPELINE_WORKER_COUNT", 2),
			ScheduleInterval: getEnvDuration("PIPELINE_SCHEDULE_INTERVAL", 24*time.Hour),
			RunOnStart:       getEnvBool("PIPELINE_RUN_ON_START", true),
			RunLockTTL:       getEnvDuration("PIPELINE_RUN_LOCK_TTL", 2*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Admin: AdminConfig{
			AdminSecret: getEnv("ADMIN_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks every section and reports all problems at once as a
// MultiError of ValidationErrors.
func (c *Config) Validate() error {
	var errs apperrors.MultiError
	invalid := func(field, format string, args ...any) {
		errs.Add(apperrors.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		invalid("SERVER_PORT", "invalid server port: %d", c.Server.Port)
	}
	if c.Database.MaxConns < 1 {
		invalid("DB_MAX_CONNS", "must be at least 1")
	}
	if c.Pipeline.WorkerCount < 1 {
		invalid("PIPELINE_WORKER_COUNT", "must be at least 1")
	}
	if c.Pipeline.RateLimit <= 0 {
		invalid("PIPELINE_RATE_LIMIT", "must be positive")
	}
	if c.Pipeline.ScheduleInterval <= 0 {
		invalid("PIPELINE_SCHEDULE_INTERVAL", "must be positive")
	}

	switch c.Store.Driver {
	case "auto", "memory":
	case "postgres":
		if c.Database.URL == "" {
			invalid("DATABASE_URL", "required by store driver postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			invalid("SQLITE_PATH", "required by store driver sqlite")
		}
	default:
		invalid("STORE_DRIVER", "unknown store driver: %q", c.Store.Driver)
	}

	if c.Ingest.TourismEnabled && c.Ingest.TourismManifestPath == "" {
		invalid("TOURISM_MANIFEST_PATH", "required when the tourism source is enabled")
	}
	if c.Ingest.GeoFeedEnabled && c.Ingest.GeoFeedURL == "" {
		invalid("GEOFEED_URL", "required when the geo feed source is enabled")
	}
	if c.Ingest.DefaultStartHour < 0 || c.Ingest.DefaultStartHour > 23 {
		invalid("INGEST_DEFAULT_START_HOUR", "must be between 0 and 23, got %d", c.Ingest.DefaultStartHour)
	}
	if c.Ingest.LookaheadMonths < 1 {
		invalid("INGEST_LOOKAHEAD_MONTHS", "must be at least 1, got %d", c.Ingest.LookaheadMonths)
	}
	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		invalid("INGEST_TIMEZONE", "unknown timezone %q", c.Ingest.Timezone)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Location returns the ingest timezone. Validate guarantees it loads.
func (c IngestConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
