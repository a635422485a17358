package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Data backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Persistence
	DataBackend     string
	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnMaxLife   time.Duration
	RunMigrations   bool
	ShutdownTimeout time.Duration

	// External services
	AdvisorAPIURL string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Rate limit (advisor, per account)
	AdvisorRateLimit  int
	AdvisorRateWindow time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / Auth. Empty secret disables the account guard.
	JWTSecret string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:     strings.ToLower(getEnv("DATA_BACKEND", BackendPostgres)),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLife:   getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		RunMigrations:   getEnvBool("RUN_MIGRATIONS", true),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		AdvisorAPIURL: getEnv("ADVISOR_API_URL", "http://localhost:8090"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		AdvisorRateLimit:  getEnvInt("ADVISOR_RATE_LIMIT", 10),
		AdvisorRateWindow: getEnvDuration("ADVISOR_RATE_WINDOW", 60*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	switch c.DataBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_BACKEND=%s", BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown DATA_BACKEND %q (want %s or %s)", c.DataBackend, BackendPostgres, BackendMemory)
	}
	if c.AdvisorRateLimit < 1 || c.AdvisorRateWindow <= 0 {
		return fmt.Errorf("advisor rate limit must be positive: %d per %s", c.AdvisorRateLimit, c.AdvisorRateWindow)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive: %s", c.CacheTTL)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
