package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxScanPageSize is the largest page the backing store will return for a single query.
const MaxScanPageSize = 1000

// Config holds all configuration for the KPI dashboard service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Scan      ScanConfig
	Cache     CacheConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
	// EnsureSchema creates tables and indexes on startup.
	EnsureSchema bool
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ScanConfig controls the paged full-scan fetcher.
type ScanConfig struct {
	PageSize int
}

// CacheConfig controls the dashboard read cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// Load reads configuration from the environment, after applying a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("KPI_HTTP_ADDR", ":8080"),
			Env:             getEnv("KPI_ENV", "development"),
			ShutdownTimeout: getDurationEnv("KPI_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:      getBoolEnv("KPI_DB_ENABLED", true),
			Host:         getEnv("KPI_DB_HOST", "localhost"),
			Port:         getIntEnv("KPI_DB_PORT", 5432),
			User:         getEnv("KPI_DB_USER", "kpi"),
			Password:     getEnv("KPI_DB_PASSWORD", "kpi_secret"),
			DBName:       getEnv("KPI_DB_NAME", "campaign_kpi"),
			SSLMode:      getEnv("KPI_DB_SSLMODE", "disable"),
			MaxConns:     getIntEnv("KPI_DB_MAX_CONNS", 25),
			MinConns:     getIntEnv("KPI_DB_MIN_CONNS", 2),
			EnsureSchema: getBoolEnv("KPI_DB_ENSURE_SCHEMA", true),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("KPI_REDIS_ENABLED", false),
			Addr:     getEnv("KPI_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("KPI_REDIS_PASSWORD", ""),
			DB:       getIntEnv("KPI_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("KPI_AUTH_ENABLED", true),
			MasterKey: getEnv("KPI_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("KPI_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("KPI_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("KPI_RATE_LIMIT_RPS", 50),
			Burst:   getIntEnv("KPI_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("KPI_LOG_LEVEL", "info"),
			Format: getEnv("KPI_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("KPI_METRICS_ENABLED", true),
			Path:    getEnv("KPI_METRICS_PATH", "/metrics"),
		},
		Scan: ScanConfig{
			PageSize: getIntEnv("KPI_SCAN_PAGE_SIZE", MaxScanPageSize),
		},
		Cache: CacheConfig{
			Enabled: getBoolEnv("KPI_CACHE_ENABLED", true),
			TTL:     getDurationEnv("KPI_CACHE_TTL", 5*time.Minute),
			Prefix:  getEnv("KPI_CACHE_PREFIX", "kpi:dash:"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and in range.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("KPI_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Scan.PageSize <= 0 || c.Scan.PageSize > MaxScanPageSize {
		return fmt.Errorf("KPI_SCAN_PAGE_SIZE must be between 1 and %d, got %d", MaxScanPageSize, c.Scan.PageSize)
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("KPI_CACHE_TTL must be positive when the cache is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
