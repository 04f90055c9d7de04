package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the insights engine.
type Config struct {
	Server     ServerConfig
	Commerce   CommerceConfig
	Analytics  AnalyticsConfig
	ClickHouse ClickHouseConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Reports    ReportsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// CommerceConfig configures the upstream commerce backend client.
type CommerceConfig struct {
	BaseURL  string
	Token    string
	PageSize int
	// RequestTimeout bounds a single page request, retries excluded.
	RequestTimeout time.Duration
	MaxRetries     int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	// RPS and Burst throttle page requests across all collections.
	RPS   float64
	Burst int
	// GroupIDPrefix marks metadata group values that are ids, not names.
	GroupIDPrefix string
}

// AnalyticsConfig configures the HTTP event-analytics collaborator.
type AnalyticsConfig struct {
	Enabled bool
	BaseURL string
	Token   string
	Timeout time.Duration
	// Provenance tags the stage counts this collaborator reports:
	// session_analytics or event_tracker.
	Provenance string
}

// ClickHouseConfig configures the on-site event tracker store.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
	Table    string
}

// DatabaseConfig configures the session-analytics Postgres warehouse.
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

// CacheConfig configures the fetch result cache.
type CacheConfig struct {
	TTL    time.Duration
	Prefix string
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
	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
	IdleTTL        time.Duration
	MaxClients     int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// ReportsConfig holds report-level defaults.
type ReportsConfig struct {
	DefaultGroup string
	// ProductIDMap maps event-tracker product ids to commerce product ids.
	ProductIDMap map[string]string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("INSIGHTS_HTTP_ADDR", ":8080"),
			Env:             getEnv("INSIGHTS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("INSIGHTS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Commerce: CommerceConfig{
			BaseURL:        getEnv("INSIGHTS_COMMERCE_URL", "http://localhost:9000/admin"),
			Token:          getEnv("INSIGHTS_COMMERCE_TOKEN", ""),
			PageSize:       getIntEnv("INSIGHTS_COMMERCE_PAGE_SIZE", 100),
			RequestTimeout: getDurationEnv("INSIGHTS_COMMERCE_REQUEST_TIMEOUT", 15*time.Second),
			MaxRetries:     getIntEnv("INSIGHTS_COMMERCE_MAX_RETRIES", 3),
			RetryInitial:   getDurationEnv("INSIGHTS_COMMERCE_RETRY_INITIAL", 200*time.Millisecond),
			RetryMax:       getDurationEnv("INSIGHTS_COMMERCE_RETRY_MAX", 5*time.Second),
			RPS:            getFloatEnv("INSIGHTS_COMMERCE_RPS", 20),
			Burst:          getIntEnv("INSIGHTS_COMMERCE_BURST", 5),
			GroupIDPrefix:  getEnv("INSIGHTS_GROUP_ID_PREFIX", "cusgroup_"),
		},
		Analytics: AnalyticsConfig{
			Enabled:    getBoolEnv("INSIGHTS_ANALYTICS_ENABLED", false),
			BaseURL:    getEnv("INSIGHTS_ANALYTICS_URL", "http://localhost:9100"),
			Token:      getEnv("INSIGHTS_ANALYTICS_TOKEN", ""),
			Timeout:    getDurationEnv("INSIGHTS_ANALYTICS_TIMEOUT", 10*time.Second),
			Provenance: getEnv("INSIGHTS_ANALYTICS_PROVENANCE", "session_analytics"),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("INSIGHTS_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("INSIGHTS_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("INSIGHTS_CLICKHOUSE_DB", "tracker"),
			User:     getEnv("INSIGHTS_CLICKHOUSE_USER", "default"),
			Password: getEnv("INSIGHTS_CLICKHOUSE_PASSWORD", ""),
			Table:    getEnv("INSIGHTS_CLICKHOUSE_TABLE", "events"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("INSIGHTS_DB_ENABLED", false),
			Host:     getEnv("INSIGHTS_DB_HOST", "localhost"),
			Port:     getIntEnv("INSIGHTS_DB_PORT", 5432),
			User:     getEnv("INSIGHTS_DB_USER", "insights"),
			Password: getEnv("INSIGHTS_DB_PASSWORD", "insights_secret"),
			DBName:   getEnv("INSIGHTS_DB_NAME", "sessions"),
			SSLMode:  getEnv("INSIGHTS_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("INSIGHTS_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("INSIGHTS_DB_MIN_CONNS", 1),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("INSIGHTS_REDIS_ENABLED", false),
			Addr:     getEnv("INSIGHTS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("INSIGHTS_REDIS_PASSWORD", ""),
			DB:       getIntEnv("INSIGHTS_REDIS_DB", 0),
		},
		Cache: CacheConfig{
			TTL:    getDurationEnv("INSIGHTS_CACHE_TTL", 5*time.Minute),
			Prefix: getEnv("INSIGHTS_CACHE_PREFIX", "insights:"),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("INSIGHTS_AUTH_ENABLED", true),
			MasterKey: getEnv("INSIGHTS_API_KEY", ""),
			SkipPaths: getSliceEnv("INSIGHTS_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("INSIGHTS_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("INSIGHTS_RATE_LIMIT_RPS", 50),
			Burst:   getIntEnv("INSIGHTS_RATE_LIMIT_BURST", 20),

			TrustedProxies: getSliceEnv("INSIGHTS_TRUSTED_PROXIES", nil),
			IdleTTL:        getDurationEnv("INSIGHTS_RATE_LIMIT_IDLE_TTL", 10*time.Minute),
			MaxClients:     getIntEnv("INSIGHTS_RATE_LIMIT_MAX_CLIENTS", 10000),
		},
		Log: LogConfig{
			Level:  getEnv("INSIGHTS_LOG_LEVEL", "info"),
			Format: getEnv("INSIGHTS_LOG_FORMAT", ""),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("INSIGHTS_METRICS_ENABLED", true),
			Path:      getEnv("INSIGHTS_METRICS_PATH", "/metrics"),
			Namespace: getEnv("INSIGHTS_METRICS_NAMESPACE", "insights"),
		},
		Reports: ReportsConfig{
			DefaultGroup: getEnv("INSIGHTS_DEFAULT_GROUP", "Retail"),
			ProductIDMap: getMapEnv("INSIGHTS_PRODUCT_ID_MAP"),
		},
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
		if cfg.IsDevelopment() {
			cfg.Log.Format = "console"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("INSIGHTS_API_KEY is required when auth is enabled")
	}
	if c.IsProduction() && !c.Auth.Enabled {
		return fmt.Errorf("auth cannot be disabled in production")
	}
	if c.Commerce.BaseURL == "" {
		return fmt.Errorf("INSIGHTS_COMMERCE_URL is required")
	}
	if c.Commerce.PageSize <= 0 {
		return fmt.Errorf("INSIGHTS_COMMERCE_PAGE_SIZE must be positive, got %d", c.Commerce.PageSize)
	}
	if c.Commerce.MaxRetries < 0 {
		return fmt.Errorf("INSIGHTS_COMMERCE_MAX_RETRIES must not be negative")
	}
	if c.Analytics.Enabled && c.Analytics.BaseURL == "" {
		return fmt.Errorf("INSIGHTS_ANALYTICS_URL is required when analytics is enabled")
	}
	if c.Analytics.Enabled {
		switch c.Analytics.Provenance {
		case "session_analytics", "event_tracker":
		default:
			return fmt.Errorf("INSIGHTS_ANALYTICS_PROVENANCE must be session_analytics or event_tracker, got %q", c.Analytics.Provenance)
		}
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

// getMapEnv parses "a=b,c=d". Malformed pairs are skipped.
func getMapEnv(key string) map[string]string {
	result := make(map[string]string)
	for _, pair := range getSliceEnv(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		result[k] = v
	}
	return result
}
