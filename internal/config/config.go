package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the DataPlunge application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	OAuth     OAuthConfig
	Ingest    IngestConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	FrontendBaseURL string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
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
	Addr     string
	Password string
	DB       int
}

// AuthConfig configures session token issuing.
type AuthConfig struct {
	JWTSecret       string
	SessionLifetime time.Duration
}

// ProviderCredentials holds OAuth client credentials for one vendor.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OAuthConfig holds per-provider OAuth application credentials.
type OAuthConfig struct {
	Google    ProviderCredentials // Google sign-in (user identity)
	GoogleAds ProviderCredentials
	Analytics ProviderCredentials
	Meta      ProviderCredentials

	// GoogleAdsDeveloperToken is required by the Google Ads REST API
	// in addition to the OAuth access token.
	GoogleAdsDeveloperToken string
	MetaAPIVersion          string
}

// IngestConfig controls vendor fetch behavior.
type IngestConfig struct {
	// WindowDays is how far back each fetch-campaigns run reaches.
	WindowDays int
	// HTTPTimeout bounds every outbound vendor call.
	HTTPTimeout time.Duration
	// MaxRetries applies only to transient provider failures.
	MaxRetries     int
	RetryBaseDelay time.Duration
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

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("DATAPLUNGE_HTTP_ADDR", ":8080"),
			Env:             getEnv("DATAPLUNGE_ENV", "development"),
			FrontendBaseURL: getEnv("DATAPLUNGE_FRONTEND_URL", "http://localhost:3000"),
			ShutdownTimeout: getDurationEnv("DATAPLUNGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DATAPLUNGE_DB_HOST", "localhost"),
			Port:     getIntEnv("DATAPLUNGE_DB_PORT", 5432),
			User:     getEnv("DATAPLUNGE_DB_USER", "dataplunge"),
			Password: getEnv("DATAPLUNGE_DB_PASSWORD", "dataplunge_secret"),
			DBName:   getEnv("DATAPLUNGE_DB_NAME", "dataplunge"),
			SSLMode:  getEnv("DATAPLUNGE_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("DATAPLUNGE_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("DATAPLUNGE_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("DATAPLUNGE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("DATAPLUNGE_REDIS_PASSWORD", ""),
			DB:       getIntEnv("DATAPLUNGE_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("DATAPLUNGE_JWT_SECRET", ""),
			SessionLifetime: getDurationEnv("DATAPLUNGE_SESSION_LIFETIME", 7*24*time.Hour),
		},
		OAuth: OAuthConfig{
			Google: ProviderCredentials{
				ClientID:     getEnv("DATAPLUNGE_GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("DATAPLUNGE_GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("DATAPLUNGE_GOOGLE_REDIRECT_URI", "http://localhost:8080/api/auth/google/callback"),
			},
			GoogleAds: ProviderCredentials{
				ClientID:     getEnv("DATAPLUNGE_GOOGLE_ADS_CLIENT_ID", ""),
				ClientSecret: getEnv("DATAPLUNGE_GOOGLE_ADS_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("DATAPLUNGE_GOOGLE_ADS_REDIRECT_URI", "http://localhost:8080/api/google-ads/callback"),
			},
			Analytics: ProviderCredentials{
				ClientID:     getEnv("DATAPLUNGE_GA_CLIENT_ID", ""),
				ClientSecret: getEnv("DATAPLUNGE_GA_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("DATAPLUNGE_GA_REDIRECT_URI", "http://localhost:8080/api/ga/callback"),
			},
			Meta: ProviderCredentials{
				ClientID:     getEnv("DATAPLUNGE_META_APP_ID", ""),
				ClientSecret: getEnv("DATAPLUNGE_META_APP_SECRET", ""),
				RedirectURL:  getEnv("DATAPLUNGE_META_REDIRECT_URI", "http://localhost:8080/api/meta/callback"),
			},
			GoogleAdsDeveloperToken: getEnv("DATAPLUNGE_GOOGLE_ADS_DEVELOPER_TOKEN", ""),
			MetaAPIVersion:          getEnv("DATAPLUNGE_META_API_VERSION", "v21.0"),
		},
		Ingest: IngestConfig{
			WindowDays:     getIntEnv("DATAPLUNGE_INGEST_WINDOW_DAYS", 30),
			HTTPTimeout:    getDurationEnv("DATAPLUNGE_INGEST_HTTP_TIMEOUT", 30*time.Second),
			MaxRetries:     getIntEnv("DATAPLUNGE_INGEST_MAX_RETRIES", 3),
			RetryBaseDelay: getDurationEnv("DATAPLUNGE_INGEST_RETRY_BASE_DELAY", 500*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("DATAPLUNGE_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("DATAPLUNGE_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("DATAPLUNGE_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("DATAPLUNGE_LOG_LEVEL", "info"),
			Format: getEnv("DATAPLUNGE_LOG_FORMAT", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("DATAPLUNGE_METRICS_ENABLED", true),
			Path:    getEnv("DATAPLUNGE_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("DATAPLUNGE_JWT_SECRET is required")
	}
	if c.Ingest.WindowDays <= 0 {
		return fmt.Errorf("DATAPLUNGE_INGEST_WINDOW_DAYS must be positive")
	}
	if c.IsProduction() && c.Database.Password == "dataplunge_secret" {
		return fmt.Errorf("DATAPLUNGE_DB_PASSWORD must be overridden in production")
	}
	return nil
}

// LogFormat resolves the log output format: an explicit setting wins,
// otherwise console in development and JSON everywhere else.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	if c.IsDevelopment() {
		return "console"
	}
	return "json"
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
