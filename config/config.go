package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"runstreak/adapters/redis"
	"runstreak/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"RUNSTREAK_ENV"`
	Profile     string      `json:"profile" env:"RUNSTREAK_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Activity feed configuration
	Feed FeedConfig `json:"feed"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Metrics and monitoring
	Metrics MetricsConfig `json:"metrics"`

	// Security configuration
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"RUNSTREAK_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"RUNSTREAK_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"RUNSTREAK_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"RUNSTREAK_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"RUNSTREAK_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"RUNSTREAK_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"RUNSTREAK_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"RUNSTREAK_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string      `json:"adapter" env:"RUNSTREAK_STORAGE_ADAPTER"`
	SQL     sqlx.Config `json:"sql,omitempty"`
	File    FileConfig  `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"RUNSTREAK_STORAGE_FILE_PATH"`
}

// FeedConfig holds activity feed provider configuration. Tokens maps
// user IDs to provider access tokens; set RUNSTREAK_FEED_TOKENS to
// "dad=tok1,mom=tok2".
type FeedConfig struct {
	BaseURL      string            `json:"base_url" env:"RUNSTREAK_FEED_BASE_URL"`
	PerPage      int               `json:"per_page" env:"RUNSTREAK_FEED_PER_PAGE"`
	RPS          float64           `json:"rps" env:"RUNSTREAK_FEED_RPS"`
	Burst        int               `json:"burst" env:"RUNSTREAK_FEED_BURST"`
	CacheEnabled bool              `json:"cache_enabled" env:"RUNSTREAK_FEED_CACHE_ENABLED"`
	CacheTTL     time.Duration     `json:"cache_ttl" env:"RUNSTREAK_FEED_CACHE_TTL"`
	Redis        redis.Config      `json:"redis,omitempty"`
	Tokens       map[string]string `json:"tokens,omitempty" env:"RUNSTREAK_FEED_TOKENS"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"RUNSTREAK_LOG_LEVEL"`
	Format     string            `json:"format" env:"RUNSTREAK_LOG_FORMAT"`
	Output     string            `json:"output" env:"RUNSTREAK_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"RUNSTREAK_METRICS_ENABLED"`
	Address string `json:"address" env:"RUNSTREAK_METRICS_ADDR"`
	Path    string `json:"path" env:"RUNSTREAK_METRICS_PATH"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"RUNSTREAK_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"RUNSTREAK_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"RUNSTREAK_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"RUNSTREAK_SECURITY_RATE_LIMIT_BURST"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment variables override file values
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/runstreak.json",
			},
		},
		Feed: FeedConfig{
			BaseURL:      "https://www.strava.com/api/v3",
			PerPage:      100,
			RPS:          2,
			Burst:        5,
			CacheEnabled: false,
			CacheTTL:     6 * time.Hour,
			Redis:        redis.DefaultConfig(),
			Tokens:       map[string]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Feed.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("feed config: %v", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Feed.Redis.Password != "" {
		cfg.Feed.Redis.Password = "[REDACTED]"
	}
	if len(cfg.Feed.Tokens) > 0 {
		redacted := make(map[string]string, len(cfg.Feed.Tokens))
		for k := range cfg.Feed.Tokens {
			redacted[k] = "[REDACTED]"
		}
		cfg.Feed.Tokens = redacted
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
