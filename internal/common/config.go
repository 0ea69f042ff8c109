// Package common provides shared utilities for etfwatch
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Storage backend identifiers. The backend is chosen explicitly in config;
// there is no detection from connection strings and no fallback between them.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for etfwatch
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Clients     ClientsConfig   `toml:"clients"`
	Auth        AuthConfig      `toml:"auth"`
	RateLimit   RateLimitConfig `toml:"ratelimit"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
	Funds       []FundConfig    `toml:"funds"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects and configures the storage backend.
// Backend must be "sqlite" or "postgres"; anything else fails at startup.
type StorageConfig struct {
	Backend  string         `toml:"backend"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
}

// SQLiteConfig holds the embedded database file location.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds networked database connection settings.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
}

// DSN builds the keyword/value connection string for the postgres driver.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ClientsConfig holds upstream client configurations
type ClientsConfig struct {
	Pocket PocketConfig `toml:"pocket"`
	FBS    FBSConfig    `toml:"fbs"`
}

// PocketConfig holds the holdings disclosure API configuration
type PocketConfig struct {
	BaseURL   string `toml:"base_url"`
	DtNo      string `toml:"dtno"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *PocketConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// FBSConfig holds the warrant ranking page configuration
type FBSConfig struct {
	BaseURL   string `toml:"base_url"`
	Pages     int    `toml:"pages"`
	SortType  int    `toml:"sort_type"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *FBSConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// AuthConfig holds dashboard authentication configuration.
// PasswordHash (bcrypt) takes precedence over the plain Password when set.
type AuthConfig struct {
	Password       string `toml:"password"`
	PasswordHash   string `toml:"password_hash"`
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiry    string `toml:"token_expiry"` // duration string, default "8h"
	SchedulerToken string `toml:"scheduler_token"`
}

// GetTokenExpiry parses and returns the session token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 8 * time.Hour
	}
	return d
}

// RateLimitConfig holds the per-IP request limiter settings.
type RateLimitConfig struct {
	Requests int    `toml:"requests"` // allowed requests per window
	Window   string `toml:"window"`   // duration string, default "1h"
	Burst    int    `toml:"burst"`
}

// GetWindow parses and returns the limiter window duration.
func (c *RateLimitConfig) GetWindow() time.Duration {
	d, err := time.ParseDuration(c.Window)
	if err != nil {
		return time.Hour
	}
	return d
}

// SchedulerConfig holds background ingest scheduling settings.
type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`
	HoldingsInterval string `toml:"holdings_interval"`
	WarrantsInterval string `toml:"warrants_interval"`
}

// GetHoldingsInterval parses and returns the holdings ingest interval.
func (c *SchedulerConfig) GetHoldingsInterval() time.Duration {
	d, err := time.ParseDuration(c.HoldingsInterval)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// GetWarrantsInterval parses and returns the warrant scrape interval.
func (c *SchedulerConfig) GetWarrantsInterval() time.Duration {
	d, err := time.ParseDuration(c.WarrantsInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// FundConfig is one entry of the monitored fund registry.
type FundConfig struct {
	Code string `toml:"code"`
	Name string `toml:"name"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite:  SQLiteConfig{Path: "data/etfwatch.db"},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "etfwatch",
				DBName:  "etfwatch",
				SSLMode: "disable",
			},
		},
		Clients: ClientsConfig{
			Pocket: PocketConfig{
				BaseURL:   "https://www.pocket.tw/api/cm/MobileService/ashx/GetDtnoData.ashx",
				DtNo:      "59449513",
				RateLimit: 2,
				Timeout:   "30s",
			},
			FBS: FBSConfig{
				BaseURL:   "https://ebroker-dj.fbs.com.tw",
				Pages:     5,
				SortType:  3,
				RateLimit: 1,
				Timeout:   "30s",
			},
		},
		Auth: AuthConfig{
			Password:    "etf2024",
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "8h",
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   "1h",
			Burst:    20,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			HoldingsInterval: "6h",
			WarrantsInterval: "24h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Funds: []FundConfig{
			{Code: "00980A", Name: "主動野村臺灣優選ETF"},
			{Code: "00981A", Name: "統一台股增長主動式ETF"},
			{Code: "00982A", Name: "群益台灣精選強棒主動式ETF"},
			{Code: "00983A", Name: "中信ARK創新主動式ETF"},
			{Code: "00984A", Name: "安聯台灣高股息成長主動式ETF"},
			{Code: "00985A", Name: "野村台灣增強50主動式ETF"},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// TOML arrays of tables decode by appending to a populated slice,
		// so reset the registry first; a file's [[funds]] replaces the
		// defaults rather than extending them.
		prior := config.Funds
		config.Funds = nil

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if config.Funds == nil {
			config.Funds = prior
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ETFWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("ETFWATCH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("ETFWATCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("ETFWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage overrides
	if v := os.Getenv("ETFWATCH_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ETFWATCH_SQLITE_PATH"); v != "" {
		config.Storage.SQLite.Path = v
	}
	if v := os.Getenv("ETFWATCH_POSTGRES_HOST"); v != "" {
		config.Storage.Postgres.Host = v
	}
	if v := os.Getenv("ETFWATCH_POSTGRES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Storage.Postgres.Port = p
		}
	}
	if v := os.Getenv("ETFWATCH_POSTGRES_USER"); v != "" {
		config.Storage.Postgres.User = v
	}
	if v := os.Getenv("ETFWATCH_POSTGRES_PASSWORD"); v != "" {
		config.Storage.Postgres.Password = v
	}
	if v := os.Getenv("ETFWATCH_POSTGRES_DBNAME"); v != "" {
		config.Storage.Postgres.DBName = v
	}
	if v := os.Getenv("ETFWATCH_POSTGRES_SSLMODE"); v != "" {
		config.Storage.Postgres.SSLMode = v
	}

	// Auth overrides
	if v := os.Getenv("ETFWATCH_AUTH_PASSWORD"); v != "" {
		config.Auth.Password = v
	}
	if v := os.Getenv("ETFWATCH_AUTH_PASSWORD_HASH"); v != "" {
		config.Auth.PasswordHash = v
	}
	if v := os.Getenv("ETFWATCH_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("ETFWATCH_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}
	if v := os.Getenv("ETFWATCH_AUTH_SCHEDULER_TOKEN"); v != "" {
		config.Auth.SchedulerToken = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// KnownFund reports whether code is in the monitored fund registry.
func (c *Config) KnownFund(code string) bool {
	for _, f := range c.Funds {
		if f.Code == code {
			return true
		}
	}
	return false
}

// FundName returns the display name for a fund code, or the code itself
// when the code is not in the registry.
func (c *Config) FundName(code string) string {
	for _, f := range c.Funds {
		if f.Code == code {
			return f.Name
		}
	}
	return code
}

// FundCodes returns the registry codes in configured order.
func (c *Config) FundCodes() []string {
	codes := make([]string, 0, len(c.Funds))
	for _, f := range c.Funds {
		codes = append(codes, f.Code)
	}
	return codes
}
