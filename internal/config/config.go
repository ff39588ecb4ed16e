// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Game         GameConfig         `mapstructure:"game"`
	Entitlements EntitlementsConfig `mapstructure:"entitlements"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Badges       []BadgeConfig      `mapstructure:"badges"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	// Per-user request rate on the game API.
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig contains database connection settings for the attempt store and the cache.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres or sqlite
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL used by golang-migrate.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// SQLiteConfig contains the SQLite database file used for development.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	// AttemptTTL is how long a cached attempt survives, in hours.
	AttemptTTL int `mapstructure:"attempt_ttl"`
}

// GameConfig contains the puzzle and streak rules.
type GameConfig struct {
	MaxGuesses             int    `mapstructure:"max_guesses"`
	LookbackLimit          int    `mapstructure:"lookback_limit"`
	AllowOfflineFreshStart bool   `mapstructure:"allow_offline_fresh_start"`
	Timezone               string `mapstructure:"timezone"`
	DefaultDigitFormat     string `mapstructure:"default_digit_format"`
}

// EntitlementsConfig describes the free and pro protection tiers.
type EntitlementsConfig struct {
	Free     TierConfig `mapstructure:"free"`
	Pro      TierConfig `mapstructure:"pro"`
	ProUsers []string   `mapstructure:"pro_users"`
}

// TierConfig contains the allowances of one tier.
type TierConfig struct {
	StreakSaverAllowance int `mapstructure:"streak_saver_allowance"`
	HolidayAllowance     int `mapstructure:"holiday_allowance"`
	HolidayDurationDays  int `mapstructure:"holiday_duration_days"`
}

// OutboxConfig contains the retry queue settings for terminal writes.
type OutboxConfig struct {
	DrainSchedule string  `mapstructure:"drain_schedule"` // Cron expression
	BatchSize     int     `mapstructure:"batch_size"`
	BaseBackoff   int     `mapstructure:"base_backoff"` // seconds
	MaxBackoff    int     `mapstructure:"max_backoff"`  // seconds
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SnapshotRefresh string `mapstructure:"snapshot_refresh"` // Cron expression
	Timezone        string `mapstructure:"timezone"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// BadgeConfig represents a gamification badge with earning criteria.
type BadgeConfig struct {
	Name        string                 `mapstructure:"name"`
	Description string                 `mapstructure:"description"`
	Icon        string                 `mapstructure:"icon"`
	Criteria    map[string]interface{} `mapstructure:"criteria"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/datestreak/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// Database configuration
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Game configuration
	_ = v.BindEnv("game.max_guesses", "GAME_MAX_GUESSES")
	_ = v.BindEnv("game.lookback_limit", "GAME_LOOKBACK_LIMIT")
	_ = v.BindEnv("game.allow_offline_fresh_start", "GAME_ALLOW_OFFLINE_FRESH_START")
	_ = v.BindEnv("game.timezone", "GAME_TIMEZONE")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.snapshot_refresh", "SCHEDULER_SNAPSHOT_REFRESH")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("outbox.drain_schedule", "OUTBOX_DRAIN_SCHEDULE")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.rate_limit_per_second", 5)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite.path", "datestreak.db")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("database.redis.attempt_ttl", 24*14)

	v.SetDefault("game.max_guesses", 5)
	v.SetDefault("game.lookback_limit", 7)
	v.SetDefault("game.allow_offline_fresh_start", false)
	v.SetDefault("game.timezone", "UTC")
	v.SetDefault("game.default_digit_format", "DDMMYY")

	v.SetDefault("entitlements.free.streak_saver_allowance", 1)
	v.SetDefault("entitlements.free.holiday_allowance", 0)
	v.SetDefault("entitlements.free.holiday_duration_days", 0)
	v.SetDefault("entitlements.pro.streak_saver_allowance", 3)
	v.SetDefault("entitlements.pro.holiday_allowance", 2)
	v.SetDefault("entitlements.pro.holiday_duration_days", 7)

	v.SetDefault("outbox.drain_schedule", "@every 30s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.base_backoff", 5)
	v.SetDefault("outbox.max_backoff", 3600)
	v.SetDefault("outbox.rate_per_second", 20)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.snapshot_refresh", "5 0 * * *")
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Game.MaxGuesses < 1 {
		return fmt.Errorf("game.max_guesses must be positive")
	}
	if c.Game.LookbackLimit < 2 {
		return fmt.Errorf("game.lookback_limit must be at least 2")
	}
	if _, err := c.Game.Location(); err != nil {
		return fmt.Errorf("game.timezone: %w", err)
	}
	if c.Outbox.MaxBackoff < c.Outbox.BaseBackoff {
		return fmt.Errorf("outbox.max_backoff must not be lower than outbox.base_backoff")
	}

	return nil
}

// Location returns the timezone used to decide what "today" is.
func (c *GameConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// IsPro reports whether the user is on the pro tier.
func (c *EntitlementsConfig) IsPro(userID string) bool {
	for _, u := range c.ProUsers {
		if strings.EqualFold(u, userID) {
			return true
		}
	}
	return false
}

// BaseBackoffDuration returns the first retry delay of the outbox.
func (c *OutboxConfig) BaseBackoffDuration() time.Duration {
	return time.Duration(c.BaseBackoff) * time.Second
}

// MaxBackoffDuration returns the retry delay cap of the outbox.
func (c *OutboxConfig) MaxBackoffDuration() time.Duration {
	return time.Duration(c.MaxBackoff) * time.Second
}
