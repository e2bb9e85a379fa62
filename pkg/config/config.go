package config

import (
	"fmt"
	"time"

	redispkg "github.com/cashpoint-io/atmd/pkg/redis"
)

// Config holds runtime configuration for the cashpoint daemon.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Logger    LoggerConfig    `mapstructure:"logger" validate:"required"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     redispkg.Config `mapstructure:"redis"`
	ATM       ATMConfig       `mapstructure:"atm" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig configures the HTTP driver surface.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggerConfig configures slog output.
type LoggerConfig struct {
	Level  string        `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"oneof=text json"`
	File   FileLogConfig `mapstructure:"file"`
}

// FileLogConfig configures rotated file output in addition to stdout.
type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig configures the Postgres connection for the audit journal.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode,
	)
}

// ATMConfig tunes the terminal session layer.
type ATMConfig struct {
	// InitialCash seeds the reserve of a newly provisioned terminal.
	InitialCash uint64 `mapstructure:"initial_cash"`
	// SessionTTL is how long a session may sit mid-authentication before
	// the sweeper resets it.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// AuditRetention is how long journal rows are kept.
	AuditRetention time.Duration `mapstructure:"audit_retention"`
	// IdempotencyTTL is how long an action's idempotency key is remembered.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// RateLimitRule pairs a request budget with its window.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig holds every configured limit.
type RateLimitConfig struct {
	PINAttempts RateLimitRule `mapstructure:"pin_attempts"`
	PerTerminal RateLimitRule `mapstructure:"per_terminal"`
	Global      RateLimitRule `mapstructure:"global"`
}

// JobsConfig tunes the background worker.
type JobsConfig struct {
	Concurrency   int    `mapstructure:"concurrency"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
	PruneSchedule string `mapstructure:"prune_schedule"`
}
