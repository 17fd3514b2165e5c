// Package config defines the top-level configuration for the swap execution
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SWAPD_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Venues    []VenueConfig   `toml:"venues"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for event archival.
type S3Config struct {
	Enabled          bool     `toml:"enabled"`
	Endpoint         string   `toml:"endpoint"`
	Region           string   `toml:"region"`
	Bucket           string   `toml:"bucket"`
	AccessKey        string   `toml:"access_key"`
	SecretKey        string   `toml:"secret_key"`
	UseSSL           bool     `toml:"use_ssl"`
	ForcePathStyle   bool     `toml:"force_path_style"`
	ArchiveInterval  duration `toml:"archive_interval"`
	ArchiveCutoffAge duration `toml:"archive_cutoff_age"`
}

// SchedulerConfig holds the retry and concurrency policy for order
// processing.
type SchedulerConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`
	Concurrency int      `toml:"concurrency"`
	LockTTL     duration `toml:"lock_ttl"`
	QueueSize   int      `toml:"queue_size"`
}

// VenueConfig parameterises one simulated liquidity venue. Venue order in the
// config file is the canonical routing order.
type VenueConfig struct {
	ID            string   `toml:"id"`
	BasePrice     float64  `toml:"base_price"`
	Fee           float64  `toml:"fee"`
	Jitter        float64  `toml:"jitter"`
	ExecLatency   duration `toml:"exec_latency"`
	QuoteFailRate float64  `toml:"quote_fail_rate"`
	ExecFailRate  float64  `toml:"exec_fail_rate"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration to support TOML string decoding (e.g. "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. The
// default venue pair gives venue A the lower fee-adjusted price variance and
// venue B a slight price advantage, matching the simulated market the service
// ships with.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swapd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:          false,
			Endpoint:         "http://localhost:9000",
			Region:           "us-east-1",
			Bucket:           "swapd-archive",
			UseSSL:           false,
			ForcePathStyle:   true,
			ArchiveInterval:  duration{time.Hour},
			ArchiveCutoffAge: duration{24 * time.Hour},
		},
		Scheduler: SchedulerConfig{
			MaxAttempts: 3,
			BaseDelay:   duration{500 * time.Millisecond},
			Concurrency: 10,
			LockTTL:     duration{30 * time.Second},
			QueueSize:   1024,
		},
		Venues: []VenueConfig{
			{
				ID:          "A",
				BasePrice:   100.0,
				Fee:         0.003,
				Jitter:      0.01,
				ExecLatency: duration{50 * time.Millisecond},
			},
			{
				ID:          "B",
				BasePrice:   98.0,
				Fee:         0.002,
				Jitter:      0.01,
				ExecLatency: duration{50 * time.Millisecond},
			},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   50,
		},
		Notify: NotifyConfig{
			Events: []string{"order_confirmed", "order_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 only matters when archival is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be positive when enabled")
		}
	}

	// Scheduler
	if c.Scheduler.MaxAttempts < 1 {
		errs = append(errs, "scheduler: max_attempts must be >= 1")
	}
	if c.Scheduler.BaseDelay.Duration <= 0 {
		errs = append(errs, "scheduler: base_delay must be positive")
	}
	if c.Scheduler.Concurrency < 1 {
		errs = append(errs, "scheduler: concurrency must be >= 1")
	}

	// Venues
	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue must be configured")
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: id must not be empty", i))
			continue
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Sprintf("venues[%d]: duplicate id %q", i, v.ID))
		}
		seen[v.ID] = true
		if v.BasePrice <= 0 {
			errs = append(errs, fmt.Sprintf("venues[%d]: base_price must be > 0", i))
		}
		if v.Fee < 0 || v.Fee >= 1 {
			errs = append(errs, fmt.Sprintf("venues[%d]: fee must be in [0, 1)", i))
		}
		if v.QuoteFailRate < 0 || v.QuoteFailRate > 1 {
			errs = append(errs, fmt.Sprintf("venues[%d]: quote_fail_rate must be in [0, 1]", i))
		}
		if v.ExecFailRate < 0 || v.ExecFailRate > 1 {
			errs = append(errs, fmt.Sprintf("venues[%d]: exec_fail_rate must be in [0, 1]", i))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
