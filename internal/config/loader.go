package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SWAPD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SWAPD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. The venue table has no env overrides; venues are file-configured.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SWAPD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SWAPD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWAPD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWAPD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWAPD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWAPD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWAPD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SWAPD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SWAPD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SWAPD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SWAPD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWAPD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWAPD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWAPD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWAPD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWAPD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SWAPD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SWAPD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWAPD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWAPD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SWAPD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWAPD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SWAPD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SWAPD_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "SWAPD_S3_ARCHIVE_INTERVAL")
	setDuration(&cfg.S3.ArchiveCutoffAge, "SWAPD_S3_ARCHIVE_CUTOFF_AGE")

	// ── Scheduler ──
	setInt(&cfg.Scheduler.MaxAttempts, "SWAPD_SCHEDULER_MAX_ATTEMPTS")
	setDuration(&cfg.Scheduler.BaseDelay, "SWAPD_SCHEDULER_BASE_DELAY")
	setInt(&cfg.Scheduler.Concurrency, "SWAPD_SCHEDULER_CONCURRENCY")
	setDuration(&cfg.Scheduler.LockTTL, "SWAPD_SCHEDULER_LOCK_TTL")
	setInt(&cfg.Scheduler.QueueSize, "SWAPD_SCHEDULER_QUEUE_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SWAPD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SWAPD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWAPD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SWAPD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SWAPD_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWAPD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWAPD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWAPD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWAPD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWAPD_MODE")
	setStr(&cfg.LogLevel, "SWAPD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
