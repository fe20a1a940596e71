package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WAITERPUSH_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WAITERPUSH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Transport ──
	setStr(&cfg.Transport.Kind, "WAITERPUSH_TRANSPORT_KIND")
	setStr(&cfg.Transport.Channel, "WAITERPUSH_TRANSPORT_CHANNEL")
	setStr(&cfg.Transport.Stream, "WAITERPUSH_TRANSPORT_STREAM")
	setStr(&cfg.Transport.Group, "WAITERPUSH_TRANSPORT_GROUP")
	setStr(&cfg.Transport.Consumer, "WAITERPUSH_TRANSPORT_CONSUMER")
	setDuration(&cfg.Transport.DedupTTL, "WAITERPUSH_TRANSPORT_DEDUP_TTL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "WAITERPUSH_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "WAITERPUSH_REDIS_URL")
	setStr(&cfg.Redis.Addr, "WAITERPUSH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WAITERPUSH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WAITERPUSH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WAITERPUSH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WAITERPUSH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WAITERPUSH_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "WAITERPUSH_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "WAITERPUSH_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "WAITERPUSH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WAITERPUSH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WAITERPUSH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WAITERPUSH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WAITERPUSH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WAITERPUSH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WAITERPUSH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WAITERPUSH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WAITERPUSH_POSTGRES_RUN_MIGRATIONS")

	// ── NATS ──
	setStr(&cfg.NATS.URL, "WAITERPUSH_NATS_URL")
	setStr(&cfg.NATS.Stream, "WAITERPUSH_NATS_STREAM")
	setStringSlice(&cfg.NATS.Subjects, "WAITERPUSH_NATS_SUBJECTS")
	setStr(&cfg.NATS.Durable, "WAITERPUSH_NATS_DURABLE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WAITERPUSH_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WAITERPUSH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WAITERPUSH_S3_REGION")
	setStr(&cfg.S3.Bucket, "WAITERPUSH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WAITERPUSH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WAITERPUSH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WAITERPUSH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WAITERPUSH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "WAITERPUSH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WAITERPUSH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "WAITERPUSH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "WAITERPUSH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "WAITERPUSH_SERVER_RATE_WINDOW")
	setStr(&cfg.Server.RelayChannel, "WAITERPUSH_SERVER_RELAY_CHANNEL")
	setInt(&cfg.Server.MaxVisible, "WAITERPUSH_SERVER_MAX_VISIBLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WAITERPUSH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WAITERPUSH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WAITERPUSH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "WAITERPUSH_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookToken, "WAITERPUSH_NOTIFY_WEBHOOK_TOKEN")
	setStringSlice(&cfg.Notify.Channels, "WAITERPUSH_NOTIFY_CHANNELS")

	// ── Channels ──
	setStr(&cfg.Channels.Backend, "WAITERPUSH_CHANNELS_BACKEND")
	setBool(&cfg.Channels.EnsureDefaults, "WAITERPUSH_CHANNELS_ENSURE_DEFAULTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "WAITERPUSH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "WAITERPUSH_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "WAITERPUSH_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Cron, "WAITERPUSH_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "WAITERPUSH_MODE")
	setStr(&cfg.LogLevel, "WAITERPUSH_LOG_LEVEL")
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
