// Package config defines the top-level configuration for waiterpush and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Run modes.
const (
	ModeConsume = "consume" // bus transport feed only
	ModeServer  = "server"  // HTTP ingress and WebSocket hub only
	ModeFull    = "full"    // both
)

// Inbound transports.
const (
	TransportRedisPubSub = "redis_pubsub"
	TransportRedisStream = "redis_stream"
	TransportNATS        = "nats"
	TransportHTTP        = "http"
)

// Channel registry backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WAITERPUSH_* environment variables.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	NATS      NATSConfig      `toml:"nats"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Channels  ChannelsConfig  `toml:"channels"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// TransportConfig selects where push messages come from.
type TransportConfig struct {
	Kind string `toml:"kind"`
	// Channel is the Redis Pub/Sub channel (or pattern) for redis_pubsub.
	Channel string `toml:"channel"`
	// Stream, Group and Consumer identify the consumer group for redis_stream.
	Stream   string `toml:"stream"`
	Group    string `toml:"group"`
	Consumer string `toml:"consumer"`
	// DedupTTL drops redelivered message ids seen within the window. Needs
	// Redis; zero disables it.
	DedupTTL duration `toml:"dedup_ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// NATSConfig holds the JetStream stream and durable consumer.
type NATSConfig struct {
	URL      string   `toml:"url"`
	Stream   string   `toml:"stream"`
	Subjects []string `toml:"subjects"`
	Durable  string   `toml:"durable"`
	Name     string   `toml:"name"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int    `toml:"part_size_mb"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	// RelayChannel, when Redis is enabled, relays WebSocket frames between
	// replicas.
	RelayChannel string `toml:"relay_channel"`
	// MaxVisible caps the notifications the WebSocket hub keeps visible.
	MaxVisible int `toml:"max_visible"`
}

// NotifyConfig holds outbound notifier credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	WebhookURL        string `toml:"webhook_url"`
	WebhookToken      string `toml:"webhook_token"`
	// Channels limits forwarding to these notification channels; empty
	// forwards all.
	Channels []string `toml:"channels"`
}

// ChannelsConfig selects the channel registry.
type ChannelsConfig struct {
	Backend        string `toml:"backend"`
	EnsureDefaults bool   `toml:"ensure_defaults"`
}

// ArchiveConfig controls moving old delivery records to S3. Cron, a 5-field
// expression, replaces Interval when set.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	Cron          string   `toml:"cron"`
	Prefix        string   `toml:"prefix"`
	BatchSize     int      `toml:"batch_size"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Transport: TransportConfig{
			Kind:     TransportHTTP,
			Channel:  "waiterpush:push",
			Stream:   "waiterpush:push",
			Group:    "waiterpush",
			Consumer: "waiterpush-1",
			DedupTTL: duration{10 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "waiterpush",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		NATS: NATSConfig{
			URL:      "nats://localhost:4222",
			Stream:   "WAITERPUSH",
			Subjects: []string{"waiterpush.push.>"},
			Durable:  "waiterpush",
			Name:     "waiterpush",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "waiterpush-archive",
			ForcePathStyle: true,
			PartSizeMB:     8,
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
			MaxVisible:  50,
		},
		Channels: ChannelsConfig{
			Backend:        BackendMemory,
			EnsureDefaults: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
			Prefix:        "deliveries",
			BatchSize:     1000,
		},
		Mode:     ModeFull,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeConsume: true,
	ModeServer:  true,
	ModeFull:    true,
}

var validTransports = map[string]bool{
	TransportRedisPubSub: true,
	TransportRedisStream: true,
	TransportNATS:        true,
	TransportHTTP:        true,
}

var validBackends = map[string]bool{
	BackendMemory:   true,
	BackendRedis:    true,
	BackendPostgres: true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ServesHTTP reports whether the mode runs the HTTP server.
func (c *Config) ServesHTTP() bool {
	return c.Mode == ModeServer || c.Mode == ModeFull
}

// ConsumesBus reports whether the mode runs a bus transport feed.
func (c *Config) ConsumesBus() bool {
	return (c.Mode == ModeConsume || c.Mode == ModeFull) && c.Transport.Kind != TransportHTTP
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	c.Mode = strings.ToLower(c.Mode)
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.Transport.Kind = strings.ToLower(c.Transport.Kind)
	c.Channels.Backend = strings.ToLower(c.Channels.Backend)

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: consume, server, full)", c.Mode))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Transport
	switch {
	case !validTransports[c.Transport.Kind]:
		errs = append(errs, fmt.Sprintf("transport: unknown kind %q (valid: redis_pubsub, redis_stream, nats, http)", c.Transport.Kind))
	case c.Mode == ModeConsume && c.Transport.Kind == TransportHTTP:
		errs = append(errs, "transport: mode consume needs a bus transport, not http")
	case c.Transport.Kind == TransportRedisPubSub:
		if !c.Redis.Enabled {
			errs = append(errs, "transport: redis_pubsub requires redis.enabled")
		}
		if c.Transport.Channel == "" {
			errs = append(errs, "transport: channel must not be empty for redis_pubsub")
		}
	case c.Transport.Kind == TransportRedisStream:
		if !c.Redis.Enabled {
			errs = append(errs, "transport: redis_stream requires redis.enabled")
		}
		if c.Transport.Stream == "" || c.Transport.Group == "" || c.Transport.Consumer == "" {
			errs = append(errs, "transport: stream, group and consumer must be set for redis_stream")
		}
	case c.Transport.Kind == TransportNATS:
		if c.NATS.URL == "" {
			errs = append(errs, "nats: url must not be empty")
		}
		if c.NATS.Stream == "" || len(c.NATS.Subjects) == 0 {
			errs = append(errs, "nats: stream and subjects must be set")
		}
		if c.NATS.Durable == "" {
			errs = append(errs, "nats: durable must not be empty")
		}
	}
	if c.Transport.DedupTTL.Duration < 0 {
		errs = append(errs, "transport: dedup_ttl must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			errs = append(errs, "redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Channels
	switch {
	case !validBackends[c.Channels.Backend]:
		errs = append(errs, fmt.Sprintf("channels: unknown backend %q (valid: memory, redis, postgres)", c.Channels.Backend))
	case c.Channels.Backend == BackendRedis && !c.Redis.Enabled:
		errs = append(errs, "channels: backend redis requires redis.enabled")
	case c.Channels.Backend == BackendPostgres && !c.Postgres.Enabled:
		errs = append(errs, "channels: backend postgres requires postgres.enabled")
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "archive: requires postgres.enabled and s3.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Cron == "" && c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0 when cron is empty")
		}
	}

	// Server
	if c.ServesHTTP() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
