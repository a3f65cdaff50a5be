// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP/WebSocket server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN used by the messaging, identity, and audit repositories.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the Redis host:port for the revocation store and the realtime broker.
	// Empty disables Redis: revocation falls back to the in-memory store and fan-out is in-process only.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional Redis AUTH password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to a key file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to a key file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "clinic-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "clinic-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// WSHeartbeatInterval is how often the server pings an idle WebSocket connection (e.g. "30s").
	WSHeartbeatInterval string `mapstructure:"WS_HEARTBEAT_INTERVAL"`
	// WSIdleMultiplier scales the heartbeat interval into the read deadline. A connection
	// that produces no traffic for interval*multiplier is considered stale and reclaimed.
	WSIdleMultiplier float64 `mapstructure:"WS_IDLE_MULTIPLIER"`
	// WSMaxConnsPerUser caps concurrent connections per user (multi-device). 0 means the default of 8.
	WSMaxConnsPerUser int `mapstructure:"WS_MAX_CONNS_PER_USER"`
	// WSSendBuffer is the per-connection outbound queue length. A connection whose
	// queue is full when an event arrives is torn down rather than blocking delivery.
	WSSendBuffer int `mapstructure:"WS_SEND_BUFFER"`

	// RevokeTTLFloor is the minimum stored lifetime for a revocation entry (e.g. "60s").
	RevokeTTLFloor string `mapstructure:"REVOKE_TTL_FLOOR"`
	// RevokeTTLCeiling is the maximum stored lifetime for a revocation entry (e.g. "168h").
	RevokeTTLCeiling string `mapstructure:"REVOKE_TTL_CEILING"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses for security events.
	// Empty disables the Kafka emitter.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SecurityEventsTopic is the Kafka topic for security events (default clinic-security-events).
	SecurityEventsTopic string `mapstructure:"SECURITY_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the security-events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the worker pushes events to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics/logs. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// OpenAIAPIKey enables AI risk screening of patient messages when set.
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	// OpenAIModel is the chat model used for risk screening.
	OpenAIModel string `mapstructure:"OPENAI_MODEL"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_ISSUER", "clinic-auth")
	v.SetDefault("JWT_AUDIENCE", "clinic-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("WS_HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("WS_IDLE_MULTIPLIER", 2.0)
	v.SetDefault("WS_MAX_CONNS_PER_USER", 8)
	v.SetDefault("WS_SEND_BUFFER", 64)
	v.SetDefault("REVOKE_TTL_FLOOR", "60s")
	v.SetDefault("REVOKE_TTL_CEILING", "168h") // 7d
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SECURITY_EVENTS_TOPIC", "clinic-security-events")
	v.SetDefault("KAFKA_GROUP_ID", "clinic-security-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.WSIdleMultiplier < 1.0 {
		return nil, errors.New("config: WS_IDLE_MULTIPLIER must be >= 1.0")
	}
	if cfg.WSMaxConnsPerUser < 0 {
		return nil, errors.New("config: WS_MAX_CONNS_PER_USER must not be negative")
	}
	if cfg.RevokeFloor() > cfg.RevokeCeiling() {
		return nil, errors.New("config: REVOKE_TTL_FLOOR must not exceed REVOKE_TTL_CEILING")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// HeartbeatInterval parses WSHeartbeatInterval. Returns 30s if unset or invalid.
func (c *Config) HeartbeatInterval() time.Duration {
	return durationOr(c.WSHeartbeatInterval, 30*time.Second)
}

// IdleWait is the read deadline for a connection: heartbeat interval times the idle multiplier.
func (c *Config) IdleWait() time.Duration {
	m := c.WSIdleMultiplier
	if m < 1.0 {
		m = 2.0
	}
	return time.Duration(float64(c.HeartbeatInterval()) * m)
}

// RevokeFloor parses RevokeTTLFloor. Returns 60s if unset or invalid.
func (c *Config) RevokeFloor() time.Duration {
	return durationOr(c.RevokeTTLFloor, 60*time.Second)
}

// RevokeCeiling parses RevokeTTLCeiling. Returns 168h if unset or invalid.
func (c *Config) RevokeCeiling() time.Duration {
	return durationOr(c.RevokeTTLCeiling, 168*time.Hour)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the security-event emitter is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
