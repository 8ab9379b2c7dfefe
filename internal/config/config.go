// Package config loads process configuration from environment
// variables (with an optional .env file for local development), the
// way ws/config.go in the teacher repo does.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every knob the realtime core needs at startup.
type Config struct {
	// Transport
	Addr string `env:"RT_ADDR" envDefault:":8080"`

	// AuthGate
	JWTSecret string `env:"RT_JWT_SECRET" envDefault:"dev-secret-change-me"`

	// Rate limits (per-endpoint overrides live in endpoint config)
	DefaultMsgRatePerMin int `env:"RT_MSG_RATE_PER_MIN" envDefault:"100"`
	ChatRatePer10Sec     int `env:"RT_CHAT_RATE_PER_10S" envDefault:"10"`

	// Connection capacity
	MaxConnections int `env:"RT_MAX_CONNECTIONS" envDefault:"20000"`
	SendQueueDepth int `env:"RT_SEND_QUEUE_DEPTH" envDefault:"256"`

	// Durable outbox (Postgres)
	DatabaseURL string `env:"RT_DATABASE_URL" envDefault:"postgres://localhost:5432/realtime?sslmode=disable"`

	// Event bridge
	KafkaBrokers  []string `env:"RT_KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	NatsURL       string   `env:"RT_NATS_URL" envDefault:"nats://localhost:4222"`
	KafkaGroupID  string   `env:"RT_KAFKA_GROUP" envDefault:"realtime-core"`
	MarketTopic   string   `env:"RT_KAFKA_MARKET_TOPIC" envDefault:"odin.market.events"`
	WalletSubject string   `env:"RT_NATS_WALLET_SUBJECT" envDefault:"odin.wallet.account_changed"`
	SettingsSubj  string   `env:"RT_NATS_SETTINGS_SUBJECT" envDefault:"odin.settings.updated"`

	// Cache TTLs
	BalanceCacheTTL     time.Duration `env:"RT_BALANCE_CACHE_TTL" envDefault:"30s"`
	TransactionCacheTTL time.Duration `env:"RT_TX_CACHE_TTL" envDefault:"30s"`

	// Periodic refreshers
	ContestRefreshInterval time.Duration `env:"RT_CONTEST_REFRESH_INTERVAL" envDefault:"5s"`
	WalletMetricsInterval  time.Duration `env:"RT_WALLET_METRICS_INTERVAL" envDefault:"5s"`

	// NotificationDeliverer
	DeliveryPollInterval time.Duration `env:"RT_DELIVERY_POLL_INTERVAL" envDefault:"5s"`
	DeliveryBatchSize    int           `env:"RT_DELIVERY_BATCH_SIZE" envDefault:"100"`
	DeliveryLookback     time.Duration `env:"RT_DELIVERY_LOOKBACK" envDefault:"168h"` // 7d
	RetentionSweep       time.Duration `env:"RT_RETENTION_SWEEP" envDefault:"24h"`
	RetentionAge         time.Duration `env:"RT_RETENTION_AGE" envDefault:"720h"` // 30d

	// Timeouts
	DBReadTimeout  time.Duration `env:"RT_DB_READ_TIMEOUT" envDefault:"5s"`
	DBWriteTimeout time.Duration `env:"RT_DB_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownDrain  time.Duration `env:"RT_SHUTDOWN_DRAIN" envDefault:"5s"`

	// Logging
	LogLevel  string `env:"RT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"RT_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file (if present) and the
// environment, validating the result before returning it.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Info().Msg("no .env file found, using environment variables only")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("RT_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("RT_MAX_CONNECTIONS must be > 0")
	}
	if c.SendQueueDepth < 1 {
		return fmt.Errorf("RT_SEND_QUEUE_DEPTH must be > 0")
	}
	valid := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !valid[c.LogLevel] {
		return fmt.Errorf("RT_LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}
