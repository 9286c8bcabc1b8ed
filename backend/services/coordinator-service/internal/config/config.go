package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargehub/backend/libs/config"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config defines coordinator service configuration.
type Config struct {
	LogLevel     string             `yaml:"logLevel" env:"LOG_LEVEL"`
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	Auth         AuthConfig         `yaml:"auth"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Reservations ReservationsConfig `yaml:"reservations"`
	Sweep        SweepConfig        `yaml:"sweep"`
	Billing      BillingConfig      `yaml:"billing"`
	Waitlist     WaitlistConfig     `yaml:"waitlist"`
	Events       EventsConfig       `yaml:"events"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Port string `yaml:"port" env:"COORDINATOR_HTTP_PORT"`
}

// DatabaseConfig selects and configures persistence.
type DatabaseConfig struct {
	Driver       string        `yaml:"driver" env:"COORDINATOR_DB_DRIVER"`
	DSN          string        `yaml:"dsn" env:"COORDINATOR_POSTGRES_DSN"`
	MaxOpenConns int           `yaml:"maxOpenConns" env:"COORDINATOR_DB_MAX_OPEN_CONNS"`
	MaxIdleConns int           `yaml:"maxIdleConns" env:"COORDINATOR_DB_MAX_IDLE_CONNS"`
	ConnLifetime time.Duration `yaml:"connLifetime" env:"COORDINATOR_DB_CONN_LIFETIME"`
	Migrate      bool          `yaml:"migrate" env:"COORDINATOR_DB_MIGRATE"`
}

// RedisConfig configures the active session cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"COORDINATOR_REDIS_ADDR"`
	Password string        `yaml:"password" env:"COORDINATOR_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"COORDINATOR_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"COORDINATOR_REDIS_TTL"`
}

// AMQPConfig configures the event broker. An empty URL disables it.
type AMQPConfig struct {
	URL string `yaml:"url" env:"COORDINATOR_AMQP_URL"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"COORDINATOR_JWT_SECRET"`
}

// WebSocketConfig configures the live event stream.
type WebSocketConfig struct {
	Enabled      bool          `yaml:"enabled" env:"COORDINATOR_WS_ENABLED"`
	PingInterval time.Duration `yaml:"pingInterval" env:"COORDINATOR_WS_PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"writeTimeout" env:"COORDINATOR_WS_WRITE_TIMEOUT"`
}

// ReservationsConfig tunes reservation rules.
type ReservationsConfig struct {
	RefundFullThreshold time.Duration `yaml:"refundFullThreshold" env:"COORDINATOR_REFUND_FULL_THRESHOLD"`
}

// SweepConfig tunes the expiry sweeper.
type SweepConfig struct {
	Interval  time.Duration `yaml:"interval" env:"COORDINATOR_SWEEP_INTERVAL"`
	BatchSize int           `yaml:"batchSize" env:"COORDINATOR_SWEEP_BATCH_SIZE"`
}

// BillingConfig supplies the fallback tariff.
type BillingConfig struct {
	DefaultRatePerKWh float64 `yaml:"defaultRatePerKwh" env:"COORDINATOR_DEFAULT_RATE_PER_KWH"`
}

// WaitlistConfig tunes wait estimates.
type WaitlistConfig struct {
	SlotEstimate time.Duration `yaml:"slotEstimate" env:"COORDINATOR_WAITLIST_SLOT_ESTIMATE"`
}

// EventsConfig tunes the asynchronous publisher.
type EventsConfig struct {
	BufferSize int `yaml:"bufferSize" env:"COORDINATOR_EVENTS_BUFFER_SIZE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP:     HTTPConfig{Port: "8085"},
		Database: DatabaseConfig{
			Driver:       DriverPostgres,
			MaxOpenConns: 20,
			MaxIdleConns: 10,
			ConnLifetime: 30 * time.Minute,
			Migrate:      true,
		},
		Redis:        RedisConfig{TTL: 24 * time.Hour},
		WebSocket:    WebSocketConfig{Enabled: true, PingInterval: 30 * time.Second, WriteTimeout: 10 * time.Second},
		Reservations: ReservationsConfig{RefundFullThreshold: 2 * time.Hour},
		Sweep:        SweepConfig{Interval: time.Minute, BatchSize: 500},
		Billing:      BillingConfig{DefaultRatePerKWh: 20000},
		Waitlist:     WaitlistConfig{SlotEstimate: 30 * time.Minute},
		Events:       EventsConfig{BufferSize: 1024},
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database dsn required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: jwt secret required")
	}
	if c.Sweep.Interval <= 0 {
		return errors.New("config: sweep interval must be positive")
	}
	if c.Billing.DefaultRatePerKWh < 0 {
		return errors.New("config: default rate must not be negative")
	}
	return nil
}

// UseMemory reports whether the in-process store is selected.
func (c *Config) UseMemory() bool {
	return strings.EqualFold(strings.TrimSpace(c.Database.Driver), DriverMemory)
}

// HTTPAddress returns :port style, or host:port when a host is configured.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ActiveSessionTTL returns the cache ttl.
func (c *Config) ActiveSessionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return c.Redis.TTL
}
