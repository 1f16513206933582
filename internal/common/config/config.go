// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	apperrors "riseready-notifications/internal/common/errors"
)

// Config is the main application configuration struct shared by the API
// server and the standalone notification worker.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Store         StoreConfig         `mapstructure:"store"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Dispatch      DispatchConfig      `mapstructure:"dispatch"`
	Integrations  IntegrationConfig   `mapstructure:"integrations"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MongoConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // milliseconds
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Relay transports used by the standalone worker.
const (
	TransportWebsocket = "websocket"
	TransportRedis     = "redis"
)

// RealtimeConfig configures the bus host and the cross-process relay.
type RealtimeConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	WorkerSecret string `mapstructure:"worker_secret"`
	APIURL       string `mapstructure:"api_url"`
	Transport    string `mapstructure:"transport"`
	RedisChannel string `mapstructure:"redis_channel"`
	SendBuffer   int    `mapstructure:"send_buffer"`
}

// DispatchConfig drives the claim-and-deliver cycle.
type DispatchConfig struct {
	BatchSize      int    `mapstructure:"batch_size"`
	Interval       int    `mapstructure:"interval"`      // milliseconds
	CycleTimeout   int    `mapstructure:"cycle_timeout"` // milliseconds, 0 = none
	ReclaimAfter   int    `mapstructure:"reclaim_after"` // milliseconds, 0 disables reclaim
	InProcess      bool   `mapstructure:"in_process"`
	AppBaseURL     string `mapstructure:"app_base_url"`
	HealthAttempts int    `mapstructure:"health_attempts"`
	HealthInterval int    `mapstructure:"health_interval"` // milliseconds
}

// IntegrationConfig holds settings for mail and SMS delivery.
type IntegrationConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
	AWS  AWSConfig  `mapstructure:"aws"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Secure   bool   `mapstructure:"secure"`
	From     string `mapstructure:"from"`
}

// Configured reports whether enough is set to open an SMTP session.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Port > 0 && s.Username != "" && s.Password != ""
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
	SES    struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	ServiceName     string  `mapstructure:"service_name"`
	TraceSampleRate float64 `mapstructure:"trace_sample_rate"`
}

// ValidateWorker checks what the standalone worker needs on top of the
// shared settings.
func (c *Config) ValidateWorker() error {
	if err := c.validateWorker(); err != nil {
		return apperrors.NewConfigInvalidError(err)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Realtime.WorkerSecret == "" {
		return fmt.Errorf("realtime.worker_secret is required")
	}
	switch c.Realtime.Transport {
	case TransportWebsocket:
		if c.Realtime.APIURL == "" {
			return fmt.Errorf("realtime.api_url is required for the websocket transport")
		}
	case TransportRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis transport")
		}
	default:
		return fmt.Errorf("realtime.transport must be %q or %q, got %q", TransportWebsocket, TransportRedis, c.Realtime.Transport)
	}
	return nil
}

// ValidateServer checks what the API host needs on top of the shared settings.
func (c *Config) ValidateServer() error {
	if err := c.validateServer(); err != nil {
		return apperrors.NewConfigInvalidError(err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Realtime.JWTSecret == "" {
		return fmt.Errorf("realtime.jwt_secret is required")
	}
	if c.Realtime.WorkerSecret == "" {
		return fmt.Errorf("realtime.worker_secret is required")
	}
	return nil
}

// HealthURL is the API health endpoint polled by the worker at startup.
func (r RealtimeConfig) HealthURL() string {
	return strings.TrimRight(r.APIURL, "/") + "/health"
}

// WebsocketURL maps the API base URL onto the bus endpoint.
func (r RealtimeConfig) WebsocketURL() string {
	base := strings.TrimRight(r.APIURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/realtime"
}

func (d DispatchConfig) IntervalDuration() time.Duration       { return GetDuration(d.Interval) }
func (d DispatchConfig) CycleTimeoutDuration() time.Duration   { return GetDuration(d.CycleTimeout) }
func (d DispatchConfig) ReclaimAfterDuration() time.Duration   { return GetDuration(d.ReclaimAfter) }
func (d DispatchConfig) HealthIntervalDuration() time.Duration { return GetDuration(d.HealthInterval) }
