package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "riseready-notifications/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", DriverSQLite)
	t.Setenv("STORE_SQLITE_PATH", filepath.Join(t.TempDir(), "test.db"))
}

func TestLoad_Defaults(t *testing.T) {
	useSQLite(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Dispatch.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.IntervalDuration())
	assert.Equal(t, time.Duration(0), cfg.Dispatch.ReclaimAfterDuration())
	assert.Equal(t, time.Duration(0), cfg.Dispatch.CycleTimeoutDuration(), "cycles run to completion by default")
	assert.True(t, cfg.Dispatch.InProcess)
	assert.Equal(t, 40, cfg.Dispatch.HealthAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.HealthIntervalDuration())
	assert.Equal(t, TransportWebsocket, cfg.Realtime.Transport)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Integrations.SMTP.Configured())
}

func TestLoad_PlainEnvironmentNames(t *testing.T) {
	useSQLite(t)
	t.Setenv("NOTIFY_BATCH_SIZE", "10")
	t.Setenv("NOTIFY_INTERVAL_MS", "5000")
	t.Setenv("WORKER_SECRET", "relay-secret")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "mailer@example.com")
	t.Setenv("SMTP_PASS", "pw")
	t.Setenv("SMTP_SECURE", "true")
	t.Setenv("APP_URL", "https://app.riseready.io")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Dispatch.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.IntervalDuration())
	assert.Equal(t, "relay-secret", cfg.Realtime.WorkerSecret)
	assert.Equal(t, "jwt-secret", cfg.Realtime.JWTSecret)
	assert.Equal(t, "https://app.riseready.io", cfg.Dispatch.AppBaseURL)

	smtp := cfg.Integrations.SMTP
	assert.True(t, smtp.Configured())
	assert.Equal(t, 465, smtp.Port)
	assert.True(t, smtp.Secure)
	assert.Equal(t, "mailer@example.com", smtp.From, "sender falls back to the SMTP user")
}

func TestLoad_SectionEnvironmentWins(t *testing.T) {
	useSQLite(t)
	t.Setenv("NOTIFY_BATCH_SIZE", "10")
	t.Setenv("DISPATCH_BATCH_SIZE", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Dispatch.BatchSize)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_MONGO_URI", "mongodb://mongo:27017")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
store:
  driver: mongo
  mongo:
    uri: ${TEST_MONGO_URI}
    database: riseready
dispatch:
  batch_size: 50
  reclaim_after: 600000
  in_process: false
realtime:
  transport: redis
redis:
  address: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://mongo:27017", cfg.Store.Mongo.URI)
	assert.Equal(t, 50, cfg.Dispatch.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Dispatch.ReclaimAfterDuration())
	assert.False(t, cfg.Dispatch.InProcess)
	assert.Equal(t, TransportRedis, cfg.Realtime.Transport)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "cassandra" },
			wantErr: "store.driver",
		},
		{
			name: "postgres without user",
			mutate: func(c *Config) {
				c.Store.Driver = DriverPostgres
				c.Store.Postgres = PostgresConfig{Host: "db", Database: "riseready"}
			},
			wantErr: "store.postgres.user is required",
		},
		{
			name: "mongo without uri",
			mutate: func(c *Config) {
				c.Store.Driver = DriverMongo
				c.Store.Mongo.Database = "riseready"
			},
			wantErr: "store.mongo.uri is required",
		},
		{
			name:    "bad app url",
			mutate:  func(c *Config) { c.Dispatch.AppBaseURL = "app.riseready.io" },
			wantErr: "dispatch.app_base_url",
		},
		{
			name: "smtp port out of range",
			mutate: func(c *Config) {
				c.Integrations.SMTP.Host = "smtp.example.com"
				c.Integrations.SMTP.Port = 70000
			},
			wantErr: "integrations.smtp.port",
		},
		{
			name:   "valid sqlite",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Store: StoreConfig{Driver: DriverSQLite, SQLite: SQLiteConfig{Path: "x.db"}}}
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateWorker(t *testing.T) {
	cfg := &Config{Realtime: RealtimeConfig{Transport: TransportWebsocket, APIURL: "http://api:5000"}}
	assert.ErrorContains(t, cfg.ValidateWorker(), "worker_secret")

	cfg.Realtime.WorkerSecret = "s3cret"
	assert.NoError(t, cfg.ValidateWorker())

	cfg.Realtime.Transport = TransportRedis
	assert.ErrorContains(t, cfg.ValidateWorker(), "redis.address")

	cfg.Realtime.Transport = "carrier-pigeon"
	assert.True(t, apperrors.HasCode(cfg.ValidateWorker(), apperrors.ErrCodeConfigInvalid))
}

func TestLoad_InvalidSettingsAreConfigErrors(t *testing.T) {
	useSQLite(t)
	t.Setenv("APP_URL", "app.riseready.io")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigInvalid))
	assert.ErrorContains(t, err, "dispatch.app_base_url")
}

func TestValidateServer(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateServer()
	assert.ErrorContains(t, err, "jwt_secret")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigInvalid))

	cfg.Realtime.JWTSecret = "jwt"
	assert.ErrorContains(t, cfg.ValidateServer(), "worker_secret")

	cfg.Realtime.WorkerSecret = "s3cret"
	assert.NoError(t, cfg.ValidateServer())
}

func TestRealtimeURLs(t *testing.T) {
	r := RealtimeConfig{APIURL: "https://api.riseready.io/"}
	assert.Equal(t, "https://api.riseready.io/health", r.HealthURL())
	assert.Equal(t, "wss://api.riseready.io/realtime", r.WebsocketURL())

	r.APIURL = "http://localhost:5000"
	assert.Equal(t, "ws://localhost:5000/realtime", r.WebsocketURL())
}
