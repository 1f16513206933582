// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "riseready-notifications/internal/common/errors"
	"riseready-notifications/internal/common/validation"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// plainEnv maps config keys onto the environment names the deployment
// already uses. The automatic SECTION_KEY form still takes precedence.
var plainEnv = map[string][]string{
	"dispatch.batch_size":        {"NOTIFY_BATCH_SIZE"},
	"dispatch.interval":          {"NOTIFY_INTERVAL_MS"},
	"dispatch.reclaim_after":     {"NOTIFY_RECLAIM_AFTER_MS"},
	"dispatch.app_base_url":      {"APP_URL", "FRONTEND_URL"},
	"realtime.worker_secret":     {"WORKER_SECRET"},
	"realtime.jwt_secret":        {"JWT_SECRET"},
	"realtime.api_url":           {"API_URL"},
	"integrations.smtp.host":     {"SMTP_HOST"},
	"integrations.smtp.port":     {"SMTP_PORT"},
	"integrations.smtp.username": {"SMTP_USER"},
	"integrations.smtp.password": {"SMTP_PASS"},
	"integrations.smtp.secure":   {"SMTP_SECURE"},
	"integrations.smtp.from":     {"EMAIL_FROM", "SMTP_FROM"},
	"store.mongo.uri":            {"MONGO_URI"},
	"store.postgres.user":        {"DB_USER"},
	"store.postgres.password":    {"DB_PASSWORD"},
	"integrations.aws.region":    {"AWS_REGION"},
	"logging.level":              {"LOG_LEVEL"},
	"logging.format":             {"LOG_FORMAT"},
}

// Load reads .env, configs/config.yaml (plus config.<APP_ENVIRONMENT>.yaml)
// and the environment, in increasing order of precedence.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, names := range plainEnv {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, apperrors.NewConfigInvalidError(err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "riseready-notifications")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.read_timeout", 15000)
	v.SetDefault("server.shutdown_timeout", 30000)

	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.database", "riseready")
	v.SetDefault("store.postgres.user", "")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.max_connections", 25)
	v.SetDefault("store.postgres.max_idle", 5)
	v.SetDefault("store.postgres.sslmode", "disable")
	v.SetDefault("store.sqlite.path", "riseready.db")
	v.SetDefault("store.mongo.uri", "")
	v.SetDefault("store.mongo.database", "riseready")
	v.SetDefault("store.mongo.connect_timeout", 10000)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("realtime.jwt_secret", "")
	v.SetDefault("realtime.worker_secret", "")
	v.SetDefault("realtime.api_url", "http://localhost:5000")
	v.SetDefault("realtime.transport", TransportWebsocket)
	v.SetDefault("realtime.redis_channel", "riseready:realtime:relay")
	v.SetDefault("realtime.send_buffer", 32)

	v.SetDefault("dispatch.batch_size", 25)
	v.SetDefault("dispatch.interval", 30000)
	v.SetDefault("dispatch.cycle_timeout", 0)
	v.SetDefault("dispatch.reclaim_after", 0)
	v.SetDefault("dispatch.in_process", true)
	v.SetDefault("dispatch.app_base_url", "http://localhost:5173")
	v.SetDefault("dispatch.health_attempts", 40)
	v.SetDefault("dispatch.health_interval", 500)

	v.SetDefault("integrations.smtp.host", "")
	v.SetDefault("integrations.smtp.port", 587)
	v.SetDefault("integrations.smtp.username", "")
	v.SetDefault("integrations.smtp.password", "")
	v.SetDefault("integrations.smtp.secure", false)
	v.SetDefault("integrations.smtp.from", "")
	v.SetDefault("integrations.aws.region", "us-east-1")
	v.SetDefault("integrations.aws.ses.enabled", false)
	v.SetDefault("integrations.aws.ses.from_email", "")
	v.SetDefault("integrations.aws.sns.enabled", false)
	v.SetDefault("integrations.aws.sns.sender_id", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("observability.service_name", "riseready-notifications")
	v.SetDefault("observability.trace_sample_rate", 0.1)
}

// loadEnvFile tries .env in the working directory, its parents and the
// module root. A missing file is not an error.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders left in yaml values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// applyDefaults replaces zero values that would make the pipeline stall.
func applyDefaults(cfg *Config) {
	if cfg.Dispatch.BatchSize <= 0 {
		cfg.Dispatch.BatchSize = 25
	}
	if cfg.Dispatch.Interval <= 0 {
		cfg.Dispatch.Interval = 30000
	}
	if cfg.Dispatch.CycleTimeout < 0 {
		cfg.Dispatch.CycleTimeout = 0
	}
	if cfg.Dispatch.ReclaimAfter < 0 {
		cfg.Dispatch.ReclaimAfter = 0
	}
	if cfg.Dispatch.HealthAttempts <= 0 {
		cfg.Dispatch.HealthAttempts = 40
	}
	if cfg.Dispatch.HealthInterval <= 0 {
		cfg.Dispatch.HealthInterval = 500
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverPostgres
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if cfg.Store.Postgres.MaxConnections == 0 {
		cfg.Store.Postgres.MaxConnections = 25
	}
	if cfg.Store.Postgres.MaxIdle == 0 {
		cfg.Store.Postgres.MaxIdle = 5
	}
	if cfg.Store.Postgres.SSLMode == "" {
		cfg.Store.Postgres.SSLMode = "disable"
	}

	if cfg.Realtime.Transport == "" {
		cfg.Realtime.Transport = TransportWebsocket
	}
	if cfg.Realtime.SendBuffer <= 0 {
		cfg.Realtime.SendBuffer = 32
	}

	if cfg.Integrations.SMTP.From == "" {
		cfg.Integrations.SMTP.From = cfg.Integrations.SMTP.Username
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates settings shared by both binaries.
func validateConfig(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverPostgres:
		if cfg.Store.Postgres.Host == "" {
			return fmt.Errorf("store.postgres.host is required")
		}
		if cfg.Store.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.database is required")
		}
		if cfg.Store.Postgres.User == "" {
			return fmt.Errorf("store.postgres.user is required")
		}
	case DriverSQLite:
		if cfg.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	case DriverMongo:
		if cfg.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required")
		}
		if cfg.Store.Mongo.Database == "" {
			return fmt.Errorf("store.mongo.database is required")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", cfg.Store.Driver)
	}

	if base := cfg.Dispatch.AppBaseURL; base != "" && !validation.ValidateURL(base) {
		return fmt.Errorf("dispatch.app_base_url must be an http(s) URL, got %q", base)
	}

	if cfg.Integrations.SMTP.Host != "" && (cfg.Integrations.SMTP.Port <= 0 || cfg.Integrations.SMTP.Port > 65535) {
		return fmt.Errorf("integrations.smtp.port %d is out of range", cfg.Integrations.SMTP.Port)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
