package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Referral     ReferralConfig
	AutoClose    AutoCloseConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	WSPort                string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig controls the change stream and session push channel.
type NotificationConfig struct {
	// ChannelPrefix namespaces the change-stream pub/sub channels.
	ChannelPrefix string
	// SendBuffer is the per-client websocket send queue length.
	SendBuffer int
}

// ReferralConfig governs the admin-to-admin hand-off window.
type ReferralConfig struct {
	PermissionWindowMinutes int
}

// AutoCloseConfig governs the resolved-ticket sweep.
type AutoCloseConfig struct {
	IntervalMinutes int
	// ThresholdHours is the bootstrap default; app_settings overrides it at
	// runtime and changes hot-reload through the change stream.
	ThresholdHours int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-core"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			WSPort:                getEnv("APP_WS_PORT", "8081"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			ChannelPrefix: getEnv("NOTIFY_CHANNEL_PREFIX", "cdc"),
			SendBuffer:    getEnvAsInt("NOTIFY_SEND_BUFFER", 32),
		},
		Referral: ReferralConfig{
			PermissionWindowMinutes: getEnvAsInt("REFERRAL_WINDOW_MINUTES", 5),
		},
		AutoClose: AutoCloseConfig{
			IntervalMinutes: getEnvAsInt("AUTOCLOSE_INTERVAL_MINUTES", 60),
			ThresholdHours:  getEnvAsInt("AUTOCLOSE_THRESHOLD_HOURS", 24),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// WSAddr returns the websocket listener bind address.
func (a AppConfig) WSAddr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.WSPort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PermissionWindow returns the referral capability lifetime.
func (r ReferralConfig) PermissionWindow() time.Duration {
	if r.PermissionWindowMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(r.PermissionWindowMinutes) * time.Minute
}

// Interval returns the sweep period.
func (a AutoCloseConfig) Interval() time.Duration {
	if a.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.IntervalMinutes) * time.Minute
}

// Threshold returns the default resolved-ticket age before auto close.
func (a AutoCloseConfig) Threshold() time.Duration {
	if a.ThresholdHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.ThresholdHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
