package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Registration RegistrationConfig
	SlotCache    SlotCacheConfig
	Realtime     RealtimeConfig
	Notify       NotifyConfig
	Metrics      MetricsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
	// BootstrapKeyHash is a bcrypt hash guarding the token issuing endpoint. Empty disables it.
	BootstrapKeyHash string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RegistrationConfig tunes the public registration surface.
type RegistrationConfig struct {
	InitialStatus string
	RateLimit     int
	RateWindow    time.Duration
	// Timezone renders timestamps in exports.
	Timezone string
}

// SlotCacheConfig controls caching of the public slot grid.
type SlotCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// RealtimeConfig configures the change feed.
type RealtimeConfig struct {
	Heartbeat    time.Duration
	RedisChannel string
}

// NotifyConfig configures registration notifications.
type NotifyConfig struct {
	WebhookURL string
	Workers    int
	Retries    int
	Timeout    time.Duration
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:           v.GetString("JWT_SECRET"),
		Issuer:           v.GetString("JWT_ISSUER"),
		Expiration:       parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		BootstrapKeyHash: v.GetString("ADMIN_BOOTSTRAP_KEY_HASH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	status := strings.ToLower(strings.TrimSpace(v.GetString("REGISTRATION_INITIAL_STATUS")))
	if status != "confirmed" {
		status = "pending"
	}
	rateLimit := v.GetInt("REGISTRATION_RATE_LIMIT")
	if rateLimit < 0 {
		rateLimit = 0
	}
	cfg.Registration = RegistrationConfig{
		InitialStatus: status,
		RateLimit:     rateLimit,
		RateWindow:    parseDuration(v.GetString("REGISTRATION_RATE_WINDOW"), time.Minute),
		Timezone:      v.GetString("EXPORT_TIMEZONE"),
	}

	cfg.SlotCache = SlotCacheConfig{
		Enabled: v.GetBool("SLOT_CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("SLOT_CACHE_TTL"), 2*time.Second),
	}

	cfg.Realtime = RealtimeConfig{
		Heartbeat:    parseDuration(v.GetString("REALTIME_HEARTBEAT"), 15*time.Second),
		RedisChannel: v.GetString("REALTIME_REDIS_CHANNEL"),
	}

	workers := v.GetInt("NOTIFY_WORKERS")
	if workers <= 0 {
		workers = 1
	}
	cfg.Notify = NotifyConfig{
		WebhookURL: v.GetString("NOTIFY_WEBHOOK_URL"),
		Workers:    workers,
		Retries:    v.GetInt("NOTIFY_RETRIES"),
		Timeout:    parseDuration(v.GetString("NOTIFY_TIMEOUT"), 5*time.Second),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_registration")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "course-registration-api")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("ADMIN_BOOTSTRAP_KEY_HASH", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REGISTRATION_INITIAL_STATUS", "pending")
	v.SetDefault("REGISTRATION_RATE_LIMIT", 10)
	v.SetDefault("REGISTRATION_RATE_WINDOW", "1m")
	v.SetDefault("EXPORT_TIMEZONE", "Asia/Seoul")

	v.SetDefault("SLOT_CACHE_ENABLED", false)
	v.SetDefault("SLOT_CACHE_TTL", "2s")

	v.SetDefault("REALTIME_HEARTBEAT", "15s")
	v.SetDefault("REALTIME_REDIS_CHANNEL", "course-registration:events")

	v.SetDefault("NOTIFY_WEBHOOK_URL", "")
	v.SetDefault("NOTIFY_WORKERS", 1)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_TIMEOUT", "5s")

	v.SetDefault("ENABLE_METRICS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
