package config

import (
	"errors"
	"fmt"
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

// Development fallbacks keep a local boot frictionless. validate refuses
// them in production: the chain key signs the audit trail and the report
// secret signs download tokens, so neither may run on a known value.
const (
	devJWTSecret     = "dev_secret"
	devChainKey      = "dev_chain_key"
	devReportsSecret = "dev_reports_secret"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Admissions    AdmissionsConfig
	Audit         AuditConfig
	Events        EventsConfig
	Notifications NotificationsConfig
	Stream        StreamConfig
	Sweep         SweepConfig
	Cutover       CutoverConfig
	Reports       ReportsConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AdmissionsConfig tunes the read-side cache and the installment schedule.
type AdmissionsConfig struct {
	CacheTTL         time.Duration
	InstallmentCycle time.Duration
}

// AuditConfig holds the key for the transition hash chain.
type AuditConfig struct {
	ChainKey string
}

// EventsConfig governs transition event publishing over the Redis stream.
type EventsConfig struct {
	Enabled        bool
	ConsumerGroup  string
	PublishTimeout time.Duration
}

// NotificationsConfig selects the outbound notification channel.
type NotificationsConfig struct {
	Enabled        bool
	Provider       string
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// StreamConfig gates the websocket status stream.
type StreamConfig struct {
	Enabled    bool
	SendBuffer int
}

// SweepConfig schedules the overdue sweep and the nightly chain verification.
type SweepConfig struct {
	Enabled         bool
	OverdueSpec     string
	ChainVerifySpec string
}

// ReportsConfig drives the export pipeline: where files land, how download
// links are signed, and how the worker pool is sized.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// CutoverConfig carries the flags the ops runbook flips while traffic moves
// off the Node backend, plus the health probes both sides expose.
type CutoverConfig struct {
	RouteToGo           bool
	ShadowTraffic       bool
	LegacyReadOnly      bool
	CanaryPercentage    int
	StageHeader         string
	ClientSegmentHeader string
	LegacyHealthURL     string
	GoHealthURL         string
	HealthCheckTimeout  time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// A missing .env is fine (deploys pass real environment variables);
	// only a malformed one stops the boot. viper reports an absent explicit
	// config file as a plain path error, not ConfigFileNotFoundError.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{
		Env:       v.GetString("ENV"),
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetInt("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Name:         v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSL_MODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		CORS: CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Admissions: AdmissionsConfig{
			CacheTTL:         parseDuration(v.GetString("ADMISSIONS_CACHE_TTL"), 5*time.Minute),
			InstallmentCycle: parseDuration(v.GetString("ADMISSIONS_INSTALLMENT_CYCLE"), 720*time.Hour),
		},
		Audit: AuditConfig{
			ChainKey: v.GetString("AUDIT_CHAIN_KEY"),
		},
		Events: EventsConfig{
			Enabled:        v.GetBool("ENABLE_EVENTS"),
			ConsumerGroup:  v.GetString("EVENTS_CONSUMER_GROUP"),
			PublishTimeout: parseDuration(v.GetString("EVENTS_PUBLISH_TIMEOUT"), 3*time.Second),
		},
		Notifications: NotificationsConfig{
			Enabled:        v.GetBool("ENABLE_NOTIFICATIONS"),
			Provider:       v.GetString("NOTIFICATIONS_PROVIDER"),
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromEmail:      v.GetString("NOTIFICATIONS_FROM_EMAIL"),
			FromName:       v.GetString("NOTIFICATIONS_FROM_NAME"),
		},
		Stream: StreamConfig{
			Enabled:    v.GetBool("ENABLE_STREAM"),
			SendBuffer: v.GetInt("STREAM_SEND_BUFFER"),
		},
		Sweep: SweepConfig{
			Enabled:         v.GetBool("ENABLE_SWEEP"),
			OverdueSpec:     v.GetString("SWEEP_OVERDUE_SPEC"),
			ChainVerifySpec: v.GetString("SWEEP_CHAIN_VERIFY_SPEC"),
		},
		Cutover: CutoverConfig{
			RouteToGo:           v.GetBool("ROUTE_TO_GO"),
			ShadowTraffic:       v.GetBool("SHADOW_TRAFFIC"),
			LegacyReadOnly:      v.GetBool("LEGACY_READONLY"),
			CanaryPercentage:    clampPercent(v.GetInt("CANARY_PERCENTAGE")),
			StageHeader:         v.GetString("CUTOVER_STAGE_HEADER"),
			ClientSegmentHeader: v.GetString("CUTOVER_SEGMENT_HEADER"),
			LegacyHealthURL:     v.GetString("LEGACY_HEALTH_URL"),
			GoHealthURL:         v.GetString("GO_HEALTH_URL"),
			HealthCheckTimeout:  parseDuration(v.GetString("CUTOVER_HEALTH_TIMEOUT"), 2*time.Second),
		},
		Reports: ReportsConfig{
			Enabled:           v.GetBool("ENABLE_REPORTS"),
			StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
			SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
			SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
			CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
			WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
			WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env != EnvProduction {
		return nil
	}
	if c.JWT.Secret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Audit.ChainKey == devChainKey {
		return fmt.Errorf("AUDIT_CHAIN_KEY must be set in production")
	}
	if c.Reports.Enabled && c.Reports.SignedURLSecret == devReportsSecret {
		return fmt.Errorf("REPORTS_SIGNED_URL_SECRET must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ims_admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_ISSUER", "ims-identity")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ADMISSIONS_CACHE_TTL", "5m")
	v.SetDefault("ADMISSIONS_INSTALLMENT_CYCLE", "720h")
	v.SetDefault("AUDIT_CHAIN_KEY", devChainKey)

	v.SetDefault("ENABLE_EVENTS", false)
	v.SetDefault("EVENTS_CONSUMER_GROUP", "ims-admission-api")
	v.SetDefault("EVENTS_PUBLISH_TIMEOUT", "3s")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFICATIONS_PROVIDER", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("NOTIFICATIONS_FROM_EMAIL", "admissions@ims.example")
	v.SetDefault("NOTIFICATIONS_FROM_NAME", "IMS Admissions")

	v.SetDefault("ENABLE_STREAM", false)
	v.SetDefault("STREAM_SEND_BUFFER", 16)

	v.SetDefault("ENABLE_SWEEP", false)
	v.SetDefault("SWEEP_OVERDUE_SPEC", "0 * * * *")
	v.SetDefault("SWEEP_CHAIN_VERIFY_SPEC", "30 3 * * *")

	v.SetDefault("ROUTE_TO_GO", false)
	v.SetDefault("SHADOW_TRAFFIC", false)
	v.SetDefault("LEGACY_READONLY", false)
	v.SetDefault("CANARY_PERCENTAGE", 0)
	v.SetDefault("CUTOVER_STAGE_HEADER", "X-Cutover-Stage")
	v.SetDefault("CUTOVER_SEGMENT_HEADER", "X-Client-Segment")
	v.SetDefault("LEGACY_HEALTH_URL", "http://localhost:3000/health")
	v.SetDefault("GO_HEALTH_URL", "http://localhost:8080/health")
	v.SetDefault("CUTOVER_HEALTH_TIMEOUT", "2s")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", devReportsSecret)
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
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
