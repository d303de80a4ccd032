package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/flood-watch-service/internal/domain"
)

// Throttle backend selectors.
const (
	ThrottleBackendMemory = "memory"
	ThrottleBackendRedis  = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	DatabaseURL     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Webhook signature verification. Empty secret disables verification.
	WebhookSecret string

	// Per-device ingestion throttle.
	ThrottleInterval time.Duration
	ThrottleBackend  string
	RedisAddr        string

	// Defaults applied to devices seen for the first time.
	DefaultMountHeightCm float64
	DefaultThresholds    domain.Thresholds

	// Flood-risk detection radius for route and place checks.
	DetectionRadiusMeters float64

	// Retention horizons for append-only collections.
	ReadingRetention time.Duration
	AlertRetention   time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int

	// Alert notification dispatch (Kafka broadcast topic).
	KafkaBrokers    []string
	KafkaAlertTopic string
	NotifyEnabled   bool

	// Mapbox routing/geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	throttleInterval, err := parseDurationEnv("THROTTLE_INTERVAL", "4s")
	if err != nil {
		return nil, err
	}
	readingRetention, err := parseDurationEnv("RETENTION_READINGS", "720h") // 30 days
	if err != nil {
		return nil, err
	}
	alertRetention, err := parseDurationEnv("RETENTION_ALERTS", "2160h") // 90 days
	if err != nil {
		return nil, err
	}
	sweepInterval, err := parseDurationEnv("SWEEP_INTERVAL", "24h")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDurationEnv("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	alertTopic := sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "flood-alerts")
	notifyEnabled := true
	if v := os.Getenv("NOTIFY_ENABLED"); v != "" {
		notifyEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		ThrottleInterval: throttleInterval,
		ThrottleBackend:  sharedcfg.EnvOrDefault("THROTTLE_BACKEND", ThrottleBackendMemory),
		RedisAddr:        sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),

		DefaultMountHeightCm: parseFloatEnv("DEFAULT_MOUNT_HEIGHT_CM", 200),
		DefaultThresholds: domain.Thresholds{
			WarnCm:  parseFloatEnv("DEFAULT_WARN_CM", 30),
			AlertCm: parseFloatEnv("DEFAULT_ALERT_CM", 60),
		},

		DetectionRadiusMeters: parseFloatEnv("DETECTION_RADIUS_M", domain.DefaultDetectionRadiusMeters),

		ReadingRetention: readingRetention,
		AlertRetention:   alertRetention,
		SweepInterval:    sweepInterval,
		SweepBatchSize:   parseIntEnv("SWEEP_BATCH_SIZE", 500),

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: alertTopic,
		NotifyEnabled:   notifyEnabled,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseIntEnv("MAPBOX_CACHE_SIZE", 1000),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.ThrottleBackend != ThrottleBackendMemory && cfg.ThrottleBackend != ThrottleBackendRedis {
		return nil, fmt.Errorf("invalid THROTTLE_BACKEND %q", cfg.ThrottleBackend)
	}
	if cfg.NotifyEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("NOTIFY_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.SweepBatchSize <= 0 {
		return nil, errors.New("SWEEP_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloatEnv(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}
