package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-watch-service/internal/adapter/httpapi"
	"github.com/couchcryptid/flood-watch-service/internal/adapter/kafkanotify"
	"github.com/couchcryptid/flood-watch-service/internal/adapter/mapbox"
	"github.com/couchcryptid/flood-watch-service/internal/adapter/postgres"
	"github.com/couchcryptid/flood-watch-service/internal/adapter/rediscache"
	"github.com/couchcryptid/flood-watch-service/internal/config"
	"github.com/couchcryptid/flood-watch-service/internal/ingest"
	"github.com/couchcryptid/flood-watch-service/internal/observability"
	"github.com/couchcryptid/flood-watch-service/internal/planner"
	"github.com/couchcryptid/flood-watch-service/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, cfg.ReadingRetention, cfg.AlertRetention)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	throttle, closeThrottle, err := newThrottle(ctx, cfg, clock, logger)
	if err != nil {
		logger.Error("throttle cache init failed", "error", err)
		os.Exit(1)
	}
	defer closeThrottle()

	var notifier ingest.Notifier
	var kafkaNotifier *kafkanotify.Notifier
	if cfg.NotifyEnabled {
		kafkaNotifier = kafkanotify.New(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		notifier = kafkaNotifier
		logger.Info("alert notifications enabled", "topic", cfg.KafkaAlertTopic)
	} else {
		logger.Info("alert notifications disabled")
	}

	var router planner.Router
	var geocoder mapbox.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		router = client
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, func(hit bool) {
			result := "miss"
			if hit {
				result = "hit"
			}
			metrics.GeocodeCache.WithLabelValues(result).Inc()
		})
		logger.Info("mapbox routing enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox routing disabled")
	}

	pipeline := ingest.New(store, notifier, throttle, clock, logger, metrics,
		cfg.WebhookSecret, cfg.ThrottleInterval, ingest.DeviceDefaults{
			MountHeightCm: cfg.DefaultMountHeightCm,
			Thresholds:    cfg.DefaultThresholds,
		})
	routePlanner := planner.New(router, store, cfg.DetectionRadiusMeters, logger)
	sweep := sweeper.New(store, clock, logger, metrics, cfg.SweepInterval, cfg.SweepBatchSize)

	srv := httpapi.NewServer(cfg.HTTPAddr, pipeline, routePlanner, store, geocoder,
		storeReadiness{store: store}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := sweep.Run(ctx); err != nil {
			logger.Error("retention sweeper error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// storeReadiness reports readiness from store connectivity.
type storeReadiness struct {
	store *postgres.Store
}

func (r storeReadiness) CheckReadiness(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// newThrottle builds the configured throttle cache backend.
func newThrottle(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (ingest.ThrottleCache, func(), error) {
	if cfg.ThrottleBackend == config.ThrottleBackendRedis {
		t := rediscache.New(cfg.RedisAddr)
		if err := t.Ping(ctx); err != nil {
			return nil, nil, err
		}
		logger.Info("redis throttle cache enabled", "addr", cfg.RedisAddr)
		return t, func() { _ = t.Close() }, nil
	}
	return ingest.NewMemoryThrottle(clock), func() {}, nil
}
