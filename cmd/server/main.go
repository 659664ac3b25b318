package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/example/mechanic-dispatch/internal/auth"
	"github.com/example/mechanic-dispatch/internal/booking"
	"github.com/example/mechanic-dispatch/internal/config"
	"github.com/example/mechanic-dispatch/internal/geo"
	httpapi "github.com/example/mechanic-dispatch/internal/http"
	"github.com/example/mechanic-dispatch/internal/ingest"
	"github.com/example/mechanic-dispatch/internal/logging"
	"github.com/example/mechanic-dispatch/internal/mechanic"
	"github.com/example/mechanic-dispatch/internal/notify"
	"github.com/example/mechanic-dispatch/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid server config", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store unavailable", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var index geo.Geo
	if cfg.RedisAddr != "" {
		rg := geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		if err := rg.Ping(ctx); err != nil {
			logger.Error("redis unavailable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rg.Close()
		index = rg
		logger.Info("using redis geo index", "addr", cfg.RedisAddr, "key", cfg.RedisGeoKey)
	} else {
		index = geo.NewIndex()
		logger.Info("using in-memory geo index")
	}

	registry := notify.NewRegistry(logger)
	bookings := booking.NewService(store, index, registry, logger)
	bookings.CancelCutoff = cfg.CancelCutoff
	bookings.SearchRadiusKm = cfg.SearchRadiusKm
	mechanics := mechanic.NewService(store, index, nil, logger)

	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaLocationTopic, cfg.KafkaEventTopic, logger)
		defer kp.Close()
		bookings.Events = kp
		mechanics.Publisher = kp
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "location_topic", cfg.KafkaLocationTopic, "event_topic", cfg.KafkaEventTopic)
	}

	n, err := mechanics.Warm(ctx)
	if err != nil {
		logger.Error("geo index warm-up failed", "error", err)
		os.Exit(1)
	}
	logger.Info("geo index warmed", "mechanics", n)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	api := httpapi.NewServer(httpapi.Deps{
		Bookings:       bookings,
		Mechanics:      mechanics,
		Auth:           auth.NewService(store, tokens, logger),
		Store:          store,
		Notify:         registry,
		SearchRadiusKm: cfg.SearchRadiusKm,
		StreamPing:     cfg.StreamPing,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mechanic-dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
	// streams never go idle on their own; close them so Shutdown can drain
	registry.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.PGDSN == "" {
		logger.Info("using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}
	ps, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunMigrations {
		script, err := os.ReadFile(filepath.Join("migrations", "001_create_schema.sql"))
		if err != nil {
			_ = ps.Close()
			return nil, nil, err
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := ps.Migrate(migrateCtx, string(script)); err != nil {
			_ = ps.Close()
			return nil, nil, err
		}
		logger.Info("migration applied", "file", "001_create_schema.sql")
	}
	logger.Info("using postgres store")
	return ps, func() { _ = ps.Close() }, nil
}
