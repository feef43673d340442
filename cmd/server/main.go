package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "castgate/internal/api/http"
	"castgate/internal/app"
	"castgate/internal/backend"
	"castgate/internal/devices"
	"castgate/internal/mediacache"
	"castgate/internal/metrics"
	"castgate/internal/playback"
	mongorepo "castgate/internal/repository/mongo"
	"castgate/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "castgate")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "castgate"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("publicBaseUrl", cfg.PublicBaseURL),
		slog.Int64("blockSize", cfg.BlockSize),
		slog.Duration("streamGoneTimeout", cfg.StreamGoneTimeout),
		slog.String("backendUrl", cfg.BackendURL),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	serverOptions := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithBlockSize(cfg.BlockSize),
		apihttp.WithGoneTimeout(cfg.StreamGoneTimeout),
		apihttp.WithPublicBaseURL(cfg.PublicBaseURL),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	}

	var mongoDisconnect func()
	if cfg.MongoURI != "" {
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		mongoDisconnect = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}

		historyRepo := mongorepo.NewStreamHistoryRepository(mongoClient, cfg.MongoDatabase, "stream_history")
		if err := historyRepo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
		serverOptions = append(serverOptions, apihttp.WithStreamHistory(historyRepo))
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, falling back to in-memory media cache",
				slog.String("error", err.Error()),
			)
			serverOptions = append(serverOptions, apihttp.WithMessageCache(mediacache.NewMemory()))
		} else {
			serverOptions = append(serverOptions, apihttp.WithMessageCache(mediacache.NewRedis(redisClient, logger)))
		}
	} else {
		serverOptions = append(serverOptions, apihttp.WithMessageCache(mediacache.NewMemory()))
	}

	backendClient := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Token:   cfg.BackendToken,
	})
	directory := devices.NewDirectory(backendClient, logger)

	handler := apihttp.NewServer(backendClient, serverOptions...)

	registry := playback.NewRegistry(handler, backendClient, backendClient, directory, logger)
	handler.SetOnStreamClosed(registry.HandleClosed)

	dispatcher := playback.NewDispatcher(registry, backendClient, directory, logger)
	poller := backend.NewPoller(backendClient, dispatcher, logger)
	go poller.Run(rootCtx)

	go broadcastSessions(rootCtx, handler, registry)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if mongoDisconnect != nil {
		mongoDisconnect()
	}

	logger.Info("server stopped")
}

// broadcastSessions pushes playback-session snapshots to websocket clients
// and keeps the sessions gauge current.
func broadcastSessions(ctx context.Context, handler *apihttp.Server, registry *playback.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handler.BroadcastSessions(registry.Snapshot())
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
