// cmd/api-server/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"riseready-notifications/internal/common/auth"
	"riseready-notifications/internal/common/config"
	"riseready-notifications/internal/common/database"
	"riseready-notifications/internal/common/logger"
	"riseready-notifications/internal/common/observability"
	"riseready-notifications/internal/common/realtime"
	"riseready-notifications/internal/common/worker"
	"riseready-notifications/internal/server"
	"riseready-notifications/internal/store"
	dispatch "riseready-notifications/internal/workers/notification/dispatch-notifications"
)

var storeRetry = worker.RetryConfig{MaxRetries: 10, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

func main() {
	bootLog := logger.New("info", "console")

	configFile := flag.String("config", "", "YAML config file to load instead of the configs/ lookup")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadFromFile(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}
	if err := cfg.ValidateServer(); err != nil {
		bootLog.Fatal("invalid server configuration", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output).
		With(zap.String("service", "api-server"), zap.String("version", cfg.App.Version))
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs, err := observability.New(observability.Config{
		ServiceName:     cfg.Observability.ServiceName,
		TraceSampleRate: cfg.Observability.TraceSampleRate,
	})
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	var backend store.Backend
	err = worker.Retry(ctx, storeRetry, "store connection", func(ctx context.Context) error {
		var err error
		backend, err = store.Open(ctx, cfg.Store, log)
		return err
	})
	if err != nil {
		zapLog.Fatal("store unavailable", zap.Error(err))
	}

	// --- Real-time bus ---
	hub := realtime.NewHub(cfg.Realtime.WorkerSecret, log)
	verifier := auth.NewVerifier(cfg.Realtime.JWTSecret, "")

	var bridge *realtime.RedisBridge
	var redisClient *database.RedisClient
	if cfg.Redis.Address != "" {
		redisClient, err = database.NewRedis(cfg.Redis)
		if err != nil {
			zapLog.Fatal("redis client failed", zap.Error(err))
		}
		if err := redisClient.Ping(ctx); err != nil {
			zapLog.Fatal("redis unavailable", zap.Error(err))
		}
		bridge = realtime.NewRedisBridge(redisClient.Client, cfg.Realtime.RedisChannel, hub, log)
		if err := bridge.Start(ctx); err != nil {
			zapLog.Fatal("redis relay bridge failed", zap.Error(err))
		}
	}

	// --- HTTP ---
	router := server.NewRouter(server.Deps{
		Store:      backend,
		Hub:        hub,
		Verifier:   verifier,
		SendBuffer: cfg.Realtime.SendBuffer,
		Version:    cfg.App.Version,
		Logger:     log,
	})
	srv := server.New(cfg.Server, router, log)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	// --- In-process dispatcher ---
	var poller *worker.PollingWorker
	if cfg.Dispatch.InProcess {
		opts, err := dispatch.ChannelOptions(ctx, cfg.Integrations, log)
		if err != nil {
			zapLog.Fatal("delivery channels failed", zap.Error(err))
		}
		opts = append(opts, dispatch.WithObservability(obs))

		handler := dispatch.NewHandler(
			dispatch.LoadConfig(cfg.Dispatch, dispatch.PipelineInProcess),
			backend, backend, hub, log, opts...,
		)
		poller = worker.NewPollingWorker(dispatch.TaskType, cfg.Dispatch.IntervalDuration(),
			cfg.Dispatch.CycleTimeoutDuration(), handler.Cycle(), zapLog)
		if err := poller.Start(ctx); err != nil {
			zapLog.Fatal("dispatcher failed to start", zap.Error(err))
		}
	} else {
		zapLog.Info("in-process dispatcher disabled, expecting a standalone worker")
	}

	select {
	case <-ctx.Done():
		zapLog.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			zapLog.Error("http server failed", zap.Error(err))
		}
	}

	// --- Graceful Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if poller != nil {
		if err := poller.Stop(shutdownCtx); err != nil {
			zapLog.Warn("dispatcher did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("http shutdown incomplete", zap.Error(err))
	}
	if bridge != nil {
		bridge.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	hub.Close()
	if err := backend.Close(); err != nil {
		zapLog.Warn("store close failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("observability shutdown failed", zap.Error(err))
	}

	zapLog.Info("api server stopped")
}
