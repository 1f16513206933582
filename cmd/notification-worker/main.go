// cmd/notification-worker/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"riseready-notifications/internal/common/config"
	"riseready-notifications/internal/common/database"
	httpclient "riseready-notifications/internal/common/http"
	"riseready-notifications/internal/common/logger"
	"riseready-notifications/internal/common/observability"
	"riseready-notifications/internal/common/realtime"
	"riseready-notifications/internal/common/worker"
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
	if err := cfg.ValidateWorker(); err != nil {
		bootLog.Fatal("invalid worker configuration", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output).
		With(zap.String("service", "notification-worker"), zap.String("version", cfg.App.Version))
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

	// --- Wait for the bus host ---
	healthURL := cfg.Realtime.HealthURL()
	health := httpclient.NewClient(2 * time.Second)
	err = health.WaitForHealthy(ctx, healthURL, cfg.Dispatch.HealthAttempts, cfg.Dispatch.HealthIntervalDuration(),
		func(attempt int, err error) {
			zapLog.Debug("api not healthy yet", zap.Int("attempt", attempt), zap.Error(err))
		})
	if err != nil {
		zapLog.Fatal("api never became healthy", zap.String("url", healthURL), zap.Error(err))
	}
	zapLog.Info("api is healthy", zap.String("url", healthURL))

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

	// --- Relay transport ---
	var (
		publisher   dispatch.Publisher
		relayClient *realtime.RelayClient
		redisClient *database.RedisClient
	)
	switch cfg.Realtime.Transport {
	case config.TransportRedis:
		redisClient, err = database.NewRedis(cfg.Redis)
		if err != nil {
			zapLog.Fatal("redis client failed", zap.Error(err))
		}
		if err := redisClient.Ping(ctx); err != nil {
			zapLog.Fatal("redis unavailable", zap.Error(err))
		}
		publisher = realtime.NewRedisRelay(redisClient.Client, cfg.Realtime.RedisChannel, cfg.Realtime.WorkerSecret)
	default:
		relayClient = realtime.NewRelayClient(cfg.Realtime.WebsocketURL(), cfg.Realtime.WorkerSecret, log)
		if err := relayClient.Connect(ctx); err != nil {
			// Publish redials, so a slow bus host only costs the first pushes
			zapLog.Warn("bus host not reachable yet", zap.Error(err))
		}
		publisher = relayClient
	}
	zapLog.Info("relay transport ready", zap.String("transport", cfg.Realtime.Transport))

	// --- Dispatcher ---
	opts, err := dispatch.ChannelOptions(ctx, cfg.Integrations, log)
	if err != nil {
		zapLog.Fatal("delivery channels failed", zap.Error(err))
	}
	opts = append(opts, dispatch.WithObservability(obs))

	handler := dispatch.NewHandler(
		dispatch.LoadConfig(cfg.Dispatch, dispatch.PipelineStandalone),
		backend, backend, publisher, log, opts...,
	)
	poller := worker.NewPollingWorker(dispatch.TaskType, cfg.Dispatch.IntervalDuration(),
		cfg.Dispatch.CycleTimeoutDuration(), handler.Cycle(), zapLog)
	if err := poller.Start(ctx); err != nil {
		zapLog.Fatal("dispatcher failed to start", zap.Error(err))
	}
	zapLog.Info("notification worker started",
		zap.Int("batchSize", cfg.Dispatch.BatchSize),
		zap.Duration("interval", cfg.Dispatch.IntervalDuration()),
		zap.Duration("reclaimAfter", cfg.Dispatch.ReclaimAfterDuration()),
	)

	<-ctx.Done()
	zapLog.Info("shutdown signal received, stopping dispatcher")

	// --- Graceful Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := poller.Stop(shutdownCtx); err != nil {
		zapLog.Warn("dispatcher did not stop cleanly", zap.Error(err))
	}
	if relayClient != nil {
		relayClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if err := backend.Close(); err != nil {
		zapLog.Warn("store close failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("observability shutdown failed", zap.Error(err))
	}

	zapLog.Info("notification worker stopped")
}
