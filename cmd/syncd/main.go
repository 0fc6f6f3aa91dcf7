package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"sitesync/internal/channel"
	"sitesync/internal/config"
	"sitesync/internal/events"
	"sitesync/internal/lifecycle"
	"sitesync/internal/logging"
	"sitesync/internal/metrics"
	"sitesync/internal/models"
	"sitesync/internal/store"
	syncengine "sitesync/internal/sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger("background")
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	st, err := store.New(cfg.Store.Path, store.WithDefaultMaxAttempts(cfg.Sync.MaxAttempts))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	// The daemon starts with an empty token; it arrives over the channel.
	auth := syncengine.NewAuthContext()
	detector := syncengine.NewProbeDetector(cfg.Remote.BaseURL, cfg.Remote.ProbeTimeout(), cfg.Remote.ProbeCache())
	executor := syncengine.NewHTTPExecutor(cfg.Remote.BaseURL, auth)

	redisClient := channel.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	if err := channel.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; cross-context messages will not flow")
	}
	ch := channel.NewBackground(redisClient, &logger)

	bus := events.NewBus()
	processor := syncengine.NewProcessor(st, auth, detector, executor, bus, &logger)

	var runner *lifecycle.Runner
	scheduler := syncengine.NewScheduler(st, processor, detector, executor, auth, bus, &logger, syncengine.SchedulerOptions{
		Cooldown:       cfg.Sync.Cooldown(),
		Interval:       cfg.Sync.Interval(),
		ConnPoll:       cfg.Sync.ConnectivityPoll(),
		OnMissingToken: func() { runner.RequestToken() },
	})

	targets := []lifecycle.BaseURLTarget{detector, executor}
	runner = lifecycle.NewRunner(st, auth, scheduler, ch, targets, &logger)

	if err := ch.Listen(ctx, func(msg models.Message) { runner.Handle(ctx, msg) }); err != nil {
		logger.Warn().Err(err).Msg("channel subscribe failed")
	}
	if err := lifecycle.SeedBackgroundFlag(ctx, st, cfg.Background.Enabled); err != nil {
		logger.Warn().Err(err).Msg("seed background flag failed")
	}
	if err := runner.Activate(ctx); err != nil {
		return err
	}

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort+1, &logger)
	}

	// Database snapshots run in the daemon; the agent only reads and writes.
	backup := store.NewBackupService(cfg.Store.Path, cfg.Backup, &logger)
	go backup.Start(ctx)

	logger.Info().Str("state", runner.State().String()).Msg("syncd started")
	<-ctx.Done()

	// Loops must be down before the process is allowed to terminate.
	runner.Terminate()
	logger.Info().Msg("syncd terminated")
	return nil
}

func loadConfigAndLogger(contextName string) (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	cfg.App.Context = contextName

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "main").Logger()
	return cfg, logger, closer, nil
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
