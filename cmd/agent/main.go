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

	"sitesync/internal/api"
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
	cfg, logger, closer, err := loadConfigAndLogger("foreground")
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

	auth := syncengine.NewAuthContext()
	baseURL := resolveBaseURL(ctx, cfg, st, &logger)
	detector := syncengine.NewProbeDetector(baseURL, cfg.Remote.ProbeTimeout(), cfg.Remote.ProbeCache())
	executor := syncengine.NewHTTPExecutor(baseURL, auth)

	bus := events.NewBus()
	processor := syncengine.NewProcessor(st, auth, detector, executor, bus, &logger)
	scheduler := syncengine.NewScheduler(st, processor, detector, executor, auth, bus, &logger, syncengine.SchedulerOptions{
		Cooldown: cfg.Sync.Cooldown(),
		Interval: cfg.Sync.Interval(),
		ConnPoll: cfg.Sync.ConnectivityPoll(),
	})

	redisClient := channel.NewRedisClient(cfg.Redis)
	defer redisClient.Close()
	if err := channel.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; cross-context messages will not flow")
	}

	ch := channel.NewForeground(redisClient, &logger)
	targets := []lifecycle.BaseURLTarget{detector, executor}
	announcer := lifecycle.NewAnnouncer(st, auth, ch, targets, &logger)

	if err := ch.Listen(ctx, func(msg models.Message) { announcer.Handle(ctx, msg) }); err != nil {
		logger.Warn().Err(err).Msg("channel subscribe failed")
	}
	announcer.AnnounceActivation(ctx)

	// The foreground runs its own loop pair whenever the process is up.
	scheduler.StartTimers(ctx)
	defer scheduler.StopTimers()

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, st, scheduler, announcer, cfg.Exports.Path, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	logger.Info().Msg("agent started")
	<-ctx.Done()
	logger.Info().Msg("agent shutting down")
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

// resolveBaseURL prefers the persisted base URL over config so an
// API_BASE_URL_UPDATE outlives restarts.
func resolveBaseURL(ctx context.Context, cfg *config.Config, st *store.Store, logger *zerolog.Logger) string {
	settings, err := st.LoadSettings(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load persisted settings failed")
		return cfg.Remote.BaseURL
	}
	if settings.APIBaseURL != "" {
		return settings.APIBaseURL
	}
	return cfg.Remote.BaseURL
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
