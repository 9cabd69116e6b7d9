package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/drctl/internal/alerting"
	"github.com/FairForge/drctl/internal/api"
	"github.com/FairForge/drctl/internal/config"
	"github.com/FairForge/drctl/internal/dr"
	"github.com/FairForge/drctl/internal/eventstore"
	"github.com/FairForge/drctl/internal/metrics"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.GetEnvOrDefault("DRCTL_CONFIG", "drctl.yaml"), "path to configuration file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("configuration load failed", zap.Error(err))
	}

	m := metrics.New()
	alerter := alerting.New(alerting.DefaultConfig(), logger)
	alerter.Subscribe(func(alert alerting.Alert) {
		// Real notification transport (pager, Slack) hangs off here.
		logger.Warn("alert",
			zap.String("severity", alert.Severity),
			zap.String("source", alert.Source),
			zap.String("message", alert.Message))
	})

	var recorder dr.EventRecorder
	if cfg.Database != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := eventstore.Open(ctx, *cfg.Database, logger)
		cancel()
		if err != nil {
			logger.Fatal("event store unavailable", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		recorder = store
	}

	prober := dr.NewHTTPProber(time.Duration(cfg.Health.CheckTimeout))
	controller, err := dr.NewController(cfg.ControllerConfig(), prober, alerter, m, recorder, logger)
	if err != nil {
		logger.Fatal("controller construction failed", zap.Error(err))
	}

	if err := controller.StartHealthMonitoring(context.Background()); err != nil {
		logger.Fatal("health monitoring failed to start", zap.Error(err))
	}

	server := api.NewServer(cfg.Server.Port, cfg.Server.APISecret, controller, m, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	logger.Info("drctl started",
		zap.String("primary", cfg.Primary),
		zap.Int("regions", len(cfg.Regions)),
		zap.Int("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}
	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Error("controller shutdown failed", zap.Error(err))
	}
}
