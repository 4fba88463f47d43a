package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"mktstream/internal/application/usecase/monitor"
	"mktstream/internal/infrastructure/config"
	"mktstream/internal/infrastructure/logger"
	"mktstream/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	// 先登记订阅，连接建立后统一发出
	lease := sc.SubscribeConfigured()
	defer lease.Release()

	if err := sc.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("feed not ready, continuing to retry in background")
	}

	log.Info().
		Str("config", *configPath).
		Int("symbols", len(cfg.Subscriptions.Symbols)).
		Bool("monitor", cfg.App.Monitor).
		Msg("mktstream started")

	if cfg.App.Monitor {
		err = monitor.NewService(sc.BuildMonitorServiceDeps()).Run(ctx)
	} else {
		<-ctx.Done()
		err = ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("mktstream exited")
	}

	written, dropped, failed := sc.Recorder.Stats()
	log.Info().
		Int64("written", written).
		Int64("dropped", dropped).
		Int64("failed", failed).
		Msg("mktstream stopping")
}
