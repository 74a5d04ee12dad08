package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"note-history-server/internal/config"
	"note-history-server/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to build logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}

	if err := a.serve(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("server stopped gracefully")
}
