package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"keygate.io/internal/config"
	"keygate.io/internal/jobs"
	"keygate.io/internal/mailer"
	"keygate.io/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		slog.Error("KEYGATE_REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.LogFormat)
	slog.SetDefault(logger)

	sender := mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.BaseURL)
	worker := jobs.NewWorker(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, sender, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting keygate-worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("stopped")
}
