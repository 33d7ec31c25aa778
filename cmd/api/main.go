package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
	"keygate.io/internal/config"
	"keygate.io/internal/httpapi"
	"keygate.io/internal/jobs"
	"keygate.io/internal/mailer"
	"keygate.io/internal/obs"
	"keygate.io/internal/store/pg"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.LogFormat)
	slog.SetDefault(logger)
	audit.SetLogger(logger)

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("KEYGATE_COMMIT"))

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	codec, err := auth.NewCodec(cfg.JWTSecret, cfg.JWTRefreshSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL()),
	)
	if err != nil {
		logger.Error("build token codec", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	users := store.Users(ctx)
	refresh := auth.NewRefreshStore(users)
	verify := auth.NewVerificationManager(users, auth.WithVerificationTTL(cfg.VerificationTTL()))
	reset := auth.NewResetManager(users)

	// With redis configured, mail goes through the job queue; otherwise it
	// is sent inline.
	var outbound auth.Mailer = mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.BaseURL)
	var jobsClient *jobs.Client
	var limiter httpapi.Limiter
	if cfg.RedisAddr != "" {
		jobsClient = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer jobsClient.Close()
		outbound = jobsClient

		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		limiter = httpapi.NewRedisLimiter(rdb, cfg.RateLimitWindow, cfg.RateLimitMax)
	} else {
		limiter = httpapi.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	svc, err := auth.NewService(store, codec, refresh, verify, reset,
		auth.WithMailer(outbound),
		auth.WithLogger(logger),
	)
	if err != nil {
		logger.Error("build auth service", slog.Any("error", err))
		os.Exit(1)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		logger.Error("build rbac service", slog.Any("error", err))
		os.Exit(1)
	}
	if err := rbac.EnsureBuiltins(ctx); err != nil {
		logger.Error("seed builtin permissions", slog.Any("error", err))
		os.Exit(1)
	}

	api := httpapi.New(httpapi.Options{
		Service: svc,
		RBAC:    rbac,
		Ready:   httpapi.ReadyProbe{DB: store.DB()},
		Logger:  logger,
		Limiter: limiter,
		Version: version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	logger.Info("starting keygate-api", slog.String("version", version), slog.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
