package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/webinex/dynroles/internal/app"
	"github.com/webinex/dynroles/internal/permissions"
	"github.com/webinex/dynroles/internal/platform/cache"
	"github.com/webinex/dynroles/internal/platform/db"
	"github.com/webinex/dynroles/internal/roles"
	"github.com/webinex/dynroles/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.Config{
		DSN:          cfg.PGDSN,
		MaxConns:     cfg.PGMaxConns,
		ConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Task queues live in Redis; the worker cannot run without it.
	redisClient, err := cache.New(ctx, cache.Config{
		Addr:        cfg.RedisAddr,
		DialTimeout: cfg.RedisDialTimeout,
	})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	holder, err := permissions.NewHolder(ctx, permissions.NewFileSource(cfg.PermissionsFile))
	if err != nil {
		logger.Error("load permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	permsCache := roles.NewRedisUserPermissionsCache(redisClient, cfg.CacheTTL, cfg.CachePrefix, logger)
	store := roles.NewPostgresStore(pool)
	service := roles.NewService(store, permissions.NewValidator(holder), holder, permsCache, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeWarmUserPermissions, Handler: jobs.WarmUserPermissionsHandler(service, logger)},
			{Type: jobs.TaskTypeReloadCatalog, Handler: jobs.ReloadCatalogHandler(holder, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewReloadCatalogTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
