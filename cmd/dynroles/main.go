package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/webinex/dynroles/internal/app"
	"github.com/webinex/dynroles/internal/permissions"
	"github.com/webinex/dynroles/internal/platform/db"
	"github.com/webinex/dynroles/internal/rbac"
	"github.com/webinex/dynroles/internal/roles"
	"github.com/webinex/dynroles/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	holder, err := permissions.NewHolder(ctx, permissions.NewFileSource(cfg.PermissionsFile))
	if err != nil {
		logger.Error("load permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	var cache roles.UserPermissionsCache = roles.NoopUserPermissionsCache{}
	var warmQueue roles.WarmQueue
	var jobsHandler *jobs.Handler
	if cfg.CacheEnabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: cfg.RedisDialTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		cache = roles.NewRedisUserPermissionsCache(redisClient, cfg.CacheTTL, cfg.CachePrefix, logger)

		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobsClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		warmQueue = jobsClient

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobsHandler = jobs.NewHandler(inspector, logger)
	}

	store := roles.NewPostgresStore(pool)
	service := roles.NewService(store, permissions.NewValidator(holder), holder, cache, logger)
	if warmQueue != nil {
		service = service.WithWarmQueue(warmQueue)
	}
	handler := roles.NewHandler(logger, service)

	params := app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		RolesHandler: handler,
		JobsHandler:  jobsHandler,
	}
	// The management API is guarded only when the catalog declares the
	// manage permission; otherwise the deployment relies on its gateway.
	if holder.Current().Has("roles.manage") {
		registry := rbac.NewRegistry()
		registry.MustRegister("roles-manage", "roles.manage")
		params.Guard = rbac.NewGuard(service, logger)
		params.ManagePolicy = "roles-manage"
		params.Registry = registry
	}

	router := app.NewRouter(params)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
