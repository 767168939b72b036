package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"taskapi/docs" // swagger docs

	"taskapi/internal/auth"
	"taskapi/internal/cache"
	"taskapi/internal/clock"
	"taskapi/internal/config"
	"taskapi/internal/db"
	"taskapi/internal/handler"
	"taskapi/internal/logging"
	"taskapi/internal/ratelimit"
	"taskapi/internal/repository"
	"taskapi/internal/router"
	"taskapi/internal/service"
)

// @title Task Management API
// @version 1.0
// @description Multi-tenant task API with JWT authentication and role-based access.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "taskapi: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	gormDB, err := db.Open(cfg)
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	if cfg.ResetDB {
		logger.Warn("RESET_DB set, dropping all tables")
	}
	if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
		return err
	}

	var cacheClient *cache.Client
	if cfg.RedisAddr != "" {
		cacheClient = cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer cacheClient.Close()
	}

	limit, err := ratelimit.Parse(cfg.RateLimit)
	if err != nil {
		return err
	}
	var limiterStore middleware.RateLimiterStore
	switch cfg.RateLimitStorage {
	case config.StorageRedis:
		limiterStore = ratelimit.NewRedisStore(cacheClient, limit)
	default:
		limiterStore = ratelimit.NewMemoryStore(limit)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	taskRepo := repository.NewTaskRepository(gormDB)

	// Initialize auth components
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenLifetime, clock.Real())
	principalCache := auth.NewPrincipalCache(cacheClient)
	principals := service.NewPrincipalResolver(tokens, userRepo, principalCache, cfg.CacheTTL, logger)

	// Initialize services
	authService := service.NewAuthService(userRepo, tokens, logger)
	taskService := service.NewTaskService(principals, userRepo, taskRepo, logger)
	userService := service.NewUserService(principals, userRepo, principalCache, logger)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "http://"), "https://")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	router.Register(e, router.Deps{
		Auth:           handler.NewAuthHandler(authService),
		Tasks:          handler.NewTaskHandler(taskService),
		Users:          handler.NewUserHandler(userService),
		Health:         handler.NewHealthHandler(db.NewProbe(gormDB), cacheClient, logger),
		Tokens:         tokens,
		RateLimitStore: limiterStore,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.ServerPort
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "db_driver", cfg.DBDriver,
			"rate_limit", limit.String(), "rate_limit_storage", cfg.RateLimitStorage,
			"swagger", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
