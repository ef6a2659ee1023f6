package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tokoerp/backend/internal/cache"
	"tokoerp/backend/internal/config"
	"tokoerp/backend/internal/httpapi"
	"tokoerp/backend/internal/service"
	"tokoerp/backend/internal/store"
	"tokoerp/backend/internal/store/memory"
	pgstore "tokoerp/backend/internal/store/postgres"
)

func main() {
	cfg, cfgErr := config.Load()
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if cfgErr != nil {
		logger.Fatal("invalid configuration", zap.Error(cfgErr))
	}
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("postgres migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger)
		logger.Info("repository: in-memory")
	}

	unitCache := cache.UnitCache(cache.NoopUnitCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisUnitCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			unitCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("cache: noop")
	}

	svc := service.New(repo, unitCache, logger, service.Options{
		CacheTTL: cfg.UnitCacheTTL(),
		MaxDepth: cfg.MaxConversionDepth,
		Guard:    cfg.DefaultGuard,
	})
	if cfg.SeedOnStart {
		if _, err := svc.SeedPermissions(ctx, cfg.MultiTenant); err != nil {
			logger.Fatal("permission seeding failed", zap.Error(err))
		}
	}
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, cfg.MultiTenant, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("tokoerp backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// newLogger returns a development logger for "debug" and a production
// logger at the requested level otherwise.
func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}

	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil && level != "" {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if err := validateSecretStrength(cfg.AuthSecret); err != nil {
		return fmt.Errorf("AUTH_SECRET is too weak: %w", err)
	}
	if cfg.MaxConversionDepth > 256 {
		return fmt.Errorf("MAX_CONVERSION_DEPTH must not exceed 256")
	}
	if strings.ContainsAny(cfg.DefaultGuard, " \t\r\n") {
		return fmt.Errorf("DEFAULT_GUARD must not contain whitespace")
	}
	return nil
}

// validateSecretStrength rejects secrets built from a single repeated
// character or from the development placeholder.
func validateSecretStrength(secret string) error {
	if strings.Contains(strings.ToLower(secret), "change-me") {
		return fmt.Errorf("placeholder secret not allowed")
	}

	allSame := true
	for i := 1; i < len(secret); i++ {
		if secret[i] != secret[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character secret not allowed")
	}
	return nil
}
