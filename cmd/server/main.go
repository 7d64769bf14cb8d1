package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/handler"
	"github.com/GoPolymarket/guildgate/internal/ledger"
	"github.com/GoPolymarket/guildgate/internal/middleware"
	"github.com/GoPolymarket/guildgate/internal/pkg/logger"
	"github.com/GoPolymarket/guildgate/internal/repository"
	"github.com/GoPolymarket/guildgate/internal/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 0. Initialize Logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWTPublicKeyPEM == "" {
		logger.Error("No JWT verification key configured, every authenticated request will fail with AUTH_CONFIG_ERROR")
	}

	// 2. Initialize Persistence
	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Connected to database", "driver", cfg.Database.Driver)

	if cfg.Database.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to migrate tenant tables: %v", err)
		}
		if err := ledger.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to migrate ledger tables: %v", err)
		}
	}

	led, err := ledger.New(db, ledger.WithMaxRetries(cfg.Ledger.MaxRetries))
	if err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}

	// Community cache and idempotency keys (Redis > Memory)
	var cache service.CommunityCache
	var idem middleware.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
			ttl := time.Duration(cfg.Redis.CommunityCacheTTLSeconds) * time.Second
			cache = repository.NewRedisCommunityCache(rdb, cfg.Redis.KeyPrefix, ttl)
			idem = repository.NewRedisIdempotencyStore(rdb, cfg.Redis.KeyPrefix, 24*time.Hour)
			defer rdb.Close()
		} else {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err.Error())
		}
	}
	if idem == nil {
		idem = middleware.NewInMemIdempotencyStore(24 * time.Hour)
	}

	// 3. Initialize Core Services
	directory := service.NewCommunityDirectory(cfg, repository.NewCommunityRepo(db), cache)
	validator, err := service.NewCredentialValidator(cfg.Auth, directory)
	if err != nil {
		log.Fatalf("Failed to initialize credential validator: %v", err)
	}

	auditStore := repository.NewAuditStore(db)
	auditSvc := service.NewAuditService(cfg.Audit, auditStore, led)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	service.StartCleanup(bgCtx, auditStore, time.Duration(cfg.Database.CleanupIntervalMinutes)*time.Minute)

	// 4. Setup Router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := handler.NewRouter(handler.Deps{
		Config:      cfg,
		DB:          db,
		Ledger:      led,
		Directory:   directory,
		Validator:   validator,
		Audit:       auditSvc,
		Idempotency: idem,
	})

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("guildgate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
	}
	stopBackground()
	if !auditSvc.Close(timeout) {
		logger.Warn("Audit records still queued at exit", "stats", auditSvc.Stats())
	}

	logger.Info("Server exiting")
}
