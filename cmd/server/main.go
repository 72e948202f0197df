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

	"go.uber.org/zap"

	"github.com/minibank/counter-service/internal/api"
	"github.com/minibank/counter-service/internal/config"
	"github.com/minibank/counter-service/internal/db"
	"github.com/minibank/counter-service/internal/domain"
	"github.com/minibank/counter-service/internal/events"
	"github.com/minibank/counter-service/internal/logging"
	"github.com/minibank/counter-service/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.NewFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to create database pool", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool.Pool); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	logger.Info("database connection pool initialized")

	txManager := db.NewTransactionManager(pool.Pool, logger)
	store := db.NewTransactionStore(pool.Pool, txManager)
	directory := db.NewCounterDirectory(pool.Pool)

	trigger := settlement.NewHTTPTrigger(cfg.AccountServiceURL, logger)
	reconciler := settlement.NewReconciler(trigger, cfg.ReconcileInterval, logger)
	go reconciler.Run(ctx)

	var publisher domain.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		rmq, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.Fatal("failed to create event publisher", zap.Error(err))
		}
		defer rmq.Close()
		publisher = rmq
	} else {
		logger.Info("RABBITMQ_URL not set, lifecycle events disabled")
	}

	resolver := domain.NewAssignmentResolver(store, directory, logger)
	engine := domain.NewLifecycleEngine(store, directory, resolver, trigger, trigger, reconciler, publisher, logger)
	logger.Info("lifecycle engine initialized")

	if cfg.MaxPendingAge > 0 {
		go engine.RunExpirySweeper(ctx, cfg.ExpirySweepInterval, cfg.MaxPendingAge)
		logger.Info("expiry sweeper enabled",
			zap.Duration("max_pending_age", cfg.MaxPendingAge),
			zap.Duration("interval", cfg.ExpirySweepInterval),
		)
	}

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.HTTPAddr
	server := api.NewServer(engine, serverCfg, logger)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
