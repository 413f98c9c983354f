package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/config"
	"github.com/openkaarten-service/internal/infrastructure/source"
	"github.com/openkaarten-service/internal/pkg/logger"
	"github.com/openkaarten-service/internal/repository/cache"
	"github.com/openkaarten-service/internal/repository/postgres"
	redisRepo "github.com/openkaarten-service/internal/repository/redis"
	"github.com/openkaarten-service/internal/usecase"
	"github.com/openkaarten-service/internal/worker"
	"github.com/openkaarten-service/internal/worker/dataset"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if !cfg.Worker.Enabled {
		fmt.Println("Worker is disabled in configuration. Set WORKER_ENABLED=true to enable.")
		os.Exit(0)
	}

	log, err := logger.New(cfg.Log.Level, "openkaarten-worker")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting dataset sync worker",
		zap.String("consumer_group", cfg.Worker.ConsumerGroup),
		zap.Duration("sync_interval", cfg.Sync.Interval),
		zap.Int("sync_concurrency", cfg.Sync.Concurrency))

	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}()

	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	datasetRepo := postgres.NewDatasetRepository(db)
	featureRepo := postgres.NewFeatureRepository(db)
	cacheRepo := cache.NewCacheRepository(redisClient)
	streamRepo := redisRepo.NewStreamRepository(redisClient.Client(), cfg.Worker.StreamReadTimeout, log)
	fetcher := source.NewSourceFetcher(&cfg.Fetch, log)

	invalidator := usecase.NewCacheInvalidator(cacheRepo, streamRepo, log)
	importUC := usecase.NewImportUseCase(datasetRepo, featureRepo, fetcher, invalidator, cfg.Sync.Concurrency, log)

	manager := worker.NewWorkerManager(log)
	manager.Register(
		dataset.NewEventWorker(streamRepo, importUC, cfg.Worker.ConsumerGroup, log),
		dataset.NewSchedulerWorker(importUC, cfg.Sync.Interval, cfg.Sync.OnStart, log),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Received shutdown signal")

	// Stop дает текущим импортам завершиться, cancel прерывает оставшиеся
	if err := manager.Stop(); err != nil {
		log.Error("Error stopping workers", zap.Error(err))
	}
	cancel()

	log.Info("Worker shutdown complete")
}
