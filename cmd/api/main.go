package main

// @title OpenKaarten Service API
// @version 1.0.0
// @description Импорт геоданных из внешних источников и публикация датасетов
// @description в форматах GeoJSON, KML, GML, GPX, WKT и WKB в проекциях WGS84 и RD.
// @description
// @description Публичная часть отдает датасеты с маркерами и подсказками,
// @description /api/v1/admin управляет датасетами, схемой полей и features.

// @contact.name OpenKaarten
// @license.name EUPL-1.2
// @license.url https://joinup.ec.europa.eu/collection/eupl/eupl-text-eupl-12

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/openkaarten-service/docs"
	"github.com/openkaarten-service/internal/config"
	httpDelivery "github.com/openkaarten-service/internal/delivery/http"
	"github.com/openkaarten-service/internal/delivery/http/handler"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/infrastructure/nominatim"
	"github.com/openkaarten-service/internal/infrastructure/source"
	"github.com/openkaarten-service/internal/pkg/logger"
	"github.com/openkaarten-service/internal/repository/cache"
	"github.com/openkaarten-service/internal/repository/postgres"
	redisRepo "github.com/openkaarten-service/internal/repository/redis"
	"github.com/openkaarten-service/internal/usecase"
)

func main() {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. Логгер
	log, err := logger.New(cfg.Log.Level, "openkaarten-api")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting OpenKaarten API",
		zap.String("env", cfg.Server.Env),
		zap.String("server_addr", cfg.GetServerAddr()))

	// 3. PostgreSQL
	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}

	// 4. Redis
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Health(ctx); err != nil {
		log.Fatal("PostgreSQL health check failed", zap.Error(err))
	}
	if err := redisClient.Health(ctx); err != nil {
		log.Fatal("Redis health check failed", zap.Error(err))
	}

	// 5. Репозитории
	datasetRepo := postgres.NewDatasetRepository(db)
	featureRepo := postgres.NewFeatureRepository(db)
	cacheRepo := cache.NewCacheRepository(redisClient)
	streamRepo := redisRepo.NewStreamRepository(redisClient.Client(), cfg.Worker.StreamReadTimeout, log)
	fetcher := source.NewSourceFetcher(&cfg.Fetch, log)

	var geocoder repository.Geocoder
	if cfg.Geocoder.Enabled {
		geocoder = nominatim.NewClient(&cfg.Geocoder, log)
	}

	// 6. Use cases
	invalidator := usecase.NewCacheInvalidator(cacheRepo, streamRepo, log)
	importUC := usecase.NewImportUseCase(datasetRepo, featureRepo, fetcher, invalidator, cfg.Sync.Concurrency, log)
	publishUC := usecase.NewPublishUseCase(
		datasetRepo,
		featureRepo,
		importUC,
		cacheRepo,
		log,
		cfg.Publish.BaseURL,
		cfg.Publish.IconBaseURL,
		cfg.Cache.DatasetCacheTTL,
		cfg.Cache.ListCacheTTL,
	)

	// без воркера события обрабатываются сразу в API
	var events usecase.EventPublisher = usecase.NewStreamEventPublisher(streamRepo, log)
	if !cfg.Worker.Enabled {
		log.Warn("Worker disabled, dataset events are handled inline")
		events = usecase.NewInlineEventPublisher(importUC)
	}
	datasetUC := usecase.NewDatasetUseCase(datasetRepo, featureRepo, fetcher, geocoder, importUC, events, invalidator, log)

	// 7. Handlers
	datasetHandler := handler.NewDatasetHandler(publishUC, log)
	adminHandler := handler.NewAdminHandler(datasetUC, log)
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthChecker{
		"postgres": db,
		"redis":    redisClient,
	}, log)

	// 8. HTTP сервер
	server := httpDelivery.NewServer(cfg, log, datasetHandler, adminHandler, healthHandler)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 9. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Failed to close PostgreSQL", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		log.Error("Failed to close Redis", zap.Error(err))
	}

	log.Info("Server stopped")
}
