package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/config"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/infrastructure/source"
	"github.com/openkaarten-service/internal/pkg/logger"
	"github.com/openkaarten-service/internal/repository/cache"
	"github.com/openkaarten-service/internal/repository/postgres"
	redisRepo "github.com/openkaarten-service/internal/repository/redis"
	"github.com/openkaarten-service/internal/usecase"
)

// app - зависимости одной команды CLI
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	db          *postgres.DB
	redis       *cache.Redis
	datasetRepo repository.DatasetRepository
	importUC    *usecase.ImportUseCase
	publishUC   *usecase.PublishUseCase
	invalidator *usecase.CacheInvalidator
	fetcher     repository.SourceFetcher
	featureRepo repository.FeatureRepository
}

func loadConfig(envFile string) (*config.Config, error) {
	if envFile == "" {
		return config.Load()
	}
	return config.LoadFile(envFile)
}

func newApp(ctx context.Context, envFile string) (*app, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, "okctl")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	a := &app{
		cfg:         cfg,
		log:         log,
		db:          db,
		datasetRepo: postgres.NewDatasetRepository(db),
		featureRepo: postgres.NewFeatureRepository(db),
		fetcher:     source.NewSourceFetcher(&cfg.Fetch, log),
	}

	// Redis нужен только для сброса кеша; без него команды работают
	var cacheRepo repository.CacheRepository
	var streamRepo repository.StreamRepository
	redisClient, err := cache.NewRedis(&cfg.Redis, log)
	if err != nil {
		log.Warn("Redis unavailable, cache will not be invalidated", zap.Error(err))
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redisClient.Health(pingCtx); err != nil {
			log.Warn("Redis unavailable, cache will not be invalidated", zap.Error(err))
			_ = redisClient.Close()
		} else {
			a.redis = redisClient
			cacheRepo = cache.NewCacheRepository(redisClient)
			streamRepo = redisRepo.NewStreamRepository(redisClient.Client(), cfg.Worker.StreamReadTimeout, log)
		}
	}

	a.invalidator = usecase.NewCacheInvalidator(cacheRepo, streamRepo, log)
	a.importUC = usecase.NewImportUseCase(a.datasetRepo, a.featureRepo, a.fetcher, a.invalidator, cfg.Sync.Concurrency, log)
	a.publishUC = usecase.NewPublishUseCase(
		a.datasetRepo,
		a.featureRepo,
		a.importUC,
		nil,
		log,
		cfg.Publish.BaseURL,
		cfg.Publish.IconBaseURL,
		0,
		0,
	)
	return a, nil
}

// datasetUseCase собирает DatasetUseCase; при withSync события
// обрабатываются сразу, иначе сохраненные датасеты ждут воркера
func (a *app) datasetUseCase(withSync bool) *usecase.DatasetUseCase {
	var events usecase.EventPublisher
	if withSync {
		events = usecase.NewInlineEventPublisher(a.importUC)
	} else if a.redis != nil {
		events = usecase.NewStreamEventPublisher(
			redisRepo.NewStreamRepository(a.redis.Client(), a.cfg.Worker.StreamReadTimeout, a.log), a.log)
	}
	// CLI не меняет адреса features, геокодер не нужен
	return usecase.NewDatasetUseCase(a.datasetRepo, a.featureRepo, a.fetcher, nil, a.importUC, events, a.invalidator, a.log)
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.db.Close()
	_ = a.log.Sync()
}
