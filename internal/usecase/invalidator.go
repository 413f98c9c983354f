package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
)

const (
	datasetKeyPrefix = "datasets:id:"
	listKeyPattern   = "datasets:list:*"
	allKeysPattern   = "datasets:*"
)

// DatasetCacheKey - ключ закешированного ответа одного датасета
func DatasetCacheKey(id int64, format, projection string) string {
	return fmt.Sprintf("%s%d:%s:%s", datasetKeyPrefix, id, format, projection)
}

func datasetKeyPattern(id int64) string {
	return fmt.Sprintf("%s%d:*", datasetKeyPrefix, id)
}

// CacheInvalidator удаляет закешированные ответы после изменений и
// сообщает об этом внешнему слою кеширования через стрим.
// cache и stream могут быть nil (например, в CLI без Redis).
type CacheInvalidator struct {
	cache  repository.CacheRepository
	stream repository.StreamRepository
	logger *zap.Logger
}

func NewCacheInvalidator(
	cache repository.CacheRepository,
	stream repository.StreamRepository,
	logger *zap.Logger,
) *CacheInvalidator {
	return &CacheInvalidator{
		cache:  cache,
		stream: stream,
		logger: logger,
	}
}

// InvalidateDataset сбрасывает ответы датасета и все закешированные списки.
// Ошибки только логируются: инвалидация не должна откатывать изменение.
func (i *CacheInvalidator) InvalidateDataset(ctx context.Context, id int64) {
	i.invalidate(ctx, datasetKeyPattern(id), id)
	i.invalidate(ctx, listKeyPattern, 0)
}

// InvalidateAll сбрасывает все ключи датасетов
func (i *CacheInvalidator) InvalidateAll(ctx context.Context) {
	i.invalidate(ctx, allKeysPattern, 0)
}

func (i *CacheInvalidator) invalidate(ctx context.Context, pattern string, datasetID int64) {
	if i == nil {
		return
	}

	if i.cache != nil {
		deleted, err := i.cache.DeletePattern(ctx, pattern)
		if err != nil {
			i.logger.Warn("Failed to invalidate cache",
				zap.String("pattern", pattern),
				zap.Error(err))
		} else {
			i.logger.Debug("Cache invalidated",
				zap.String("pattern", pattern),
				zap.Int("deleted", deleted))
		}
	}

	if i.stream != nil {
		msg := domain.CacheInvalidation{
			Pattern:   pattern,
			DatasetID: datasetID,
			At:        time.Now().UTC(),
		}
		if err := i.stream.PublishToStream(ctx, domain.StreamCacheInvalidate, msg); err != nil {
			i.logger.Warn("Failed to publish cache invalidation",
				zap.String("pattern", pattern),
				zap.Error(err))
		}
	}
}
