package repository

import (
	"context"
	"time"
)

// CacheRepository определяет методы для работы с кешем
type CacheRepository interface {
	// Get получает значение из кеша по ключу (nil, nil при промахе)
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кеше с TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет значение из кеша
	Delete(ctx context.Context, key string) error

	// DeletePattern удаляет все ключи, подходящие под glob-шаблон
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Exists проверяет существование ключа
	Exists(ctx context.Context, key string) (bool, error)
}
