package repository

import (
	"context"
	"time"

	"github.com/openkaarten-service/internal/domain"
)

// DatasetRepository - хранилище конфигураций датасетов
type DatasetRepository interface {
	// GetByID возвращает датасет или ErrDatasetNotFound
	GetByID(ctx context.Context, id int64) (*domain.Dataset, error)

	// List возвращает страницу датасетов и общее количество по фильтру
	List(ctx context.Context, filter domain.DatasetFilter) ([]*domain.Dataset, int, error)

	// ListScheduled возвращает URL-датасеты в режиме import с заданным шаблоном заголовка
	ListScheduled(ctx context.Context) ([]*domain.Dataset, error)

	// Create сохраняет новый датасет и заполняет ID
	Create(ctx context.Context, ds *domain.Dataset) error

	// Update обновляет конфигурацию датасета
	Update(ctx context.Context, ds *domain.Dataset) error

	// UpdateFieldSchema обновляет только схему полей, не затрагивая
	// остальную конфигурацию
	UpdateFieldSchema(ctx context.Context, id int64, fields []domain.FieldDef) error

	// Delete удаляет датасет вместе со всеми его features
	Delete(ctx context.Context, id int64) error
}

// FeatureRepository - хранилище материализованных features
type FeatureRepository interface {
	// ListByDataset возвращает features датасета, упорядоченные по заголовку
	ListByDataset(ctx context.Context, datasetID int64) ([]*domain.Feature, error)

	// GetByID возвращает feature или ErrFeatureNotFound
	GetByID(ctx context.Context, id string) (*domain.Feature, error)

	// ReplaceForDataset атомарно заменяет набор features датасета и
	// записывает last_synced_at. Читатели видят либо старый, либо новый набор.
	ReplaceForDataset(ctx context.Context, datasetID int64, features []*domain.Feature, mode domain.SyncMode, syncedAt time.Time) error

	// DeleteByDataset удаляет все features датасета и сбрасывает
	// last_synced_at в одной транзакции
	DeleteByDataset(ctx context.Context, datasetID int64) error

	// UpdateGeometry сохраняет отредактированную геометрию и метаданные feature
	UpdateGeometry(ctx context.Context, f *domain.Feature) error

	// UpdateThumbnail прикрепляет или снимает изображение feature
	UpdateThumbnail(ctx context.Context, id string, thumbnail *domain.Thumbnail) error

	// CountByDataset возвращает количество features датасета
	CountByDataset(ctx context.Context, datasetID int64) (int, error)
}
