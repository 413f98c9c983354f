package usecase_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/openkaarten-service/internal/domain"
)

// MockDatasetRepository is a mock of DatasetRepository
type MockDatasetRepository struct {
	mock.Mock
}

func (m *MockDatasetRepository) GetByID(ctx context.Context, id int64) (*domain.Dataset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dataset), args.Error(1)
}

func (m *MockDatasetRepository) List(ctx context.Context, filter domain.DatasetFilter) ([]*domain.Dataset, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Dataset), args.Int(1), args.Error(2)
}

func (m *MockDatasetRepository) ListScheduled(ctx context.Context) ([]*domain.Dataset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Dataset), args.Error(1)
}

func (m *MockDatasetRepository) Create(ctx context.Context, ds *domain.Dataset) error {
	args := m.Called(ctx, ds)
	return args.Error(0)
}

func (m *MockDatasetRepository) Update(ctx context.Context, ds *domain.Dataset) error {
	args := m.Called(ctx, ds)
	return args.Error(0)
}

func (m *MockDatasetRepository) UpdateFieldSchema(ctx context.Context, id int64, fields []domain.FieldDef) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockDatasetRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockFeatureRepository is a mock of FeatureRepository
type MockFeatureRepository struct {
	mock.Mock
}

func (m *MockFeatureRepository) ListByDataset(ctx context.Context, datasetID int64) ([]*domain.Feature, error) {
	args := m.Called(ctx, datasetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Feature), args.Error(1)
}

func (m *MockFeatureRepository) GetByID(ctx context.Context, id string) (*domain.Feature, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Feature), args.Error(1)
}

func (m *MockFeatureRepository) ReplaceForDataset(ctx context.Context, datasetID int64, features []*domain.Feature, mode domain.SyncMode, syncedAt time.Time) error {
	args := m.Called(ctx, datasetID, features, mode, syncedAt)
	return args.Error(0)
}

func (m *MockFeatureRepository) DeleteByDataset(ctx context.Context, datasetID int64) error {
	args := m.Called(ctx, datasetID)
	return args.Error(0)
}

func (m *MockFeatureRepository) UpdateGeometry(ctx context.Context, f *domain.Feature) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFeatureRepository) UpdateThumbnail(ctx context.Context, id string, thumbnail *domain.Thumbnail) error {
	args := m.Called(ctx, id, thumbnail)
	return args.Error(0)
}

func (m *MockFeatureRepository) CountByDataset(ctx context.Context, datasetID int64) (int, error) {
	args := m.Called(ctx, datasetID)
	return args.Int(0), args.Error(1)
}

// MockSourceFetcher is a mock of SourceFetcher
type MockSourceFetcher struct {
	mock.Mock
}

func (m *MockSourceFetcher) Fetch(ctx context.Context, ds *domain.Dataset) ([]byte, error) {
	args := m.Called(ctx, ds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockGeocoder is a mock of Geocoder
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Geocode(ctx context.Context, query string) (*domain.GeocodeResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GeocodeResult), args.Error(1)
}

// MockCacheRepository is a mock of CacheRepository
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCacheRepository) DeletePattern(ctx context.Context, pattern string) (int, error) {
	args := m.Called(ctx, pattern)
	return args.Int(0), args.Error(1)
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockEventPublisher records published dataset events
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, ev domain.DatasetEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func eventOfType(t domain.EventType, id int64) interface{} {
	return mock.MatchedBy(func(ev domain.DatasetEvent) bool {
		return ev.Type == t && ev.DatasetID == id
	})
}

const threePoints = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [4.9, 52.37]}, "properties": {"name": "B", "kind": "park"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [5.1, 52.09]}, "properties": {"name": "A", "kind": "school"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [4.47, 51.92]}, "properties": {"name": "C", "kind": "park"}}
	]
}`

func urlDataset(id int64) *domain.Dataset {
	ds := &domain.Dataset{
		ID:            id,
		Title:         "Parks",
		Slug:          "parks",
		SourceKind:    domain.SourceURL,
		SourceRef:     "https://example.org/parks.geojson",
		TitleTemplate: "{name}",
		FieldSchema: []domain.FieldDef{
			{SourceKey: "name", DisplayLabel: "Name", ValueType: domain.ValueText, Show: true},
			{SourceKey: "kind", DisplayLabel: "Kind", ValueType: domain.ValueText},
		},
	}
	ds.ApplyDefaults()
	return ds
}

func ptrString(s string) *string {
	return &s
}
