package usecase_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/usecase"
	"github.com/openkaarten-service/internal/usecase/dto"
)

type datasetFixture struct {
	datasets *MockDatasetRepository
	features *MockFeatureRepository
	fetcher  *MockSourceFetcher
	geocoder *MockGeocoder
	events   *MockEventPublisher
	uc       *usecase.DatasetUseCase
}

func newDatasetFixture() *datasetFixture {
	f := &datasetFixture{
		datasets: &MockDatasetRepository{},
		features: &MockFeatureRepository{},
		fetcher:  &MockSourceFetcher{},
		geocoder: &MockGeocoder{},
		events:   &MockEventPublisher{},
	}
	importer := usecase.NewImportUseCase(f.datasets, f.features, f.fetcher, nil, 1, zap.NewNop())
	f.uc = usecase.NewDatasetUseCase(f.datasets, f.features, f.fetcher, f.geocoder, importer, f.events, nil, zap.NewNop())
	return f
}

func validRequest() dto.DatasetRequest {
	return dto.DatasetRequest{
		Title:         "Speeltuinen Utrecht",
		SourceKind:    domain.SourceURL,
		SourceRef:     "https://example.org/speeltuinen.json",
		TitleTemplate: "{name}",
		FieldSchema: []domain.FieldDef{
			{SourceKey: "name", Show: true, ValueType: "wysiwyg"},
		},
	}
}

func TestDatasetUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("slug and defaults are derived", func(t *testing.T) {
		f := newDatasetFixture()
		f.datasets.On("Create", ctx, mock.MatchedBy(func(ds *domain.Dataset) bool {
			return ds.Slug == "speeltuinen-utrecht" &&
				ds.URLMode == domain.URLModeImport &&
				ds.SyncMode == domain.SyncModeReplace &&
				ds.DefaultMarkerColor == domain.DefaultMarkerColor &&
				ds.FieldSchema[0].ValueType == domain.ValueRichText &&
				ds.FieldSchema[0].DisplayLabel == "name"
		})).
			Run(func(args mock.Arguments) {
				args.Get(1).(*domain.Dataset).ID = 42
			}).
			Return(nil)
		f.events.On("Publish", ctx, eventOfType(domain.EventDatasetSaved, 42)).Return(nil)

		ds, err := f.uc.Create(ctx, validRequest())

		require.NoError(t, err)
		assert.Equal(t, int64(42), ds.ID)
		f.datasets.AssertExpectations(t)
		f.events.AssertExpectations(t)
	})

	t.Run("url source requires a reference", func(t *testing.T) {
		f := newDatasetFixture()
		req := validRequest()
		req.SourceRef = ""

		_, err := f.uc.Create(ctx, req)

		require.Error(t, err)
		f.datasets.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown value type", func(t *testing.T) {
		f := newDatasetFixture()
		req := validRequest()
		req.FieldSchema[0].ValueType = "colour"

		_, err := f.uc.Create(ctx, req)

		assert.True(t, stderrors.Is(err, errors.ErrValidation))
	})

	t.Run("slug conflict", func(t *testing.T) {
		f := newDatasetFixture()
		f.datasets.On("Create", ctx, mock.Anything).Return(errors.ErrSlugConflict)

		_, err := f.uc.Create(ctx, validRequest())

		assert.True(t, stderrors.Is(err, errors.ErrSlugConflict))
		f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("event failure does not fail the save", func(t *testing.T) {
		f := newDatasetFixture()
		f.datasets.On("Create", ctx, mock.Anything).Return(nil)
		f.events.On("Publish", ctx, mock.Anything).Return(stderrors.New("redis down"))

		_, err := f.uc.Create(ctx, validRequest())

		assert.NoError(t, err)
	})
}

func TestDatasetUseCase_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("title template change publishes mapping change", func(t *testing.T) {
		f := newDatasetFixture()
		ds := urlDataset(5)
		f.datasets.On("GetByID", ctx, int64(5)).Return(ds, nil)
		f.datasets.On("Update", ctx, mock.Anything).Return(nil)
		f.events.On("Publish", ctx, eventOfType(domain.EventFieldMappingChanged, 5)).Return(nil)

		req := validRequest()
		req.TitleTemplate = "{name} ({kind})"
		_, err := f.uc.Update(ctx, 5, req)

		require.NoError(t, err)
		f.events.AssertExpectations(t)
	})

	t.Run("unchanged mapping publishes saved", func(t *testing.T) {
		f := newDatasetFixture()
		ds := urlDataset(6)
		f.datasets.On("GetByID", ctx, int64(6)).Return(ds, nil)
		f.datasets.On("Update", ctx, mock.Anything).Return(nil)
		f.events.On("Publish", ctx, eventOfType(domain.EventDatasetSaved, 6)).Return(nil)

		req := dto.DatasetRequest{
			Title:         "Parks renamed",
			Slug:          ds.Slug,
			SourceKind:    ds.SourceKind,
			SourceRef:     ds.SourceRef,
			TitleTemplate: ds.TitleTemplate,
			FieldSchema:   ds.FieldSchema,
		}
		updated, err := f.uc.Update(ctx, 6, req)

		require.NoError(t, err)
		assert.Equal(t, "Parks renamed", updated.Title)
		f.events.AssertExpectations(t)
	})

	t.Run("switch to live removes stored features", func(t *testing.T) {
		f := newDatasetFixture()
		ds := urlDataset(17)
		synced := time.Now()
		ds.LastSyncedAt = &synced
		f.datasets.On("GetByID", ctx, int64(17)).Return(ds, nil)
		f.datasets.On("Update", ctx, mock.Anything).Return(nil)
		f.features.On("DeleteByDataset", ctx, int64(17)).Return(nil)
		f.events.On("Publish", ctx, eventOfType(domain.EventDatasetSaved, 17)).Return(nil)

		req := dto.DatasetRequest{
			Title:         ds.Title,
			Slug:          ds.Slug,
			SourceKind:    ds.SourceKind,
			SourceRef:     ds.SourceRef,
			URLMode:       domain.URLModeLive,
			TitleTemplate: ds.TitleTemplate,
			FieldSchema:   ds.FieldSchema,
		}
		updated, err := f.uc.Update(ctx, 17, req)

		require.NoError(t, err)
		assert.True(t, updated.IsLive())
		assert.Nil(t, updated.LastSyncedAt)
		f.features.AssertExpectations(t)
	})

	t.Run("live dataset update does not touch features", func(t *testing.T) {
		f := newDatasetFixture()
		ds := urlDataset(18)
		ds.URLMode = domain.URLModeLive
		f.datasets.On("GetByID", ctx, int64(18)).Return(ds, nil)
		f.datasets.On("Update", ctx, mock.Anything).Return(nil)
		f.events.On("Publish", ctx, mock.Anything).Return(nil)

		req := dto.DatasetRequest{
			Title:         "Live parks",
			Slug:          ds.Slug,
			SourceKind:    ds.SourceKind,
			SourceRef:     ds.SourceRef,
			URLMode:       domain.URLModeLive,
			TitleTemplate: ds.TitleTemplate,
			FieldSchema:   ds.FieldSchema,
		}
		_, err := f.uc.Update(ctx, 18, req)

		require.NoError(t, err)
		f.features.AssertNotCalled(t, "DeleteByDataset", mock.Anything, mock.Anything)
	})

	t.Run("feature cleanup failure is returned", func(t *testing.T) {
		f := newDatasetFixture()
		ds := urlDataset(19)
		f.datasets.On("GetByID", ctx, int64(19)).Return(ds, nil)
		f.datasets.On("Update", ctx, mock.Anything).Return(nil)
		f.features.On("DeleteByDataset", ctx, int64(19)).Return(errors.ErrDatabaseError)

		req := validRequest()
		req.URLMode = domain.URLModeLive
		_, err := f.uc.Update(ctx, 19, req)

		assert.True(t, stderrors.Is(err, errors.ErrDatabaseError))
		f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		f := newDatasetFixture()
		f.datasets.On("GetByID", ctx, int64(7)).Return(nil, errors.ErrDatasetNotFound)

		_, err := f.uc.Update(ctx, 7, validRequest())

		assert.True(t, stderrors.Is(err, errors.ErrDatasetNotFound))
	})
}

func TestDatasetUseCase_SourceFields(t *testing.T) {
	ctx := context.Background()
	f := newDatasetFixture()
	ds := urlDataset(8)

	f.datasets.On("GetByID", ctx, int64(8)).Return(ds, nil)
	f.fetcher.On("Fetch", ctx, ds).Return([]byte(threePoints), nil)

	resp, err := f.uc.SourceFields(ctx, 8)

	require.NoError(t, err)
	assert.Equal(t, 3, resp.Records)
	require.Len(t, resp.Fields, 2)
	assert.Equal(t, "name", resp.Fields[0].SourceKey)
	assert.Equal(t, "B", resp.Fields[0].Sample)
	assert.Equal(t, "kind", resp.Fields[1].SourceKey)
}

func TestDatasetUseCase_ResyncSchema(t *testing.T) {
	ctx := context.Background()
	f := newDatasetFixture()
	ds := urlDataset(9)
	ds.FieldSchema = []domain.FieldDef{
		{SourceKey: "name", DisplayLabel: "Naam", ValueType: domain.ValueText, Show: true},
		{SourceKey: "legacy", DisplayLabel: "Legacy", ValueType: domain.ValueText},
	}

	f.datasets.On("GetByID", ctx, int64(9)).Return(ds, nil)
	f.datasets.On("UpdateFieldSchema", ctx, int64(9), mock.Anything).Return(nil)
	f.fetcher.On("Fetch", ctx, ds).Return([]byte(threePoints), nil)
	f.events.On("Publish", ctx, eventOfType(domain.EventFieldMappingChanged, 9)).Return(nil)

	resp, err := f.uc.ResyncSchema(ctx, 9)

	require.NoError(t, err)
	assert.Equal(t, []string{"kind"}, resp.Added)
	assert.Equal(t, []string{"legacy"}, resp.Removed)
	assert.Equal(t, []string{"name"}, resp.Retained)
	require.Len(t, resp.Fields, 2)
	assert.Equal(t, "Naam", resp.Fields[0].DisplayLabel)
	f.events.AssertExpectations(t)
}

func TestDatasetUseCase_UpdateFieldMapping(t *testing.T) {
	ctx := context.Background()
	f := newDatasetFixture()
	ds := urlDataset(10)

	f.datasets.On("GetByID", ctx, int64(10)).Return(ds, nil)
	f.datasets.On("Update", ctx, mock.MatchedBy(func(d *domain.Dataset) bool {
		return d.TitleTemplate == "{kind}" && len(d.FieldSchema) == 1 && d.FieldSchema[0].ValueType == domain.ValueDate
	})).Return(nil)
	f.events.On("Publish", ctx, eventOfType(domain.EventFieldMappingChanged, 10)).Return(nil)

	_, err := f.uc.UpdateFieldMapping(ctx, 10, dto.UpdateFieldsRequest{
		Fields:        []domain.FieldDef{{SourceKey: "kind", ValueType: "text_date", Show: true}},
		TitleTemplate: ptrString("{kind}"),
	})

	require.NoError(t, err)
	f.datasets.AssertExpectations(t)
}

func TestDatasetUseCase_UpdatePointGeometry(t *testing.T) {
	ctx := context.Background()

	t.Run("point is moved", func(t *testing.T) {
		f := newDatasetFixture()
		feature := storedPoint(11, "A", 5.1, 52.09, map[string]interface{}{"name": "A"})
		id := feature.ID.String()

		f.features.On("GetByID", ctx, id).Return(feature, nil)
		f.features.On("UpdateGeometry", ctx, mock.Anything).Return(nil)

		updated, err := f.uc.UpdatePointGeometry(ctx, id, dto.GeometryUpdateRequest{Lat: 52.1, Lon: 5.2})

		require.NoError(t, err)
		assert.Equal(t, 52.1, *updated.Lat)
		assert.Equal(t, 5.2, *updated.Lon)

		var stored struct {
			Type     string `json:"type"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		}
		require.NoError(t, json.Unmarshal(updated.Geometry, &stored))
		assert.Equal(t, "Feature", stored.Type)
		assert.Equal(t, []float64{5.2, 52.1}, stored.Geometry.Coordinates)
	})

	t.Run("polygon cannot be edited", func(t *testing.T) {
		f := newDatasetFixture()
		feature := storedPoint(11, "Area", 0, 0, nil)
		feature.Geometry = json.RawMessage(`{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[5,52],[5.1,52],[5.1,52.1],[5,52]]]},"properties":{}}`)
		id := feature.ID.String()

		f.features.On("GetByID", ctx, id).Return(feature, nil)

		_, err := f.uc.UpdatePointGeometry(ctx, id, dto.GeometryUpdateRequest{Lat: 52.1, Lon: 5.2})

		assert.True(t, stderrors.Is(err, errors.ErrGeometryNotEditable))
		f.features.AssertNotCalled(t, "UpdateGeometry", mock.Anything, mock.Anything)
	})

	t.Run("coordinates out of range", func(t *testing.T) {
		f := newDatasetFixture()

		_, err := f.uc.UpdatePointGeometry(ctx, "any", dto.GeometryUpdateRequest{Lat: 95, Lon: 5})

		require.Error(t, err)
		f.features.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})
}

func TestDatasetUseCase_UpdatePointAddress(t *testing.T) {
	ctx := context.Background()
	addr := domain.Address{Street: "Stadsplateau 1", Zipcode: "3521 AZ", City: "Utrecht"}

	t.Run("point is moved to the geocoded position", func(t *testing.T) {
		f := newDatasetFixture()
		feature := storedPoint(14, "Stadskantoor", 5.0, 52.0, map[string]interface{}{"name": "Stadskantoor"})
		id := feature.ID.String()

		f.features.On("GetByID", ctx, id).Return(feature, nil)
		f.geocoder.On("Geocode", ctx, "Stadsplateau 1 3521 AZ Utrecht").
			Return(&domain.GeocodeResult{Lat: 52.0894, Lon: 5.1077, DisplayName: "Stadskantoor"}, nil)

		var stored *domain.Feature
		f.features.On("UpdateGeometry", ctx, mock.Anything).
			Run(func(args mock.Arguments) {
				stored = args.Get(1).(*domain.Feature)
			}).
			Return(nil)

		updated, err := f.uc.UpdatePointAddress(ctx, id, addr)

		require.NoError(t, err)
		assert.Equal(t, 52.0894, *updated.Lat)
		assert.Equal(t, 5.1077, *updated.Lon)
		require.NotNil(t, stored)
		meta := stored.Meta()
		assert.Equal(t, "Stadsplateau 1", meta[domain.MetaAddress])
		assert.Equal(t, "3521 AZ", meta[domain.MetaZipcode])
		assert.Equal(t, "Utrecht", meta[domain.MetaCity])
		assert.Equal(t, 52.0894, meta[domain.MetaLatitude])
	})

	t.Run("unknown address keeps the feature", func(t *testing.T) {
		f := newDatasetFixture()
		feature := storedPoint(14, "Stadskantoor", 5.0, 52.0, nil)
		id := feature.ID.String()

		f.features.On("GetByID", ctx, id).Return(feature, nil)
		f.geocoder.On("Geocode", ctx, mock.Anything).Return(nil, errors.ErrAddressNotFound)

		_, err := f.uc.UpdatePointAddress(ctx, id, addr)

		assert.True(t, stderrors.Is(err, errors.ErrAddressNotFound))
		f.features.AssertNotCalled(t, "UpdateGeometry", mock.Anything, mock.Anything)
	})

	t.Run("street is required", func(t *testing.T) {
		f := newDatasetFixture()

		_, err := f.uc.UpdatePointAddress(ctx, "any", domain.Address{City: "Utrecht"})

		require.Error(t, err)
		f.geocoder.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
	})

	t.Run("polygon cannot be addressed", func(t *testing.T) {
		f := newDatasetFixture()
		feature := storedPoint(14, "Area", 0, 0, nil)
		feature.Geometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[5,52],[5.1,52],[5.1,52.1],[5,52]]]}`)
		id := feature.ID.String()

		f.features.On("GetByID", ctx, id).Return(feature, nil)

		_, err := f.uc.UpdatePointAddress(ctx, id, addr)

		assert.True(t, stderrors.Is(err, errors.ErrGeometryNotEditable))
		f.geocoder.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
	})

	t.Run("geocoding disabled", func(t *testing.T) {
		uc := usecase.NewDatasetUseCase(&MockDatasetRepository{}, &MockFeatureRepository{}, &MockSourceFetcher{}, nil, nil, nil, nil, zap.NewNop())

		_, err := uc.UpdatePointAddress(ctx, "any", addr)

		assert.True(t, stderrors.Is(err, errors.ErrGeocoderFailed))
	})
}

func TestDatasetUseCase_SetThumbnail(t *testing.T) {
	ctx := context.Background()
	f := newDatasetFixture()
	feature := storedPoint(12, "A", 5.1, 52.09, nil)
	id := feature.ID.String()
	thumb := &domain.Thumbnail{URL: "https://example.org/a.jpg", Width: 320, Height: 200}

	f.features.On("GetByID", ctx, id).Return(feature, nil)
	f.features.On("UpdateThumbnail", ctx, id, thumb).Return(nil)

	updated, err := f.uc.SetThumbnail(ctx, id, thumb)

	require.NoError(t, err)
	assert.Equal(t, thumb, updated.Thumbnail)
}

func TestDatasetUseCase_Delete(t *testing.T) {
	ctx := context.Background()
	f := newDatasetFixture()
	f.datasets.On("Delete", ctx, int64(13)).Return(errors.ErrDatasetNotFound)

	err := f.uc.Delete(ctx, 13)

	assert.True(t, stderrors.Is(err, errors.ErrDatasetNotFound))
}
