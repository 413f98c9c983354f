package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/fieldmap"
	"github.com/openkaarten-service/internal/geo/codec"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/pkg/utils"
	"github.com/openkaarten-service/internal/pkg/validator"
	"github.com/openkaarten-service/internal/usecase/dto"
)

// DatasetUseCase - управление датасетами, схемой полей и features
type DatasetUseCase struct {
	datasetRepo repository.DatasetRepository
	featureRepo repository.FeatureRepository
	fetcher     repository.SourceFetcher
	geocoder    repository.Geocoder
	importer    *ImportUseCase
	events      EventPublisher
	invalidator *CacheInvalidator
	logger      *zap.Logger
}

func NewDatasetUseCase(
	datasetRepo repository.DatasetRepository,
	featureRepo repository.FeatureRepository,
	fetcher repository.SourceFetcher,
	geocoder repository.Geocoder,
	importer *ImportUseCase,
	events EventPublisher,
	invalidator *CacheInvalidator,
	logger *zap.Logger,
) *DatasetUseCase {
	return &DatasetUseCase{
		datasetRepo: datasetRepo,
		featureRepo: featureRepo,
		fetcher:     fetcher,
		geocoder:    geocoder,
		importer:    importer,
		events:      events,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (uc *DatasetUseCase) Get(ctx context.Context, id int64) (*domain.Dataset, error) {
	return uc.datasetRepo.GetByID(ctx, id)
}

// Create сохраняет датасет и публикует DatasetSaved
func (uc *DatasetUseCase) Create(ctx context.Context, req dto.DatasetRequest) (*domain.Dataset, error) {
	ds := &domain.Dataset{}
	if err := uc.prepare(ds, req); err != nil {
		return nil, err
	}

	if err := uc.datasetRepo.Create(ctx, ds); err != nil {
		return nil, err
	}

	uc.invalidator.InvalidateDataset(ctx, ds.ID)
	uc.publish(ctx, domain.EventDatasetSaved, ds.ID)
	return ds, nil
}

// Update заменяет конфигурацию датасета. Изменение схемы или шаблона
// заголовка публикует FieldMappingChanged, иначе DatasetSaved.
// Переход в режим live удаляет сохраненные features.
func (uc *DatasetUseCase) Update(ctx context.Context, id int64, req dto.DatasetRequest) (*domain.Dataset, error) {
	ds, err := uc.datasetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prevSchema, _ := json.Marshal(ds.FieldSchema)
	prevTitle := ds.TitleTemplate
	wasLive := ds.IsLive()

	if err := uc.prepare(ds, req); err != nil {
		return nil, err
	}
	if err := uc.datasetRepo.Update(ctx, ds); err != nil {
		return nil, err
	}
	// у live-датасета не бывает сохраненных features
	if ds.IsLive() && !wasLive {
		if err := uc.featureRepo.DeleteByDataset(ctx, ds.ID); err != nil {
			uc.invalidator.InvalidateDataset(ctx, ds.ID)
			return nil, err
		}
		ds.LastSyncedAt = nil
		uc.logger.Info("Dataset switched to live, stored features removed",
			zap.Int64("dataset_id", ds.ID))
	}
	uc.invalidator.InvalidateDataset(ctx, ds.ID)

	nextSchema, _ := json.Marshal(ds.FieldSchema)
	if string(prevSchema) != string(nextSchema) || prevTitle != ds.TitleTemplate {
		uc.publish(ctx, domain.EventFieldMappingChanged, ds.ID)
	} else {
		uc.publish(ctx, domain.EventDatasetSaved, ds.ID)
	}
	return ds, nil
}

// Delete удаляет датасет вместе с его features
func (uc *DatasetUseCase) Delete(ctx context.Context, id int64) error {
	if err := uc.datasetRepo.Delete(ctx, id); err != nil {
		return err
	}
	uc.invalidator.InvalidateDataset(ctx, id)
	return nil
}

// Sync - ручной запуск импорта
func (uc *DatasetUseCase) Sync(ctx context.Context, id int64) (*domain.ImportRun, error) {
	return uc.importer.Sync(ctx, id, domain.TriggerManual)
}

// SourceFields загружает источник и возвращает поля первой записи
func (uc *DatasetUseCase) SourceFields(ctx context.Context, id int64) (*dto.SourceFieldsResponse, error) {
	ds, coll, err := uc.decodeSource(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &dto.SourceFieldsResponse{
		DatasetID: ds.ID,
		Records:   len(coll.Components),
		Fields:    []dto.SourceField{},
	}
	if len(coll.Components) == 0 {
		return resp, nil
	}

	first := coll.Components[0]
	props := fieldmap.NormalizeProperties(first.Properties)
	for _, key := range fieldmap.DeriveSchema(first.Properties, first.OrderedKeys()) {
		resp.Fields = append(resp.Fields, dto.SourceField{
			SourceKey: key,
			Sample:    props[key],
		})
	}
	return resp, nil
}

// ResyncSchema заново строит схему по источнику, сохраняя определения
// полей, которые остались в источнике
func (uc *DatasetUseCase) ResyncSchema(ctx context.Context, id int64) (*dto.SchemaResyncResponse, error) {
	ds, coll, err := uc.decodeSource(ctx, id)
	if err != nil {
		return nil, err
	}

	var keys []string
	if len(coll.Components) > 0 {
		first := coll.Components[0]
		keys = fieldmap.DeriveSchema(first.Properties, first.OrderedKeys())
	}
	diff := fieldmap.MergeSchema(ds.FieldSchema, keys)

	if diff.Changed() {
		ds.FieldSchema = diff.Fields
		if err := uc.datasetRepo.UpdateFieldSchema(ctx, ds.ID, ds.FieldSchema); err != nil {
			return nil, err
		}
		uc.invalidator.InvalidateDataset(ctx, ds.ID)
		uc.publish(ctx, domain.EventFieldMappingChanged, ds.ID)
	}

	uc.logger.Info("Dataset schema resynced",
		zap.Int64("dataset_id", ds.ID),
		zap.Strings("added", diff.Added),
		zap.Strings("removed", diff.Removed))

	return &dto.SchemaResyncResponse{
		DatasetID: ds.ID,
		Fields:    diff.Fields,
		Added:     nonNil(diff.Added),
		Removed:   nonNil(diff.Removed),
		Retained:  nonNil(diff.Retained),
	}, nil
}

// UpdateFieldMapping сохраняет отредактированную схему и шаблон заголовка
func (uc *DatasetUseCase) UpdateFieldMapping(ctx context.Context, id int64, req dto.UpdateFieldsRequest) (*domain.Dataset, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	fields, err := normalizeFields(req.Fields)
	if err != nil {
		return nil, err
	}

	ds, err := uc.datasetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ds.FieldSchema = fields
	if req.TitleTemplate != nil {
		ds.TitleTemplate = *req.TitleTemplate
	}
	if err := uc.datasetRepo.Update(ctx, ds); err != nil {
		return nil, err
	}

	uc.invalidator.InvalidateDataset(ctx, ds.ID)
	uc.publish(ctx, domain.EventFieldMappingChanged, ds.ID)
	return ds, nil
}

// UpdatePointGeometry переносит Point-feature в новую позицию.
// Другие типы геометрии не редактируются.
func (uc *DatasetUseCase) UpdatePointGeometry(ctx context.Context, featureID string, req dto.GeometryUpdateRequest) (*domain.Feature, error) {
	if err := validator.ValidateRequest(req); err != nil {
		return nil, err
	}
	if !utils.ValidateCoordinates(req.Lat, req.Lon) {
		return nil, errors.NewValidation("lat/lon", "coordinates are outside WGS84 bounds")
	}

	f, err := uc.editablePoint(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if err := movePoint(f, req.Lat, req.Lon); err != nil {
		return nil, err
	}

	if err := uc.featureRepo.UpdateGeometry(ctx, f); err != nil {
		return nil, err
	}
	uc.invalidator.InvalidateDataset(ctx, f.DatasetID)
	return f, nil
}

// UpdatePointAddress сохраняет адрес Point-feature и переносит ее в
// позицию, найденную геокодером
func (uc *DatasetUseCase) UpdatePointAddress(ctx context.Context, featureID string, addr domain.Address) (*domain.Feature, error) {
	if err := validator.ValidateRequest(addr); err != nil {
		return nil, err
	}
	if uc.geocoder == nil {
		return nil, errors.ErrGeocoderFailed.WithMessage("Geocoding is disabled")
	}

	f, err := uc.editablePoint(ctx, featureID)
	if err != nil {
		return nil, err
	}

	found, err := uc.geocoder.Geocode(ctx, addr.Query())
	if err != nil {
		return nil, err
	}
	if !utils.ValidateCoordinates(found.Lat, found.Lon) {
		return nil, errors.NewGeocoderError(fmt.Errorf("geocoder returned %f,%f", found.Lat, found.Lon))
	}
	if err := movePoint(f, found.Lat, found.Lon); err != nil {
		return nil, err
	}
	f.Address = &addr

	if err := uc.featureRepo.UpdateGeometry(ctx, f); err != nil {
		return nil, err
	}
	uc.invalidator.InvalidateDataset(ctx, f.DatasetID)

	uc.logger.Info("Feature address geocoded",
		zap.String("feature_id", featureID),
		zap.String("match", found.DisplayName))
	return f, nil
}

// editablePoint загружает feature и проверяет, что ее геометрия - Point
func (uc *DatasetUseCase) editablePoint(ctx context.Context, featureID string) (*domain.Feature, error) {
	f, err := uc.featureRepo.GetByID(ctx, featureID)
	if err != nil {
		return nil, err
	}

	g, err := storedGeometry(f.Geometry)
	if err != nil {
		return nil, errors.NewInvalidGeometry(err.Error())
	}
	if _, ok := g.(orb.Point); !ok {
		return nil, errors.ErrGeometryNotEditable.WithDetails(map[string]interface{}{
			"geometry_type": g.GeoJSONType(),
		})
	}
	return f, nil
}

func movePoint(f *domain.Feature, lat, lon float64) error {
	raw, err := json.Marshal(geojson.NewFeature(orb.Point{lon, lat}))
	if err != nil {
		return errors.ErrInternalServer.Wrap(err)
	}
	f.Geometry = raw
	f.Lat, f.Lon = &lat, &lon
	return nil
}

// SetThumbnail прикрепляет изображение к feature; nil снимает его
func (uc *DatasetUseCase) SetThumbnail(ctx context.Context, featureID string, thumbnail *domain.Thumbnail) (*domain.Feature, error) {
	if thumbnail != nil {
		if err := validator.ValidateRequest(thumbnail); err != nil {
			return nil, err
		}
	}

	f, err := uc.featureRepo.GetByID(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if err := uc.featureRepo.UpdateThumbnail(ctx, featureID, thumbnail); err != nil {
		return nil, err
	}
	f.Thumbnail = thumbnail

	uc.invalidator.InvalidateDataset(ctx, f.DatasetID)
	return f, nil
}

func (uc *DatasetUseCase) decodeSource(ctx context.Context, id int64) (*domain.Dataset, *codec.Collection, error) {
	ds, err := uc.datasetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if ds.SourceRef == "" {
		return nil, nil, errors.NewValidation("source_ref", "dataset has no source")
	}

	body, err := uc.fetcher.Fetch(ctx, ds)
	if err != nil {
		return nil, nil, err
	}
	coll, err := codec.Decode(body)
	if err != nil {
		return nil, nil, err
	}
	return ds, coll, nil
}

// prepare валидирует запрос и переносит его в датасет
func (uc *DatasetUseCase) prepare(ds *domain.Dataset, req dto.DatasetRequest) error {
	if err := validator.ValidateRequest(req); err != nil {
		return err
	}
	fields, err := normalizeFields(req.FieldSchema)
	if err != nil {
		return err
	}

	req.Apply(ds)
	ds.FieldSchema = fields
	if ds.Slug == "" {
		ds.Slug = utils.Slugify(ds.Title)
	}
	if ds.Slug == "" {
		return errors.NewValidation("slug", "slug cannot be derived from the title")
	}
	ds.ApplyDefaults()
	return nil
}

// normalizeFields приводит устаревшие типы значений к текущим
func normalizeFields(fields []domain.FieldDef) ([]domain.FieldDef, error) {
	out := make([]domain.FieldDef, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		vt, ok := domain.ParseValueType(string(f.ValueType))
		if !ok {
			return nil, errors.NewValidation("value_type", "unknown value type "+string(f.ValueType))
		}
		if seen[f.SourceKey] {
			return nil, errors.NewValidation("source_key", "duplicate source key "+f.SourceKey)
		}
		seen[f.SourceKey] = true

		f.ValueType = vt
		if f.DisplayLabel == "" {
			f.DisplayLabel = f.SourceKey
		}
		out = append(out, f)
	}
	return out, nil
}

func (uc *DatasetUseCase) publish(ctx context.Context, t domain.EventType, id int64) {
	if uc.events == nil {
		return
	}
	ev := domain.DatasetEvent{Type: t, DatasetID: id, At: time.Now().UTC()}
	if err := uc.events.Publish(ctx, ev); err != nil {
		// изменение уже сохранено; импорт можно запустить вручную
		uc.logger.Warn("Failed to publish dataset event",
			zap.String("type", string(t)),
			zap.Int64("dataset_id", id),
			zap.Error(err))
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
