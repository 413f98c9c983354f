package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/fieldmap"
	"github.com/openkaarten-service/internal/geo/codec"
	"github.com/openkaarten-service/internal/geo/projection"
	"github.com/openkaarten-service/internal/marker"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/usecase/dto"
)

const defaultFormat = "geojson"

// FeatureMaterializer строит features live-датасета без сохранения
type FeatureMaterializer interface {
	Materialize(ctx context.Context, ds *domain.Dataset) ([]*domain.Feature, error)
}

// PublishUseCase отдает датасеты как FeatureCollection в выбранном формате и проекции
type PublishUseCase struct {
	datasetRepo  repository.DatasetRepository
	featureRepo  repository.FeatureRepository
	materializer FeatureMaterializer
	cacheRepo    repository.CacheRepository
	logger       *zap.Logger
	baseURL      string
	iconBaseURL  string
	datasetTTL   time.Duration
	listTTL      time.Duration
}

func NewPublishUseCase(
	datasetRepo repository.DatasetRepository,
	featureRepo repository.FeatureRepository,
	materializer FeatureMaterializer,
	cacheRepo repository.CacheRepository,
	logger *zap.Logger,
	baseURL string,
	iconBaseURL string,
	datasetTTL time.Duration,
	listTTL time.Duration,
) *PublishUseCase {
	return &PublishUseCase{
		datasetRepo:  datasetRepo,
		featureRepo:  featureRepo,
		materializer: materializer,
		cacheRepo:    cacheRepo,
		logger:       logger,
		baseURL:      baseURL,
		iconBaseURL:  iconBaseURL,
		datasetTTL:   datasetTTL,
		listTTL:      listTTL,
	}
}

// ListDatasets возвращает страницу датасетов. Датасет, который не удалось
// собрать, попадает в ответ пустой коллекцией с описанием ошибки.
func (uc *PublishUseCase) ListDatasets(ctx context.Context, req dto.DatasetListRequest) (*dto.DatasetCollectionResponse, error) {
	proj, err := projection.Parse(req.Projection)
	if err != nil {
		return nil, err
	}
	filter := req.Filter()

	cacheKey := listCacheKey(req)
	if cached := uc.cached(ctx, cacheKey); cached != nil {
		var resp dto.DatasetCollectionResponse
		if err := json.Unmarshal(cached, &resp); err == nil {
			return &resp, nil
		}
	}

	datasets, total, err := uc.datasetRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.DatasetCollectionResponse{
		Type:     "DatasetCollection",
		Datasets: make([]json.RawMessage, 0, len(datasets)),
		Pagination: dto.Pagination{
			Total: total,
			Limit: filter.PerPage,
			Pages: dto.PageCount{
				Total:   (total + filter.PerPage - 1) / filter.PerPage,
				Current: filter.Page,
			},
		},
		Links: map[string]string{
			"datasets": uc.baseURL + "/api/v1/datasets/id/{id}",
		},
	}

	cacheable := true
	for _, ds := range datasets {
		if ds.IsLive() {
			cacheable = false
		}
		resp.Datasets = append(resp.Datasets, uc.datasetSlot(ctx, ds, proj))
	}

	if cacheable {
		if body, err := json.Marshal(resp); err == nil {
			uc.store(ctx, cacheKey, body, uc.listTTL)
		}
	}
	return resp, nil
}

// GetDataset кодирует датасет в запрошенный формат (по умолчанию geojson)
func (uc *PublishUseCase) GetDataset(ctx context.Context, id int64, format, proj string) (*dto.DatasetPayload, error) {
	if format == "" {
		format = defaultFormat
	}
	f, ok := codec.Lookup(format)
	if !ok {
		return nil, errors.NewUnsupportedFormat(format, codec.Formats())
	}
	p, err := projection.Parse(proj)
	if err != nil {
		return nil, err
	}

	ds, err := uc.datasetRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	cacheKey := DatasetCacheKey(ds.ID, f.Name, string(p))
	if !ds.IsLive() {
		if body := uc.cached(ctx, cacheKey); body != nil {
			return payload(ds.ID, f, body), nil
		}
	}

	fc, err := uc.collection(ctx, ds)
	if err != nil {
		return nil, err
	}
	projection.ApplyCollection(fc, p)

	body, f, err := codec.Encode(fc, f.Name, codec.EncodeOptions{Name: ds.Title, SRS: p.SRS()})
	if err != nil {
		uc.logger.Error("Failed to encode dataset",
			zap.Int64("dataset_id", ds.ID),
			zap.String("format", f.Name),
			zap.Error(err))
		return nil, errors.ErrInternalServer.Wrap(err)
	}

	if !ds.IsLive() {
		uc.store(ctx, cacheKey, body, uc.datasetTTL)
	}
	return payload(ds.ID, f, body), nil
}

// Formats перечисляет зарегистрированные выходные форматы
func (uc *PublishUseCase) Formats() []dto.FormatInfo {
	names := codec.Formats()
	out := make([]dto.FormatInfo, 0, len(names))
	for _, name := range names {
		f, _ := codec.Lookup(name)
		out = append(out, dto.FormatInfo{
			Name:       f.Name,
			MimeType:   f.MimeType,
			Attachment: f.Attachment,
		})
	}
	return out
}

func payload(id int64, f codec.Format, body []byte) *dto.DatasetPayload {
	p := &dto.DatasetPayload{
		Body:        body,
		ContentType: f.MimeType,
		RawJSON:     f.JSON,
	}
	if f.Attachment {
		p.Filename = fmt.Sprintf("%d.%s", id, f.Name)
	}
	return p
}

// datasetSlot возвращает GeoJSON одного датасета для списка
func (uc *PublishUseCase) datasetSlot(ctx context.Context, ds *domain.Dataset, proj projection.Projection) json.RawMessage {
	fc, err := uc.collection(ctx, ds)
	if err == nil {
		projection.ApplyCollection(fc, proj)
		body, mErr := json.Marshal(fc)
		if mErr == nil {
			return body
		}
		err = mErr
	}

	uc.logger.Warn("Dataset could not be published",
		zap.Int64("dataset_id", ds.ID),
		zap.Error(err))

	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.ErrInternalServer
	}
	empty := geojson.NewFeatureCollection()
	empty.ExtraMembers = geojson.Properties{
		"title": ds.Title,
		"id":    ds.ID,
		"error": appErr,
	}
	body, _ := json.Marshal(empty)
	return body
}

// collection собирает FeatureCollection с обогащенными свойствами.
// Сохраненные features упорядочены по заголовку, live - в порядке источника.
func (uc *PublishUseCase) collection(ctx context.Context, ds *domain.Dataset) (*geojson.FeatureCollection, error) {
	var (
		features []*domain.Feature
		err      error
	)
	if ds.IsLive() {
		features, err = uc.materializer.Materialize(ctx, ds)
	} else {
		features, err = uc.featureRepo.ListByDataset(ctx, ds.ID)
	}
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		g, err := storedGeometry(f.Geometry)
		if err != nil {
			return nil, errors.NewInvalidGeometry(fmt.Sprintf("feature %q: %v", f.Title, err))
		}

		out := geojson.NewFeature(g)
		if f.ID != uuid.Nil {
			out.ID = f.ID.String()
		}
		out.Properties = uc.enrich(ds, f)
		fc.Append(out)
	}

	fc.ExtraMembers = geojson.Properties{
		"title": ds.Title,
		"id":    ds.ID,
	}
	return fc, nil
}

// enrich строит свойства публикуемой feature: видимые поля схемы,
// заголовок, маркер, подсказку, изображение и адрес
func (uc *PublishUseCase) enrich(ds *domain.Dataset, f *domain.Feature) geojson.Properties {
	props := geojson.Properties(fieldmap.VisibleProperties(ds.EffectiveSchema(), f.Properties))
	props["title"] = f.Title

	m := marker.Resolve(ds.MarkerRuleField, ds.MarkerRules, ds.MarkerColor(), marker.PropertyLookup(f.Properties))
	props["marker"] = marker.WithIconURL(m, uc.iconBaseURL)

	if len(ds.TooltipTemplate) > 0 {
		values := make(map[string]interface{}, len(f.Properties)+1)
		for k, v := range f.Properties {
			values[k] = v
		}
		values["title"] = f.Title
		props["tooltip"] = fieldmap.RenderTooltip(ds.TooltipTemplate, values)
	}

	if f.Thumbnail != nil {
		props["thumbnail"] = f.Thumbnail
	}
	if f.Address != nil {
		props["address"] = f.Address.String()
	}
	return props
}

// storedGeometry разбирает сохраненный GeoJSON: Feature или голую геометрию
func storedGeometry(raw json.RawMessage) (orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	if head.Type == "Feature" {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, err
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature has no geometry")
		}
		return f.Geometry, nil
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, err
	}
	if g.Geometry() == nil {
		return nil, fmt.Errorf("empty geometry")
	}
	return g.Geometry(), nil
}

func listCacheKey(req dto.DatasetListRequest) string {
	raw, _ := json.Marshal(req)
	return fmt.Sprintf("datasets:list:%x", md5.Sum(raw))
}

// cached возвращает значение из кеша или nil. Ошибки кеша не мешают ответу.
func (uc *PublishUseCase) cached(ctx context.Context, key string) []byte {
	if uc.cacheRepo == nil {
		return nil
	}
	body, err := uc.cacheRepo.Get(ctx, key)
	if err != nil {
		uc.logger.Warn("Failed to read cache", zap.String("key", key), zap.Error(err))
		return nil
	}
	return body
}

func (uc *PublishUseCase) store(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if uc.cacheRepo == nil || ttl <= 0 {
		return
	}
	if err := uc.cacheRepo.Set(ctx, key, body, ttl); err != nil {
		uc.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}
