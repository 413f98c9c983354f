package usecase

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/fieldmap"
	"github.com/openkaarten-service/internal/geo/codec"
	"github.com/openkaarten-service/internal/geo/projection"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/pkg/utils"
)

// featureNamespace - пространство имен стабильных идентификаторов (режим upsert)
var featureNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("openkaarten:feature"))

// ImportUseCase материализует features датасетов из источников
type ImportUseCase struct {
	datasetRepo repository.DatasetRepository
	featureRepo repository.FeatureRepository
	fetcher     repository.SourceFetcher
	invalidator *CacheInvalidator
	locks       *datasetLocks
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

func NewImportUseCase(
	datasetRepo repository.DatasetRepository,
	featureRepo repository.FeatureRepository,
	fetcher repository.SourceFetcher,
	invalidator *CacheInvalidator,
	concurrency int,
	logger *zap.Logger,
) *ImportUseCase {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ImportUseCase{
		datasetRepo: datasetRepo,
		featureRepo: featureRepo,
		fetcher:     fetcher,
		invalidator: invalidator,
		locks:       newDatasetLocks(),
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Sync выполняет импорт датасета. Если датасет уже синхронизируется,
// вызов ждет завершения предыдущего прогона.
func (uc *ImportUseCase) Sync(ctx context.Context, id int64, trigger domain.SyncTrigger) (*domain.ImportRun, error) {
	unlock := uc.locks.Lock(id)
	defer unlock()

	return uc.run(ctx, id, trigger)
}

// syncIfIdle пропускает датасет, который уже синхронизируется
func (uc *ImportUseCase) syncIfIdle(ctx context.Context, id int64, trigger domain.SyncTrigger) (*domain.ImportRun, error) {
	unlock, ok := uc.locks.TryLock(id)
	if !ok {
		uc.logger.Info("Dataset sync already running, skipping",
			zap.Int64("dataset_id", id),
			zap.String("trigger", string(trigger)))
		now := uc.now()
		return &domain.ImportRun{
			DatasetID:  id,
			Trigger:    trigger,
			State:      domain.ImportSkipped,
			StartedAt:  now,
			FinishedAt: now,
		}, nil
	}
	defer unlock()

	return uc.run(ctx, id, trigger)
}

// SyncScheduled синхронизирует все URL-датасеты в режиме import с шаблоном
// заголовка. Датасеты обрабатываются параллельно; ошибка одного не
// останавливает остальные.
func (uc *ImportUseCase) SyncScheduled(ctx context.Context) ([]*domain.ImportRun, error) {
	datasets, err := uc.datasetRepo.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}

	runs := make([]*domain.ImportRun, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)

	for i, ds := range datasets {
		i, id := i, ds.ID
		g.Go(func() error {
			run, _ := uc.syncIfIdle(gctx, id, domain.TriggerScheduled)
			runs[i] = run
			return nil
		})
	}
	_ = g.Wait()

	var failed, skipped int
	for _, run := range runs {
		switch run.State {
		case domain.ImportFailed:
			failed++
		case domain.ImportSkipped:
			skipped++
		}
	}
	uc.logger.Info("Scheduled sync finished",
		zap.Int("datasets", len(runs)),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))

	return runs, nil
}

// HandleEvent обрабатывает событие датасета: DatasetSaved,
// FieldMappingChanged или SyncTick
func (uc *ImportUseCase) HandleEvent(ctx context.Context, ev domain.DatasetEvent) error {
	logger := uc.logger.With(
		zap.String("event", string(ev.Type)),
		zap.Int64("dataset_id", ev.DatasetID))

	switch ev.Type {
	case domain.EventSyncTick:
		if ev.DatasetID == 0 {
			_, err := uc.SyncScheduled(ctx)
			return err
		}
		_, err := uc.syncIfIdle(ctx, ev.DatasetID, ev.Trigger())
		return err

	case domain.EventDatasetSaved, domain.EventFieldMappingChanged:
		ds, err := uc.datasetRepo.GetByID(ctx, ev.DatasetID)
		if stderrors.Is(err, errors.ErrDatasetNotFound) {
			logger.Debug("Dataset deleted before the event was handled")
			return nil
		}
		if err != nil {
			return err
		}

		if ds.IsLive() {
			uc.invalidator.InvalidateDataset(ctx, ds.ID)
			return nil
		}
		if ds.SourceRef == "" {
			logger.Debug("Dataset has no source yet")
			return nil
		}
		if ev.Type == domain.EventDatasetSaved && ds.TitleTemplate == "" {
			// первый импорт выполняется, когда задан шаблон заголовка
			logger.Debug("Dataset has no title template yet")
			return nil
		}

		_, err = uc.Sync(ctx, ds.ID, ev.Trigger())
		return err
	}

	return fmt.Errorf("unknown event type %q", ev.Type)
}

// Materialize загружает и преобразует features без сохранения.
// Используется для live-датасетов при каждом чтении.
func (uc *ImportUseCase) Materialize(ctx context.Context, ds *domain.Dataset) ([]*domain.Feature, error) {
	coll, err := uc.fetchAndDecode(ctx, ds, nil)
	if err != nil {
		return nil, err
	}
	return mapFeatures(ds, coll)
}

func (uc *ImportUseCase) run(ctx context.Context, id int64, trigger domain.SyncTrigger) (*domain.ImportRun, error) {
	run := &domain.ImportRun{
		DatasetID: id,
		Trigger:   trigger,
		State:     domain.ImportIdle,
		StartedAt: uc.now(),
	}
	logger := uc.logger.With(
		zap.Int64("dataset_id", id),
		zap.String("trigger", string(trigger)))

	ds, err := uc.datasetRepo.GetByID(ctx, id)
	if err != nil {
		return uc.fail(run, logger, err)
	}

	coll, err := uc.fetchAndDecode(ctx, ds, run)
	if err != nil {
		return uc.fail(run, logger, err)
	}

	var schemaChanged bool
	if trigger == domain.TriggerMappingChanged || len(ds.FieldSchema) == 0 {
		schemaChanged = reconcileSchema(ds, coll, logger)
	}

	uc.transition(run, domain.ImportMapping, logger)
	features, err := mapFeatures(ds, coll)
	if err != nil {
		return uc.fail(run, logger, err)
	}
	run.FeatureCount = len(features)

	// пишется только схема: конфигурация могла измениться во время загрузки
	if schemaChanged {
		if err := uc.datasetRepo.UpdateFieldSchema(ctx, ds.ID, ds.FieldSchema); err != nil {
			return uc.fail(run, logger, err)
		}
	}

	if ds.IsLive() {
		run.State = domain.ImportIdle
		run.FinishedAt = uc.now()
		logger.Info("Live dataset mapped", zap.Int("features", run.FeatureCount))
		return run, nil
	}

	uc.transition(run, domain.ImportReplacing, logger)
	if err := uc.featureRepo.ReplaceForDataset(ctx, ds.ID, features, ds.SyncMode, uc.now()); err != nil {
		return uc.fail(run, logger, err)
	}
	uc.invalidator.InvalidateDataset(ctx, ds.ID)

	run.State = domain.ImportIdle
	run.FinishedAt = uc.now()
	logger.Info("Dataset synced",
		zap.Int("features", run.FeatureCount),
		zap.Duration("took", run.FinishedAt.Sub(run.StartedAt)))
	return run, nil
}

func (uc *ImportUseCase) fetchAndDecode(ctx context.Context, ds *domain.Dataset, run *domain.ImportRun) (*codec.Collection, error) {
	logger := uc.logger.With(zap.Int64("dataset_id", ds.ID))

	uc.transition(run, domain.ImportFetching, logger)
	body, err := uc.fetcher.Fetch(ctx, ds)
	if err != nil {
		return nil, err
	}

	uc.transition(run, domain.ImportDecoding, logger)
	return codec.Decode(body)
}

// reconcileSchema сравнивает ключи первой записи со схемой датасета:
// определения сохраненных ключей остаются, новые добавляются скрытыми,
// удаленные исчезают. Возвращает true, если схема изменилась.
func reconcileSchema(ds *domain.Dataset, coll *codec.Collection, logger *zap.Logger) bool {
	if len(coll.Components) == 0 {
		return false
	}
	first := coll.Components[0]

	diff := fieldmap.MergeSchema(ds.FieldSchema, fieldmap.DeriveSchema(first.Properties, first.OrderedKeys()))
	if !diff.Changed() {
		return false
	}

	ds.FieldSchema = diff.Fields
	logger.Info("Dataset schema updated",
		zap.Strings("added", diff.Added),
		zap.Strings("removed", diff.Removed))
	return true
}

func (uc *ImportUseCase) transition(run *domain.ImportRun, state domain.ImportState, logger *zap.Logger) {
	if run == nil {
		return
	}
	logger.Debug("Import state",
		zap.String("from", string(run.State)),
		zap.String("to", string(state)))
	run.State = state
}

func (uc *ImportUseCase) fail(run *domain.ImportRun, logger *zap.Logger, err error) (*domain.ImportRun, error) {
	logger.Warn("Dataset sync failed",
		zap.String("state", string(run.State)),
		zap.Error(err))

	run.State = domain.ImportFailed
	run.Error = err.Error()
	run.FinishedAt = uc.now()
	return run, err
}

// mapFeatures строит features из декодированных компонентов. Геометрия
// приводится к WGS84; координата вне допустимых границ отменяет весь импорт.
func mapFeatures(ds *domain.Dataset, coll *codec.Collection) ([]*domain.Feature, error) {
	features := make([]*domain.Feature, 0, len(coll.Components))
	seen := make(map[uuid.UUID]int)

	for i, c := range coll.Components {
		g := projection.ToWGS84(c.Geometry)
		if g == nil {
			return nil, errors.NewInvalidGeometry(fmt.Sprintf("record %d has no geometry", i))
		}
		if !utils.WithinWGS84(g) {
			return nil, errors.NewInvalidGeometry(fmt.Sprintf("record %d has coordinates outside WGS84 bounds", i))
		}

		props := fieldmap.NormalizeProperties(c.Properties)
		title := fieldmap.Title(ds.TitleTemplate, props, c.OrderedKeys())

		raw, err := json.Marshal(geojson.NewFeature(g))
		if err != nil {
			return nil, errors.NewInvalidGeometry(err.Error())
		}

		f := &domain.Feature{
			DatasetID:  ds.ID,
			Title:      title,
			Geometry:   raw,
			Properties: props,
		}
		if p, ok := g.(orb.Point); ok {
			lat, lon := p.Lat(), p.Lon()
			f.Lat, f.Lon = &lat, &lon
		}
		if ds.SyncMode == domain.SyncModeUpsert {
			f.ID = stableID(ds.ID, title, g, seen)
		}
		features = append(features, f)
	}
	return features, nil
}

// stableID выводит идентификатор из датасета, заголовка и геометрии.
// Одинаковые записи различаются порядковым номером.
func stableID(datasetID int64, title string, g orb.Geometry, seen map[uuid.UUID]int) uuid.UUID {
	base := uuid.NewSHA1(featureNamespace, []byte(fmt.Sprintf("%d\x00%s\x00%s", datasetID, title, wkt.MarshalString(g))))
	n := seen[base]
	seen[base] = n + 1
	if n == 0 {
		return base
	}
	return uuid.NewSHA1(base, []byte(fmt.Sprintf("%d", n)))
}
