package dataset

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/worker"
)

// ScheduledSyncer синхронизирует все датасеты по расписанию
type ScheduledSyncer interface {
	SyncScheduled(ctx context.Context) ([]*domain.ImportRun, error)
}

// SchedulerWorker запускает SyncScheduled каждые interval. Тик, пришедший
// во время прогона, отбрасывается: time.Ticker не копит пропущенные тики.
type SchedulerWorker struct {
	*worker.BaseWorker
	syncer   ScheduledSyncer
	interval time.Duration
	onStart  bool
}

// DefaultSyncInterval используется, если интервал не положительный
const DefaultSyncInterval = time.Hour

func NewSchedulerWorker(syncer ScheduledSyncer, interval time.Duration, onStart bool, logger *zap.Logger) *SchedulerWorker {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SchedulerWorker{
		BaseWorker: worker.NewBaseWorker("dataset-sync-scheduler", "", logger),
		syncer:     syncer,
		interval:   interval,
		onStart:    onStart,
	}
}

func (w *SchedulerWorker) Interval() time.Duration {
	return w.interval
}

func (w *SchedulerWorker) Start(ctx context.Context) error {
	w.Logger().Info("Starting sync scheduler",
		zap.Duration("interval", w.interval),
		zap.Bool("on_start", w.onStart))

	if w.onStart {
		w.tick(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.StopChan():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SchedulerWorker) tick(ctx context.Context) {
	start := time.Now()
	runs, err := w.syncer.SyncScheduled(ctx)
	if err != nil {
		w.Logger().Error("Scheduled sync failed", zap.Error(err))
		return
	}

	var features int
	for _, run := range runs {
		if run != nil {
			features += run.FeatureCount
		}
	}
	w.Logger().Info("Scheduled sync tick",
		zap.Int("datasets", len(runs)),
		zap.Int("features", features),
		zap.Duration("took", time.Since(start)))
}
