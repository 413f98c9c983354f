package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
	"github.com/openkaarten-service/internal/worker"
)

const (
	maxBatchSize    = 20
	emptyQueueSleep = 100 * time.Millisecond
	errorSleep      = time.Second
)

// EventHandler выполняет импорт по событию датасета
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.DatasetEvent) error
}

// EventWorker читает события датасетов из Redis Stream и передает их
// обработчику импорта. Сообщения подтверждаются после обработки, в том
// числе неудачной: ошибка импорта записывается в ImportRun и повторяется
// следующим событием или тиком расписания.
type EventWorker struct {
	*worker.BaseWorker
	streamRepo repository.StreamRepository
	handler    EventHandler
}

func NewEventWorker(
	streamRepo repository.StreamRepository,
	handler EventHandler,
	consumerGroup string,
	logger *zap.Logger,
) *EventWorker {
	return &EventWorker{
		BaseWorker: worker.NewBaseWorker("dataset-events", consumerGroup, logger),
		streamRepo: streamRepo,
		handler:    handler,
	}
}

func (w *EventWorker) Start(ctx context.Context) error {
	logger := w.Logger()
	logger.Info("Starting dataset event worker",
		zap.String("consumer_group", w.ConsumerGroup()),
		zap.String("consumer_name", w.ConsumerName()))

	if err := w.streamRepo.CreateConsumerGroup(ctx, domain.StreamDatasetEvents, w.ConsumerGroup()); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	for {
		select {
		case <-w.StopChan():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		processed, err := w.processBatch(ctx)
		switch {
		case err != nil:
			logger.Error("Failed to process batch", zap.Error(err))
			w.pause(ctx, errorSleep)
		case processed == 0:
			w.pause(ctx, emptyQueueSleep)
		}
	}
}

func (w *EventWorker) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.StopChan():
	case <-ctx.Done():
	}
}

// processBatch обрабатывает одну пачку сообщений и возвращает их количество
func (w *EventWorker) processBatch(ctx context.Context) (int, error) {
	messages, err := w.streamRepo.ConsumeBatch(ctx, domain.StreamDatasetEvents, w.ConsumerGroup(), w.ConsumerName(), maxBatchSize)
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)

		var ev domain.DatasetEvent
		if err := json.Unmarshal([]byte(msg.Data), &ev); err != nil {
			w.Logger().Warn("Malformed dataset event",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			continue
		}

		start := time.Now()
		if err := w.handler.HandleEvent(ctx, ev); err != nil {
			w.Logger().Error("Dataset event failed",
				zap.String("message_id", msg.ID),
				zap.String("type", string(ev.Type)),
				zap.Int64("dataset_id", ev.DatasetID),
				zap.Error(err))
			continue
		}
		w.Logger().Info("Dataset event handled",
			zap.String("type", string(ev.Type)),
			zap.Int64("dataset_id", ev.DatasetID),
			zap.Duration("took", time.Since(start)))
	}

	if err := w.streamRepo.AckMessages(ctx, domain.StreamDatasetEvents, w.ConsumerGroup(), ids); err != nil {
		return len(messages), err
	}
	return len(messages), nil
}
