package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/domain/repository"
)

// EventPublisher доставляет события датасетов обработчику импорта
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.DatasetEvent) error
}

// StreamEventPublisher пишет события в Redis Stream, их читает воркер
type StreamEventPublisher struct {
	stream repository.StreamRepository
	logger *zap.Logger
}

func NewStreamEventPublisher(stream repository.StreamRepository, logger *zap.Logger) *StreamEventPublisher {
	return &StreamEventPublisher{stream: stream, logger: logger}
}

func (p *StreamEventPublisher) Publish(ctx context.Context, ev domain.DatasetEvent) error {
	if err := p.stream.PublishToStream(ctx, domain.StreamDatasetEvents, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	p.logger.Debug("Dataset event published",
		zap.String("type", string(ev.Type)),
		zap.Int64("dataset_id", ev.DatasetID))
	return nil
}

// EventHandler обрабатывает событие датасета
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.DatasetEvent) error
}

// InlineEventPublisher сразу вызывает обработчик в том же процессе
type InlineEventPublisher struct {
	handler EventHandler
}

func NewInlineEventPublisher(handler EventHandler) *InlineEventPublisher {
	return &InlineEventPublisher{handler: handler}
}

func (p *InlineEventPublisher) Publish(ctx context.Context, ev domain.DatasetEvent) error {
	return p.handler.HandleEvent(ctx, ev)
}
