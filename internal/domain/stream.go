package domain

import "time"

// Stream names
const (
	StreamDatasetEvents   = "stream:dataset:events"
	StreamCacheInvalidate = "stream:datasets:invalidate"
)

// EventType - тип события датасета
type EventType string

const (
	EventDatasetSaved        EventType = "dataset_saved"
	EventFieldMappingChanged EventType = "field_mapping_changed"
	EventSyncTick            EventType = "sync_tick"
)

// DatasetEvent - событие, публикуемое API и обрабатываемое воркером
type DatasetEvent struct {
	Type      EventType `json:"type"`
	DatasetID int64     `json:"dataset_id,omitempty"`
	At        time.Time `json:"at"`
}

// Trigger сопоставляет событие причине запуска импорта
func (e DatasetEvent) Trigger() SyncTrigger {
	switch e.Type {
	case EventFieldMappingChanged:
		return TriggerMappingChanged
	case EventSyncTick:
		return TriggerScheduled
	default:
		return TriggerCreated
	}
}

// CacheInvalidation - сигнал внешнему слою кеширования
type CacheInvalidation struct {
	Pattern   string    `json:"pattern"`
	DatasetID int64     `json:"dataset_id,omitempty"`
	At        time.Time `json:"at"`
}

// StreamMessage - сообщение из Redis Stream
type StreamMessage struct {
	ID   string
	Data string
}
