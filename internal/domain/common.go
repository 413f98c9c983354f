package domain

import "time"

// DatasetFilter - параметры выборки списка датасетов
type DatasetFilter struct {
	Page           int
	PerPage        int
	Offset         *int
	OrderBy        string
	Order          string
	Include        []int64
	Exclude        []int64
	Slugs          []string
	Search         string
	After          *time.Time
	Before         *time.Time
	ModifiedAfter  *time.Time
	ModifiedBefore *time.Time
}

// OffsetValue возвращает смещение: явное или вычисленное из страницы
func (f DatasetFilter) OffsetValue() int {
	if f.Offset != nil && *f.Offset >= 0 {
		return *f.Offset
	}
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}

// Marker - вычисленный маркер feature
type Marker struct {
	Color string  `json:"color"`
	Icon  *string `json:"icon"`
}

// ImportState - состояние прогона импорта
type ImportState string

const (
	ImportIdle      ImportState = "idle"
	ImportFetching  ImportState = "fetching"
	ImportDecoding  ImportState = "decoding"
	ImportMapping   ImportState = "mapping"
	ImportReplacing ImportState = "replacing"
	ImportFailed    ImportState = "failed"
	ImportSkipped   ImportState = "skipped"
)

// SyncTrigger - причина запуска импорта
type SyncTrigger string

const (
	TriggerManual         SyncTrigger = "manual"
	TriggerMappingChanged SyncTrigger = "mapping_changed"
	TriggerScheduled      SyncTrigger = "scheduled"
	TriggerCreated        SyncTrigger = "created"
)

// ImportRun - результат одного прогона импорта
type ImportRun struct {
	DatasetID    int64       `json:"dataset_id"`
	Trigger      SyncTrigger `json:"trigger"`
	State        ImportState `json:"state"`
	FeatureCount int         `json:"feature_count"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	Error        string      `json:"error,omitempty"`
}
