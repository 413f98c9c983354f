package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatasetEvent_Trigger(t *testing.T) {
	tests := []struct {
		name     string
		event    DatasetEvent
		expected SyncTrigger
	}{
		{"saved", DatasetEvent{Type: EventDatasetSaved, DatasetID: 1}, TriggerCreated},
		{"mapping changed", DatasetEvent{Type: EventFieldMappingChanged, DatasetID: 1}, TriggerMappingChanged},
		{"tick", DatasetEvent{Type: EventSyncTick}, TriggerScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.Trigger())
		})
	}
}

func TestDataset_EffectiveSchema(t *testing.T) {
	ds := &Dataset{}
	schema := ds.EffectiveSchema()
	assert.Len(t, schema, 1)
	assert.Equal(t, "title", schema[0].SourceKey)
	assert.True(t, schema[0].Show)

	ds.FieldSchema = []FieldDef{{SourceKey: "name"}}
	assert.Equal(t, ds.FieldSchema, ds.EffectiveSchema())
}

func TestDataset_Modes(t *testing.T) {
	live := &Dataset{SourceKind: SourceURL, URLMode: URLModeLive, TitleTemplate: "{name}"}
	assert.True(t, live.IsLive())
	assert.False(t, live.IsScheduled())

	imported := &Dataset{SourceKind: SourceURL, URLMode: URLModeImport, TitleTemplate: "{name}"}
	assert.False(t, imported.IsLive())
	assert.True(t, imported.IsScheduled())

	file := &Dataset{SourceKind: SourceFile, TitleTemplate: "{name}"}
	assert.False(t, file.IsScheduled())
}

func TestDataset_ApplyDefaults(t *testing.T) {
	ds := &Dataset{
		SourceKind:  SourceURL,
		FieldSchema: []FieldDef{{SourceKey: "opening", ValueType: "text_time"}, {SourceKey: "body", ValueType: "wysiwyg"}},
	}
	ds.ApplyDefaults()

	assert.Equal(t, URLModeImport, ds.URLMode)
	assert.Equal(t, SyncModeReplace, ds.SyncMode)
	assert.Equal(t, DefaultMarkerColor, ds.MarkerColor())
	assert.Equal(t, ValueTime, ds.FieldSchema[0].ValueType)
	assert.Equal(t, ValueRichText, ds.FieldSchema[1].ValueType)
	assert.Equal(t, "opening", ds.FieldSchema[0].DisplayLabel)
}
