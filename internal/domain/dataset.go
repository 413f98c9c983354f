package domain

import (
	"strings"
	"time"
)

// SourceKind - откуда берутся данные датасета
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// URLMode - режим работы URL-источника
type URLMode string

const (
	// URLModeImport - данные материализуются при синхронизации
	URLModeImport URLMode = "import"
	// URLModeLive - данные загружаются и преобразуются при каждом чтении
	URLModeLive URLMode = "live"
)

// SyncMode - стратегия замены features при синхронизации
type SyncMode string

const (
	// SyncModeReplace - удалить все и вставить заново (новые идентификаторы)
	SyncModeReplace SyncMode = "replace"
	// SyncModeUpsert - стабильные идентификаторы, обновление на месте
	SyncModeUpsert SyncMode = "upsert"
)

// DefaultMarkerColor используется, когда у датасета не задан цвет маркера
const DefaultMarkerColor = "#ff0000"

// ValueType - тип значения поля схемы
type ValueType string

const (
	ValueText     ValueType = "text"
	ValueTextarea ValueType = "textarea"
	ValueRichText ValueType = "richtext"
	ValueTime     ValueType = "time"
	ValueDate     ValueType = "date"
	ValueURL      ValueType = "url"
	ValueNumber   ValueType = "number"
)

var legacyValueTypes = map[string]ValueType{
	"wysiwyg":     ValueRichText,
	"text_time":   ValueTime,
	"text_date":   ValueDate,
	"text_url":    ValueURL,
	"text_number": ValueNumber,
}

// ParseValueType принимает текущие и устаревшие имена типов
func ParseValueType(s string) (ValueType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ValueText, true
	}
	if vt, ok := legacyValueTypes[s]; ok {
		return vt, true
	}
	vt := ValueType(s)
	return vt, vt.Valid()
}

func (v ValueType) Valid() bool {
	switch v {
	case ValueText, ValueTextarea, ValueRichText, ValueTime, ValueDate, ValueURL, ValueNumber:
		return true
	}
	return false
}

// FieldDef - описание одного поля схемы датасета
type FieldDef struct {
	SourceKey    string    `json:"source_key" yaml:"source_key" validate:"required"`
	DisplayLabel string    `json:"display_label" yaml:"display_label"`
	ValueType    ValueType `json:"value_type" yaml:"value_type"`
	Show         bool      `json:"show" yaml:"show"`
	Required     bool      `json:"required" yaml:"required"`
}

// TooltipBlockType - тип блока всплывающей подсказки
type TooltipBlockType string

const (
	TooltipImage  TooltipBlockType = "image"
	TooltipTitle  TooltipBlockType = "title"
	TooltipMeta   TooltipBlockType = "meta"
	TooltipText   TooltipBlockType = "text"
	TooltipButton TooltipBlockType = "button"
)

// TooltipBlock - блок шаблона подсказки. Строковые поля могут содержать {field}.
type TooltipBlock struct {
	Type  TooltipBlockType `json:"type" yaml:"type" validate:"required,oneof=image title meta text button"`
	Title string           `json:"title,omitempty" yaml:"title,omitempty"`
	Text  string           `json:"text,omitempty" yaml:"text,omitempty"`
	Label string           `json:"label,omitempty" yaml:"label,omitempty"`
	Value string           `json:"value,omitempty" yaml:"value,omitempty"`
	URL   string           `json:"url,omitempty" yaml:"url,omitempty"`
	Alt   string           `json:"alt,omitempty" yaml:"alt,omitempty"`
}

// MarkerRule - правило выбора маркера по значению поля
type MarkerRule struct {
	MatchValue string `json:"match_value" yaml:"match_value"`
	Icon       string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color      string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Dataset - настроенный источник геоданных с правилами отображения
type Dataset struct {
	ID                 int64          `json:"id"`
	Title              string         `json:"title"`
	Slug               string         `json:"slug"`
	SourceKind         SourceKind     `json:"source_kind"`
	SourceRef          string         `json:"source_ref"`
	URLMode            URLMode        `json:"url_mode,omitempty"`
	SyncMode           SyncMode       `json:"sync_mode"`
	FieldSchema        []FieldDef     `json:"field_schema"`
	TitleTemplate      string         `json:"title_template"`
	TooltipTemplate    []TooltipBlock `json:"tooltip_template"`
	MarkerRuleField    string         `json:"marker_rule_field,omitempty"`
	MarkerRules        []MarkerRule   `json:"marker_rules"`
	DefaultMarkerColor string         `json:"default_marker_color"`
	LastSyncedAt       *time.Time     `json:"last_synced_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsLive - датасет читается из URL при каждом запросе и не хранит features
func (d *Dataset) IsLive() bool {
	return d.SourceKind == SourceURL && d.URLMode == URLModeLive
}

// IsScheduled - датасет участвует в периодической синхронизации
func (d *Dataset) IsScheduled() bool {
	return d.SourceKind == SourceURL && d.URLMode != URLModeLive && d.TitleTemplate != ""
}

// EffectiveSchema возвращает схему полей; пустая схема заменяется неявным полем title
func (d *Dataset) EffectiveSchema() []FieldDef {
	if len(d.FieldSchema) > 0 {
		return d.FieldSchema
	}
	return []FieldDef{{
		SourceKey:    "title",
		DisplayLabel: "Title",
		ValueType:    ValueText,
		Show:         true,
	}}
}

// MarkerColor возвращает цвет маркера по умолчанию для датасета
func (d *Dataset) MarkerColor() string {
	if d.DefaultMarkerColor != "" {
		return d.DefaultMarkerColor
	}
	return DefaultMarkerColor
}

// ApplyDefaults заполняет необязательные поля значениями по умолчанию
func (d *Dataset) ApplyDefaults() {
	if d.SourceKind == SourceURL && d.URLMode == "" {
		d.URLMode = URLModeImport
	}
	if d.SourceKind == SourceFile {
		d.URLMode = ""
	}
	if d.SyncMode == "" {
		d.SyncMode = SyncModeReplace
	}
	if d.DefaultMarkerColor == "" {
		d.DefaultMarkerColor = DefaultMarkerColor
	}
	for i := range d.FieldSchema {
		if vt, ok := ParseValueType(string(d.FieldSchema[i].ValueType)); ok {
			d.FieldSchema[i].ValueType = vt
		}
		if d.FieldSchema[i].DisplayLabel == "" {
			d.FieldSchema[i].DisplayLabel = d.FieldSchema[i].SourceKey
		}
	}
}
