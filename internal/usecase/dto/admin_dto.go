package dto

import "github.com/openkaarten-service/internal/domain"

// DatasetRequest - тело POST/PUT /admin/datasets
type DatasetRequest struct {
	Title              string                `json:"title" yaml:"title" validate:"required,max=255"`
	Slug               string                `json:"slug" yaml:"slug" validate:"omitempty,max=255"`
	SourceKind         domain.SourceKind     `json:"source_kind" yaml:"source_kind" validate:"required,oneof=file url"`
	SourceRef          string                `json:"source_ref" yaml:"source_ref" validate:"required_if=SourceKind url,max=2048"`
	URLMode            domain.URLMode        `json:"url_mode" yaml:"url_mode" validate:"omitempty,oneof=import live"`
	SyncMode           domain.SyncMode       `json:"sync_mode" yaml:"sync_mode" validate:"omitempty,oneof=replace upsert"`
	FieldSchema        []domain.FieldDef     `json:"field_schema" yaml:"field_schema" validate:"dive"`
	TitleTemplate      string                `json:"title_template" yaml:"title_template" validate:"max=1000"`
	TooltipTemplate    []domain.TooltipBlock `json:"tooltip_template" yaml:"tooltip_template" validate:"dive"`
	MarkerRuleField    string                `json:"marker_rule_field" yaml:"marker_rule_field"`
	MarkerRules        []domain.MarkerRule   `json:"marker_rules" yaml:"marker_rules"`
	DefaultMarkerColor string                `json:"default_marker_color" yaml:"default_marker_color" validate:"omitempty,hexcolor"`
}

// Apply переносит поля запроса в датасет, сохраняя служебные поля
func (r DatasetRequest) Apply(ds *domain.Dataset) {
	ds.Title = r.Title
	ds.Slug = r.Slug
	ds.SourceKind = r.SourceKind
	ds.SourceRef = r.SourceRef
	ds.URLMode = r.URLMode
	ds.SyncMode = r.SyncMode
	ds.FieldSchema = r.FieldSchema
	ds.TitleTemplate = r.TitleTemplate
	ds.TooltipTemplate = r.TooltipTemplate
	ds.MarkerRuleField = r.MarkerRuleField
	ds.MarkerRules = r.MarkerRules
	ds.DefaultMarkerColor = r.DefaultMarkerColor
}

// UpdateFieldsRequest - тело PUT /admin/datasets/:id/fields
type UpdateFieldsRequest struct {
	Fields        []domain.FieldDef `json:"fields" validate:"required,dive"`
	TitleTemplate *string           `json:"title_template,omitempty" validate:"omitempty,max=1000"`
}

// GeometryUpdateRequest - новая позиция Point-feature
type GeometryUpdateRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// SourceField - поле источника с примером значения из первой записи
type SourceField struct {
	SourceKey string      `json:"source_key"`
	Sample    interface{} `json:"sample"`
}

type SourceFieldsResponse struct {
	DatasetID int64         `json:"dataset_id"`
	Records   int           `json:"records"`
	Fields    []SourceField `json:"fields"`
}

// SchemaResyncResponse - результат повторного построения схемы
type SchemaResyncResponse struct {
	DatasetID int64             `json:"dataset_id"`
	Fields    []domain.FieldDef `json:"fields"`
	Added     []string          `json:"added"`
	Removed   []string          `json:"removed"`
	Retained  []string          `json:"retained"`
}
