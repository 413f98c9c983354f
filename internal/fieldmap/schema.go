package fieldmap

import (
	"sort"

	"github.com/openkaarten-service/internal/domain"
)

// {"title": {"rendered": "..."}}
const renderedKey = "rendered"

// DeriveSchema возвращает ключи источника, пригодные для схемы, в порядке
// источника. Массивы и объекты пропускаются, кроме оберток rendered.
func DeriveSchema(props map[string]interface{}, order []string) []string {
	keys := make([]string, 0, len(props))
	for _, k := range orderedKeys(props, order) {
		switch v := props[k].(type) {
		case []interface{}:
			continue
		case map[string]interface{}:
			if _, ok := v[renderedKey]; !ok {
				continue
			}
		}
		keys = append(keys, k)
	}
	return keys
}

// DefaultFieldDefs - скрытые текстовые поля с подписью по ключу
func DefaultFieldDefs(keys []string) []domain.FieldDef {
	defs := make([]domain.FieldDef, 0, len(keys))
	for _, k := range keys {
		defs = append(defs, domain.FieldDef{
			SourceKey:    k,
			DisplayLabel: k,
			ValueType:    domain.ValueText,
		})
	}
	return defs
}

// SchemaDiff - результат MergeSchema
type SchemaDiff struct {
	Fields   []domain.FieldDef
	Added    []string
	Removed  []string
	Retained []string
}

func (d SchemaDiff) Changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// MergeSchema сохраняет определения оставшихся ключей, добавляет новые
// со значениями по умолчанию и удаляет исчезнувшие. Порядок - как в next.
func MergeSchema(prev []domain.FieldDef, next []string) SchemaDiff {
	byKey := make(map[string]domain.FieldDef, len(prev))
	for _, f := range prev {
		byKey[f.SourceKey] = f
	}

	diff := SchemaDiff{Fields: make([]domain.FieldDef, 0, len(next))}
	seen := make(map[string]bool, len(next))
	for _, k := range next {
		if seen[k] {
			continue
		}
		seen[k] = true

		if f, ok := byKey[k]; ok {
			diff.Fields = append(diff.Fields, f)
			diff.Retained = append(diff.Retained, k)
			continue
		}
		diff.Fields = append(diff.Fields, DefaultFieldDefs([]string{k})...)
		diff.Added = append(diff.Added, k)
	}

	for _, f := range prev {
		if !seen[f.SourceKey] {
			diff.Removed = append(diff.Removed, f.SourceKey)
		}
	}
	return diff
}

// VisibleProperties - значения полей с Show
func VisibleProperties(schema []domain.FieldDef, props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for _, f := range schema {
		if !f.Show {
			continue
		}
		if v, ok := props[f.SourceKey]; ok {
			out[f.SourceKey] = v
		}
	}
	return out
}

// orderedKeys: сначала существующие ключи из order, затем остальные по алфавиту
func orderedKeys(props map[string]interface{}, order []string) []string {
	out := make([]string, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, k := range order {
		if _, ok := props[k]; ok && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0)
	for k := range props {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
