package marker

import (
	"net/url"
	"strings"

	"github.com/openkaarten-service/internal/domain"
	"github.com/openkaarten-service/internal/fieldmap"
)

// Lookup возвращает значение свойства feature
type Lookup func(key string) (interface{}, bool)

func PropertyLookup(props map[string]interface{}) Lookup {
	return func(key string) (interface{}, bool) {
		v, ok := props[key]
		return v, ok
	}
}

// Resolve проходит все правила по порядку. Каждое совпавшее правило
// перезаписывает непустые цвет и иконку: побеждает последнее.
func Resolve(field string, rules []domain.MarkerRule, defaultColor string, lookup Lookup) domain.Marker {
	m := domain.Marker{Color: defaultColor}
	if field == "" || len(rules) == 0 || lookup == nil {
		return m
	}

	raw, ok := lookup(field)
	if !ok {
		return m
	}
	value, ok := fieldmap.Stringify(raw)
	if !ok {
		return m
	}

	for _, r := range rules {
		if r.MatchValue != value {
			continue
		}
		if r.Color != "" {
			m.Color = r.Color
		}
		if r.Icon != "" {
			icon := r.Icon
			m.Icon = &icon
		}
	}
	return m
}

// IconURL - URL SVG-иконки под base; пустая иконка - nil
func IconURL(base string, icon *string) *string {
	if icon == nil || strings.TrimSpace(*icon) == "" {
		return nil
	}
	u := strings.TrimRight(base, "/") + "/" + url.PathEscape(strings.TrimSpace(*icon)) + ".svg"
	return &u
}

func WithIconURL(m domain.Marker, base string) domain.Marker {
	m.Icon = IconURL(base, m.Icon)
	return m
}
