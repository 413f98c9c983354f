package fieldmap

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// {key}; фигурные скобки внутри ключа недопустимы
var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// TitleFallback - шаблон заголовка, если нет ни шаблона, ни свойств
const TitleFallback = "{title}"

// RenderTemplate заменяет {key} значениями свойств за один проход:
// подставленный текст повторно не разворачивается. Неизвестные ключи,
// массивы и объекты оставляют токен как есть.
func RenderTemplate(tpl string, props map[string]interface{}) string {
	if tpl == "" || !strings.Contains(tpl, "{") {
		return tpl
	}
	return placeholder.ReplaceAllStringFunc(tpl, func(token string) string {
		v, ok := props[token[1:len(token)-1]]
		if !ok {
			return token
		}
		s, ok := Stringify(v)
		if !ok {
			return token
		}
		return s
	})
}

// Stringify приводит скалярное значение к строке; обертки rendered
// раскрываются
func Stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case map[string]interface{}:
		if inner, ok := t[renderedKey]; ok {
			return Stringify(inner)
		}
	}
	return "", false
}

// Title строит заголовок feature. Пустой шаблон заменяется на {первый ключ},
// затем на {title}.
func Title(tpl string, props map[string]interface{}, order []string) string {
	candidates := make([]string, 0, 3)
	if strings.TrimSpace(tpl) != "" {
		candidates = append(candidates, tpl)
	}
	if keys := orderedKeys(props, order); len(keys) > 0 {
		candidates = append(candidates, "{"+keys[0]+"}")
	}
	candidates = append(candidates, TitleFallback)

	for _, c := range candidates {
		if title := strings.TrimSpace(RenderTemplate(c, props)); title != "" {
			return title
		}
	}
	return TitleFallback
}
