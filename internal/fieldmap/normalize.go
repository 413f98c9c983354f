package fieldmap

// NormalizeProperties готовит свойства к хранению: обертки rendered
// раскрываются, булевы значения становятся "true" / "false".
func NormalizeProperties(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case map[string]interface{}:
		if inner, ok := t[renderedKey]; ok {
			return normalizeValue(inner)
		}
	}
	return v
}
