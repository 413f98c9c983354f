package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/openkaarten-service/internal/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Component - одна декодированная геометрия со свойствами. Keys хранит
// ключи свойств в порядке источника.
type Component struct {
	Geometry   orb.Geometry
	Properties map[string]interface{}
	Keys       []string
}

// Feature - компонент как GeoJSON feature
func (c Component) Feature() *geojson.Feature {
	f := geojson.NewFeature(c.Geometry)
	for k, v := range c.Properties {
		f.Properties[k] = v
	}
	return f
}

// OrderedKeys возвращает Keys и затем ключи свойств, которых нет в Keys
func (c Component) OrderedKeys() []string {
	seen := make(map[string]bool, len(c.Keys))
	out := make([]string, 0, len(c.Properties))
	for _, k := range c.Keys {
		if _, ok := c.Properties[k]; ok && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0)
	for k := range c.Properties {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sortStrings(rest)
	return append(out, rest...)
}

// Collection - результат Decode
type Collection struct {
	Components []Component
}

func (c *Collection) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, comp := range c.Components {
		fc.Append(comp.Feature())
	}
	return fc
}

// Decode определяет формат по содержимому: GeoJSON, JSON-записи, KML, GML,
// произвольный XML или WKT. Любая ошибка - INVALID_GEOMETRY, частичного
// результата нет.
func Decode(raw []byte) (*Collection, error) {
	data := bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))
	if len(data) == 0 {
		return nil, errors.NewInvalidGeometry("empty input")
	}

	var (
		coll *Collection
		err  error
	)
	switch data[0] {
	case '{', '[':
		coll, err = decodeJSON(data)
	case '<':
		coll, err = decodeXML(data)
	default:
		coll, err = decodeWKT(data)
	}
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInvalidGeometry(err.Error())
	}
	return coll, nil
}

func decodeJSON(data []byte) (*Collection, error) {
	if data[0] == '[' {
		return decodeRecords(data)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		return decodeFeatureCollection(data)
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("malformed GeoJSON feature: %w", err)
		}
		keys, _ := objectKeys(featureProperties(data))
		return &Collection{Components: []Component{fromFeature(f, keys)}}, nil
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("malformed GeoJSON geometry: %w", err)
		}
		return fromGeometry(g.Geometry()), nil
	case "":
		return decodeRecords(data)
	}
	return nil, fmt.Errorf("unsupported GeoJSON type %q", head.Type)
}

func decodeFeatureCollection(data []byte) (*Collection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("malformed GeoJSON feature collection: %w", err)
	}

	var raw struct {
		Features []struct {
			Properties json.RawMessage `json:"properties"`
		} `json:"features"`
	}
	_ = json.Unmarshal(data, &raw)

	coll := &Collection{Components: make([]Component, 0, len(fc.Features))}
	for i, f := range fc.Features {
		var keys []string
		if i < len(raw.Features) {
			keys, _ = objectKeys(raw.Features[i].Properties)
		}
		coll.Components = append(coll.Components, fromFeature(f, keys))
	}
	return coll, nil
}

func featureProperties(data []byte) json.RawMessage {
	var raw struct {
		Properties json.RawMessage `json:"properties"`
	}
	_ = json.Unmarshal(data, &raw)
	return raw.Properties
}

func fromFeature(f *geojson.Feature, keys []string) Component {
	props := make(map[string]interface{}, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	return Component{Geometry: f.Geometry, Properties: props, Keys: keys}
}

// fromGeometry раскладывает голую GeometryCollection на элементы
func fromGeometry(g orb.Geometry) *Collection {
	if c, ok := g.(orb.Collection); ok {
		coll := &Collection{Components: make([]Component, 0, len(c))}
		for _, child := range c {
			coll.Components = append(coll.Components, Component{
				Geometry:   child,
				Properties: map[string]interface{}{},
			})
		}
		return coll
	}
	return &Collection{Components: []Component{{
		Geometry:   g,
		Properties: map[string]interface{}{},
	}}}
}

func decodeWKT(data []byte) (*Collection, error) {
	g, err := wkt.Unmarshal(string(data))
	if err != nil {
		return nil, fmt.Errorf("unrecognized input: %w", err)
	}
	return fromGeometry(g), nil
}

// objectKeys - ключи JSON-объекта в порядке документа
func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys, err
		}
		key, _ := tok.(string)
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys, err
		}
	}
	return keys, nil
}
