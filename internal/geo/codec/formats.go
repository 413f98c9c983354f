package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/openkaarten-service/internal/pkg/errors"
)

// EncodeOptions - метаданные для документных форматов (KML, GML, GPX)
type EncodeOptions struct {
	Name string
	// EPSG координат, например EPSG:4326
	SRS string
}

// Format - зарегистрированный формат вывода
type Format struct {
	Name       string
	MimeType   string
	Attachment bool
	// JSON-форматы отдаются как есть, без вложения
	JSON   bool
	encode func(fc *geojson.FeatureCollection, opts EncodeOptions) ([]byte, error)
}

var registry = map[string]Format{
	"geojson": {Name: "geojson", MimeType: "application/json", JSON: true, encode: encodeGeoJSON},
	"json":    {Name: "json", MimeType: "application/json", JSON: true, encode: encodeGeoJSON},
	"kml":     {Name: "kml", MimeType: "application/vnd.google-earth.kml+xml", Attachment: true, encode: encodeKML},
	"gml":     {Name: "gml", MimeType: "application/gml+xml", Attachment: true, encode: encodeGML},
	"xml":     {Name: "xml", MimeType: "application/xml", Attachment: true, encode: encodeGML},
	"gpx":     {Name: "gpx", MimeType: "application/gpx+xml", Attachment: true, encode: encodeGPX},
	"wkt":     {Name: "wkt", MimeType: "text/plain; charset=utf-8", Attachment: true, encode: encodeWKT},
	"wkb":     {Name: "wkb", MimeType: "application/octet-stream", Attachment: true, encode: encodeWKB},
}

// Lookup ищет формат без учета регистра
func Lookup(name string) (Format, bool) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

func Formats() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode сериализует коллекцию в формат name. Неизвестный формат -
// UNSUPPORTED_FORMAT со списком допустимых.
func Encode(fc *geojson.FeatureCollection, format string, opts EncodeOptions) ([]byte, Format, error) {
	f, ok := Lookup(format)
	if !ok {
		return nil, Format{}, errors.NewUnsupportedFormat(format, Formats())
	}
	if opts.SRS == "" {
		opts.SRS = "EPSG:4326"
	}
	body, err := f.encode(fc, opts)
	if err != nil {
		return nil, f, fmt.Errorf("encode %s: %w", f.Name, err)
	}
	return body, f, nil
}

// EncodeComponent сериализует один компонент; для geojson/json это
// объект {"type":"Feature",...}
func EncodeComponent(c Component, format string) ([]byte, error) {
	f, ok := Lookup(format)
	if !ok {
		return nil, errors.NewUnsupportedFormat(format, Formats())
	}
	if f.JSON {
		return json.Marshal(c.Feature())
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(c.Feature())
	body, _, err := Encode(fc, format, EncodeOptions{})
	return body, err
}

func encodeGeoJSON(fc *geojson.FeatureCollection, _ EncodeOptions) ([]byte, error) {
	return json.Marshal(fc)
}

func geometries(fc *geojson.FeatureCollection) orb.Geometry {
	var gs orb.Collection
	for _, f := range fc.Features {
		if f.Geometry != nil {
			gs = append(gs, f.Geometry)
		}
	}
	if len(gs) == 1 {
		return gs[0]
	}
	return gs
}

func encodeWKT(fc *geojson.FeatureCollection, _ EncodeOptions) ([]byte, error) {
	return wkt.Marshal(geometries(fc)), nil
}

func encodeWKB(fc *geojson.FeatureCollection, _ EncodeOptions) ([]byte, error) {
	return wkb.Marshal(geometries(fc))
}

// propertyText - значение свойства как текст для XML; объекты и массивы
// пишутся в JSON
func propertyText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func sortedKeys(props map[string]interface{}) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
