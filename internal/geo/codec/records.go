package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

var (
	latKeys = []string{"lat", "latitude"}
	lonKeys = []string{"lon", "lng", "long", "longitude"}
	// вложенные объекты с lat/lon
	locationKeys = []string{"location", "position", "coords"}
)

// decodeRecords разбирает обычный JSON: массив записей или одну запись.
// Геометрия берется из "geometry" (GeoJSON или WKT), "coordinates" или
// lat/lon. Записи без геометрии пропускаются.
func decodeRecords(data []byte) (*Collection, error) {
	var items []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("malformed JSON array: %w", err)
		}
	} else {
		items = []json.RawMessage{data}
	}

	coll := &Collection{}
	for i, item := range items {
		var rec map[string]interface{}
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("record %d is not an object", i)
		}

		g, used, err := recordGeometry(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if g == nil {
			continue
		}

		keys, _ := objectKeys(item)
		comp := Component{Geometry: g, Properties: make(map[string]interface{}, len(rec))}
		for _, k := range keys {
			if used[k] {
				continue
			}
			comp.Properties[k] = rec[k]
			comp.Keys = append(comp.Keys, k)
		}
		coll.Components = append(coll.Components, comp)
	}

	if len(coll.Components) == 0 {
		return nil, fmt.Errorf("no geometry found in JSON records")
	}
	return coll, nil
}

func recordGeometry(rec map[string]interface{}) (orb.Geometry, map[string]bool, error) {
	if v, ok := rec["geometry"]; ok && v != nil {
		g, err := anyGeometry(v)
		return g, map[string]bool{"geometry": true}, err
	}

	if v, ok := rec["coordinates"]; ok {
		g, err := coordsGeometry(v)
		return g, map[string]bool{"coordinates": true}, err
	}

	if p, used, ok := latLon(rec); ok {
		return p, used, nil
	}

	for _, key := range locationKeys {
		nested, ok := rec[key].(map[string]interface{})
		if !ok {
			continue
		}
		if p, _, ok := latLon(nested); ok {
			return p, map[string]bool{key: true}, nil
		}
		if c, ok := nested["coordinates"]; ok {
			g, err := coordsGeometry(c)
			return g, map[string]bool{key: true}, err
		}
	}

	return nil, nil, nil
}

func anyGeometry(v interface{}) (orb.Geometry, error) {
	switch t := v.(type) {
	case string:
		return wkt.Unmarshal(t)
	case map[string]interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		g, err := geojson.UnmarshalGeometry(b)
		if err != nil {
			return nil, err
		}
		return g.Geometry(), nil
	}
	return nil, fmt.Errorf("unsupported geometry value of type %T", v)
}

func latLon(rec map[string]interface{}) (orb.Point, map[string]bool, bool) {
	latKey, lat, ok := firstNumber(rec, latKeys)
	if !ok {
		return orb.Point{}, nil, false
	}
	lonKey, lon, ok := firstNumber(rec, lonKeys)
	if !ok {
		return orb.Point{}, nil, false
	}
	return orb.Point{lon, lat}, map[string]bool{latKey: true, lonKey: true}, true
}

func firstNumber(rec map[string]interface{}, keys []string) (string, float64, bool) {
	for _, k := range keys {
		for rk, v := range rec {
			if !strings.EqualFold(rk, k) {
				continue
			}
			if f, ok := toFloat(v); ok {
				return rk, f, true
			}
		}
	}
	return "", 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(t, ",", ".", 1)), 64)
		return f, err == nil
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func arrayDepth(v interface{}) int {
	arr, ok := v.([]interface{})
	if !ok || len(arr) == 0 {
		return 0
	}
	return 1 + arrayDepth(arr[0])
}

// coordsGeometry определяет тип геометрии по глубине вложенности массива
func coordsGeometry(v interface{}) (orb.Geometry, error) {
	switch arrayDepth(v) {
	case 1:
		return toPoint(v)
	case 2:
		return toLineString(v)
	case 3:
		return toPolygon(v)
	case 4:
		arr := v.([]interface{})
		mp := make(orb.MultiPolygon, 0, len(arr))
		for _, item := range arr {
			p, err := toPolygon(item)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unsupported coordinates shape")
}

func toPoint(v interface{}) (orb.Point, error) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) < 2 {
		return orb.Point{}, fmt.Errorf("coordinate pair expected")
	}
	x, okX := toFloat(arr[0])
	y, okY := toFloat(arr[1])
	if !okX || !okY {
		return orb.Point{}, fmt.Errorf("non-numeric coordinate")
	}
	return orb.Point{x, y}, nil
}

func toLineString(v interface{}) (orb.LineString, error) {
	arr, _ := v.([]interface{})
	ls := make(orb.LineString, 0, len(arr))
	for _, item := range arr {
		p, err := toPoint(item)
		if err != nil {
			return nil, err
		}
		ls = append(ls, p)
	}
	return ls, nil
}

func toPolygon(v interface{}) (orb.Polygon, error) {
	arr, _ := v.([]interface{})
	poly := make(orb.Polygon, 0, len(arr))
	for _, item := range arr {
		ls, err := toLineString(item)
		if err != nil {
			return nil, err
		}
		poly = append(poly, orb.Ring(ls))
	}
	return poly, nil
}

func sortStrings(s []string) {
	sort.Strings(s)
}
