package utils

import (
	"math"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
)

// ValidateCoordinates проверяет валидность координат
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// WithinWGS84 проверяет, что каждая пара координат геометрии лежит в границах WGS84.
// Координаты трактуются как [lon, lat].
func WithinWGS84(g orb.Geometry) bool {
	ok := true
	EachPoint(g, func(p orb.Point) {
		if !ValidateCoordinates(p.Lat(), p.Lon()) || math.IsNaN(p[0]) || math.IsNaN(p[1]) {
			ok = false
		}
	})
	return ok
}

// EachPoint обходит все точки геометрии в порядке их следования
func EachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch v := g.(type) {
	case nil:
	case orb.Point:
		fn(v)
	case orb.MultiPoint:
		for _, p := range v {
			fn(p)
		}
	case orb.LineString:
		for _, p := range v {
			fn(p)
		}
	case orb.Ring:
		for _, p := range v {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range v {
			EachPoint(ls, fn)
		}
	case orb.Polygon:
		for _, r := range v {
			EachPoint(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			EachPoint(p, fn)
		}
	case orb.Collection:
		for _, c := range v {
			EachPoint(c, fn)
		}
	case orb.Bound:
		EachPoint(v.ToPolygon(), fn)
	}
}

// CountPoints возвращает количество координатных пар в геометрии
func CountPoints(g orb.Geometry) int {
	n := 0
	EachPoint(g, func(orb.Point) { n++ })
	return n
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify строит slug из заголовка: латиница, цифры и дефисы
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
