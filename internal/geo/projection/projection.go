package projection

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/openkaarten-service/internal/pkg/errors"
)

type Projection string

const (
	WGS84 Projection = "WGS84"
	RD    Projection = "RD"
)

// Parse принимает "WGS84" или "RD" в любом регистре; пустая строка - WGS84
func Parse(s string) (Projection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(WGS84):
		return WGS84, nil
	case string(RD):
		return RD, nil
	}
	return "", errors.ErrInvalidProjection.WithDetails(map[string]interface{}{
		"projection": s,
	})
}

// SRS - EPSG для вывода GML/KML
func (p Projection) SRS() string {
	if p == RD {
		return "EPSG:28992"
	}
	return "EPSG:4326"
}

// LooksLikeGrid - пара вне диапазона WGS84 считается координатами RD.
// Решение принимается для каждой пары, метаданные CRS не учитываются.
func LooksLikeGrid(p orb.Point) bool {
	return math.Abs(p[0]) > 90 || math.Abs(p[1]) > 180
}

func ensureWGS84(p orb.Point) orb.Point {
	if LooksLikeGrid(p) {
		return RDToWGS84(p)
	}
	return p
}

// ToWGS84 возвращает копию g, где пары RD переведены в WGS84
func ToWGS84(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), ensureWGS84)
}

func ToLocalGrid(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return project.Geometry(orb.Clone(g), WGS84ToRD)
}

// Apply переводит геометрию в проекцию вывода. Для WGS84 эвристика тоже
// применяется: случайные пары RD нормализуются.
func Apply(g orb.Geometry, to Projection) orb.Geometry {
	if to == RD {
		return ToLocalGrid(g)
	}
	return ToWGS84(g)
}

func ApplyFeature(f *geojson.Feature, to Projection) {
	f.Geometry = Apply(f.Geometry, to)
}

// ApplyCollection проецирует все features и пересчитывает bbox
func ApplyCollection(fc *geojson.FeatureCollection, to Projection) {
	for _, f := range fc.Features {
		ApplyFeature(f, to)
	}
	if b, ok := Bound(fc); ok {
		fc.BBox = geojson.NewBBox(b)
	} else {
		fc.BBox = nil
	}
}

// Bound - объединение границ всех features; ok=false, если геометрий нет
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b = f.Geometry.Bound()
			found = true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}
