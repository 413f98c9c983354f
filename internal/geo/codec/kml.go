package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const kmlNamespace = "http://www.opengis.net/kml/2.2"

type kmlDocument struct {
	XMLName  xml.Name  `xml:"kml"`
	Xmlns    string    `xml:"xmlns,attr"`
	Document kmlFolder `xml:"Document"`
}

type kmlFolder struct {
	Name       string         `xml:"name,omitempty"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string           `xml:"name,omitempty"`
	Description  string           `xml:"description,omitempty"`
	ExtendedData *kmlExtendedData `xml:"ExtendedData,omitempty"`
	kmlGeometrySet
}

// ровно одно поле не nil
type kmlGeometrySet struct {
	Point         *kmlCoords        `xml:"Point,omitempty"`
	LineString    *kmlCoords        `xml:"LineString,omitempty"`
	Polygon       *kmlPolygonXML    `xml:"Polygon,omitempty"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry,omitempty"`
}

type kmlMultiGeometry struct {
	Points        []kmlCoords        `xml:"Point"`
	LineStrings   []kmlCoords        `xml:"LineString"`
	Polygons      []kmlPolygonXML    `xml:"Polygon"`
	MultiGeometry []kmlMultiGeometry `xml:"MultiGeometry"`
}

type kmlCoords struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygonXML struct {
	Outer kmlBoundary   `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs"`
}

type kmlBoundary struct {
	LinearRing kmlCoords `xml:"LinearRing"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

func encodeKML(fc *geojson.FeatureCollection, opts EncodeOptions) ([]byte, error) {
	doc := kmlDocument{
		Xmlns:    kmlNamespace,
		Document: kmlFolder{Name: opts.Name},
	}

	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		pm := kmlPlacemark{
			Name:        propertyText(f.Properties["title"]),
			Description: propertyText(f.Properties["description"]),
		}
		if err := setKMLGeometry(&pm.kmlGeometrySet, f.Geometry); err != nil {
			return nil, err
		}

		var data []kmlData
		for _, k := range sortedKeys(f.Properties) {
			if k == "title" || k == "description" {
				continue
			}
			data = append(data, kmlData{Name: k, Value: propertyText(f.Properties[k])})
		}
		if len(data) > 0 {
			pm.ExtendedData = &kmlExtendedData{Data: data}
		}
		doc.Document.Placemarks = append(doc.Document.Placemarks, pm)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setKMLGeometry(set *kmlGeometrySet, g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Point:
		set.Point = &kmlCoords{Coordinates: kmlCoordString(v)}
	case orb.LineString:
		set.LineString = &kmlCoords{Coordinates: kmlCoordString(v...)}
	case orb.Polygon:
		p := kmlPolygonElement(v)
		set.Polygon = &p
	case orb.Ring:
		p := kmlPolygonElement(orb.Polygon{v})
		set.Polygon = &p
	case orb.Bound:
		p := kmlPolygonElement(v.ToPolygon())
		set.Polygon = &p
	default:
		mg, err := kmlMulti(g)
		if err != nil {
			return err
		}
		set.MultiGeometry = mg
	}
	return nil
}

func kmlMulti(g orb.Geometry) (*kmlMultiGeometry, error) {
	mg := &kmlMultiGeometry{}
	switch v := g.(type) {
	case orb.MultiPoint:
		for _, p := range v {
			mg.Points = append(mg.Points, kmlCoords{Coordinates: kmlCoordString(p)})
		}
	case orb.MultiLineString:
		for _, ls := range v {
			mg.LineStrings = append(mg.LineStrings, kmlCoords{Coordinates: kmlCoordString(ls...)})
		}
	case orb.MultiPolygon:
		for _, p := range v {
			mg.Polygons = append(mg.Polygons, kmlPolygonElement(p))
		}
	case orb.Collection:
		for _, child := range v {
			var set kmlGeometrySet
			if err := setKMLGeometry(&set, child); err != nil {
				return nil, err
			}
			switch {
			case set.Point != nil:
				mg.Points = append(mg.Points, *set.Point)
			case set.LineString != nil:
				mg.LineStrings = append(mg.LineStrings, *set.LineString)
			case set.Polygon != nil:
				mg.Polygons = append(mg.Polygons, *set.Polygon)
			case set.MultiGeometry != nil:
				mg.MultiGeometry = append(mg.MultiGeometry, *set.MultiGeometry)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported geometry %T for KML", g)
	}
	return mg, nil
}

func kmlPolygonElement(p orb.Polygon) kmlPolygonXML {
	out := kmlPolygonXML{}
	for i, r := range p {
		b := kmlBoundary{LinearRing: kmlCoords{Coordinates: kmlCoordString(r...)}}
		if i == 0 {
			out.Outer = b
			continue
		}
		out.Inner = append(out.Inner, b)
	}
	return out
}

func kmlCoordString(pts ...orb.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = formatCoord(p[0]) + "," + formatCoord(p[1]) + ",0"
	}
	return strings.Join(parts, " ")
}
