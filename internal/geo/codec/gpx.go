package codec

import (
	"bytes"
	"encoding/xml"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type gpxDocument struct {
	XMLName   xml.Name   `xml:"gpx"`
	Version   string     `xml:"version,attr"`
	Creator   string     `xml:"creator,attr"`
	Xmlns     string     `xml:"xmlns,attr"`
	Metadata  *gpxMeta   `xml:"metadata,omitempty"`
	Waypoints []gpxPoint `xml:"wpt"`
	Tracks    []gpxTrack `xml:"trk"`
}

type gpxMeta struct {
	Name string `xml:"name"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Name string  `xml:"name,omitempty"`
	Desc string  `xml:"desc,omitempty"`
}

type gpxTrack struct {
	Name     string       `xml:"name,omitempty"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

// encodeGPX: точки - waypoints, линии - треки, полигоны - треки колец
func encodeGPX(fc *geojson.FeatureCollection, opts EncodeOptions) ([]byte, error) {
	doc := gpxDocument{
		Version: "1.1",
		Creator: "openkaarten-service",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
	}
	if opts.Name != "" {
		doc.Metadata = &gpxMeta{Name: opts.Name}
	}

	for _, f := range fc.Features {
		name := propertyText(f.Properties["title"])
		desc := propertyText(f.Properties["description"])
		var segments []gpxSegment

		var visit func(g orb.Geometry)
		visit = func(g orb.Geometry) {
			switch v := g.(type) {
			case orb.Point:
				doc.Waypoints = append(doc.Waypoints, gpxPoint{Lat: v.Lat(), Lon: v.Lon(), Name: name, Desc: desc})
			case orb.MultiPoint:
				for _, p := range v {
					visit(p)
				}
			case orb.LineString:
				segments = append(segments, gpxSegmentOf(v))
			case orb.Ring:
				segments = append(segments, gpxSegmentOf(orb.LineString(v)))
			case orb.MultiLineString:
				for _, ls := range v {
					visit(ls)
				}
			case orb.Polygon:
				for _, r := range v {
					visit(r)
				}
			case orb.MultiPolygon:
				for _, p := range v {
					visit(p)
				}
			case orb.Collection:
				for _, c := range v {
					visit(c)
				}
			}
		}
		visit(f.Geometry)

		if len(segments) > 0 {
			doc.Tracks = append(doc.Tracks, gpxTrack{Name: name, Segments: segments})
		}
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

func gpxSegmentOf(ls orb.LineString) gpxSegment {
	seg := gpxSegment{Points: make([]gpxPoint, 0, len(ls))}
	for _, p := range ls {
		seg.Points = append(seg.Points, gpxPoint{Lat: p.Lat(), Lon: p.Lon()})
	}
	return seg
}
