package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	gmlNamespace     = "http://www.opengis.net/gml/3.2"
	featureNamespace = "https://openkaarten.nl/features"
)

var xmlNameInvalid = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// xmlElementName делает из ключа свойства допустимое имя элемента
func xmlElementName(key string) string {
	name := xmlNameInvalid.ReplaceAllString(key, "_")
	if name == "" || !(name[0] == '_' || (name[0] >= 'A' && name[0] <= 'Z') || (name[0] >= 'a' && name[0] <= 'z')) {
		name = "_" + name
	}
	return name
}

type gmlWriter struct {
	enc *xml.Encoder
	err error
}

func (w *gmlWriter) start(name string, attrs ...xml.Attr) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (w *gmlWriter) end(name string) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
}

func (w *gmlWriter) text(name, value string) {
	w.start(name)
	if w.err == nil {
		w.err = w.enc.EncodeToken(xml.CharData(value))
	}
	w.end(name)
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func encodeGML(fc *geojson.FeatureCollection, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	w := &gmlWriter{enc: xml.NewEncoder(&buf)}
	w.enc.Indent("", "  ")

	w.start("gml:FeatureCollection",
		attr("xmlns:gml", gmlNamespace),
		attr("xmlns:ok", featureNamespace),
	)
	if opts.Name != "" {
		w.text("gml:name", opts.Name)
	}

	for i, f := range fc.Features {
		w.start("gml:featureMember")
		w.start("ok:Feature", attr("gml:id", fmt.Sprintf("f%d", i+1)))
		for _, k := range sortedKeys(f.Properties) {
			w.text("ok:"+xmlElementName(k), propertyText(f.Properties[k]))
		}
		if f.Geometry != nil {
			w.start("ok:geometry")
			w.geometry(f.Geometry, opts.SRS)
			w.end("ok:geometry")
		}
		w.end("ok:Feature")
		w.end("gml:featureMember")
	}

	w.end("gml:FeatureCollection")
	if w.err == nil {
		w.err = w.enc.Flush()
	}
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func (w *gmlWriter) geometry(g orb.Geometry, srs string) {
	var attrs []xml.Attr
	if srs != "" {
		attrs = append(attrs, attr("srsName", srs))
	}

	switch v := g.(type) {
	case orb.Point:
		w.start("gml:Point", attrs...)
		w.text("gml:pos", posList(v))
		w.end("gml:Point")
	case orb.LineString:
		w.start("gml:LineString", attrs...)
		w.text("gml:posList", posList(v...))
		w.end("gml:LineString")
	case orb.Ring:
		w.geometry(orb.Polygon{v}, srs)
	case orb.Bound:
		w.geometry(v.ToPolygon(), srs)
	case orb.Polygon:
		w.start("gml:Polygon", attrs...)
		for i, r := range v {
			boundary := "gml:interior"
			if i == 0 {
				boundary = "gml:exterior"
			}
			w.start(boundary)
			w.start("gml:LinearRing")
			w.text("gml:posList", posList(r...))
			w.end("gml:LinearRing")
			w.end(boundary)
		}
		w.end("gml:Polygon")
	case orb.MultiPoint:
		w.start("gml:MultiPoint", attrs...)
		for _, p := range v {
			w.start("gml:pointMember")
			w.geometry(p, "")
			w.end("gml:pointMember")
		}
		w.end("gml:MultiPoint")
	case orb.MultiLineString:
		w.start("gml:MultiCurve", attrs...)
		for _, ls := range v {
			w.start("gml:curveMember")
			w.geometry(ls, "")
			w.end("gml:curveMember")
		}
		w.end("gml:MultiCurve")
	case orb.MultiPolygon:
		w.start("gml:MultiSurface", attrs...)
		for _, p := range v {
			w.start("gml:surfaceMember")
			w.geometry(p, "")
			w.end("gml:surfaceMember")
		}
		w.end("gml:MultiSurface")
	case orb.Collection:
		w.start("gml:MultiGeometry", attrs...)
		for _, c := range v {
			w.start("gml:geometryMember")
			w.geometry(c, "")
			w.end("gml:geometryMember")
		}
		w.end("gml:MultiGeometry")
	default:
		if w.err == nil {
			w.err = fmt.Errorf("unsupported geometry %T for GML", g)
		}
	}
}

func posList(pts ...orb.Point) string {
	parts := make([]string, 0, len(pts)*2)
	for _, p := range pts {
		parts = append(parts, formatCoord(p[0]), formatCoord(p[1]))
	}
	return strings.Join(parts, " ")
}
