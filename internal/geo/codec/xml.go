package codec

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// node - дерево XML-элементов
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

func (n *node) local() string { return n.XMLName.Local }

func (n *node) is(names ...string) bool {
	for _, name := range names {
		if strings.EqualFold(n.XMLName.Local, name) {
			return true
		}
	}
	return false
}

func (n *node) text() string { return strings.TrimSpace(n.Text) }

func (n *node) leaf() bool { return len(n.Nodes) == 0 }

func (n *node) attr(names ...string) (string, bool) {
	for _, a := range n.Attrs {
		for _, name := range names {
			if strings.EqualFold(a.Name.Local, name) {
				return strings.TrimSpace(a.Value), true
			}
		}
	}
	return "", false
}

func (n *node) child(names ...string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].is(names...) {
			return &n.Nodes[i]
		}
	}
	return nil
}

func (n *node) children(names ...string) []*node {
	var out []*node
	for i := range n.Nodes {
		if n.Nodes[i].is(names...) {
			out = append(out, &n.Nodes[i])
		}
	}
	return out
}

// findAll возвращает потомков с одним из имен names, не заходя внутрь
// найденных
func (n *node) findAll(names ...string) []*node {
	var out []*node
	for i := range n.Nodes {
		c := &n.Nodes[i]
		if c.is(names...) {
			out = append(out, c)
			continue
		}
		out = append(out, c.findAll(names...)...)
	}
	return out
}

func (n *node) walk(fn func(*node) bool) bool {
	if fn(n) {
		return true
	}
	for i := range n.Nodes {
		if n.Nodes[i].walk(fn) {
			return true
		}
	}
	return false
}

func decodeXML(data []byte) (*Collection, error) {
	var root node
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("malformed XML: %w", err)
	}

	switch {
	case root.is("kml"):
		return decodeKML(&root)
	case isGML(&root):
		return decodeGML(&root)
	default:
		return decodeGenericXML(&root)
	}
}

// --- KML ---

func decodeKML(root *node) (*Collection, error) {
	coll := &Collection{}
	for _, pm := range root.findAll("Placemark") {
		g, err := parseKMLGeometry(pm)
		if err != nil {
			return nil, err
		}
		if g == nil {
			continue
		}

		comp := Component{Geometry: g, Properties: map[string]interface{}{}}
		set := func(k, v string) {
			if _, ok := comp.Properties[k]; !ok {
				comp.Keys = append(comp.Keys, k)
			}
			comp.Properties[k] = v
		}

		if n := pm.child("name"); n != nil {
			set("name", n.text())
		}
		if n := pm.child("description"); n != nil {
			set("description", n.text())
		}
		if ext := pm.child("ExtendedData"); ext != nil {
			for _, d := range ext.findAll("Data", "SimpleData") {
				name, ok := d.attr("name")
				if !ok {
					continue
				}
				if v := d.child("value"); v != nil {
					set(name, v.text())
				} else {
					set(name, d.text())
				}
			}
		}
		coll.Components = append(coll.Components, comp)
	}

	if len(coll.Components) == 0 {
		return nil, fmt.Errorf("KML document contains no placemarks with geometry")
	}
	return coll, nil
}

func parseKMLGeometry(n *node) (orb.Geometry, error) {
	for i := range n.Nodes {
		c := &n.Nodes[i]
		switch {
		case c.is("Point"):
			pts, err := parseKMLCoords(c)
			if err != nil {
				return nil, err
			}
			if len(pts) == 0 {
				return nil, fmt.Errorf("KML Point without coordinates")
			}
			return pts[0], nil
		case c.is("LineString"):
			pts, err := parseKMLCoords(c)
			return orb.LineString(pts), err
		case c.is("LinearRing"):
			pts, err := parseKMLCoords(c)
			return orb.Polygon{orb.Ring(pts)}, err
		case c.is("Polygon"):
			return parseKMLPolygon(c)
		case c.is("MultiGeometry"):
			var parts []orb.Geometry
			for j := range c.Nodes {
				wrapper := node{Nodes: []node{c.Nodes[j]}}
				g, err := parseKMLGeometry(&wrapper)
				if err != nil {
					return nil, err
				}
				if g != nil {
					parts = append(parts, g)
				}
			}
			return merge(parts), nil
		}
	}
	return nil, nil
}

func parseKMLPolygon(n *node) (orb.Polygon, error) {
	var poly orb.Polygon
	for _, b := range n.children("outerBoundaryIs", "innerBoundaryIs") {
		ring := b.child("LinearRing")
		if ring == nil {
			continue
		}
		pts, err := parseKMLCoords(ring)
		if err != nil {
			return nil, err
		}
		if b.is("outerBoundaryIs") {
			poly = append(orb.Polygon{orb.Ring(pts)}, poly...)
		} else {
			poly = append(poly, orb.Ring(pts))
		}
	}
	if len(poly) == 0 {
		return nil, fmt.Errorf("KML Polygon without boundary")
	}
	return poly, nil
}

func parseKMLCoords(n *node) ([]orb.Point, error) {
	c := n.child("coordinates")
	if c == nil {
		return nil, nil
	}
	var pts []orb.Point
	for _, tuple := range strings.Fields(c.text()) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid KML coordinate %q", tuple)
		}
		x, errX := strconv.ParseFloat(parts[0], 64)
		y, errY := strconv.ParseFloat(parts[1], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("invalid KML coordinate %q", tuple)
		}
		pts = append(pts, orb.Point{x, y})
	}
	return pts, nil
}

// merge собирает однородные части в Multi-геометрию
func merge(parts []orb.Geometry) orb.Geometry {
	if len(parts) == 0 {
		return nil
	}
	if len(parts) == 1 {
		return parts[0]
	}

	var (
		mp  orb.MultiPoint
		mls orb.MultiLineString
		mpg orb.MultiPolygon
	)
	for _, p := range parts {
		switch g := p.(type) {
		case orb.Point:
			mp = append(mp, g)
		case orb.LineString:
			mls = append(mls, g)
		case orb.Polygon:
			mpg = append(mpg, g)
		}
	}
	switch len(parts) {
	case len(mp):
		return mp
	case len(mls):
		return mls
	case len(mpg):
		return mpg
	}
	return orb.Collection(parts)
}

// --- GML ---

var gmlGeometryNames = []string{
	"Point", "LineString", "LinearRing", "Polygon", "Curve", "Surface",
	"MultiPoint", "MultiLineString", "MultiCurve", "MultiPolygon", "MultiSurface", "MultiGeometry",
}

func isGML(root *node) bool {
	return root.walk(func(n *node) bool {
		return strings.Contains(n.XMLName.Space, "opengis.net/gml") ||
			n.XMLName.Space == "gml" ||
			n.is("featureMember", "featureMembers")
	})
}

func decodeGML(root *node) (*Collection, error) {
	if root.is(gmlGeometryNames...) {
		g, err := gmlGeometry(root, swapAxes(root, false))
		if err != nil {
			return nil, err
		}
		return fromGeometry(g), nil
	}

	var features []*node
	for _, m := range root.findAll("featureMember", "member", "featureMembers") {
		if m.is("featureMembers") {
			for i := range m.Nodes {
				features = append(features, &m.Nodes[i])
			}
			continue
		}
		for i := range m.Nodes {
			features = append(features, &m.Nodes[i])
		}
	}

	coll := &Collection{}
	for _, f := range features {
		comp := Component{Properties: map[string]interface{}{}}
		for i := range f.Nodes {
			c := &f.Nodes[i]
			if geomNode := findGeometry(c); geomNode != nil {
				if comp.Geometry != nil {
					continue
				}
				g, err := gmlGeometry(geomNode, swapAxes(geomNode, false))
				if err != nil {
					return nil, err
				}
				comp.Geometry = g
				continue
			}
			if c.leaf() {
				comp.Properties[c.local()] = c.text()
				comp.Keys = append(comp.Keys, c.local())
			}
		}
		if comp.Geometry != nil {
			coll.Components = append(coll.Components, comp)
		}
	}

	if len(coll.Components) == 0 {
		return nil, fmt.Errorf("GML document contains no features with geometry")
	}
	return coll, nil
}

func findGeometry(n *node) *node {
	var found *node
	n.walk(func(c *node) bool {
		if c.is(gmlGeometryNames...) {
			found = c
			return true
		}
		return false
	})
	return found
}

// swapAxes: EPSG:4326 в форме URN/URI задает порядок осей lat, lon
func swapAxes(n *node, inherited bool) bool {
	srs, ok := n.attr("srsName")
	if !ok {
		return inherited
	}
	srs = strings.ToLower(srs)
	return strings.Contains(srs, "4326") &&
		(strings.HasPrefix(srs, "urn:") || strings.Contains(srs, "/def/crs/"))
}

func gmlGeometry(n *node, swap bool) (orb.Geometry, error) {
	swap = swapAxes(n, swap)

	switch {
	case n.is("Point"):
		pts, err := gmlPoints(n, swap)
		if err != nil {
			return nil, err
		}
		if len(pts) == 0 {
			return nil, fmt.Errorf("GML Point without coordinates")
		}
		return pts[0], nil
	case n.is("LineString", "Curve"):
		var pts []orb.Point
		var err error
		if seg := findGeometrySegment(n); seg != nil {
			pts, err = gmlPoints(seg, swap)
		} else {
			pts, err = gmlPoints(n, swap)
		}
		return orb.LineString(pts), err
	case n.is("LinearRing"):
		pts, err := gmlPoints(n, swap)
		return orb.Polygon{orb.Ring(pts)}, err
	case n.is("Polygon", "Surface"):
		return gmlPolygon(n, swap)
	}

	// Multi*: в каждом member одна геометрия
	var parts []orb.Geometry
	for i := range n.Nodes {
		m := &n.Nodes[i]
		if m.is(gmlGeometryNames...) {
			g, err := gmlGeometry(m, swap)
			if err != nil {
				return nil, err
			}
			parts = append(parts, g)
			continue
		}
		for j := range m.Nodes {
			if !m.Nodes[j].is(gmlGeometryNames...) {
				continue
			}
			g, err := gmlGeometry(&m.Nodes[j], swap)
			if err != nil {
				return nil, err
			}
			if g != nil {
				parts = append(parts, g)
			}
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty GML %s", n.local())
	}
	g := merge(parts)
	if len(parts) == 1 {
		switch p := g.(type) {
		case orb.Point:
			return orb.MultiPoint{p}, nil
		case orb.LineString:
			return orb.MultiLineString{p}, nil
		case orb.Polygon:
			return orb.MultiPolygon{p}, nil
		}
	}
	return g, nil
}

func findGeometrySegment(n *node) *node {
	var found *node
	n.walk(func(c *node) bool {
		if c.is("LineStringSegment") {
			found = c
			return true
		}
		return false
	})
	return found
}

func gmlPolygon(n *node, swap bool) (orb.Polygon, error) {
	var poly orb.Polygon
	for _, b := range n.findAll("exterior", "outerBoundaryIs", "interior", "innerBoundaryIs") {
		ring := b.child("LinearRing")
		if ring == nil {
			continue
		}
		pts, err := gmlPoints(ring, swap)
		if err != nil {
			return nil, err
		}
		if b.is("exterior", "outerBoundaryIs") {
			poly = append(orb.Polygon{orb.Ring(pts)}, poly...)
		} else {
			poly = append(poly, orb.Ring(pts))
		}
	}
	if len(poly) == 0 {
		return nil, fmt.Errorf("GML Polygon without exterior")
	}
	return poly, nil
}

// gmlPoints читает posList, pos или coordinates
func gmlPoints(n *node, swap bool) ([]orb.Point, error) {
	var pts []orb.Point
	if pl := n.child("posList"); pl != nil {
		dim := 2
		if d, ok := pl.attr("srsDimension"); ok {
			if v, err := strconv.Atoi(d); err == nil && v >= 2 {
				dim = v
			}
		}
		vals, err := parseFloats(strings.Fields(pl.text()))
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(vals); i += dim {
			pts = append(pts, axis(vals[i], vals[i+1], swap))
		}
		return pts, nil
	}

	if poss := n.children("pos"); len(poss) > 0 {
		for _, p := range poss {
			vals, err := parseFloats(strings.Fields(p.text()))
			if err != nil {
				return nil, err
			}
			if len(vals) < 2 {
				return nil, fmt.Errorf("invalid GML pos %q", p.text())
			}
			pts = append(pts, axis(vals[0], vals[1], swap))
		}
		return pts, nil
	}

	if c := n.child("coordinates"); c != nil {
		for _, tuple := range strings.Fields(c.text()) {
			vals, err := parseFloats(strings.Split(tuple, ","))
			if err != nil {
				return nil, err
			}
			if len(vals) < 2 {
				return nil, fmt.Errorf("invalid GML coordinate %q", tuple)
			}
			pts = append(pts, axis(vals[0], vals[1], swap))
		}
		return pts, nil
	}

	return nil, nil
}

func axis(a, b float64, swap bool) orb.Point {
	if swap {
		return orb.Point{b, a}
	}
	return orb.Point{a, b}
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}

// --- произвольный XML ---

func decodeGenericXML(root *node) (*Collection, error) {
	var records []*node
	var collect func(n *node)
	collect = func(n *node) {
		if isRecord(n) {
			records = append(records, n)
			return
		}
		for i := range n.Nodes {
			collect(&n.Nodes[i])
		}
	}
	collect(root)

	coll := &Collection{}
	for _, r := range records {
		p, ok := xmlLatLon(r)
		if !ok {
			continue
		}
		comp := Component{Geometry: p, Properties: map[string]interface{}{}}
		for _, a := range r.Attrs {
			if isCoordName(a.Name.Local) || a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
				continue
			}
			comp.Properties[a.Name.Local] = a.Value
			comp.Keys = append(comp.Keys, a.Name.Local)
		}
		for i := range r.Nodes {
			c := &r.Nodes[i]
			if !c.leaf() || isCoordName(c.local()) {
				continue
			}
			if _, dup := comp.Properties[c.local()]; !dup {
				comp.Keys = append(comp.Keys, c.local())
			}
			comp.Properties[c.local()] = c.text()
		}
		coll.Components = append(coll.Components, comp)
	}

	if len(coll.Components) == 0 {
		return nil, fmt.Errorf("no recognizable geometry in XML document <%s>", root.local())
	}
	return coll, nil
}

func isCoordName(s string) bool {
	for _, k := range latKeys {
		if strings.EqualFold(s, k) {
			return true
		}
	}
	for _, k := range lonKeys {
		if strings.EqualFold(s, k) {
			return true
		}
	}
	return false
}

func isRecord(n *node) bool {
	_, ok := xmlLatLon(n)
	return ok
}

func xmlLatLon(n *node) (orb.Point, bool) {
	lookup := func(keys []string) (float64, bool) {
		if v, ok := n.attr(keys...); ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
		if c := n.child(keys...); c != nil && c.leaf() {
			return toFloat(c.text())
		}
		return 0, false
	}

	lat, ok := lookup(latKeys)
	if !ok {
		return orb.Point{}, false
	}
	lon, ok := lookup(lonKeys)
	if !ok {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}
