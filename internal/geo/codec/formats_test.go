package codec_test

import (
	stderrors "errors"
	"net/http"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkaarten-service/internal/geo/codec"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/pkg/utils"
)

func sampleCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	p := geojson.NewFeature(orb.Point{5.12, 52.09})
	p.Properties["title"] = "Stadhuis"
	p.Properties["street"] = "Korte Minrebroederstraat"
	fc.Append(p)

	ls := geojson.NewFeature(orb.LineString{{5.1, 52.0}, {5.2, 52.1}, {5.3, 52.15}})
	ls.Properties["title"] = "Route"
	fc.Append(ls)

	poly := geojson.NewFeature(orb.Polygon{{{5.0, 52.0}, {5.1, 52.0}, {5.1, 52.1}, {5.0, 52.1}, {5.0, 52.0}}})
	poly.Properties["title"] = "Park"
	poly.Properties["size"] = 12.5
	fc.Append(poly)

	return fc
}

func TestEncode_KMLKeepsCoordinates(t *testing.T) {
	fc := sampleCollection()

	body, format, err := codec.Encode(fc, "kml", codec.EncodeOptions{Name: "Gemeentelijke locaties"})
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.google-earth.kml+xml", format.MimeType)
	assert.True(t, format.Attachment)
	assert.Contains(t, string(body), "<name>Gemeentelijke locaties</name>")
	assert.Contains(t, string(body), "<coordinates>5.12,52.09,0</coordinates>")

	decoded, err := codec.Decode(body)
	require.NoError(t, err)
	require.Len(t, decoded.Components, len(fc.Features))

	for i, f := range fc.Features {
		assert.Equal(t, utils.CountPoints(f.Geometry), utils.CountPoints(decoded.Components[i].Geometry), "feature %d", i)
		assert.Equal(t, f.Properties["title"], decoded.Components[i].Properties["name"])
	}
	assert.Equal(t, "Korte Minrebroederstraat", decoded.Components[0].Properties["street"])
	assert.Equal(t, "12.5", decoded.Components[2].Properties["size"])
}

func TestEncode_GMLRoundTrip(t *testing.T) {
	fc := sampleCollection()

	body, _, err := codec.Encode(fc, "gml", codec.EncodeOptions{})
	require.NoError(t, err)
	assert.Contains(t, string(body), `srsName="EPSG:4326"`)

	decoded, err := codec.Decode(body)
	require.NoError(t, err)
	require.Len(t, decoded.Components, 3)
	assert.Equal(t, orb.Point{5.12, 52.09}, decoded.Components[0].Geometry)
	assert.Equal(t, fc.Features[1].Geometry, decoded.Components[1].Geometry)
	assert.Equal(t, fc.Features[2].Geometry, decoded.Components[2].Geometry)
	assert.Equal(t, "Park", decoded.Components[2].Properties["title"])
}

func TestEncode_GPX(t *testing.T) {
	body, format, err := codec.Encode(sampleCollection(), "GPX", codec.EncodeOptions{Name: "Routes"})
	require.NoError(t, err)
	assert.Equal(t, "gpx", format.Name)

	out := string(body)
	assert.Contains(t, out, `<wpt lat="52.09" lon="5.12">`)
	assert.Equal(t, 2, strings.Count(out, "<trk>"))
	assert.Contains(t, out, "<name>Routes</name>")
}

func TestEncode_WKTAndWKB(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{5.12, 52.09}))

	body, _, err := codec.Encode(fc, "wkt", codec.EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "POINT(5.12 52.09)", string(body))

	body, format, err := codec.Encode(fc, "wkb", codec.EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", format.MimeType)
	g, err := wkb.Unmarshal(body)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{5.12, 52.09}, g)
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	_, _, err := codec.Encode(sampleCollection(), "shapefile", codec.EncodeOptions{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnsupportedFormat))

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
	assert.Equal(t, codec.Formats(), appErr.Details["valid_formats"])
	for _, name := range codec.Formats() {
		assert.Contains(t, appErr.Message, name)
	}
}

func TestLookup(t *testing.T) {
	f, ok := codec.Lookup(" GeoJSON ")
	require.True(t, ok)
	assert.True(t, f.JSON)

	_, ok = codec.Lookup("csv")
	assert.False(t, ok)

	assert.Equal(t, []string{"geojson", "gml", "gpx", "json", "kml", "wkb", "wkt", "xml"}, codec.Formats())
}

func TestDecode_XMLVariants(t *testing.T) {
	t.Run("kml with extended data and multigeometry", func(t *testing.T) {
		input := `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
  <Placemark>
    <name>Bibliotheek</name>
    <ExtendedData><Data name="city"><value>Utrecht</value></Data></ExtendedData>
    <MultiGeometry>
      <Point><coordinates>5.1,52.1,0</coordinates></Point>
      <Point><coordinates>5.2,52.2,0</coordinates></Point>
    </MultiGeometry>
  </Placemark>
</Document></kml>`
		coll, err := codec.Decode([]byte(input))
		require.NoError(t, err)
		require.Len(t, coll.Components, 1)
		assert.Equal(t, orb.MultiPoint{{5.1, 52.1}, {5.2, 52.2}}, coll.Components[0].Geometry)
		assert.Equal(t, []string{"name", "city"}, coll.Components[0].Keys)
		assert.Equal(t, "Utrecht", coll.Components[0].Properties["city"])
	})

	t.Run("gml2 coordinates in RD", func(t *testing.T) {
		input := `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs" xmlns:gml="http://www.opengis.net/gml" xmlns:app="urn:app">
  <gml:featureMember>
    <app:afvalbak>
      <app:nummer>17</app:nummer>
      <app:geom><gml:Point srsName="EPSG:28992"><gml:coordinates>155000,463000</gml:coordinates></gml:Point></app:geom>
    </app:afvalbak>
  </gml:featureMember>
</wfs:FeatureCollection>`
		coll, err := codec.Decode([]byte(input))
		require.NoError(t, err)
		require.Len(t, coll.Components, 1)
		assert.Equal(t, orb.Point{155000, 463000}, coll.Components[0].Geometry)
		assert.Equal(t, "17", coll.Components[0].Properties["nummer"])
	})

	t.Run("gml3 urn srs swaps axes", func(t *testing.T) {
		input := `<gml:FeatureCollection xmlns:gml="http://www.opengis.net/gml/3.2">
  <gml:featureMember><Halte><naam>Centraal</naam>
    <geometrie><gml:Point srsName="urn:ogc:def:crs:EPSG::4326"><gml:pos>52.09 5.11</gml:pos></gml:Point></geometrie>
  </Halte></gml:featureMember>
</gml:FeatureCollection>`
		coll, err := codec.Decode([]byte(input))
		require.NoError(t, err)
		assert.Equal(t, orb.Point{5.11, 52.09}, coll.Components[0].Geometry)
	})

	t.Run("generic xml records", func(t *testing.T) {
		input := `<locations>
  <location id="a1" lat="52.1" lon="5.1"><name>Eerste</name></location>
  <location><name>Tweede</name><latitude>52.2</latitude><longitude>5.2</longitude></location>
</locations>`
		coll, err := codec.Decode([]byte(input))
		require.NoError(t, err)
		require.Len(t, coll.Components, 2)
		assert.Equal(t, orb.Point{5.1, 52.1}, coll.Components[0].Geometry)
		assert.Equal(t, []string{"id", "name"}, coll.Components[0].Keys)
		assert.Equal(t, orb.Point{5.2, 52.2}, coll.Components[1].Geometry)
		assert.Equal(t, "Tweede", coll.Components[1].Properties["name"])
	})
}
