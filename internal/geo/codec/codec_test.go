package codec_test

import (
	stderrors "errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkaarten-service/internal/geo/codec"
	"github.com/openkaarten-service/internal/pkg/errors"
)

const threePoints = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [5.1, 52.1]}, "properties": {"name": "A", "zip": "3511", "open": true}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [5.2, 52.2]}, "properties": {"name": "B", "zip": "3512", "open": false}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [5.3, 52.3]}, "properties": {"name": "C", "zip": "3513", "open": null}}
  ]
}`

func TestDecode_FeatureCollection(t *testing.T) {
	coll, err := codec.Decode([]byte(threePoints))
	require.NoError(t, err)
	require.Len(t, coll.Components, 3)

	first := coll.Components[0]
	assert.Equal(t, orb.Point{5.1, 52.1}, first.Geometry)
	assert.Equal(t, "A", first.Properties["name"])
	assert.Equal(t, true, first.Properties["open"])
	assert.Equal(t, []string{"name", "zip", "open"}, first.Keys)
	assert.Nil(t, coll.Components[2].Properties["open"])
}

func TestDecode_GeoJSONRoundTrip(t *testing.T) {
	inputs := map[string]string{
		"polygon with nested props": `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[4.1,52.1],[4.2,52.1],[4.2,52.2],[4.1,52.1]]]},"properties":{"name":"Park","area":12.5,"tags":["green","public"],"owner":{"name":"Gemeente"}}}`,
		"linestring":                `{"type":"Feature","geometry":{"type":"LineString","coordinates":[[5,52],[5.1,52.1],[5.2,52.3]]},"properties":{"route":"A12"}}`,
		"multipoint no props":       `{"type":"Feature","geometry":{"type":"MultiPoint","coordinates":[[5,52],[6,53]]},"properties":{}}`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			first, err := codec.Decode([]byte(input))
			require.NoError(t, err)
			require.Len(t, first.Components, 1)

			encoded, err := codec.EncodeComponent(first.Components[0], "geojson")
			require.NoError(t, err)
			assert.Contains(t, string(encoded), `"type":"Feature"`)

			second, err := codec.Decode(encoded)
			require.NoError(t, err)
			require.Len(t, second.Components, 1)

			assert.Equal(t, first.Components[0].Geometry, second.Components[0].Geometry)
			assert.Equal(t, first.Components[0].Properties, second.Components[0].Properties)
		})
	}
}

func TestDecode_BareGeometries(t *testing.T) {
	t.Run("geometry collection splits into components", func(t *testing.T) {
		coll, err := codec.Decode([]byte(`{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[1,2]},{"type":"LineString","coordinates":[[1,2],[3,4]]}]}`))
		require.NoError(t, err)
		require.Len(t, coll.Components, 2)
		assert.Equal(t, orb.Point{1, 2}, coll.Components[0].Geometry)
		assert.Equal(t, orb.LineString{{1, 2}, {3, 4}}, coll.Components[1].Geometry)
		assert.Empty(t, coll.Components[1].Properties)
	})

	t.Run("plain geometry", func(t *testing.T) {
		coll, err := codec.Decode([]byte(`{"type":"Point","coordinates":[155000,463000]}`))
		require.NoError(t, err)
		require.Len(t, coll.Components, 1)
		assert.Equal(t, orb.Point{155000, 463000}, coll.Components[0].Geometry)
		assert.Empty(t, coll.Components[0].Properties)
	})

	t.Run("wkt", func(t *testing.T) {
		coll, err := codec.Decode([]byte("POINT(5.1 52.1)"))
		require.NoError(t, err)
		assert.Equal(t, orb.Point{5.1, 52.1}, coll.Components[0].Geometry)
	})
}

func TestDecode_JSONRecords(t *testing.T) {
	t.Run("lat/lng records keep other fields in order", func(t *testing.T) {
		coll, err := codec.Decode([]byte(`[{"name":"Kiosk","lat":"52.09","lng":"5.12","open":true},{"name":"No location"}]`))
		require.NoError(t, err)
		require.Len(t, coll.Components, 1)
		assert.Equal(t, orb.Point{5.12, 52.09}, coll.Components[0].Geometry)
		assert.Equal(t, []string{"name", "open"}, coll.Components[0].Keys)
		assert.NotContains(t, coll.Components[0].Properties, "lat")
	})

	t.Run("coordinates arrays by depth", func(t *testing.T) {
		coll, err := codec.Decode([]byte(`[{"id":1,"coordinates":[5,52]},{"id":2,"coordinates":[[5,52],[6,53]]},{"id":3,"coordinates":[[[5,52],[6,52],[6,53],[5,52]]]}]`))
		require.NoError(t, err)
		require.Len(t, coll.Components, 3)
		assert.IsType(t, orb.Point{}, coll.Components[0].Geometry)
		assert.IsType(t, orb.LineString{}, coll.Components[1].Geometry)
		assert.IsType(t, orb.Polygon{}, coll.Components[2].Geometry)
	})

	t.Run("nested geometry object", func(t *testing.T) {
		coll, err := codec.Decode([]byte(`[{"title":{"rendered":"Bank"},"geometry":{"type":"Point","coordinates":[4.9,52.37]}}]`))
		require.NoError(t, err)
		require.Len(t, coll.Components, 1)
		assert.Equal(t, orb.Point{4.9, 52.37}, coll.Components[0].Geometry)
		assert.Equal(t, map[string]interface{}{"rendered": "Bank"}, coll.Components[0].Properties["title"])
	})

	t.Run("records without any geometry", func(t *testing.T) {
		_, err := codec.Decode([]byte(`[{"name":"x"}]`))
		assert.True(t, stderrors.Is(err, errors.ErrInvalidGeometry))
	})
}

func TestDecode_Invalid(t *testing.T) {
	inputs := map[string]string{
		"empty":              "   ",
		"truncated json":     `{"type":"FeatureCollection","features":[`,
		"bad coordinates":    `{"type":"Feature","geometry":{"type":"Point","coordinates":"x"},"properties":{}}`,
		"unknown type":       `{"type":"Topology"}`,
		"garbage":            "this is not geometry",
		"xml without coords": `<root><item><name>x</name></item></root>`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			coll, err := codec.Decode([]byte(input))
			assert.Nil(t, coll)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidGeometry))
		})
	}
}

func TestComponent_OrderedKeys(t *testing.T) {
	c := codec.Component{
		Properties: map[string]interface{}{"b": 1, "a": 2, "z": 3},
		Keys:       []string{"z", "missing"},
	}
	assert.Equal(t, []string{"z", "a", "b"}, c.OrderedKeys())
}
