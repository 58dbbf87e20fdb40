package geom

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLineString(t *testing.T) {
	want := orb.LineString{{39.2793, -6.8147775}, {39.279369, -6.814663}}

	tests := []struct {
		name string
		raw  any
	}{
		{"geojson string", `{"type":"LineString","coordinates":[[39.2793,-6.8147775],[39.279369,-6.814663]]}`},
		{"geojson bytes", []byte(`{"type":"LineString","coordinates":[[39.2793,-6.8147775],[39.279369,-6.814663]]}`)},
		{"double encoded", `"{\"type\":\"LineString\",\"coordinates\":[[39.2793,-6.8147775],[39.279369,-6.814663]]}"`},
		{"feature", `{"type":"Feature","properties":{"name":"x"},"geometry":{"type":"LineString","coordinates":[[39.2793,-6.8147775],[39.279369,-6.814663]]}}`},
		{"map", map[string]any{"type": "LineString", "coordinates": []any{[]any{39.2793, -6.8147775}, []any{39.279369, -6.814663}}}},
		{"wkt", "LINESTRING(39.2793 -6.8147775,39.279369 -6.814663)"},
		{"orb geometry", want},
		{"geojson geometry", geojson.NewGeometry(want)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Decode(tt.raw)
			require.NoError(t, err)
			ls, err := LineCoords(g)
			require.NoError(t, err)
			assert.Equal(t, want, ls)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"empty string", "   "},
		{"broken json", `{"type":"LineString","coordinates":[[1,2],`},
		{"missing type", `{"coordinates":[[1,2],[3,4]]}`},
		{"missing coordinates", `{"type":"LineString"}`},
		{"null coordinates", `{"type":"LineString","coordinates":null}`},
		{"unknown type", `{"type":"Blob","coordinates":[[1,2],[3,4]]}`},
		{"feature without geometry", `{"type":"Feature","properties":{},"geometry":null}`},
		{"bad wkt", "LINESTRING(1 2,"},
		{"short position", `{"type":"LineString","coordinates":[[1],[2,3]]}`},
		{"empty position", `{"type":"LineString","coordinates":[[],[2,3]]}`},
		{"long position", `{"type":"LineString","coordinates":[[1,2,3,4],[2,3]]}`},
		{"string coordinate", `{"type":"LineString","coordinates":[["1","2"],[2,3]]}`},
		{"flat line coordinates", `{"type":"LineString","coordinates":[1,2]}`},
		{"short point", `{"type":"Point","coordinates":[1]}`},
		{"short polygon position", `{"type":"Polygon","coordinates":[[[0,0],[1],[1,1],[0,0]]]}`},
		{"short position in feature", `{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[1],[2,3]]}}`},
		{"short position in collection", `{"type":"GeometryCollection","geometries":[{"type":"LineString","coordinates":[[1],[2,3]]}]}`},
		{"nan wkt", "LINESTRING(NaN 0, 1 1)"},
		{"nan orb geometry", orb.LineString{{math.NaN(), 0}, {1, 1}}},
		{"infinite orb point", orb.Point{math.Inf(1), 0}},
		{"unsupported go type", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Decode(tt.raw)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.True(t, IsDecodeError(err), "expected DecodeError, got %T", err)
		})
	}
}

func TestLineCoords(t *testing.T) {
	_, err := LineCoords(orb.LineString{{1, 1}})
	assert.True(t, IsDecodeError(err))

	_, err = LineCoords(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	assert.True(t, IsDecodeError(err))

	_, err = LineCoords(nil)
	assert.True(t, IsDecodeError(err))

	ls, err := LineCoords(orb.LineString{{0, 0}, {0, 0}})
	require.NoError(t, err)
	assert.Len(t, ls, 2)
}

func TestEncodeRoundTrip(t *testing.T) {
	ls := orb.LineString{{0, 0}, {1, 1}, {2, 0}}
	text, err := Encode(ls)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LineString","coordinates":[[0,0],[1,1],[2,0]]}`, text)

	g, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, ls, g)
}

func TestSnap(t *testing.T) {
	p := orb.Point{39.27930000001, -6.81477749999}
	assert.Equal(t, p, Snap(p, NoSnap))
	assert.Equal(t, orb.Point{39.2793, -6.8147775}, Snap(p, 7))
	assert.Equal(t, Snap(orb.Point{1.00000001, 2}, 6), Snap(orb.Point{0.99999999, 2}, 6))
}
