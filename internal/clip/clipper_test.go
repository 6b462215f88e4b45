package clip

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

// unitGrid is an 11x11 grid over lat/lon [0,1] at 0.1 degree spacing.
func unitGrid(t *testing.T, value float64) *grid.ReprojectedGrid {
	t.Helper()
	axis := grid.Axis(0, 1, 0.1)
	require.Len(t, axis, 11)
	g, err := grid.NewReprojectedGrid(axis, append([]float64(nil), axis...),
		grid.Filled(11, 11, value), map[string]string{"title": "test"})
	require.NoError(t, err)
	return g
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func squareFeature(minX, minY, maxX, maxY string) string {
	return `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[` +
		`[` + minX + `,` + minY + `],[` + maxX + `,` + minY + `],[` + maxX + `,` + maxY + `],[` + minX + `,` + maxY + `],[` + minX + `,` + minY + `]]]}}`
}

func loadCollection(t *testing.T, features ...string) *Clipper {
	t.Helper()
	body := `{"type":"FeatureCollection","features":[`
	for i, f := range features {
		if i > 0 {
			body += ","
		}
		body += f
	}
	body += `]}`
	c, err := LoadGeometries(writeFile(t, "roi.geojson", body), logging.NewNop())
	require.NoError(t, err)
	return c
}

func TestCheckOverlapDisjoint(t *testing.T) {
	c := loadCollection(t, squareFeature("5", "5", "6", "6"))
	assert.False(t, c.CheckOverlap(unitGrid(t, 1)))
}

func TestCheckOverlapContaining(t *testing.T) {
	c := loadCollection(t, squareFeature("-1", "-1", "2", "2"))
	assert.True(t, c.CheckOverlap(unitGrid(t, 1)))
}

func TestCheckOverlapPartial(t *testing.T) {
	c := loadCollection(t, squareFeature("0.5", "0.5", "3", "3"))
	assert.True(t, c.CheckOverlap(unitGrid(t, 1)))
}

func TestCheckOverlapEmptyGrid(t *testing.T) {
	c := loadCollection(t, squareFeature("0", "0", "1", "1"))
	assert.False(t, c.CheckOverlap(nil))
}

func TestClipAllInsideKeepsGrid(t *testing.T) {
	c := loadCollection(t, squareFeature("-1", "-1", "2", "2"))
	src := unitGrid(t, 2.5)

	out, err := c.Clip(src)

	require.NoError(t, err)
	rows, cols := out.Shape()
	assert.Equal(t, 11, rows)
	assert.Equal(t, 11, cols)
	assert.Equal(t, 121, out.ValidCount())
	for i := range src.Lat {
		assert.InDelta(t, src.Lat[i], out.Lat[i], 1e-9)
		assert.InDelta(t, src.Lon[i], out.Lon[i], 1e-9)
	}
	assert.Equal(t, "true", out.Attributes["clipped"])
	assert.Equal(t, "test", out.Attributes["title"])
	_, touched := src.Attributes["clipped"]
	assert.False(t, touched)
}

func TestClipCropsToPolygonBounds(t *testing.T) {
	c := loadCollection(t, squareFeature("0.25", "0.25", "0.75", "0.75"))

	out, err := c.Clip(unitGrid(t, 1))

	require.NoError(t, err)
	rows, cols := out.Shape()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 5, cols)
	assert.InDelta(t, 0.3, out.Lat[0], 1e-9)
	assert.InDelta(t, 0.7, out.Lon[4], 1e-9)
	assert.Equal(t, 25, out.ValidCount())
}

func TestClipMasksOutsidePixels(t *testing.T) {
	triangle := `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,1],[0,0]]]}}`
	c := loadCollection(t, triangle)
	src := unitGrid(t, 1)

	out, err := c.Clip(src)

	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Values.At(1, 1))
	assert.True(t, math.IsNaN(out.Values.At(9, 9)))
	assert.Less(t, out.ValidCount(), 121)
	assert.Equal(t, 121, src.ValidCount())
}

func TestClipDisjointIsEmpty(t *testing.T) {
	c := loadCollection(t, squareFeature("5", "5", "6", "6"))

	_, err := c.Clip(unitGrid(t, 1))

	assert.ErrorIs(t, err, ErrEmptyClip)
}

func TestClipAllNaNInsideIsEmpty(t *testing.T) {
	c := loadCollection(t, squareFeature("-1", "-1", "2", "2"))

	_, err := c.Clip(unitGrid(t, math.NaN()))

	assert.ErrorIs(t, err, ErrEmptyClip)
}

func TestLoadGeometriesSkipsNonPolygons(t *testing.T) {
	point := `{"type":"Feature","geometry":{"type":"Point","coordinates":[0.5,0.5]}}`
	c := loadCollection(t, point, squareFeature("0", "0", "1", "1"))

	assert.Equal(t, 1, c.Len())
}

func TestLoadGeometriesBareGeometry(t *testing.T) {
	path := writeFile(t, "roi.json", `{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,1],[0,1],[0,0]]]}`)

	c, err := LoadGeometries(path, nil)

	require.NoError(t, err)
	info := c.Info()
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, "EPSG:4326", info.CRS)
	assert.InDelta(t, 2.0, info.TotalArea, 1e-9)
	assert.Equal(t, 1, info.GeometryTypes["Polygon"])
	b := c.Bounds()
	assert.Equal(t, 0.0, b.Min.X)
	assert.Equal(t, 2.0, b.Max.X)
	assert.Equal(t, 1.0, b.Max.Y)
}

func TestLoadGeometriesErrors(t *testing.T) {
	onlyPoints := writeFile(t, "points.geojson",
		`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]}}]}`)
	wrongExt := writeFile(t, "roi.kml", "<kml/>")
	garbage := writeFile(t, "bad.geojson", "{not json")

	tests := []struct {
		name   string
		path   string
		marker error
	}{
		{"empty path", "", services.ErrConfiguration},
		{"missing", filepath.Join(t.TempDir(), "nope.shp"), services.ErrNotFound},
		{"no polygons", onlyPoints, services.ErrValidation},
		{"unsupported", wrongExt, services.ErrValidation},
		{"malformed", garbage, services.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGeometries(tt.path, logging.NewNop())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.marker), "got %v", err)
			assert.Error(t, ValidateSource(tt.path))
		})
	}
}
