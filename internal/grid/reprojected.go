package grid

import (
	"fmt"
	"maps"
	"math"
)

// CRS describes the coordinate reference system of a regular grid.
type CRS struct {
	EPSG  int
	Name  string
	Proj4 string
	WKT   string
}

// WGS84 is the geographic latitude/longitude reference every reprojected grid
// carries.
var WGS84 = CRS{
	EPSG:  4326,
	Name:  "WGS84",
	Proj4: "+proj=longlat +datum=WGS84 +no_defs",
	WKT: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],` +
		`PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`,
}

func (c CRS) String() string {
	if c.EPSG != 0 {
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	}
	return c.Name
}

// ReprojectedGrid is a regular latitude/longitude grid. Lat and Lon are
// strictly ascending and Values is shaped len(Lat) x len(Lon). NaN marks
// cells with no data.
type ReprojectedGrid struct {
	Lat        []float64
	Lon        []float64
	Values     *Matrix[float64]
	CRS        CRS
	Attributes map[string]string
}

// NewReprojectedGrid validates axis lengths against the value shape.
func NewReprojectedGrid(lat, lon []float64, values *Matrix[float64], attrs map[string]string) (*ReprojectedGrid, error) {
	if values == nil || values.Rows != len(lat) || values.Cols != len(lon) {
		rows, cols := values.Shape()
		return nil, fmt.Errorf("values %dx%d do not match axes %dx%d", rows, cols, len(lat), len(lon))
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &ReprojectedGrid{Lat: lat, Lon: lon, Values: values, CRS: WGS84, Attributes: attrs}, nil
}

// Shape returns (len(Lat), len(Lon)).
func (g *ReprojectedGrid) Shape() (int, int) { return len(g.Lat), len(g.Lon) }

// Clone returns a deep copy.
func (g *ReprojectedGrid) Clone() *ReprojectedGrid {
	if g == nil {
		return nil
	}
	return &ReprojectedGrid{
		Lat:        append([]float64(nil), g.Lat...),
		Lon:        append([]float64(nil), g.Lon...),
		Values:     g.Values.Clone(),
		CRS:        g.CRS,
		Attributes: maps.Clone(g.Attributes),
	}
}

// ValidCount returns the number of non-NaN cells.
func (g *ReprojectedGrid) ValidCount() int {
	if g == nil || g.Values == nil {
		return 0
	}
	return g.Values.Size() - CountNaN(g.Values)
}

// Extent is a geographic bounding box in degrees.
type Extent struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Bounds returns the extent spanned by the pixel centres.
func (g *ReprojectedGrid) Bounds() Extent {
	if g == nil || len(g.Lat) == 0 || len(g.Lon) == 0 {
		return Extent{}
	}
	return Extent{
		MinLat: g.Lat[0],
		MaxLat: g.Lat[len(g.Lat)-1],
		MinLon: g.Lon[0],
		MaxLon: g.Lon[len(g.Lon)-1],
	}
}

// GeoTransform maps pixel indices to coordinates: x = OriginX + col*PixelWidth,
// y = OriginY + row*PixelHeight, with the origin at the outer corner of the
// first pixel.
type GeoTransform struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// GeoTransform derives the transform of a grid from its axes. Single-sample
// axes fall back to fallback for their pixel size.
func (g *ReprojectedGrid) GeoTransform(fallback float64) GeoTransform {
	dx := axisStep(g.Lon, fallback)
	dy := axisStep(g.Lat, fallback)
	return GeoTransform{
		OriginX:     g.Lon[0] - dx/2,
		OriginY:     g.Lat[0] - dy/2,
		PixelWidth:  dx,
		PixelHeight: dy,
	}
}

// Center returns the coordinate of the centre of pixel (row, col).
func (t GeoTransform) Center(row, col int) (x, y float64) {
	return t.OriginX + (float64(col)+0.5)*t.PixelWidth, t.OriginY + (float64(row)+0.5)*t.PixelHeight
}

// Window converts a coordinate rectangle into the inclusive pixel window whose
// centres fall inside it, clamped to rows x cols. ok is false when no pixel
// centre qualifies.
func (t GeoTransform) Window(minX, minY, maxX, maxY float64, rows, cols int) (RegionBounds, bool) {
	c0 := int(math.Ceil((minX-t.OriginX)/t.PixelWidth - 0.5))
	c1 := int(math.Floor((maxX-t.OriginX)/t.PixelWidth - 0.5))
	r0 := int(math.Ceil((minY-t.OriginY)/t.PixelHeight - 0.5))
	r1 := int(math.Floor((maxY-t.OriginY)/t.PixelHeight - 0.5))
	c0, r0 = max(c0, 0), max(r0, 0)
	c1, r1 = min(c1, cols-1), min(r1, rows-1)
	if c0 > c1 || r0 > r1 {
		return RegionBounds{}, false
	}
	return RegionBounds{RowMin: r0, RowMax: r1, ColMin: c0, ColMax: c1}, true
}

func axisStep(axis []float64, fallback float64) float64 {
	if len(axis) < 2 {
		return fallback
	}
	return (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
}

// Axis builds an ascending axis from lo to hi inclusive at step res.
// The count is floor((hi-lo)/res)+1 with a small tolerance so that a range that
// is an exact multiple of res keeps its last sample.
func Axis(lo, hi, res float64) []float64 {
	if res <= 0 || hi < lo || math.IsNaN(lo) || math.IsNaN(hi) {
		return nil
	}
	n := int(math.Floor((hi-lo)/res+1e-9)) + 1
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = lo + float64(i)*res
	}
	return axis
}
