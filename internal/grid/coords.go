package grid

import (
	"fmt"
)

// CoordinateGrid pairs the per-pixel latitude and longitude of a swath.
// Both matrices always share one shape; NaN marks missing geolocation.
type CoordinateGrid struct {
	Lat *Matrix[float64]
	Lon *Matrix[float64]
}

// NewCoordinateGrid validates that lat and lon have the same shape.
func NewCoordinateGrid(lat, lon *Matrix[float64]) (CoordinateGrid, error) {
	if lat == nil || lon == nil {
		return CoordinateGrid{}, fmt.Errorf("coordinate grid requires both latitude and longitude")
	}
	if lat.Rows != lon.Rows || lat.Cols != lon.Cols {
		return CoordinateGrid{}, fmt.Errorf("latitude shape %dx%d does not match longitude shape %dx%d", lat.Rows, lat.Cols, lon.Rows, lon.Cols)
	}
	return CoordinateGrid{Lat: lat, Lon: lon}, nil
}

// Shape returns the shared (rows, cols).
func (g CoordinateGrid) Shape() (int, int) { return g.Lat.Shape() }

// Empty reports whether the grid holds no cells.
func (g CoordinateGrid) Empty() bool { return g.Lat == nil || g.Lat.Size() == 0 }

// Slice extracts the inclusive window described by b.
func (g CoordinateGrid) Slice(b RegionBounds) (CoordinateGrid, error) {
	lat, err := g.Lat.Slice(b.RowMin, b.RowMax, b.ColMin, b.ColMax)
	if err != nil {
		return CoordinateGrid{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := g.Lon.Slice(b.RowMin, b.RowMax, b.ColMin, b.ColMax)
	if err != nil {
		return CoordinateGrid{}, fmt.Errorf("longitude: %w", err)
	}
	return CoordinateGrid{Lat: lat, Lon: lon}, nil
}

// RegionBounds is an inclusive rectangle of array indices.
type RegionBounds struct {
	RowMin int `json:"row_min"`
	RowMax int `json:"row_max"`
	ColMin int `json:"col_min"`
	ColMax int `json:"col_max"`
}

func (b RegionBounds) Rows() int { return b.RowMax - b.RowMin + 1 }

func (b RegionBounds) Cols() int { return b.ColMax - b.ColMin + 1 }

func (b RegionBounds) String() string {
	return fmt.Sprintf("rows %d..%d cols %d..%d", b.RowMin, b.RowMax, b.ColMin, b.ColMax)
}

// Span is a half-open index range [Start, End).
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

// Scaled maps the bounds onto an array factor times denser. The result is
// half-open on both axes and clamped to rows x cols.
func (b RegionBounds) Scaled(factor, rows, cols int) (Span, Span) {
	if factor < 1 {
		factor = 1
	}
	r := Span{Start: b.RowMin * factor, End: (b.RowMax + 1) * factor}
	c := Span{Start: b.ColMin * factor, End: (b.ColMax + 1) * factor}
	return clampSpan(r, rows), clampSpan(c, cols)
}

func clampSpan(s Span, limit int) Span {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.End > limit {
		s.End = limit
	}
	if s.Start > s.End {
		s.Start = s.End
	}
	return s
}
