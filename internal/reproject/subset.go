package reproject

import (
	"fmt"
	"math"

	"misrgrid/internal/grid"
	"misrgrid/internal/services"
)

// FindRegionBounds returns the bounding rectangle of every coordinate cell
// within margin degrees of the target in both latitude and longitude. The
// rectangle can include cells outside the window. ok is false when no cell
// qualifies, meaning the target is not covered by this swath.
func FindRegionBounds(coords grid.CoordinateGrid, targetLat, targetLon, margin float64) (grid.RegionBounds, bool) {
	rows, cols := coords.Shape()
	b := grid.RegionBounds{RowMin: rows, RowMax: -1, ColMin: cols, ColMax: -1}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lat := coords.Lat.At(r, c)
			lon := coords.Lon.At(r, c)
			// NaN compares false, so missing geolocation never qualifies.
			if !(math.Abs(lat-targetLat) <= margin && math.Abs(lon-targetLon) <= margin) {
				continue
			}
			b.RowMin = min(b.RowMin, r)
			b.RowMax = max(b.RowMax, r)
			b.ColMin = min(b.ColMin, c)
			b.ColMax = max(b.ColMax, c)
		}
	}
	if b.RowMax < 0 {
		return grid.RegionBounds{}, false
	}
	return b, true
}

// DeriveScaleFactor returns the integer density ratio of values over coords,
// or an error when the shapes are not an integer multiple with one ratio on
// both axes.
func DeriveScaleFactor(coordRows, coordCols, valueRows, valueCols int) (int, error) {
	if coordRows == 0 || coordCols == 0 {
		return 0, fmt.Errorf("empty coordinate grid")
	}
	if valueRows%coordRows != 0 || valueCols%coordCols != 0 {
		return 0, fmt.Errorf("value shape %dx%d is not a multiple of coordinate shape %dx%d", valueRows, valueCols, coordRows, coordCols)
	}
	rf, cf := valueRows/coordRows, valueCols/coordCols
	if rf != cf || rf < 1 {
		return 0, fmt.Errorf("value shape %dx%d scales unevenly from coordinate shape %dx%d", valueRows, valueCols, coordRows, coordCols)
	}
	return rf, nil
}

// ValueWindow maps inclusive coordinate bounds onto a half-open window of a
// value array. Same-shaped arrays share bounds; denser arrays scale them by
// scaleFactor, clamped to the array edges.
func ValueWindow(coordRows, coordCols, valueRows, valueCols int, bounds grid.RegionBounds, scaleFactor int) (grid.Span, grid.Span, error) {
	if valueRows == coordRows && valueCols == coordCols {
		return grid.Span{Start: bounds.RowMin, End: bounds.RowMax + 1}, grid.Span{Start: bounds.ColMin, End: bounds.ColMax + 1}, nil
	}
	if scaleFactor < 1 {
		return grid.Span{}, grid.Span{}, services.Wrap(services.ErrConfiguration, "subset_extraction", "scale values", fmt.Sprintf("scale factor %d", scaleFactor), nil)
	}
	rowSpan, colSpan := bounds.Scaled(scaleFactor, valueRows, valueCols)
	if rowSpan.Len() <= 0 || colSpan.Len() <= 0 {
		return grid.Span{}, grid.Span{}, services.Wrap(services.ErrValidation, "subset_extraction", "scale values",
			fmt.Sprintf("%s x%d falls outside value array %dx%d", bounds, scaleFactor, valueRows, valueCols), nil)
	}
	return rowSpan, colSpan, nil
}

// ExtractSubset slices coords by bounds and values to the matching window.
// Values of the same shape are sliced identically; otherwise bounds are scaled
// by scaleFactor onto the denser array and clamped to its edges.
func ExtractSubset(coords grid.CoordinateGrid, values *grid.Matrix[float64], bounds grid.RegionBounds, scaleFactor int) (grid.CoordinateGrid, *grid.Matrix[float64], error) {
	coordSubset, err := coords.Slice(bounds)
	if err != nil {
		return grid.CoordinateGrid{}, nil, services.Wrap(services.ErrValidation, "subset_extraction", "slice coordinates", "", err)
	}
	rows, cols := coords.Shape()
	rowSpan, colSpan, err := ValueWindow(rows, cols, values.Rows, values.Cols, bounds, scaleFactor)
	if err != nil {
		return grid.CoordinateGrid{}, nil, err
	}
	valueSubset, err := values.Slice(rowSpan.Start, rowSpan.End-1, colSpan.Start, colSpan.End-1)
	if err != nil {
		return grid.CoordinateGrid{}, nil, services.Wrap(services.ErrValidation, "subset_extraction", "slice values", "", err)
	}
	return coordSubset, valueSubset, nil
}
