package reproject

import (
	"math"

	"misrgrid/internal/grid"
	"misrgrid/internal/services"
)

// CreateFineGrid assigns a coordinate to every pixel of valueSubset by
// bilinear interpolation between the four corner coordinates of coordSubset.
//
// This approximates the sensor geolocation. It holds only because subsets
// span a few degrees at most, where the swath is close to a bilinear patch.
func CreateFineGrid(coordSubset grid.CoordinateGrid, valueSubset *grid.Matrix[float64]) (grid.CoordinateGrid, error) {
	if coordSubset.Empty() || valueSubset.Size() == 0 {
		return grid.CoordinateGrid{}, services.Wrap(services.ErrValidation, "fine_grid_build", "corners", "empty subset", nil)
	}
	cr, cc := coordSubset.Shape()
	latC := corners(coordSubset.Lat, cr, cc)
	lonC := corners(coordSubset.Lon, cr, cc)
	for _, v := range append(latC[:], lonC[:]...) {
		if math.IsNaN(v) {
			return grid.CoordinateGrid{}, services.Wrap(services.ErrValidation, "fine_grid_build", "corners", "subset corner has no geolocation", nil)
		}
	}

	rows, cols := valueSubset.Shape()
	lat := grid.NewMatrix[float64](rows, cols)
	lon := grid.NewMatrix[float64](rows, cols)
	for r := 0; r < rows; r++ {
		u := fraction(r, rows)
		for c := 0; c < cols; c++ {
			v := fraction(c, cols)
			lat.Set(r, c, bilinear(latC, u, v))
			lon.Set(r, c, bilinear(lonC, u, v))
		}
	}
	return grid.CoordinateGrid{Lat: lat, Lon: lon}, nil
}

// corners returns top-left, top-right, bottom-left, bottom-right.
func corners(m *grid.Matrix[float64], rows, cols int) [4]float64 {
	return [4]float64{m.At(0, 0), m.At(0, cols-1), m.At(rows-1, 0), m.At(rows-1, cols-1)}
}

func fraction(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1)
}

func bilinear(c [4]float64, u, v float64) float64 {
	top := c[0] + (c[1]-c[0])*v
	bottom := c[2] + (c[3]-c[2])*v
	return top + (bottom-top)*u
}
