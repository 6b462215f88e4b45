package reproject

import (
	"testing"

	"github.com/stretchr/testify/require"

	"misrgrid/internal/grid"
)

// regularCoords builds a rows x cols coordinate grid spanning the given
// latitude and longitude ranges with latitude increasing down the rows.
func regularCoords(t *testing.T, rows, cols int, lat0, lat1, lon0, lon1 float64) grid.CoordinateGrid {
	t.Helper()
	lat := grid.NewMatrix[float64](rows, cols)
	lon := grid.NewMatrix[float64](rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lat.Set(r, c, lat0+(lat1-lat0)*float64(r)/float64(rows-1))
			lon.Set(r, c, lon0+(lon1-lon0)*float64(c)/float64(cols-1))
		}
	}
	g, err := grid.NewCoordinateGrid(lat, lon)
	require.NoError(t, err)
	return g
}
