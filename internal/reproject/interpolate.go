package reproject

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fogleman/delaunay"

	"misrgrid/internal/grid"
)

const (
	// weightTolerance admits nodes lying on a triangle edge despite rounding.
	weightTolerance = 1e-9
	// axisSlack widens triangle bounding boxes so nodes that coincide with a
	// vertex are not lost to a one-ulp difference.
	axisSlack = 1e-9
)

// ErrDegenerate reports scatter points that span no area, so no triangle and
// therefore no interpolated value exists.
var ErrDegenerate = errors.New("scatter points do not span an area")

// InterpolateLinear evaluates the piecewise-linear interpolant of the scatter
// points (lat[i], lon[i]) -> values[i] at every node of the latAxis x lonAxis
// grid. Both axes must be ascending. Nodes outside the convex hull of the
// points are NaN.
func InterpolateLinear(lat, lon, values, latAxis, lonAxis []float64) (*grid.Matrix[float64], error) {
	if len(lat) != len(lon) || len(lat) != len(values) {
		return nil, fmt.Errorf("scatter lengths differ: lat %d lon %d values %d", len(lat), len(lon), len(values))
	}
	out := grid.Filled(len(latAxis), len(lonAxis), math.NaN())
	if len(latAxis) == 0 || len(lonAxis) == 0 {
		return out, nil
	}

	points := make([]delaunay.Point, len(lat))
	for i := range lat {
		points[i] = delaunay.Point{X: lon[i], Y: lat[i]}
	}
	// Triangulate only fails when the points span no area.
	tri, err := delaunay.Triangulate(points)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDegenerate, err)
	}

	for k := 0; k+2 < len(tri.Triangles); k += 3 {
		a, b, c := tri.Triangles[k], tri.Triangles[k+1], tri.Triangles[k+2]
		xa, ya, va := lon[a], lat[a], values[a]
		xb, yb, vb := lon[b], lat[b], values[b]
		xc, yc, vc := lon[c], lat[c], values[c]

		denom := (yb-yc)*(xa-xc) + (xc-xb)*(ya-yc)
		if denom == 0 {
			continue
		}
		r0, r1 := axisWindow(latAxis, min(ya, yb, yc), max(ya, yb, yc))
		c0, c1 := axisWindow(lonAxis, min(xa, xb, xc), max(xa, xb, xc))
		for r := r0; r < r1; r++ {
			py := latAxis[r]
			for col := c0; col < c1; col++ {
				if !math.IsNaN(out.At(r, col)) {
					continue
				}
				px := lonAxis[col]
				w1 := ((yb-yc)*(px-xc) + (xc-xb)*(py-yc)) / denom
				w2 := ((yc-ya)*(px-xc) + (xa-xc)*(py-yc)) / denom
				w3 := 1 - w1 - w2
				if w1 < -weightTolerance || w2 < -weightTolerance || w3 < -weightTolerance {
					continue
				}
				out.Set(r, col, w1*va+w2*vb+w3*vc)
			}
		}
	}
	return out, nil
}

// axisWindow returns the half-open index range of axis values within
// [lo, hi] widened by axisSlack.
func axisWindow(axis []float64, lo, hi float64) (int, int) {
	start := sort.SearchFloat64s(axis, lo-axisSlack)
	end := sort.Search(len(axis), func(i int) bool { return axis[i] > hi+axisSlack })
	return start, end
}
