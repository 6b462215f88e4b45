package testsupport

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"testing"

	"misrgrid/internal/grid"
	"misrgrid/internal/swath"
)

// SwathSpec describes a synthetic swath with a regular geolocation grid.
type SwathSpec struct {
	Rows, Cols  int
	LatMin      float64
	LatMax      float64
	LonMin      float64
	LonMax      float64
	Value       float64
	NaNFraction float64
	Seed        uint64
	Quality     uint32
	WithQuality bool
	ValueScale  int
}

// DefaultSwath is 100x100 over lat [10,12], lon [20,22] with value 5.
func DefaultSwath() SwathSpec {
	return SwathSpec{Rows: 100, Cols: 100, LatMin: 10, LatMax: 12, LonMin: 20, LonMax: 22, Value: 5, ValueScale: 1}
}

// Coords builds the coordinate grid of spec.
func (s SwathSpec) Coords() grid.CoordinateGrid {
	lat := grid.NewMatrix[float64](s.Rows, s.Cols)
	lon := grid.NewMatrix[float64](s.Rows, s.Cols)
	for r := 0; r < s.Rows; r++ {
		for c := 0; c < s.Cols; c++ {
			lat.Set(r, c, s.LatMin+(s.LatMax-s.LatMin)*float64(r)/float64(s.Rows-1))
			lon.Set(r, c, s.LonMin+(s.LonMax-s.LonMin)*float64(c)/float64(s.Cols-1))
		}
	}
	return grid.CoordinateGrid{Lat: lat, Lon: lon}
}

// Values builds the primary band at ValueScale times the coordinate density,
// with NaNFraction of cells set to NaN.
func (s SwathSpec) Values() *grid.Matrix[float64] {
	scale := max(s.ValueScale, 1)
	m := grid.Filled(s.Rows*scale, s.Cols*scale, s.Value)
	if s.NaNFraction > 0 {
		rng := rand.New(rand.NewPCG(s.Seed, s.Seed+1))
		for i := range m.Data {
			if rng.Float64() < s.NaNFraction {
				m.Data[i] = math.NaN()
			}
		}
	}
	return m
}

// QualityArray builds a quality array aligned with Values, or nil.
func (s SwathSpec) QualityArray() *grid.Matrix[uint32] {
	if !s.WithQuality {
		return nil
	}
	scale := max(s.ValueScale, 1)
	return grid.Filled(s.Rows*scale, s.Cols*scale, s.Quality)
}

// Memory returns spec as an in-memory source named name.
func (s SwathSpec) Memory(name string) *swath.MemorySource {
	return &swath.MemorySource{Name: name, Coords: s.Coords(), Band: s.Values(), QA: s.QualityArray()}
}

// WriteSwath writes spec as a JSON fixture named name under dir.
func WriteSwath(t testing.TB, dir, name string, s SwathSpec) string {
	t.Helper()
	path := filepath.Join(dir, name+swath.FixtureExtension)
	if err := swath.WriteFixture(path, swath.NewFixture(s.Coords(), s.Values(), s.QualityArray())); err != nil {
		t.Fatalf("write swath fixture: %v", err)
	}
	return path
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
