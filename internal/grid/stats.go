package grid

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the finite cells of a value array.
type Stats struct {
	TotalPixels  int     `json:"total_pixels"`
	ValidPixels  int     `json:"valid_pixels"`
	ValidPercent float64 `json:"valid_percent"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std"`
}

// ComputeStats reports the count, range, mean and standard deviation of the
// non-NaN cells. Range and moments are NaN when no cell is valid.
func ComputeStats(m *Matrix[float64]) Stats {
	s := Stats{TotalPixels: m.Size(), Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), StdDev: math.NaN()}
	if m == nil {
		return s
	}
	valid := make([]float64, 0, len(m.Data))
	for _, v := range m.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	s.ValidPixels = len(valid)
	if s.TotalPixels > 0 {
		s.ValidPercent = 100 * float64(s.ValidPixels) / float64(s.TotalPixels)
	}
	if len(valid) == 0 {
		return s
	}
	s.Min = floats.Min(valid)
	s.Max = floats.Max(valid)
	s.Mean, s.StdDev = stat.PopMeanStdDev(valid, nil)
	return s
}

// MarshalJSON writes NaN moments as null.
func (s Stats) MarshalJSON() ([]byte, error) {
	type wire struct {
		TotalPixels  int      `json:"total_pixels"`
		ValidPixels  int      `json:"valid_pixels"`
		ValidPercent float64  `json:"valid_percent"`
		Min          *float64 `json:"min"`
		Max          *float64 `json:"max"`
		Mean         *float64 `json:"mean"`
		StdDev       *float64 `json:"std"`
	}
	return json.Marshal(wire{
		TotalPixels:  s.TotalPixels,
		ValidPixels:  s.ValidPixels,
		ValidPercent: s.ValidPercent,
		Min:          finite(s.Min),
		Max:          finite(s.Max),
		Mean:         finite(s.Mean),
		StdDev:       finite(s.StdDev),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
