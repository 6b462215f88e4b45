package qa

import (
	"math"

	"misrgrid/internal/grid"
)

// RDQI packing: the low 14 bits carry the radiance DN and the top two bits
// the data quality indicator (0 best, 3 unusable).
const (
	RDQIFillValue    = 65515
	RDQIRadianceMask = 0x3FFF
	RDQIQualityShift = 14
	RDQIQualityMask  = 0x3

	// RDQIMaxUsable is the worst quality level kept when filtering.
	RDQIMaxUsable = 1
)

// RDQIQuality returns the quality indicator of a packed value.
func RDQIQuality(v uint32) uint32 {
	return (v >> RDQIQualityShift) & RDQIQualityMask
}

// DecodeRDQI unpacks radiance DNs from packed RDQI values. Fill values become
// NaN. With filter set, pixels whose quality indicator exceeds RDQIMaxUsable
// are also NaN; without it only quality 0 pixels survive, matching an
// unpacked field read without quality handling.
func DecodeRDQI(raw *grid.Matrix[uint32], filter bool) *grid.Matrix[float64] {
	rows, cols := raw.Shape()
	out := grid.NewMatrix[float64](rows, cols)
	for i, v := range raw.Data {
		keep := v != RDQIFillValue
		if filter {
			keep = keep && RDQIQuality(v) <= RDQIMaxUsable
		} else {
			keep = keep && v <= RDQIRadianceMask
		}
		if !keep {
			out.Data[i] = math.NaN()
			continue
		}
		out.Data[i] = float64(v & RDQIRadianceMask)
	}
	return out
}
