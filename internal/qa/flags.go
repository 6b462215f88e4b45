package qa

import (
	"fmt"
	"slices"
)

// Field addresses a single bit (Low == High) or an inclusive bit range of a
// packed quality value.
type Field struct {
	Low  int
	High int
}

// Bit returns a single-bit field.
func Bit(n int) Field { return Field{Low: n, High: n} }

// Bits returns an inclusive bit range.
func Bits(low, high int) Field { return Field{Low: low, High: high} }

func (f Field) Width() int { return f.High - f.Low + 1 }

func (f Field) mask() uint32 {
	if f.Width() >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<uint(f.Width()) - 1
}

// Extract shifts and masks v down to the field's value.
func (f Field) Extract(v uint32) uint32 {
	return (v >> uint(f.Low)) & f.mask()
}

func (f Field) validate() error {
	if f.Low < 0 || f.High > 31 || f.Low > f.High {
		return fmt.Errorf("bit field %s outside 0..31", f)
	}
	return nil
}

func (f Field) String() string {
	if f.Low == f.High {
		return fmt.Sprintf("bit %d", f.Low)
	}
	return fmt.Sprintf("bits %d-%d", f.Low, f.High)
}

// FlagDef names a quality field and the values at that field which keep a
// pixel.
type FlagDef struct {
	Name        string
	Field       Field
	ValidValues []uint32
	Description string
}

func (d FlagDef) accepts(v uint32) bool {
	return slices.Contains(d.ValidValues, v)
}

func (d FlagDef) clone() FlagDef {
	d.ValidValues = slices.Clone(d.ValidValues)
	return d
}

// Built-in flag names.
const (
	FlagCloudDetected    = "cloud_detected"
	FlagClearSky         = "clear_sky"
	FlagHighQuality      = "high_quality"
	FlagShadowDetected   = "shadow_detected"
	FlagSnowIce          = "snow_ice"
	FlagWaterDetected    = "water_detected"
	FlagRetrievalQuality = "retrieval_quality"
	FlagRDQIQuality      = "rdqi_quality"
)

// DefaultCatalog returns a fresh copy of the built-in flag definitions in
// display order. Callers may modify the result freely.
func DefaultCatalog() []FlagDef {
	return []FlagDef{
		{Name: FlagCloudDetected, Field: Bit(0), ValidValues: []uint32{0}, Description: "cloud detected"},
		{Name: FlagClearSky, Field: Bit(1), ValidValues: []uint32{1}, Description: "clear sky"},
		{Name: FlagHighQuality, Field: Bit(2), ValidValues: []uint32{1}, Description: "high quality retrieval"},
		{Name: FlagShadowDetected, Field: Bit(3), ValidValues: []uint32{0}, Description: "shadow detected"},
		{Name: FlagSnowIce, Field: Bit(4), ValidValues: []uint32{0, 1}, Description: "snow or ice present"},
		{Name: FlagWaterDetected, Field: Bit(5), ValidValues: []uint32{0, 1}, Description: "water present"},
		{Name: FlagRetrievalQuality, Field: Bits(6, 7), ValidValues: []uint32{0, 1, 2}, Description: "retrieval quality level"},
		{Name: FlagRDQIQuality, Field: Bits(RDQIQualityShift, RDQIQualityShift+1), ValidValues: []uint32{0, 1}, Description: "radiance data quality indicator"},
	}
}
