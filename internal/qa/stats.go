package qa

import "misrgrid/internal/grid"

// FlagStats summarises one flag over a quality array.
type FlagStats struct {
	Name         string
	Values       map[uint32]int
	ValidCount   int
	ValidPercent float64
}

// Statistics is the per-flag breakdown of a quality array.
type Statistics struct {
	TotalPixels int
	Flags       []FlagStats
}

// Statistics evaluates every available flag, enabled or not.
func (f *Filter) Statistics(qa *grid.Matrix[uint32]) Statistics {
	defs := f.AvailableFlags()
	stats := Statistics{TotalPixels: qa.Size(), Flags: make([]FlagStats, 0, len(defs))}
	for _, def := range defs {
		fs := FlagStats{Name: def.Name, Values: make(map[uint32]int)}
		for _, v := range qa.Data {
			field := def.Field.Extract(v)
			fs.Values[field]++
			if def.accepts(field) {
				fs.ValidCount++
			}
		}
		fs.ValidPercent = percent(fs.ValidCount, stats.TotalPixels)
		stats.Flags = append(stats.Flags, fs)
	}
	return stats
}

// Flag returns the stats for name.
func (s Statistics) Flag(name string) (FlagStats, bool) {
	for _, fs := range s.Flags {
		if fs.Name == name {
			return fs, true
		}
	}
	return FlagStats{}, false
}
