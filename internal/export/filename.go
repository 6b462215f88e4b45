package export

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"misrgrid/internal/textutil"
)

// TimestampLayout is appended to output names when timestamps are enabled.
const TimestampLayout = "20060102_150405"

// NameInfo describes the processing applied to an output.
type NameInfo struct {
	RedBand     bool
	ResolutionM float64
	Clipped     bool
	QAFiltered  bool
}

// Filename builds "<base>[_red][_<res>m][_clipped][_qa][_<timestamp>]".
// A zero timestamp omits the suffix.
func Filename(base string, info NameInfo, timestamp time.Time) string {
	parts := []string{textutil.SanitizeToken(base)}
	if info.RedBand {
		parts = append(parts, "red")
	}
	if info.ResolutionM > 0 {
		parts = append(parts, strconv.FormatFloat(info.ResolutionM, 'f', -1, 64)+"m")
	}
	if info.Clipped {
		parts = append(parts, "clipped")
	}
	if info.QAFiltered {
		parts = append(parts, "qa")
	}
	if !timestamp.IsZero() {
		parts = append(parts, timestamp.Format(TimestampLayout))
	}
	return strings.Join(parts, "_")
}

// BaseName strips directories and every extension from an input path, so
// "scene.swath.json" and "scene.hdf" both yield "scene".
func BaseName(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}
