package export

import (
	"context"
	"encoding/json"
	"maps"
	"math"

	"misrgrid/internal/fileutil"
	"misrgrid/internal/grid"
)

// MetadataWriter stores a JSON sidecar describing the grid: axes extent,
// shape, CRS, attributes, statistics and the pipeline metadata.
type MetadataWriter struct{}

func (MetadataWriter) Kind() string      { return KindMetadata }
func (MetadataWriter) Extension() string { return ".json" }

type metadataDoc struct {
	Shape      [2]int            `json:"shape"`
	Extent     grid.Extent       `json:"extent"`
	LatStep    float64           `json:"lat_step_deg"`
	LonStep    float64           `json:"lon_step_deg"`
	CRS        string            `json:"crs"`
	CRSWKT     string            `json:"crs_wkt,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Statistics grid.Stats        `json:"statistics"`
	Processing Metadata          `json:"processing,omitempty"`
}

func (MetadataWriter) Write(ctx context.Context, path string, g *grid.ReprojectedGrid, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, cols := g.Shape()
	doc := metadataDoc{
		Shape:      [2]int{rows, cols},
		Extent:     g.Bounds(),
		LatStep:    step(g.Lat),
		LonStep:    step(g.Lon),
		CRS:        g.CRS.String(),
		CRSWKT:     g.CRS.WKT,
		Attributes: maps.Clone(g.Attributes),
		Statistics: grid.ComputeStats(g.Values),
		Processing: jsonSafe(meta),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

func step(axis []float64) float64 {
	if len(axis) < 2 {
		return 0
	}
	return (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
}

// jsonSafe replaces non-finite floats with nil so the document encodes.
func jsonSafe(meta Metadata) Metadata {
	if meta == nil {
		return nil
	}
	out := make(Metadata, len(meta))
	for k, v := range meta {
		out[k] = safeValue(v)
	}
	return out
}

func safeValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case map[string]any:
		return map[string]any(jsonSafe(t))
	case Metadata:
		return jsonSafe(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = safeValue(e)
		}
		return out
	}
	return v
}
