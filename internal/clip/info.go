package clip

import (
	"math"

	"github.com/ctessum/geom"
)

// Info describes a loaded polygon set in its source reference system.
type Info struct {
	Source        string         `json:"source"`
	Count         int            `json:"count"`
	CRS           string         `json:"crs"`
	Bounds        geom.Bounds    `json:"bounds"`
	GeometryTypes map[string]int `json:"geometry_types"`
	TotalArea     float64        `json:"total_area"`
}

// Bounds is the union of polygon bounding boxes in the source reference
// system.
func (c *Clipper) Bounds() geom.Bounds {
	out := geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range c.polygons {
		b := p.Bounds()
		out.Min.X = math.Min(out.Min.X, b.Min.X)
		out.Min.Y = math.Min(out.Min.Y, b.Min.Y)
		out.Max.X = math.Max(out.Max.X, b.Max.X)
		out.Max.Y = math.Max(out.Max.Y, b.Max.Y)
	}
	return out
}

func (c *Clipper) Info() Info {
	info := Info{
		Source:        c.source,
		Count:         len(c.polygons),
		CRS:           c.crs,
		Bounds:        c.Bounds(),
		GeometryTypes: make(map[string]int),
	}
	for _, p := range c.polygons {
		info.GeometryTypes[geometryType(p)]++
		info.TotalArea += p.Area()
	}
	return info
}

func geometryType(p geom.Polygonal) string {
	switch p.(type) {
	case geom.Polygon:
		return "Polygon"
	case geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.Bounds:
		return "Bounds"
	default:
		return "Polygonal"
	}
}
