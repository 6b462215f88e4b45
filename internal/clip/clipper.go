package clip

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"

	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

// ErrEmptyClip reports that no valid pixel of a grid lies inside the
// polygons.
var ErrEmptyClip = errors.New("clip produced no data")

// Clipper holds a polygon set and clips grids against it.
type Clipper struct {
	logger   *slog.Logger
	source   string
	polygons []geom.Polygonal
	sr       *proj.SR
	crs      string
	geodetic bool

	mu      sync.Mutex
	indexes map[string]*polygonIndex
}

// polygonIndex is the polygon set expressed in one target reference system.
type polygonIndex struct {
	tree   *rtree.Rtree
	bounds geom.Bounds
}

// indexed wraps a polygon for R-tree storage.
type indexed struct {
	geom.Polygonal
}

func newClipper(source string, set *sourceSet, logger *slog.Logger) *Clipper {
	return &Clipper{
		logger:   logger,
		source:   source,
		polygons: set.polygons,
		sr:       set.sr,
		crs:      set.crs,
		geodetic: set.geodetic,
		indexes:  make(map[string]*polygonIndex),
	}
}

// Source returns the path the polygons were loaded from.
func (c *Clipper) Source() string { return c.source }

// Len is the number of polygons.
func (c *Clipper) Len() int { return len(c.polygons) }

// CheckOverlap reports whether any polygon intersects the bounding box of g.
// Failures while checking are logged and answered with true.
func (c *Clipper) CheckOverlap(g *grid.ReprojectedGrid) (overlaps bool) {
	defer func() {
		if r := recover(); r != nil {
			c.failOpen("overlap check panicked", fmt.Errorf("%v", r))
			overlaps = true
		}
	}()
	if g == nil || len(g.Lat) == 0 || len(g.Lon) == 0 {
		return false
	}
	idx, err := c.indexFor(g.CRS)
	if err != nil {
		c.failOpen("polygons could not be transformed for overlap check", err)
		return true
	}
	ext := g.Bounds()
	box := &geom.Bounds{
		Min: geom.Point{X: ext.MinLon, Y: ext.MinLat},
		Max: geom.Point{X: ext.MaxLon, Y: ext.MaxLat},
	}
	degenerate := box.Min.X == box.Max.X || box.Min.Y == box.Max.Y
	for _, hit := range idx.tree.SearchIntersect(box) {
		p := hit.(*indexed)
		if !box.Overlaps(p.Bounds()) {
			continue
		}
		if degenerate {
			return true
		}
		if inter := p.Intersection(box); inter != nil && inter.Area() > 0 {
			return true
		}
		// A box corner on or in the polygon still counts as touching.
		if box.Min.Within(p.Polygonal) != geom.Outside || box.Max.Within(p.Polygonal) != geom.Outside {
			return true
		}
	}
	return false
}

// Clip crops g to the polygon-union bounds and sets pixels whose centres fall
// outside every polygon to NaN. A pixel centre on a polygon edge is kept.
// g is not modified.
func (c *Clipper) Clip(g *grid.ReprojectedGrid) (*grid.ReprojectedGrid, error) {
	if g == nil || g.Values == nil || len(g.Lat) == 0 || len(g.Lon) == 0 {
		return nil, ErrEmptyClip
	}
	idx, err := c.indexFor(g.CRS)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "clip", "transform polygons", c.source, err)
	}

	rows, cols := g.Shape()
	gt := g.GeoTransform(fallbackStep(g))
	window, ok := gt.Window(idx.bounds.Min.X, idx.bounds.Min.Y, idx.bounds.Max.X, idx.bounds.Max.Y, rows, cols)
	if !ok {
		return nil, ErrEmptyClip
	}

	values, err := g.Values.Slice(window.RowMin, window.RowMax, window.ColMin, window.ColMax)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "clip", "crop", window.String(), err)
	}
	crop := grid.GeoTransform{
		OriginX:     gt.OriginX + float64(window.ColMin)*gt.PixelWidth,
		OriginY:     gt.OriginY + float64(window.RowMin)*gt.PixelHeight,
		PixelWidth:  gt.PixelWidth,
		PixelHeight: gt.PixelHeight,
	}
	lat := make([]float64, window.Rows())
	lon := make([]float64, window.Cols())
	for r := range lat {
		_, lat[r] = crop.Center(r, 0)
	}
	for col := range lon {
		lon[col], _ = crop.Center(0, col)
	}

	inside := 0
	for r := range lat {
		for col := range lon {
			pt := geom.Point{X: lon[col], Y: lat[r]}
			if idx.contains(pt) {
				if !math.IsNaN(values.At(r, col)) {
					inside++
				}
				continue
			}
			values.Set(r, col, math.NaN())
		}
	}
	if inside == 0 {
		return nil, ErrEmptyClip
	}

	attrs := maps.Clone(g.Attributes)
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["clipped"] = "true"
	attrs["clip_source"] = c.source
	out, err := grid.NewReprojectedGrid(lat, lon, values, attrs)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "clip", "assemble grid", "", err)
	}
	out.CRS = g.CRS

	c.logger.Info("grid clipped",
		logging.String("window", window.String()),
		logging.Int("rows", window.Rows()),
		logging.Int("cols", window.Cols()),
		logging.Int("valid_pixels", inside),
	)
	return out, nil
}

func (idx *polygonIndex) contains(pt geom.Point) bool {
	probe := &geom.Bounds{Min: pt, Max: pt}
	for _, hit := range idx.tree.SearchIntersect(probe) {
		if pt.Within(hit.(*indexed).Polygonal) != geom.Outside {
			return true
		}
	}
	return false
}

// indexFor returns the polygon set in crs, transforming and indexing it on
// first use.
func (c *Clipper) indexFor(crs grid.CRS) (*polygonIndex, error) {
	key := crsKey(crs)
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, ok := c.indexes[key]; ok {
		return idx, nil
	}

	polys := c.polygons
	if !(c.geodetic && crs.EPSG == grid.WGS84.EPSG) {
		var err error
		polys, err = c.transform(crs)
		if err != nil {
			return nil, err
		}
	}

	idx := &polygonIndex{tree: rtree.NewTree(25, 50)}
	first := true
	for _, p := range polys {
		idx.tree.Insert(&indexed{Polygonal: p})
		b := p.Bounds()
		if first {
			idx.bounds = *b
			first = false
			continue
		}
		idx.bounds.Min.X = math.Min(idx.bounds.Min.X, b.Min.X)
		idx.bounds.Min.Y = math.Min(idx.bounds.Min.Y, b.Min.Y)
		idx.bounds.Max.X = math.Max(idx.bounds.Max.X, b.Max.X)
		idx.bounds.Max.Y = math.Max(idx.bounds.Max.Y, b.Max.Y)
	}
	c.indexes[key] = idx
	return idx, nil
}

func (c *Clipper) transform(crs grid.CRS) ([]geom.Polygonal, error) {
	def := crs.Proj4
	if def == "" {
		def = crs.WKT
	}
	dst, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse target crs %s: %w", crs, err)
	}
	trans, err := c.sr.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("build transform %s -> %s: %w", c.crs, crs, err)
	}
	out := make([]geom.Polygonal, 0, len(c.polygons))
	for i, p := range c.polygons {
		tg, err := p.Transform(trans)
		if err != nil {
			return nil, fmt.Errorf("transform polygon %d: %w", i, err)
		}
		tp, ok := tg.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("polygon %d is no longer polygonal after transform", i)
		}
		out = append(out, tp)
	}
	c.logger.Debug("polygons transformed",
		logging.String("from", c.crs),
		logging.String("to", crs.String()),
	)
	return out, nil
}

func (c *Clipper) failOpen(msg string, err error) {
	logging.WarnWithContext(c.logger, msg, "clip_overlap_fail_open",
		logging.Error(err),
		logging.String("source", c.source),
		logging.String(logging.FieldImpact, "overlap assumed; clipping will still be attempted"),
	)
}

func crsKey(crs grid.CRS) string {
	if crs.EPSG != 0 {
		return "epsg:" + strconv.Itoa(crs.EPSG)
	}
	if crs.Proj4 != "" {
		return crs.Proj4
	}
	return crs.WKT
}

func fallbackStep(g *grid.ReprojectedGrid) float64 {
	for _, axis := range [][]float64{g.Lon, g.Lat} {
		if len(axis) > 1 {
			return (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
		}
	}
	return 1e-6
}
