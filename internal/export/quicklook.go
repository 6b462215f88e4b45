package export

import (
	"context"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"misrgrid/internal/fileutil"
	"misrgrid/internal/grid"
)

// DefaultQuicklookWidthCM is the rendered width when none is configured.
const DefaultQuicklookWidthCM = 16

// QuicklookWriter renders a PNG heat map of the grid values with NaN cells
// left transparent.
type QuicklookWriter struct {
	WidthCM float64
	Colors  int
}

func (QuicklookWriter) Kind() string      { return KindQuicklook }
func (QuicklookWriter) Extension() string { return ".png" }

func (w QuicklookWriter) Write(ctx context.Context, path string, g *grid.ReprojectedGrid, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := w.plot(g, meta)
	if err != nil {
		return err
	}
	width := w.WidthCM
	if width <= 0 {
		width = DefaultQuicklookWidthCM
	}
	rows, cols := g.Shape()
	height := width
	if cols > 0 {
		height = width * float64(rows) / float64(cols)
	}
	height = math.Max(height, width/4)
	wt, err := p.WriterTo(vg.Length(width)*vg.Centimeter, vg.Length(height)*vg.Centimeter, "png")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		_, err := wt.WriteTo(out)
		return err
	})
}

func (w QuicklookWriter) plot(g *grid.ReprojectedGrid, meta Metadata) (*plot.Plot, error) {
	colors := w.Colors
	if colors <= 0 {
		colors = 64
	}
	data := heatGrid{g: g}
	hm := plotter.NewHeatMap(data, palette.Heat(colors, 1))
	hm.NaN = color.Transparent

	stats := grid.ComputeStats(g.Values)
	if stats.ValidPixels > 0 {
		hm.Min, hm.Max = stats.Min, stats.Max
		if hm.Max <= hm.Min {
			hm.Max = hm.Min + 1
		}
	} else {
		hm.Min, hm.Max = 0, 1
	}

	p := plot.New()
	p.Title.Text = g.Attributes["title"]
	if in, ok := meta["input_file"].(string); ok && p.Title.Text == "" {
		p.Title.Text = BaseName(in)
	}
	p.X.Label.Text = "Longitude (°)"
	p.Y.Label.Text = "Latitude (°)"
	p.Add(hm)
	return p, nil
}

// heatGrid adapts a ReprojectedGrid to plotter.GridXYZ.
type heatGrid struct {
	g *grid.ReprojectedGrid
}

func (h heatGrid) Dims() (c, r int) { return len(h.g.Lon), len(h.g.Lat) }

func (h heatGrid) Z(c, r int) float64 { return h.g.Values.At(r, c) }

func (h heatGrid) X(c int) float64 { return h.g.Lon[c] }

func (h heatGrid) Y(r int) float64 { return h.g.Lat[r] }
