package batch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"misrgrid/internal/config"
	"misrgrid/internal/export"
	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/swath"
	"misrgrid/internal/testsupport"
)

// smallRegion keeps reprojected grids small enough for fast tests.
var smallRegion = testsupport.WithRegion(11, 21, 0.1)

func testSettings(t *testing.T, opts ...testsupport.ConfigOption) (Settings, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{smallRegion}, opts...)...)
	s, err := SettingsFromConfig(cfg)
	require.NoError(t, err)
	return s, cfg
}

type exportCall struct {
	grid *grid.ReprojectedGrid
	meta export.Metadata
}

// recordingExporter captures exported grids and reports one fake output.
type recordingExporter struct {
	mu    sync.Mutex
	dir   string
	calls []exportCall
	err   error
}

func (r *recordingExporter) Export(_ context.Context, g *grid.ReprojectedGrid, meta export.Metadata) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, exportCall{grid: g, meta: meta})
	name, _ := meta["input_file"].(string)
	return map[string]string{export.KindQuicklook: filepath.Join(r.dir, name+".png")}, nil
}

func (r *recordingExporter) Calls() []exportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]exportCall(nil), r.calls...)
}

func newTestProcessor(t *testing.T, settings Settings, opener swath.Opener) (*Processor, *recordingExporter) {
	t.Helper()
	exp := &recordingExporter{dir: settings.Output.Dir}
	p, err := NewProcessor(settings, Deps{Opener: opener, Exporter: exp, Logger: logging.NewNop()})
	require.NoError(t, err)
	return p, exp
}

type progressEvent struct {
	msg      string
	fraction float64
	index    int
	total    int
}

// panicSource panics while reading coordinates.
type panicSource struct {
	*swath.MemorySource
}

func (panicSource) Coordinates(context.Context) (grid.CoordinateGrid, error) {
	panic("corrupt geolocation table")
}
