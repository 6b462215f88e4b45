package export

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

func sampleGrid(t *testing.T) *grid.ReprojectedGrid {
	t.Helper()
	values := grid.Filled(3, 4, 2.0)
	values.Set(0, 0, math.NaN())
	values.Set(2, 3, 6.0)
	g, err := grid.NewReprojectedGrid(grid.Axis(10, 10.02, 0.01), grid.Axis(20, 20.03, 0.01), values,
		map[string]string{"title": "sample", "units": "W/m²/sr/μm"})
	require.NoError(t, err)
	return g
}

func TestFilename(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	tests := []struct {
		name string
		base string
		info NameInfo
		ts   time.Time
		want string
	}{
		{"bare", "scene", NameInfo{}, time.Time{}, "scene"},
		{"full", "MISR AM1", NameInfo{RedBand: true, ResolutionM: 275, Clipped: true, QAFiltered: true}, ts, "misr_am1_red_275m_clipped_qa_20240309_140507"},
		{"fractional resolution", "s", NameInfo{ResolutionM: 137.5}, time.Time{}, "s_137.5m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.base, tt.info, tt.ts))
		})
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "scene", BaseName("/data/scene.swath.json"))
	assert.Equal(t, "MISR_AM1_GRP", BaseName("MISR_AM1_GRP.hdf"))
	assert.Equal(t, ".hidden", BaseName("/x/.hidden"))
}

type recordingWriter struct {
	kind  string
	ext   string
	err   error
	calls []string
}

func (w *recordingWriter) Kind() string      { return w.kind }
func (w *recordingWriter) Extension() string { return w.ext }
func (w *recordingWriter) Write(_ context.Context, path string, _ *grid.ReprojectedGrid, _ Metadata) error {
	w.calls = append(w.calls, path)
	if w.err != nil {
		return w.err
	}
	return os.WriteFile(path, []byte("x"), 0o644)
}

func TestSetHonoursToggles(t *testing.T) {
	dir := t.TempDir()
	nc := &recordingWriter{kind: KindNetCDF, ext: ".nc"}
	tif := &recordingWriter{kind: KindGeoTIFF, ext: ".tif"}
	set := NewSet(Options{
		Dir:     dir,
		Enabled: []string{KindNetCDF, KindQuicklook},
		Name:    NameInfo{RedBand: true, ResolutionM: 275},
	}, logging.NewNop(), nc, tif)

	outputs, err := set.Export(context.Background(), sampleGrid(t), Metadata{"input_file": "/in/scene.hdf", "clipped": true})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{KindNetCDF: filepath.Join(dir, "scene_red_275m_clipped.nc")}, outputs)
	assert.Empty(t, tif.calls)
	assert.Equal(t, []string{KindQuicklook}, set.Missing())
}

func TestSetTimestamp(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(Options{Dir: dir, Enabled: []string{KindNetCDF}, AddTimestamp: true}, nil,
		&recordingWriter{kind: KindNetCDF, ext: ".nc"})
	set.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	outputs, err := set.Export(context.Background(), sampleGrid(t), Metadata{"input_file": "a.hdf"})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_20250102_030405.nc"), outputs[KindNetCDF])
}

func TestSetWriterFailure(t *testing.T) {
	boom := errors.New("disk full")
	set := NewSet(Options{Dir: t.TempDir(), Enabled: []string{KindNetCDF}}, nil,
		&recordingWriter{kind: KindNetCDF, ext: ".nc", err: boom})

	_, err := set.Export(context.Background(), sampleGrid(t), nil)

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, services.ErrExternalTool)
}

func TestSetNilGrid(t *testing.T) {
	set := NewSet(Options{Dir: t.TempDir()}, nil)
	_, err := set.Export(context.Background(), nil, nil)
	assert.ErrorIs(t, err, services.ErrNoData)
}

func TestQuicklookAndMetadataWriters(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(Options{Dir: dir, Enabled: []string{KindQuicklook, KindMetadata}}, nil,
		QuicklookWriter{WidthCM: 4}, MetadataWriter{})

	outputs, err := set.Export(context.Background(), sampleGrid(t), Metadata{
		"input_file": "scene.swath.json",
		"bounds":     map[string]any{"min_lat": math.NaN()},
	})
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	png, err := os.ReadFile(outputs[KindQuicklook])
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	raw, err := os.ReadFile(outputs[KindMetadata])
	require.NoError(t, err)
	var doc struct {
		Shape      [2]int         `json:"shape"`
		CRS        string         `json:"crs"`
		Statistics map[string]any `json:"statistics"`
		Processing map[string]any `json:"processing"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, [2]int{3, 4}, doc.Shape)
	assert.Equal(t, "EPSG:4326", doc.CRS)
	assert.EqualValues(t, 11, doc.Statistics["valid_pixels"])
	assert.EqualValues(t, 6, doc.Statistics["max"])
	assert.Nil(t, doc.Processing["bounds"].(map[string]any)["min_lat"])

	sum := Summarize(outputs)
	require.Len(t, sum.Files, 2)
	for _, f := range sum.Files {
		assert.True(t, f.Exists)
		assert.Positive(t, f.Size)
	}
	assert.Equal(t, sum.Files[0].Size+sum.Files[1].Size, sum.TotalSize)
}

func TestQuicklookAllNaN(t *testing.T) {
	values := grid.Filled(2, 2, math.NaN())
	g, err := grid.NewReprojectedGrid([]float64{0, 1}, []float64{0, 1}, values, nil)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "q.png")

	require.NoError(t, QuicklookWriter{}.Write(context.Background(), path, g, nil))
	assert.True(t, Summarize(map[string]string{KindQuicklook: path}).Files[0].Exists)
}

func TestSummarizeMissing(t *testing.T) {
	sum := Summarize(map[string]string{KindNetCDF: filepath.Join(t.TempDir(), "gone.nc")})
	require.Len(t, sum.Files, 1)
	assert.False(t, sum.Files[0].Exists)
	assert.Zero(t, sum.TotalSize)
}
