package batch

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"misrgrid/internal/config"
	"misrgrid/internal/export"
	"misrgrid/internal/logging"
	"misrgrid/internal/qa"
	"misrgrid/internal/services"
	"misrgrid/internal/swath"
	"misrgrid/internal/testsupport"
)

func TestProcessSingleFileProducesUniformGrid(t *testing.T) {
	settings, _ := testSettings(t)
	spec := testsupport.DefaultSwath()
	src := spec.Memory("a.swath.json")
	p, exp := newTestProcessor(t, settings, swath.MemoryOpener{"a.swath.json": src})

	var events []progressEvent
	res := p.ProcessSingleFile(context.Background(), "a.swath.json", func(msg string, f float64) {
		events = append(events, progressEvent{msg: msg, fraction: f})
	})

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, StateDone, res.FinalState)
	assert.Nil(t, res.Error)
	assert.Contains(t, res.OutputFiles, export.KindQuicklook)
	assert.Equal(t, false, res.Metadata["clipped"])
	assert.Equal(t, false, res.Metadata["qa_filtered"])
	assert.Equal(t, config.ModeGrid, res.Metadata["processor"])
	assert.Positive(t, res.Elapsed)
	assert.Equal(t, 1, src.Closed(), "source must be closed exactly once")

	calls := exp.Calls()
	require.Len(t, calls, 1)
	g := calls[0].grid
	assert.Positive(t, g.ValidCount())
	for _, v := range g.Values.Data {
		if !math.IsNaN(v) {
			assert.InDelta(t, 5.0, v, 1e-9)
		}
	}
	ext := g.Bounds()
	assert.GreaterOrEqual(t, ext.MinLat, 10.89)
	assert.LessOrEqual(t, ext.MaxLat, 11.11)

	require.NotEmpty(t, events)
	assert.Equal(t, "Loading a.swath.json", events[0].msg)
	assert.Equal(t, 0.0, events[0].fraction)
	assert.Equal(t, 1.0, events[len(events)-1].fraction)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].fraction, events[i-1].fraction, "progress went backwards at %q", events[i].msg)
	}
	var msgs []string
	for _, e := range events {
		msgs = append(msgs, e.msg)
	}
	assert.Contains(t, msgs, "Reprojecting to WGS84")
	assert.NotContains(t, msgs, "Applying QA filtering")
	assert.NotContains(t, msgs, "Clipping to polygons")
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	settings, _ := testSettings(t)
	opener := swath.MemoryOpener{
		"first.swath.json": testsupport.DefaultSwath().Memory("first.swath.json"),
		"third.swath.json": testsupport.DefaultSwath().Memory("third.swath.json"),
	}
	p, _ := newTestProcessor(t, settings, opener)

	paths := []string{"first.swath.json", "missing.swath.json", "third.swath.json"}
	results := p.ProcessBatch(context.Background(), paths, nil)

	require.Len(t, results, 3)
	for i, path := range paths {
		assert.Equal(t, path, results[i].InputFile, "results must keep input order")
	}
	assert.True(t, results[0].Success)
	assert.True(t, results[2].Success)
	require.False(t, results[1].Success)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, services.KindNotFound, results[1].Error.Kind)
	assert.NotEmpty(t, results[1].Error.Message)
	assert.Equal(t, StateLoading, results[1].FinalState)
}

func TestProcessBatchProgressSlots(t *testing.T) {
	settings, _ := testSettings(t)
	opener := swath.MemoryOpener{
		"a": testsupport.DefaultSwath().Memory("a"),
		"b": testsupport.DefaultSwath().Memory("b"),
	}
	p, _ := newTestProcessor(t, settings, opener)

	var events []progressEvent
	p.ProcessBatch(context.Background(), []string{"a", "b"}, func(msg string, f float64, index, total int) {
		events = append(events, progressEvent{msg: msg, fraction: f, index: index, total: total})
	})

	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, 2, e.total)
		lo := float64(e.index-1) / 2
		hi := float64(e.index) / 2
		assert.GreaterOrEqual(t, e.fraction, lo, "%q", e.msg)
		assert.LessOrEqual(t, e.fraction, hi, "%q", e.msg)
	}
	assert.Equal(t, 1, events[0].index)
	assert.Equal(t, 2, events[len(events)-1].index)
	assert.Equal(t, 1.0, events[len(events)-1].fraction)
}

func TestProcessBatchWorkersKeepOrder(t *testing.T) {
	settings, _ := testSettings(t, testsupport.WithWorkers(3))
	opener := swath.MemoryOpener{}
	var paths []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		opener[name] = testsupport.DefaultSwath().Memory(name)
		paths = append(paths, name)
	}
	paths = append(paths, "missing")
	p, exp := newTestProcessor(t, settings, opener)

	results := p.ProcessBatch(context.Background(), paths, nil)
	require.Len(t, results, len(paths))
	for i, path := range paths {
		assert.Equal(t, path, results[i].InputFile)
	}
	sum := Summarize(results)
	assert.Equal(t, 5, sum.Successful)
	assert.Equal(t, 1, sum.Failed)
	assert.Len(t, exp.Calls(), 5)
}

func TestRegionMissIsNoData(t *testing.T) {
	settings, _ := testSettings(t, testsupport.WithRegion(45, 21, 0.5))
	p, exp := newTestProcessor(t, settings, swath.MemoryOpener{"a": testsupport.DefaultSwath().Memory("a")})

	res := p.ProcessSingleFile(context.Background(), "a", nil)
	require.False(t, res.Success)
	assert.Equal(t, services.KindNoData, res.Error.Kind)
	assert.Equal(t, StateRegionSearch, res.FinalState)
	assert.Contains(t, res.Error.Message, "no data found in target region")
	assert.Empty(t, exp.Calls())
}

func TestQualityFilterMasksPixels(t *testing.T) {
	t.Run("all rejected", func(t *testing.T) {
		settings, _ := testSettings(t, testsupport.WithQualityFlags(qa.FlagCloudDetected))
		spec := testsupport.DefaultSwath()
		spec.WithQuality = true
		spec.Quality = 1
		p, _ := newTestProcessor(t, settings, swath.MemoryOpener{"a": spec.Memory("a")})

		res := p.ProcessSingleFile(context.Background(), "a", nil)
		require.False(t, res.Success)
		assert.Equal(t, services.KindNoData, res.Error.Kind)
		assert.Equal(t, StateReprojection, res.FinalState)
		assert.Equal(t, true, res.Metadata["qa_filtered"])
	})

	t.Run("all kept", func(t *testing.T) {
		settings, _ := testSettings(t, testsupport.WithQualityFlags(qa.FlagCloudDetected))
		spec := testsupport.DefaultSwath()
		spec.WithQuality = true
		spec.Quality = 2
		p, exp := newTestProcessor(t, settings, swath.MemoryOpener{"a": spec.Memory("a")})

		res := p.ProcessSingleFile(context.Background(), "a", nil)
		require.True(t, res.Success, "error: %+v", res.Error)
		assert.Equal(t, true, res.Metadata["qa_filtered"])
		assert.Equal(t, []string{qa.FlagCloudDetected}, res.Metadata["qa_flags"])
		require.Len(t, exp.Calls(), 1)
		assert.Equal(t, true, exp.Calls()[0].meta["qa_filtered"])
	})

	t.Run("no quality data", func(t *testing.T) {
		settings, _ := testSettings(t, testsupport.WithQualityFlags(qa.FlagCloudDetected))
		p, _ := newTestProcessor(t, settings, swath.MemoryOpener{"a": testsupport.DefaultSwath().Memory("a")})

		res := p.ProcessSingleFile(context.Background(), "a", nil)
		require.True(t, res.Success, "error: %+v", res.Error)
		assert.Equal(t, false, res.Metadata["qa_filtered"])
	})
}

func TestScaledValueArray(t *testing.T) {
	settings, _ := testSettings(t)
	spec := testsupport.DefaultSwath()
	spec.Rows, spec.Cols = 25, 25
	spec.ValueScale = 4
	p, exp := newTestProcessor(t, settings, swath.MemoryOpener{"a": spec.Memory("a")})

	res := p.ProcessSingleFile(context.Background(), "a", nil)
	require.True(t, res.Success, "error: %+v", res.Error)
	require.Len(t, exp.Calls(), 1)
	assert.Positive(t, exp.Calls()[0].grid.ValidCount())
}

func TestScatteredNaNDoesNotFail(t *testing.T) {
	settings, _ := testSettings(t)
	spec := testsupport.DefaultSwath()
	spec.NaNFraction = 0.1
	spec.Seed = 7
	p, exp := newTestProcessor(t, settings, swath.MemoryOpener{"a": spec.Memory("a")})

	res := p.ProcessSingleFile(context.Background(), "a", nil)
	require.True(t, res.Success, "error: %+v", res.Error)
	for _, v := range exp.Calls()[0].grid.Values.Data {
		if !math.IsNaN(v) {
			assert.InDelta(t, 5.0, v, 1e-9)
		}
	}
}

func TestPanicIsRecordedAsInternal(t *testing.T) {
	settings, _ := testSettings(t)
	src := panicSource{testsupport.DefaultSwath().Memory("bad")}
	opener := swath.OpenerFunc(func(context.Context, string) (swath.Source, error) { return src, nil })
	p, _ := newTestProcessor(t, settings, opener)

	results := p.ProcessBatch(context.Background(), []string{"bad"}, nil)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	assert.Equal(t, services.KindInternal, results[0].Error.Kind)
	assert.Contains(t, results[0].Error.Message, "corrupt geolocation table")
	assert.Equal(t, 1, src.Closed(), "source must be closed after a panic")
}

func TestValidationFailureStopsFile(t *testing.T) {
	settings, _ := testSettings(t)
	src := testsupport.DefaultSwath().Memory("a")
	src.InvalidErr = errors.New("truncated block")
	p, _ := newTestProcessor(t, settings, swath.MemoryOpener{"a": src})

	res := p.ProcessSingleFile(context.Background(), "a", nil)
	require.False(t, res.Success)
	assert.Equal(t, services.KindValidation, res.Error.Kind)
	assert.Contains(t, res.Error.Message, "truncated block")
}

func TestExportFailureIsRecorded(t *testing.T) {
	settings, _ := testSettings(t)
	exp := &recordingExporter{err: services.Wrap(services.ErrExternalTool, "export", "write", "disk full", nil)}
	p, err := NewProcessor(settings, Deps{
		Opener:   swath.MemoryOpener{"a": testsupport.DefaultSwath().Memory("a")},
		Exporter: exp,
		Logger:   logging.NewNop(),
	})
	require.NoError(t, err)

	res := p.ProcessSingleFile(context.Background(), "a", nil)
	require.False(t, res.Success)
	assert.Equal(t, services.KindExternalTool, res.Error.Kind)
	assert.Equal(t, StateExport, res.FinalState)
}

func TestCancelledBeforeStart(t *testing.T) {
	settings, _ := testSettings(t)
	p, exp := newTestProcessor(t, settings, swath.MemoryOpener{"a": testsupport.DefaultSwath().Memory("a")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := p.ProcessBatch(ctx, []string{"a", "b"}, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, services.KindCancelled, r.Error.Kind)
	}
	assert.Empty(t, exp.Calls())
}

func TestCancelBetweenFiles(t *testing.T) {
	settings, _ := testSettings(t)
	opener := swath.MemoryOpener{
		"a": testsupport.DefaultSwath().Memory("a"),
		"b": testsupport.DefaultSwath().Memory("b"),
		"c": testsupport.DefaultSwath().Memory("c"),
	}
	p, exp := newTestProcessor(t, settings, opener)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := p.ProcessBatch(ctx, []string{"a", "b", "c"}, func(msg string, _ float64, index, _ int) {
		// Cancel mid-file: the first file must still finish.
		if index == 1 && msg == "Reprojecting to WGS84" {
			cancel()
		}
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].Success, "in-flight file must complete: %+v", results[0].Error)
	for _, r := range results[1:] {
		require.False(t, r.Success)
		assert.Equal(t, services.KindCancelled, r.Error.Kind)
	}
	assert.Len(t, exp.Calls(), 1)
}

func TestUpdateSettingsRejectedWhileBatchActive(t *testing.T) {
	settings, _ := testSettings(t)
	started := make(chan struct{})
	release := make(chan struct{})
	src := testsupport.DefaultSwath().Memory("a")
	opener := swath.OpenerFunc(func(context.Context, string) (swath.Source, error) {
		close(started)
		<-release
		return src, nil
	})
	p, _ := newTestProcessor(t, settings, opener)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.ProcessBatch(context.Background(), []string{"a"}, nil)
	}()
	<-started

	next := p.Settings()
	next.Region.TargetLat = 10.5
	assert.ErrorIs(t, p.UpdateSettings(next), ErrBatchActive)

	close(release)
	wg.Wait()

	require.NoError(t, p.UpdateSettings(next))
	assert.Equal(t, 10.5, p.Settings().Region.TargetLat)
	assert.Equal(t, 10.5, p.Reprojector().Params().TargetLat)
}

func TestRejectedUpdateLeavesPipelineUnchanged(t *testing.T) {
	settings, _ := testSettings(t)
	src := testsupport.DefaultSwath().Memory("a")
	p, _ := newTestProcessor(t, settings, swath.MemoryOpener{"a": src})
	before := p.Reprojector().Params()

	next := p.Settings()
	next.Region.TargetLat, next.Region.TargetLon = 50, 50
	next.Quality.Custom = append(next.Quality.Custom, qa.FlagDef{Name: "wide", Field: qa.Bits(5, 40), ValidValues: []uint32{0}})

	err := p.UpdateSettings(next)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrConfiguration)

	assert.Equal(t, before, p.Reprojector().Params())
	assert.Equal(t, 11.0, p.Settings().Region.TargetLat)
	assert.Equal(t, 21.0, p.Settings().Region.TargetLon)

	res := p.ProcessSingleFile(context.Background(), "a", nil)
	assert.True(t, res.Success, "error: %+v", res.Error)
}

func TestReprojectorChangesApplyFromNextFile(t *testing.T) {
	settings, _ := testSettings(t)
	src := testsupport.DefaultSwath().Memory("a")
	var p *Processor
	moved := false
	opener := swath.OpenerFunc(func(context.Context, string) (swath.Source, error) {
		if !moved {
			moved = true
			p.Reprojector().UpdateTargetRegion(50, 50, nil)
		}
		return src, nil
	})
	p, _ = newTestProcessor(t, settings, opener)

	first := p.ProcessSingleFile(context.Background(), "a", nil)
	assert.True(t, first.Success, "file in flight must keep its target: %+v", first.Error)

	second := p.ProcessSingleFile(context.Background(), "a", nil)
	require.False(t, second.Success)
	assert.Equal(t, services.KindNoData, second.Error.Kind)
	assert.Equal(t, StateRegionSearch, second.FinalState)
}

func TestClippingRecordsMetadata(t *testing.T) {
	dir := t.TempDir()

	t.Run("overlap", func(t *testing.T) {
		source := testsupport.SquareGeoJSON(t, filepath.Join(dir, "in"), 10.95, 20.95, 11.05, 21.05)
		settings, _ := testSettings(t, testsupport.WithClipSource(source))
		p, exp := newTestProcessor(t, settings, swath.MemoryOpener{"a": testsupport.DefaultSwath().Memory("a")})

		res := p.ProcessSingleFile(context.Background(), "a", nil)
		require.True(t, res.Success, "error: %+v", res.Error)
		assert.Equal(t, true, res.Metadata["clipped"])
		g := exp.Calls()[0].grid
		ext := g.Bounds()
		assert.GreaterOrEqual(t, ext.MinLat, 10.94)
		assert.LessOrEqual(t, ext.MaxLat, 11.06)
		assert.Equal(t, "true", g.Attributes["clipped"])
	})

	t.Run("no overlap", func(t *testing.T) {
		source := testsupport.SquareGeoJSON(t, filepath.Join(dir, "out"), -40, -40, -39, -39)
		settings, _ := testSettings(t, testsupport.WithClipSource(source))
		p, _ := newTestProcessor(t, settings, swath.MemoryOpener{"a": testsupport.DefaultSwath().Memory("a")})

		res := p.ProcessSingleFile(context.Background(), "a", nil)
		require.True(t, res.Success, "error: %+v", res.Error)
		assert.Equal(t, false, res.Metadata["clipped"])
	})
}

func TestEndToEndWithFixturesAndDefaultExporter(t *testing.T) {
	settings, cfg := testSettings(t)
	dir := testsupport.BaseDir(cfg)
	good := testsupport.WriteSwath(t, dir, "MISR_AM1_GOOD", testsupport.DefaultSwath())

	p, err := NewProcessor(settings, Deps{Logger: logging.NewNop()})
	require.NoError(t, err)

	results := p.ProcessBatch(context.Background(), []string{good, filepath.Join(dir, "missing.swath.json")}, nil)
	require.Len(t, results, 2)
	require.True(t, results[0].Success, "error: %+v", results[0].Error)
	assert.Equal(t, services.KindNotFound, results[1].Error.Kind)

	for _, kind := range []string{export.KindQuicklook, export.KindMetadata} {
		path, ok := results[0].OutputFiles[kind]
		require.True(t, ok, "missing %s output", kind)
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr)
		assert.Equal(t, cfg.Output.Dir, filepath.Dir(path))
	}
}

func TestValidateInputs(t *testing.T) {
	settings, cfg := testSettings(t, testsupport.WithClipSource("/nonexistent/region.geojson"))
	settings.Output.Kinds = append(settings.Output.Kinds, export.KindNetCDF)
	dir := testsupport.BaseDir(cfg)
	good := testsupport.WriteSwath(t, dir, "good", testsupport.DefaultSwath())
	bad := testsupport.WriteText(t, filepath.Join(dir, "bad"+swath.FixtureExtension), "{not json")

	p, err := NewProcessor(settings, Deps{Logger: logging.NewNop()})
	require.NoError(t, err)

	v := p.ValidateInputs(context.Background(), []string{good, bad, filepath.Join(dir, "missing.swath.json")})
	assert.Equal(t, []string{good}, v.Valid)
	assert.Len(t, v.Invalid, 2)
	assert.False(t, v.OK())
	assert.Contains(t, v.Warnings, "Output kind netcdf is enabled but no writer is installed")
	var clipWarned bool
	for _, w := range v.Warnings {
		if strings.HasPrefix(w, "Invalid polygon source") {
			clipWarned = true
		}
	}
	assert.True(t, clipWarned, "warnings: %v", v.Warnings)
}

func TestSummarize(t *testing.T) {
	empty := Summarize(nil)
	assert.Zero(t, empty.TotalFiles)
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.AverageElapsed)
	assert.Empty(t, empty.Errors)

	results := []Result{
		{InputFile: "a", Success: true, Elapsed: 2e9, OutputFiles: map[string]string{"quicklook": "a.png", "metadata": "a.json"}},
		{InputFile: "b", Error: &ErrorInfo{Kind: services.KindNoData, Message: "no region"}, Elapsed: 1e9},
		{InputFile: "c", Error: &ErrorInfo{Kind: services.KindNoData, Message: "no region"}, Elapsed: 1e9},
		{InputFile: "d", Error: &ErrorInfo{Kind: services.KindNotFound, Message: "missing"}},
	}
	sum := Summarize(results)
	assert.Equal(t, 4, sum.TotalFiles)
	assert.Equal(t, 1, sum.Successful)
	assert.Equal(t, 3, sum.Failed)
	assert.InDelta(t, 25.0, sum.SuccessRate, 1e-9)
	assert.Equal(t, int64(4e9), int64(sum.TotalElapsed))
	assert.Equal(t, int64(1e9), int64(sum.AverageElapsed))
	assert.Equal(t, map[string]int{"no region": 2, "missing": 1}, sum.Errors)
	assert.Equal(t, map[string]int{services.KindNoData: 2, services.KindNotFound: 1}, sum.ErrorKinds)
	assert.Equal(t, []string{"a.json", "a.png"}, sum.OutputFiles)
}

func TestResultCloneIsIndependent(t *testing.T) {
	r := Result{OutputFiles: map[string]string{"k": "v"}, Metadata: map[string]any{"m": 1}, Error: &ErrorInfo{Message: "x"}}
	c := r.Clone()
	c.OutputFiles["k"] = "changed"
	c.Metadata["m"] = 2
	c.Error.Message = "y"
	assert.Equal(t, "v", r.OutputFiles["k"])
	assert.Equal(t, 1, r.Metadata["m"])
	assert.Equal(t, "x", r.Error.Message)
}
