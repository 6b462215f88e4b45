package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"misrgrid/internal/clip"
	"misrgrid/internal/export"
	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/qa"
	"misrgrid/internal/reproject"
	"misrgrid/internal/services"
	"misrgrid/internal/stageexec"
	"misrgrid/internal/swath"
)

// ErrBatchActive is returned by UpdateSettings while a batch is running.
var ErrBatchActive = errors.New("batch in progress")

// ProgressFunc receives per-file progress. Fractions never decrease.
type ProgressFunc func(message string, fraction float64)

// BatchProgressFunc receives batch progress with the 1-based index of the
// file that produced it. Calls are serialised.
type BatchProgressFunc func(message string, fraction float64, index, total int)

// Validation classifies inputs without processing them.
type Validation struct {
	Valid    []string `json:"valid_files"`
	Invalid  []string `json:"invalid_files"`
	Warnings []string `json:"warnings"`
}

// OK reports whether every input is usable.
func (v Validation) OK() bool { return len(v.Invalid) == 0 }

// Pipeline processes swath files into exported grids.
type Pipeline interface {
	ProcessSingleFile(ctx context.Context, path string, onProgress ProgressFunc) Result
	ProcessBatch(ctx context.Context, paths []string, onProgress BatchProgressFunc) []Result
	ValidateInputs(ctx context.Context, paths []string) Validation
	UpdateSettings(settings Settings) error
	Settings() Settings
}

// Deps are the collaborators of a Pipeline. Nil fields get defaults where one
// exists: the default swath registry, an exporter from NewExporter, and
// polygons loaded from Settings.Clip.Source.
type Deps struct {
	Opener      swath.Opener
	Exporter    export.Exporter
	Clipper     *clip.Clipper
	Toolkit     ToolkitRunner
	Logger      *slog.Logger
	StageLevels logging.StageLevels
}

// Select returns the pipeline for the settings variant.
func Select(settings Settings, deps Deps) (Pipeline, error) {
	switch settings.Variant.(type) {
	case GridVariant:
		return NewProcessor(settings, deps)
	case ToolkitVariant:
		if deps.Toolkit == nil {
			return nil, services.Wrap(services.ErrConfiguration, "settings", "select pipeline",
				"toolkit mode requires a toolkit runner", nil)
		}
		return NewToolkitPipeline(settings, deps)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "settings", "select pipeline", "processing variant not set", nil)
	}
}

// engine holds the state and stages shared by both pipelines.
type engine struct {
	logger *slog.Logger
	levels logging.StageLevels

	mu          sync.RWMutex
	settings    Settings
	exporter    export.Exporter
	ownExporter bool
	clipper     *clip.Clipper
	clipErr     error
	filter      *qa.Filter
	reproj      *reproject.Reprojector
	active      int
}

// snapshot is the per-file view of an engine, immune to UpdateSettings.
type snapshot struct {
	settings Settings
	exporter export.Exporter
	clipper  *clip.Clipper
	filter   *qa.Filter
	reproj   *reproject.Reprojector
}

func newEngine(settings Settings, deps Deps, component string) (*engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	e := &engine{
		logger:   logging.NewComponentLogger(deps.Logger, component),
		levels:   deps.StageLevels,
		exporter: deps.Exporter,
		clipper:  deps.Clipper,
	}
	e.reproj = reproject.New(settings.reprojectParams(), e.logger)
	if e.exporter == nil {
		e.ownExporter = true
	}
	if err := e.apply(settings); err != nil {
		return nil, err
	}
	return e, nil
}

// apply rebuilds the collaborators that derive from settings. Everything that
// can fail runs before the first mutation, so a rejected update leaves e
// untouched. Caller holds e.mu or owns e exclusively.
func (e *engine) apply(settings Settings) error {
	filter := qa.New(e.logger)
	filter.SetSource(settings.Quality.Source)
	for _, def := range settings.Quality.Custom {
		if err := filter.AddCustomFlag(def); err != nil {
			return services.Wrap(services.ErrConfiguration, "settings", "custom flag", def.Name, err)
		}
	}
	if settings.Quality.Enabled {
		filter.Enable(settings.Quality.Flags...)
	}

	e.settings = settings.clone()
	e.filter = filter
	e.reproj.SetParams(settings.reprojectParams())
	if e.ownExporter {
		e.exporter = NewExporter(e.settings, e.logger)
	}
	if settings.Clip.Enabled {
		e.loadClipper(settings.Clip.Source)
	}
	return nil
}

// loadClipper loads polygons. A failure is kept and reported by validation;
// files are then exported unclipped.
func (e *engine) loadClipper(source string) {
	if e.clipper != nil && e.clipper.Source() == source {
		return
	}
	e.clipper, e.clipErr = nil, nil
	c, err := clip.LoadGeometries(source, e.logger)
	if err != nil {
		e.clipErr = err
		logging.WarnWithContext(e.logger, "clip polygons could not be loaded", "clip_source_unusable",
			logging.String("source", source),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix clip.source or disable clipping"),
			logging.String(logging.FieldImpact, "outputs will not be clipped"),
		)
		return
	}
	e.clipper = c
	e.logger.Info("clip polygons loaded", logging.String("source", source), logging.Int("polygons", c.Len()))
}

func (e *engine) snapshot() snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot{
		settings: e.settings.clone(),
		exporter: e.exporter,
		clipper:  e.clipper,
		filter:   e.filter,
		reproj:   e.reproj.Snapshot(),
	}
}

// Settings returns a copy of the current settings.
func (e *engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings.clone()
}

// Reprojector exposes the shared reprojector. Params set on it directly apply
// from the next file; UpdateSettings replaces them.
func (e *engine) Reprojector() *reproject.Reprojector { return e.reproj }

func (e *engine) update(settings Settings, check func(Settings) error) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active > 0 {
		return ErrBatchActive
	}
	if check != nil {
		if err := check(settings); err != nil {
			return err
		}
	}
	if err := e.apply(settings); err != nil {
		return err
	}
	e.logger.Info("settings updated", logging.String("mode", settings.Mode()))
	return nil
}

func (e *engine) begin() {
	e.mu.Lock()
	e.active++
	e.mu.Unlock()
}

func (e *engine) end() {
	e.mu.Lock()
	e.active--
	e.mu.Unlock()
}

// stepper runs the states of one file.
type stepper struct {
	opts    stageexec.Options
	builder *resultBuilder
}

func (e *engine) newStepper(ctx context.Context, path string, onProgress ProgressFunc) (context.Context, *stepper) {
	ctx = services.WithInputFile(ctx, path)
	st := &stepper{
		builder: newResultBuilder(path),
		opts: stageexec.Options{
			Logger:     logging.WithContext(ctx, e.logger),
			Levels:     e.levels,
			OnProgress: onProgress,
		},
	}
	return ctx, st
}

func (s *stepper) run(ctx context.Context, state State, message string, fn func(ctx context.Context) error) error {
	s.builder.enter(state)
	if message == "" {
		message = stateMessages[state]
	}
	return stageexec.Run(ctx, s.opts, stageexec.Step{
		Name:     string(state),
		Message:  message,
		Progress: state.Progress(),
		Run:      fn,
	})
}

// finish finalises the result, logs it and reports the terminal progress.
func (e *engine) finish(st *stepper, outputs map[string]string, err error) Result {
	res := st.builder.finish(outputs, err)
	logger := st.opts.Logger
	if res.Success {
		logger.Info("file processed",
			logging.String(logging.FieldEventType, "file_complete"),
			logging.Duration("elapsed", res.Elapsed),
			logging.Int("outputs", len(res.OutputFiles)),
		)
		if st.opts.OnProgress != nil {
			st.opts.OnProgress(stateMessages[StateDone], StateDone.Progress())
		}
		return res
	}
	logger.Error("file failed",
		logging.String(logging.FieldEventType, "file_failed"),
		logging.String("error_kind", res.Error.Kind),
		logging.String("failed_state", string(res.FinalState)),
		logging.String("error_message", res.Error.Message),
		logging.Duration("elapsed", res.Elapsed),
	)
	if st.opts.OnProgress != nil {
		st.opts.OnProgress("Error: "+res.Error.Message, StateFailed.Progress())
	}
	return res
}

// guard converts a panic in fn into an error and logs the stack.
func (s *stepper) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", s.builder.state, r)
			s.opts.Logger.Error("recovered panic",
				logging.String(logging.FieldEventType, "file_panic"),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()
	return fn()
}

// clipStep clips g when clipping is enabled and the polygons overlap it.
// With no usable polygons or no overlap g is returned unchanged.
func (e *engine) clipStep(ctx context.Context, st *stepper, snap snapshot, g *grid.ReprojectedGrid) (*grid.ReprojectedGrid, error) {
	st.builder.set("clipped", false)
	if !snap.settings.Clip.Enabled {
		return g, nil
	}
	if snap.clipper == nil {
		logging.WarnWithContext(st.opts.Logger, "clipping enabled without usable polygons", "clip_skipped",
			logging.String("source", snap.settings.Clip.Source),
			logging.String(logging.FieldErrorHint, "run validate to see why the polygon source failed"),
			logging.String(logging.FieldImpact, "output is not clipped"),
		)
		return g, nil
	}
	out := g
	err := st.run(ctx, StateClipping, "", func(context.Context) error {
		if !snap.clipper.CheckOverlap(g) {
			logging.WarnWithContext(st.opts.Logger, "no overlap with clip polygons", "clip_no_overlap",
				logging.String("source", snap.clipper.Source()),
				logging.String(logging.FieldErrorHint, "check the target region against the polygon extent"),
				logging.String(logging.FieldImpact, "output is not clipped"),
			)
			return nil
		}
		clipped, err := snap.clipper.Clip(g)
		if errors.Is(err, clip.ErrEmptyClip) {
			return services.Wrap(services.ErrNoData, string(StateClipping), "clip", "clipping left no valid pixels", err)
		}
		if err != nil {
			return services.Wrap(services.ErrValidation, string(StateClipping), "clip", "", err)
		}
		out = clipped
		st.builder.set("clipped", true)
		return nil
	})
	return out, err
}

// exportStep hands g and its metadata to the exporter.
func (e *engine) exportStep(ctx context.Context, st *stepper, snap snapshot, g *grid.ReprojectedGrid, processor string) (map[string]string, error) {
	stats := grid.ComputeStats(g.Values)
	st.builder.set("bounds", g.Bounds())
	st.builder.set("statistics", stats)
	st.builder.set("processor", processor)
	st.builder.set("shape", [2]int{len(g.Lat), len(g.Lon)})

	meta := export.Metadata{
		"input_file": filepath.Base(st.builder.res.InputFile),
		"processor":  processor,
		"statistics": stats,
		"bounds":     g.Bounds(),
	}
	for _, key := range []string{"clipped", "qa_filtered"} {
		if v, ok := st.builder.res.Metadata[key]; ok {
			meta[key] = v
		}
	}

	var outputs map[string]string
	err := st.run(ctx, StateExport, "", func(ctx context.Context) error {
		var err error
		outputs, err = snap.exporter.Export(ctx, g, meta)
		return err
	})
	return outputs, err
}

// runBatch processes paths with single, in input order, with at most
// workers files in flight. Cancellation is checked before each file starts;
// a started file runs to completion.
func (e *engine) runBatch(ctx context.Context, paths []string, onProgress BatchProgressFunc, single func(context.Context, string, ProgressFunc) Result) []Result {
	e.begin()
	defer e.end()

	total := len(paths)
	results := make([]Result, total)
	workers := max(e.Settings().Workers, 1)
	logger := logging.WithContext(ctx, e.logger)
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int(logging.FieldFileCount, total),
		logging.Int("workers", workers),
	)

	var progressMu sync.Mutex
	report := func(i int) ProgressFunc {
		if onProgress == nil {
			return nil
		}
		return func(msg string, fraction float64) {
			progressMu.Lock()
			defer progressMu.Unlock()
			onProgress(msg, (float64(i)+fraction)/float64(total), i+1, total)
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			results[i] = cancelledResult(path, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = cancelledResult(path, err)
				return nil
			}
			fileCtx := context.WithoutCancel(ctx)
			logger.Info("processing file",
				logging.Int(logging.FieldFileIndex, i+1),
				logging.Int(logging.FieldFileCount, total),
				logging.String(logging.FieldInputFile, path),
			)
			results[i] = single(fileCtx, path, report(i))
			return nil
		})
	}
	_ = g.Wait()

	sum := Summarize(results)
	logger.Info("batch complete",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("successful", sum.Successful),
		logging.Int("failed", sum.Failed),
		logging.Duration("total_elapsed", sum.TotalElapsed),
	)
	return results
}

// validateCommon reports output, clip and exporter problems as warnings.
func (e *engine) validateCommon(ctx context.Context, v *Validation) {
	snap := e.snapshot()
	v.Warnings = append(v.Warnings, outputWarnings(snap.settings.Output.Dir)...)
	if snap.settings.Clip.Enabled {
		v.Warnings = append(v.Warnings, clipWarnings(ctx, snap.settings.Clip.Source)...)
	}
	if m, ok := snap.exporter.(interface{ Missing() []string }); ok {
		for _, kind := range m.Missing() {
			v.Warnings = append(v.Warnings, fmt.Sprintf("Output kind %s is enabled but no writer is installed", kind))
		}
	}
}
