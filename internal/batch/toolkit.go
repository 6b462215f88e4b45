package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"misrgrid/internal/config"
	"misrgrid/internal/grid"
	"misrgrid/internal/qa"
	"misrgrid/internal/reproject"
	"misrgrid/internal/services"
)

// ToolkitExtensions are the container extensions a toolkit runner reads.
var ToolkitExtensions = []string{".hdf", ".he5"}

// ToolkitBlock is a projected block read between two corners: packed RDQI
// samples and the geolocation of every sample.
type ToolkitBlock struct {
	Raw    *grid.Matrix[uint32]
	Coords grid.CoordinateGrid
	// ResolutionM is the block's ground resolution; zero keeps the
	// configured value.
	ResolutionM float64
}

// ToolkitRunner reads blocks from swath containers the grid pipeline cannot
// open. Implementations live outside this repository.
type ToolkitRunner interface {
	ReadBlock(ctx context.Context, path string, region ToolkitVariant) (ToolkitBlock, error)
}

// ToolkitPipeline is the Pipeline for ToolkitVariant settings.
type ToolkitPipeline struct {
	*engine
	runner ToolkitRunner
}

var _ Pipeline = (*ToolkitPipeline)(nil)

// NewToolkitPipeline builds a toolkit pipeline around deps.Toolkit.
func NewToolkitPipeline(settings Settings, deps Deps) (*ToolkitPipeline, error) {
	if _, ok := settings.Variant.(ToolkitVariant); !ok {
		return nil, services.Wrap(services.ErrConfiguration, "settings", "new toolkit pipeline", "toolkit variant required", nil)
	}
	if deps.Toolkit == nil {
		return nil, services.Wrap(services.ErrConfiguration, "settings", "new toolkit pipeline", "toolkit runner not available", nil)
	}
	eng, err := newEngine(settings, deps, "toolkit")
	if err != nil {
		return nil, err
	}
	return &ToolkitPipeline{engine: eng, runner: deps.Toolkit}, nil
}

// UpdateSettings replaces the settings between batches.
func (t *ToolkitPipeline) UpdateSettings(settings Settings) error {
	return t.update(settings, func(s Settings) error {
		if _, ok := s.Variant.(ToolkitVariant); !ok {
			return services.Wrap(services.ErrConfiguration, "settings", "update", "toolkit variant required", nil)
		}
		return nil
	})
}

// ProcessBatch processes paths in order and returns one Result per path.
func (t *ToolkitPipeline) ProcessBatch(ctx context.Context, paths []string, onProgress BatchProgressFunc) []Result {
	return t.runBatch(ctx, paths, onProgress, t.ProcessSingleFile)
}

// ProcessSingleFile reads the configured block, decodes it and continues
// with reprojection, clipping and export.
func (t *ToolkitPipeline) ProcessSingleFile(ctx context.Context, path string, onProgress ProgressFunc) Result {
	snap := t.snapshot()
	ctx, st := t.newStepper(ctx, path, onProgress)
	var outputs map[string]string
	err := st.guard(func() error {
		var err error
		outputs, err = t.process(ctx, st, snap, path)
		return err
	})
	return t.finish(st, outputs, err)
}

func (t *ToolkitPipeline) process(ctx context.Context, st *stepper, snap snapshot, path string) (map[string]string, error) {
	variant := snap.settings.Variant.(ToolkitVariant)
	var (
		block  ToolkitBlock
		values *grid.Matrix[float64]
		out    *grid.ReprojectedGrid
	)
	st.builder.set("qa_filtered", false)

	err := st.run(ctx, StateLoading, "Loading "+filepath.Base(path), func(ctx context.Context) error {
		if err := checkToolkitFile(path); err != nil {
			return err
		}
		var err error
		block, err = t.runner.ReadBlock(ctx, path, variant)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, string(StateLoading), "read block", variant.FieldName, err)
		}
		if block.Raw == nil || block.Coords.Empty() {
			return services.Wrap(services.ErrNoData, string(StateLoading), "read block", "toolkit returned an empty block", nil)
		}
		rows, cols := block.Coords.Shape()
		if !block.Raw.SameShape(rows, cols) {
			return services.Wrap(services.ErrValidation, string(StateLoading), "read block",
				fmt.Sprintf("block %dx%d does not match geolocation %dx%d", block.Raw.Rows, block.Raw.Cols, rows, cols), nil)
		}
		st.builder.set("region", map[string]float64{
			"ulc_lat": variant.ULCLat, "ulc_lon": variant.ULCLon,
			"lrc_lat": variant.LRCLat, "lrc_lon": variant.LRCLon,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = st.run(ctx, StateQualityFilter, "", func(context.Context) error {
		values = qa.DecodeRDQI(block.Raw, variant.ApplyQualityFilter)
		applied := variant.ApplyQualityFilter
		if snap.settings.Quality.Enabled {
			var ok bool
			values, ok = snap.filter.Apply(values, block.Raw)
			applied = applied || ok
		}
		st.builder.set("qa_filtered", applied)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = st.run(ctx, StateReprojection, "", func(context.Context) error {
		reproj := snap.reproj
		if block.ResolutionM > 0 {
			params := reproj.Params()
			params.GroundResolutionM = block.ResolutionM
			reproj = reproject.New(params, st.opts.Logger)
		}
		g, err := reproj.ReprojectToRegularGrid(block.Coords, values)
		if err != nil {
			return services.Wrap(services.ErrValidation, string(StateReprojection), "interpolate", "", err)
		}
		if g == nil {
			return services.Wrap(services.ErrNoData, string(StateReprojection), "interpolate", "reprojection failed - no valid data", nil)
		}
		g.Attributes["field_name"] = variant.FieldName
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	clipped, err := t.clipStep(ctx, st, snap, out)
	if err != nil {
		return nil, err
	}
	return t.exportStep(ctx, st, snap, clipped, config.ModeToolkit)
}

// ValidateInputs applies the toolkit file rules: the file must exist with a
// container extension. Names without "MISR" are accepted with a warning.
func (t *ToolkitPipeline) ValidateInputs(ctx context.Context, paths []string) Validation {
	var v Validation
	for _, path := range paths {
		if err := checkToolkitFile(path); err != nil {
			v.Invalid = append(v.Invalid, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if !strings.Contains(strings.ToUpper(filepath.Base(path)), "MISR") {
			v.Warnings = append(v.Warnings, path+": file name doesn't contain 'MISR'")
		}
		v.Valid = append(v.Valid, path)
	}
	t.validateCommon(ctx, &v)
	return v
}

func checkToolkitFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, string(StateLoading), "stat", "file does not exist", nil)
	}
	if err != nil {
		return services.Wrap(services.ErrValidation, string(StateLoading), "stat", "", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, string(StateLoading), "stat", "is a directory", nil)
	}
	if !slices.Contains(ToolkitExtensions, strings.ToLower(filepath.Ext(path))) {
		return services.Wrap(services.ErrValidation, string(StateLoading), "stat", "not a valid HDF file", nil)
	}
	return nil
}
