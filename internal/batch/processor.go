package batch

import (
	"context"
	"fmt"
	"path/filepath"

	"misrgrid/internal/config"
	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/reproject"
	"misrgrid/internal/services"
	"misrgrid/internal/swath"
)

// Processor is the coordinate-grid Pipeline.
type Processor struct {
	*engine
	opener swath.Opener
}

var _ Pipeline = (*Processor)(nil)

// NewProcessor builds a grid pipeline. settings.Variant must be a GridVariant.
func NewProcessor(settings Settings, deps Deps) (*Processor, error) {
	if _, ok := settings.Variant.(GridVariant); !ok {
		return nil, services.Wrap(services.ErrConfiguration, "settings", "new processor", "grid variant required", nil)
	}
	eng, err := newEngine(settings, deps, "batch")
	if err != nil {
		return nil, err
	}
	opener := deps.Opener
	if opener == nil {
		opener = swath.DefaultRegistry()
	}
	return &Processor{engine: eng, opener: opener}, nil
}

// UpdateSettings replaces the settings between batches.
func (p *Processor) UpdateSettings(settings Settings) error {
	return p.update(settings, func(s Settings) error {
		if _, ok := s.Variant.(GridVariant); !ok {
			return services.Wrap(services.ErrConfiguration, "settings", "update", "grid variant required", nil)
		}
		return nil
	})
}

// ProcessBatch processes paths in order and returns one Result per path.
func (p *Processor) ProcessBatch(ctx context.Context, paths []string, onProgress BatchProgressFunc) []Result {
	return p.runBatch(ctx, paths, onProgress, p.ProcessSingleFile)
}

// gridFile carries one file's intermediate arrays.
type gridFile struct {
	coords   grid.CoordinateGrid
	bounds   grid.RegionBounds
	coordSub grid.CoordinateGrid
	values   *grid.Matrix[float64]
	quality  *grid.Matrix[uint32]
	fine     grid.CoordinateGrid
	out      *grid.ReprojectedGrid
}

// ProcessSingleFile runs the full state sequence for path. Any failure,
// including a panic, is recorded on the returned Result.
func (p *Processor) ProcessSingleFile(ctx context.Context, path string, onProgress ProgressFunc) Result {
	snap := p.snapshot()
	ctx, st := p.newStepper(ctx, path, onProgress)
	var outputs map[string]string
	err := st.guard(func() error {
		return swath.With(ctx, p.opener, path, func(src swath.Source) error {
			var err error
			outputs, err = p.process(ctx, st, snap, src)
			return err
		})
	})
	return p.finish(st, outputs, err)
}

func (p *Processor) process(ctx context.Context, st *stepper, snap snapshot, src swath.Source) (map[string]string, error) {
	f := &gridFile{}
	qaEnabled := snap.settings.Quality.Enabled
	st.builder.set("qa_filtered", false)

	err := st.run(ctx, StateLoading, "Loading "+filepath.Base(src.Path()), func(ctx context.Context) error {
		if snap.settings.ValidateInputs {
			if err := src.Validate(ctx); err != nil {
				return err
			}
		}
		var err error
		f.coords, err = src.Coordinates(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = st.run(ctx, StateRegionSearch, "", func(ctx context.Context) error {
		var ok bool
		f.bounds, ok = snap.reproj.FindRegion(f.coords)
		if !ok {
			return services.Wrap(services.ErrNoData, string(StateRegionSearch), "find region", "no data found in target region", nil)
		}
		st.builder.set("region", f.bounds)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = st.run(ctx, StateSubsetExtraction, "", func(ctx context.Context) error {
		return p.extract(ctx, src, snap.reproj, f, qaEnabled)
	})
	if err != nil {
		return nil, err
	}

	err = st.run(ctx, StateFineGridBuild, "", func(context.Context) error {
		var err error
		f.fine, err = reproject.CreateFineGrid(f.coordSub, f.values)
		return err
	})
	if err != nil {
		return nil, err
	}

	if qaEnabled {
		err = st.run(ctx, StateQualityFilter, "", func(context.Context) error {
			if f.quality == nil {
				logging.WarnWithContext(st.opts.Logger, "quality filtering enabled but swath has no quality data", "qa_missing",
					logging.String(logging.FieldErrorHint, "disable quality.enabled for swaths without quality fields"),
					logging.String(logging.FieldImpact, "output is not quality filtered"),
				)
				return nil
			}
			filtered, applied := snap.filter.Apply(f.values, f.quality)
			f.values = filtered
			st.builder.set("qa_filtered", applied)
			if applied {
				st.builder.set("qa_flags", snap.filter.EnabledFlags())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err = st.run(ctx, StateReprojection, "", func(context.Context) error {
		out, err := snap.reproj.ReprojectToRegularGrid(f.fine, f.values)
		if err != nil {
			return services.Wrap(services.ErrValidation, string(StateReprojection), "interpolate", "", err)
		}
		if out == nil {
			return services.Wrap(services.ErrNoData, string(StateReprojection), "interpolate", "reprojection failed - no valid data", nil)
		}
		f.out = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err := p.clipStep(ctx, st, snap, f.out)
	if err != nil {
		return nil, err
	}
	return p.exportStep(ctx, st, snap, out, config.ModeGrid)
}

// extract reads the value window for the region and slices coordinates and
// quality to match.
func (p *Processor) extract(ctx context.Context, src swath.Source, reproj *reproject.Reprojector, f *gridFile, withQuality bool) error {
	coordRows, coordCols := f.coords.Shape()
	valueRows, valueCols := src.ValueShape()
	rowSpan, colSpan, err := reproj.ValueWindow(coordRows, coordCols, valueRows, valueCols, f.bounds)
	if err != nil {
		return err
	}
	f.values, err = src.Values(ctx, rowSpan, colSpan)
	if err != nil {
		return err
	}
	f.coordSub, err = f.coords.Slice(f.bounds)
	if err != nil {
		return services.Wrap(services.ErrValidation, string(StateSubsetExtraction), "slice coordinates", "", err)
	}
	if !withQuality {
		return nil
	}
	raw, ok, err := src.Quality(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if raw.SameShape(valueRows, valueCols) {
		f.quality, err = raw.Slice(rowSpan.Start, rowSpan.End-1, colSpan.Start, colSpan.End-1)
		if err != nil {
			return services.Wrap(services.ErrValidation, string(StateSubsetExtraction), "slice quality", "", err)
		}
		return nil
	}
	// Misaligned quality is passed through whole; the filter reshapes or
	// skips it.
	f.quality = raw
	return nil
}

// ValidateInputs checks each path by opening and validating it, then adds
// configuration warnings. Invalid entries read "<path>: <reason>".
func (p *Processor) ValidateInputs(ctx context.Context, paths []string) Validation {
	var v Validation
	for _, path := range paths {
		err := swath.With(ctx, p.opener, path, func(src swath.Source) error {
			return src.Validate(ctx)
		})
		if err != nil {
			v.Invalid = append(v.Invalid, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		v.Valid = append(v.Valid, path)
	}
	p.validateCommon(ctx, &v)
	return v
}
