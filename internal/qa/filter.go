package qa

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"

	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

// Filter builds quality masks from the flags enabled on it.
type Filter struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	source   string
	defaults []FlagDef
	custom   []FlagDef
	enabled  []string
}

// New returns a filter seeded with DefaultCatalog and no enabled flags.
func New(logger *slog.Logger) *Filter {
	return &Filter{
		logger:   logging.NewComponentLogger(logger, "qa"),
		defaults: DefaultCatalog(),
	}
}

// SetSource records where quality data comes from (for example "qa" or
// "rdqi"). The filter itself does not read it.
func (f *Filter) SetSource(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = strings.TrimSpace(source)
	f.logger.Debug("quality source set", logging.String("source", f.source))
}

func (f *Filter) Source() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.source
}

// AddCustomFlag registers a flag on this instance only. A custom flag with
// the name of an existing one replaces it. Overlapping bit fields across
// flags are allowed.
func (f *Filter) AddCustomFlag(def FlagDef) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return services.Wrap(services.ErrValidation, "qa", "add custom flag", "flag name is required", nil)
	}
	if err := def.Field.validate(); err != nil {
		return services.Wrap(services.ErrValidation, "qa", "add custom flag", def.Name, err)
	}
	if len(def.ValidValues) == 0 {
		return services.Wrap(services.ErrValidation, "qa", "add custom flag",
			fmt.Sprintf("%s needs at least one valid value", def.Name), nil)
	}
	def = def.clone()

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := slices.IndexFunc(f.custom, func(d FlagDef) bool { return d.Name == def.Name })
	if idx >= 0 {
		f.custom[idx] = def
	} else {
		f.custom = append(f.custom, def)
	}
	f.logger.Info("custom quality flag added",
		logging.String("flag", def.Name),
		logging.String("field", def.Field.String()),
	)
	return nil
}

// Enable appends names to the enabled list, keeping first-seen order.
// Unknown names are accepted here and skipped when a mask is built.
func (f *Filter) Enable(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(f.enabled, name) {
			continue
		}
		f.enabled = append(f.enabled, name)
	}
}

func (f *Filter) Disable(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = slices.DeleteFunc(f.enabled, func(n string) bool { return n == name })
}

func (f *Filter) EnabledFlags() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.enabled)
}

func (f *Filter) ClearFlags() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = nil
}

// AvailableFlags lists built-in flags followed by custom ones. Custom flags
// that shadow a built-in name appear once, in the built-in position.
func (f *Filter) AvailableFlags() []FlagDef {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]FlagDef, 0, len(f.defaults)+len(f.custom))
	for _, d := range f.defaults {
		if c, ok := f.customLocked(d.Name); ok {
			out = append(out, c.clone())
			continue
		}
		out = append(out, d.clone())
	}
	for _, c := range f.custom {
		if !slices.ContainsFunc(f.defaults, func(d FlagDef) bool { return d.Name == c.Name }) {
			out = append(out, c.clone())
		}
	}
	return out
}

// Lookup resolves a flag name, preferring custom definitions.
func (f *Filter) Lookup(name string) (FlagDef, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lookupLocked(name)
}

func (f *Filter) lookupLocked(name string) (FlagDef, bool) {
	if c, ok := f.customLocked(name); ok {
		return c, true
	}
	for _, d := range f.defaults {
		if d.Name == name {
			return d, true
		}
	}
	return FlagDef{}, false
}

func (f *Filter) customLocked(name string) (FlagDef, bool) {
	for _, c := range f.custom {
		if c.Name == name {
			return c, true
		}
	}
	return FlagDef{}, false
}

// CreateMask returns true for every pixel that passes all enabled flags.
// With nothing enabled every pixel passes.
func (f *Filter) CreateMask(qa *grid.Matrix[uint32]) *grid.Matrix[bool] {
	rows, cols := qa.Shape()
	mask := grid.Filled(rows, cols, true)

	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.enabled) == 0 {
		f.logger.Debug("no quality flags enabled; keeping every pixel")
		return mask
	}
	for _, name := range f.enabled {
		def, ok := f.lookupLocked(name)
		if !ok {
			logging.WarnWithContext(f.logger, "skipping unknown quality flag", "qa_unknown_flag",
				logging.String("flag", name),
				logging.String(logging.FieldErrorHint, "check quality.flags against `misrgrid flags`"),
				logging.String(logging.FieldImpact, "flag ignored while masking"),
			)
			continue
		}
		kept := 0
		for i, v := range qa.Data {
			pass := def.accepts(def.Field.Extract(v))
			if pass {
				kept++
			}
			mask.Data[i] = mask.Data[i] && pass
		}
		f.logger.Debug("quality flag evaluated",
			logging.String("flag", name),
			logging.Int("valid_pixels", kept),
			logging.Float64("valid_percent", percent(kept, len(qa.Data))),
		)
	}
	valid := 0
	for _, ok := range mask.Data {
		if ok {
			valid++
		}
	}
	f.logger.Info("quality mask built",
		logging.Int("valid_pixels", valid),
		logging.Int("total_pixels", len(mask.Data)),
		logging.Float64("valid_percent", percent(valid, len(mask.Data))),
	)
	return mask
}

// Apply returns a copy of data with masked pixels set to NaN and reports
// whether a mask was applied. A quality array with the same cell count but a
// different shape is reshaped row-major; one with a different cell count is
// ignored and data comes back unchanged (still copied).
func (f *Filter) Apply(data *grid.Matrix[float64], qa *grid.Matrix[uint32]) (*grid.Matrix[float64], bool) {
	out := data.Clone()
	if qa == nil {
		return out, false
	}
	rows, cols := data.Shape()
	if !qa.SameShape(rows, cols) {
		qr, qc := qa.Shape()
		if qa.Size() != data.Size() {
			logging.WarnWithContext(f.logger, "quality array cannot be aligned with data", "qa_shape_mismatch",
				logging.String("qa_shape", fmt.Sprintf("%dx%d", qr, qc)),
				logging.String("data_shape", fmt.Sprintf("%dx%d", rows, cols)),
				logging.String(logging.FieldErrorHint, "quality and radiance fields must share a resolution"),
				logging.String(logging.FieldImpact, "quality filtering skipped for this file"),
			)
			return out, false
		}
		reshaped, err := qa.Reshape(rows, cols)
		if err != nil {
			return out, false
		}
		logging.WarnWithContext(f.logger, "quality array reshaped to data shape", "qa_reshaped",
			logging.String("qa_shape", fmt.Sprintf("%dx%d", qr, qc)),
			logging.String("data_shape", fmt.Sprintf("%dx%d", rows, cols)),
			logging.String(logging.FieldImpact, "mask assumes row-major alignment"),
		)
		qa = reshaped
	}

	mask := f.CreateMask(qa)
	masked := 0
	for i, keep := range mask.Data {
		if !keep {
			out.Data[i] = math.NaN()
			masked++
		}
	}
	f.logger.Info("quality filter applied", logging.Int("masked_pixels", masked))
	return out, true
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
