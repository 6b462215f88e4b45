package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"misrgrid/internal/fileutil"
	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

// Output kinds.
const (
	KindNetCDF    = "netcdf"
	KindGeoTIFF   = "geotiff"
	KindQuicklook = "quicklook"
	KindMetadata  = "metadata"
)

// Kinds lists every output kind in export order.
var Kinds = []string{KindNetCDF, KindGeoTIFF, KindQuicklook, KindMetadata}

// Metadata is the free-form description exported next to a grid. The
// "input_file" entry, when present, names the outputs.
type Metadata map[string]any

// Exporter writes a grid and returns output kind to path.
type Exporter interface {
	Export(ctx context.Context, g *grid.ReprojectedGrid, meta Metadata) (map[string]string, error)
}

// Writer serialises a grid in one format.
type Writer interface {
	Kind() string
	Extension() string
	Write(ctx context.Context, path string, g *grid.ReprojectedGrid, meta Metadata) error
}

// Options configure a Set.
type Options struct {
	Dir          string
	Enabled      []string
	AddTimestamp bool
	Name         NameInfo
}

// Set is an Exporter composed of Writers keyed by kind.
type Set struct {
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	writers map[string]Writer
}

// NewSet builds a Set. Writers for kinds that are not enabled are kept but
// never run.
func NewSet(opts Options, logger *slog.Logger, writers ...Writer) *Set {
	s := &Set{
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "export"),
		now:     time.Now,
		writers: make(map[string]Writer),
	}
	for _, w := range writers {
		s.Register(w)
	}
	return s
}

// Register adds or replaces the writer for w.Kind().
func (s *Set) Register(w Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers[w.Kind()] = w
}

// Missing lists enabled kinds with no registered writer.
func (s *Set) Missing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, kind := range s.opts.Enabled {
		if _, ok := s.writers[kind]; !ok {
			out = append(out, kind)
		}
	}
	return out
}

// Dir is the output directory.
func (s *Set) Dir() string { return s.opts.Dir }

// Export runs every enabled writer in Kinds order. Enabled kinds without a
// writer are skipped with a warning. The first writer error aborts the export.
func (s *Set) Export(ctx context.Context, g *grid.ReprojectedGrid, meta Metadata) (map[string]string, error) {
	if g == nil {
		return nil, services.Wrap(services.ErrNoData, "export", "export grid", "nothing to export", nil)
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "export", "create output dir", s.opts.Dir, err)
	}
	base := s.baseName(meta)

	s.mu.RLock()
	defer s.mu.RUnlock()
	outputs := make(map[string]string)
	for _, kind := range Kinds {
		if !slices.Contains(s.opts.Enabled, kind) {
			continue
		}
		w, ok := s.writers[kind]
		if !ok {
			logging.WarnWithContext(s.logger, "no writer for enabled output", "export_writer_missing",
				logging.String("kind", kind),
				logging.String(logging.FieldErrorHint, "disable the output kind or install a writer"),
				logging.String(logging.FieldImpact, kind+" output not produced"),
			)
			continue
		}
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		path := filepath.Join(s.opts.Dir, base+w.Extension())
		if err := w.Write(ctx, path, g, meta); err != nil {
			return outputs, services.Wrap(services.ErrExternalTool, "export", "write "+kind, path, err)
		}
		outputs[kind] = path
		s.logger.Info("output written", logging.String("kind", kind), logging.String("path", path))
	}
	return outputs, nil
}

func (s *Set) baseName(meta Metadata) string {
	base := "output"
	if in, ok := meta["input_file"].(string); ok && in != "" {
		base = BaseName(in)
	}
	info := s.opts.Name
	if v, ok := meta["clipped"].(bool); ok {
		info.Clipped = v
	}
	if v, ok := meta["qa_filtered"].(bool); ok {
		info.QAFiltered = v
	}
	var ts time.Time
	if s.opts.AddTimestamp {
		ts = s.now()
	}
	return Filename(base, info, ts)
}

// FileSummary is the on-disk state of one output.
type FileSummary struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Size   int64  `json:"size_bytes"`
	Exists bool   `json:"exists"`
}

// Summary totals a set of outputs.
type Summary struct {
	Files     []FileSummary `json:"files"`
	TotalSize int64         `json:"total_size_bytes"`
}

// Summarize stats every output path. Missing files are reported with
// Exists=false.
func Summarize(outputs map[string]string) Summary {
	kinds := make([]string, 0, len(outputs))
	for kind := range outputs {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	var sum Summary
	for _, kind := range kinds {
		fs := FileSummary{Kind: kind, Path: outputs[kind]}
		fs.Size, fs.Exists = fileutil.FileSize(fs.Path)
		sum.TotalSize += fs.Size
		sum.Files = append(sum.Files, fs)
	}
	return sum
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files, %d bytes", len(s.Files), s.TotalSize)
}
