package testsupport

import (
	"path/filepath"
	"testing"

	"misrgrid/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The region targets the centre of Swath's default extent; optional exports
// that have no in-repo writer are switched off.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Output.Dir = filepath.Join(base, "output")
	cfgVal.Output.NetCDF = false
	cfgVal.Output.GeoTIFF = false
	cfgVal.Output.AddTimestamp = false
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.Region.TargetLat = 11
	cfgVal.Region.TargetLon = 21
	cfgVal.Region.Margin = 0.5
	cfgVal.Grid.ScaleFactor = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithRegion overrides the target point and margin.
func WithRegion(lat, lon, margin float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Region.TargetLat = lat
		b.cfg.Region.TargetLon = lon
		b.cfg.Region.Margin = margin
	}
}

// WithQualityFlags enables quality filtering with the named flags.
func WithQualityFlags(flags ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Quality.Enabled = true
		b.cfg.Quality.Flags = flags
	}
}

// WithClipSource enables clipping against path.
func WithClipSource(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Clip.Enabled = true
		b.cfg.Clip.Source = path
	}
}

// WithWorkers sets the batch worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Workers = n
	}
}

// WithOutputs selects the enabled export kinds.
func WithOutputs(quicklook, metadata bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Quicklook = quicklook
		b.cfg.Output.Metadata = metadata
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Output.Dir)
}
