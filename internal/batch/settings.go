package batch

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"misrgrid/internal/config"
	"misrgrid/internal/export"
	"misrgrid/internal/qa"
	"misrgrid/internal/reproject"
	"misrgrid/internal/services"
)

// Region is the target point and search margin in degrees.
type Region struct {
	TargetLat float64
	TargetLon float64
	Margin    float64
}

// Quality selects quality filtering.
type Quality struct {
	Enabled bool
	Source  string
	Flags   []string
	Custom  []qa.FlagDef
}

// Clip selects polygon clipping.
type Clip struct {
	Enabled bool
	Source  string
}

// Output selects the output directory and kinds.
type Output struct {
	Dir              string
	Kinds            []string
	AddTimestamp     bool
	QuicklookWidthCM int
}

// Variant is the processing-mode specific part of Settings. It is sealed:
// only GridVariant and ToolkitVariant implement it.
type Variant interface {
	Mode() string
	variant()
}

// GridVariant reprojects coordinate-grid swaths in-process.
type GridVariant struct {
	Resolution        float64
	ScaleFactor       int
	GroundResolutionM float64
}

func (GridVariant) Mode() string { return config.ModeGrid }
func (GridVariant) variant()     {}

// ToolkitVariant reads a projected block between two corners through a
// ToolkitRunner.
type ToolkitVariant struct {
	ULCLat             float64
	ULCLon             float64
	LRCLat             float64
	LRCLon             float64
	FieldName          string
	ApplyQualityFilter bool
}

func (ToolkitVariant) Mode() string { return config.ModeToolkit }
func (ToolkitVariant) variant()     {}

// Settings is everything a Pipeline needs besides its collaborators.
type Settings struct {
	Region         Region
	Quality        Quality
	Clip           Clip
	Output         Output
	Variant        Variant
	Workers        int
	ValidateInputs bool
}

// Mode returns the variant's processing mode.
func (s Settings) Mode() string {
	if s.Variant == nil {
		return ""
	}
	return s.Variant.Mode()
}

// Validate checks the fields every pipeline relies on.
func (s Settings) Validate() error {
	switch v := s.Variant.(type) {
	case GridVariant:
		if !(v.GroundResolutionM > 0) {
			return services.Wrap(services.ErrConfiguration, "settings", "grid", "ground resolution must be positive", nil)
		}
		if v.ScaleFactor < 0 {
			return services.Wrap(services.ErrConfiguration, "settings", "grid", "scale factor must not be negative", nil)
		}
	case ToolkitVariant:
		if strings.TrimSpace(v.FieldName) == "" {
			return services.Wrap(services.ErrConfiguration, "settings", "toolkit", "field name must be set", nil)
		}
	default:
		return services.Wrap(services.ErrConfiguration, "settings", "variant", "processing variant not set", nil)
	}
	if !(s.Region.Margin > 0) {
		return services.Wrap(services.ErrConfiguration, "settings", "region", "margin must be positive", nil)
	}
	if strings.TrimSpace(s.Output.Dir) == "" {
		return services.Wrap(services.ErrConfiguration, "settings", "output", "output directory must be set", nil)
	}
	return nil
}

// SettingsFromConfig builds Settings from a loaded configuration.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, services.Wrap(services.ErrConfiguration, "settings", "build", "config is nil", nil)
	}
	s := Settings{
		Region: Region{
			TargetLat: cfg.Region.TargetLat,
			TargetLon: cfg.Region.TargetLon,
			Margin:    cfg.Region.Margin,
		},
		Quality: Quality{
			Enabled: cfg.Quality.Enabled,
			Source:  cfg.Quality.Source,
			Flags:   slices.Clone(cfg.Quality.Flags),
		},
		Clip: Clip{Enabled: cfg.Clip.Enabled, Source: cfg.Clip.Source},
		Output: Output{
			Dir:              cfg.Output.Dir,
			Kinds:            enabledKinds(cfg.Output),
			AddTimestamp:     cfg.Output.AddTimestamp,
			QuicklookWidthCM: cfg.Output.QuicklookCM,
		},
		Workers:        cfg.Batch.Workers,
		ValidateInputs: cfg.Batch.ValidateInputs,
	}
	for _, cf := range cfg.Quality.CustomFlags {
		def, err := customFlag(cf)
		if err != nil {
			return Settings{}, err
		}
		s.Quality.Custom = append(s.Quality.Custom, def)
	}
	if s.Quality.Source == config.QualitySourceRDQI && len(s.Quality.Flags) == 0 {
		s.Quality.Flags = []string{qa.FlagRDQIQuality}
	}

	switch cfg.Processing.Mode {
	case config.ModeToolkit:
		s.Variant = ToolkitVariant{
			ULCLat:             cfg.Toolkit.ULCLat,
			ULCLon:             cfg.Toolkit.ULCLon,
			LRCLat:             cfg.Toolkit.LRCLat,
			LRCLon:             cfg.Toolkit.LRCLon,
			FieldName:          cfg.Toolkit.FieldName,
			ApplyQualityFilter: cfg.Toolkit.ApplyQualityFilter,
		}
	default:
		s.Variant = GridVariant{
			Resolution:        cfg.Grid.Resolution,
			ScaleFactor:       cfg.Grid.ScaleFactor,
			GroundResolutionM: cfg.Grid.GroundResolutionM,
		}
	}
	return s, s.Validate()
}

func customFlag(cf config.CustomFlag) (qa.FlagDef, error) {
	def := qa.FlagDef{Name: cf.Name, ValidValues: slices.Clone(cf.ValidValues), Description: cf.Description}
	switch len(cf.Bits) {
	case 1:
		def.Field = qa.Bit(cf.Bits[0])
	case 2:
		def.Field = qa.Bits(cf.Bits[0], cf.Bits[1])
	default:
		return qa.FlagDef{}, services.Wrap(services.ErrConfiguration, "settings", "custom flag",
			fmt.Sprintf("%s: bits must hold one index or a [low, high] range", cf.Name), nil)
	}
	return def, nil
}

func enabledKinds(out config.Output) []string {
	toggles := map[string]bool{
		export.KindNetCDF:    out.NetCDF,
		export.KindGeoTIFF:   out.GeoTIFF,
		export.KindQuicklook: out.Quicklook,
		export.KindMetadata:  out.Metadata,
	}
	var kinds []string
	for _, kind := range export.Kinds {
		if toggles[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// reprojectParams maps grid settings onto reprojector parameters.
func (s Settings) reprojectParams() reproject.Params {
	p := reproject.DefaultParams()
	p.TargetLat = s.Region.TargetLat
	p.TargetLon = s.Region.TargetLon
	p.Margin = s.Region.Margin
	if v, ok := s.Variant.(GridVariant); ok {
		p.TargetResolution = v.Resolution
		p.ScaleFactor = v.ScaleFactor
		p.GroundResolutionM = v.GroundResolutionM
	}
	return p
}

// NewExporter builds the default export set for s: a quicklook PNG and a
// metadata sidecar. NetCDF and GeoTIFF writers must be registered by the
// caller.
func NewExporter(s Settings, logger *slog.Logger) *export.Set {
	name := export.NameInfo{RedBand: true, ResolutionM: reproject.DefaultParams().GroundResolutionM}
	if v, ok := s.Variant.(GridVariant); ok {
		name.ResolutionM = v.GroundResolutionM
	}
	return export.NewSet(export.Options{
		Dir:          s.Output.Dir,
		Enabled:      slices.Clone(s.Output.Kinds),
		AddTimestamp: s.Output.AddTimestamp,
		Name:         name,
	}, logger,
		export.QuicklookWriter{WidthCM: float64(s.Output.QuicklookWidthCM)},
		export.MetadataWriter{},
	)
}

func (s Settings) clone() Settings {
	s.Quality.Flags = slices.Clone(s.Quality.Flags)
	s.Quality.Custom = slices.Clone(s.Quality.Custom)
	s.Output.Kinds = slices.Clone(s.Output.Kinds)
	return s
}
