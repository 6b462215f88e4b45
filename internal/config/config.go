package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Processing selects the processing variant.
type Processing struct {
	// Mode is "grid" (coordinate-grid reprojection) or "toolkit" (block
	// extraction delegated to an external toolkit runner).
	Mode string `toml:"mode"`
}

// Region is the target point and search margin in degrees.
type Region struct {
	TargetLat float64 `toml:"target_lat"`
	TargetLon float64 `toml:"target_lon"`
	Margin    float64 `toml:"margin"`
	// Preset names an entry of [presets] whose values replace the ones above.
	Preset string `toml:"preset"`
}

// Grid contains the coordinate-grid reprojection parameters.
type Grid struct {
	Resolution float64 `toml:"resolution"`
	// ScaleFactor is the value-to-coordinate array density ratio. Zero derives
	// it from each file's own array shapes.
	ScaleFactor       int     `toml:"scale_factor"`
	GroundResolutionM float64 `toml:"ground_resolution_m"`
}

// CustomFlag declares an extra quality flag. Bits holds one bit index or an
// inclusive [low, high] range.
type CustomFlag struct {
	Name        string   `toml:"name"`
	Bits        []int    `toml:"bits"`
	ValidValues []uint32 `toml:"valid_values"`
	Description string   `toml:"description"`
}

// Quality controls bit-flag quality filtering.
type Quality struct {
	Enabled     bool         `toml:"enabled"`
	Source      string       `toml:"source"`
	Flags       []string     `toml:"flags"`
	CustomFlags []CustomFlag `toml:"custom_flags"`
}

// Clip controls polygon clipping.
type Clip struct {
	Enabled bool   `toml:"enabled"`
	Source  string `toml:"source"`
}

// Output controls where and what gets exported.
type Output struct {
	Dir          string `toml:"dir"`
	NetCDF       bool   `toml:"netcdf"`
	GeoTIFF      bool   `toml:"geotiff"`
	Quicklook    bool   `toml:"quicklook"`
	Metadata     bool   `toml:"metadata"`
	AddTimestamp bool   `toml:"add_timestamp"`
	QuicklookCM  int    `toml:"quicklook_width_cm"`
}

// Toolkit configures the block-extraction variant.
type Toolkit struct {
	ULCLat             float64 `toml:"ulc_lat"`
	ULCLon             float64 `toml:"ulc_lon"`
	LRCLat             float64 `toml:"lrc_lat"`
	LRCLon             float64 `toml:"lrc_lon"`
	FieldName          string  `toml:"field_name"`
	ApplyQualityFilter bool    `toml:"apply_quality_filter"`
}

// Batch controls multi-file runs.
type Batch struct {
	Workers        int  `toml:"workers"`
	ValidateInputs bool `toml:"validate_inputs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	Dir            string            `toml:"dir"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// History controls the persistent run history.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Preset is a named region of interest.
type Preset struct {
	Description string   `toml:"description"`
	Location    string   `toml:"location"`
	TargetLat   float64  `toml:"target_lat"`
	TargetLon   float64  `toml:"target_lon"`
	Margin      float64  `toml:"margin"`
	Resolution  float64  `toml:"resolution"`
	ClipSource  string   `toml:"clip_source"`
	Notes       []string `toml:"notes"`
}

// Config encapsulates all configuration values for misrgrid.
//
// Configuration sections by subsystem:
//   - Processing: grid or toolkit variant
//   - Region: target point, margin, optional preset
//   - Grid: output resolution and array scale factor
//   - Quality: QA flag selection and custom flag definitions
//   - Clip: polygon clipping source
//   - Output: directory and per-format toggles
//   - Toolkit: block corners and field for the toolkit variant
//   - Batch: worker count and input validation
//   - Logging: log format, level, directory and per-stage overrides
//   - History: sqlite run history
//   - Presets: named regions
type Config struct {
	Processing Processing        `toml:"processing"`
	Region     Region            `toml:"region"`
	Grid       Grid              `toml:"grid"`
	Quality    Quality           `toml:"quality"`
	Clip       Clip              `toml:"clip"`
	Output     Output            `toml:"output"`
	Toolkit    Toolkit           `toml:"toolkit"`
	Batch      Batch             `toml:"batch"`
	Logging    Logging           `toml:"logging"`
	History    History           `toml:"history"`
	Presets    map[string]Preset `toml:"presets"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/misrgrid/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and any region preset applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Parse decodes TOML content on top of the defaults, then normalizes and
// validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("misrgrid.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Output.Dir, c.Logging.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
