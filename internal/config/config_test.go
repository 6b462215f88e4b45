package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"misrgrid/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	wantLogs := filepath.Join(tempHome, ".local", "share", "misrgrid", "logs")
	if cfg.Logging.Dir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Logging.Dir, wantLogs)
	}
	if !filepath.IsAbs(cfg.Output.Dir) {
		t.Fatalf("expected absolute output dir, got %q", cfg.Output.Dir)
	}
	if cfg.Region.TargetLat != -13.8 || cfg.Region.TargetLon != -70.8 || cfg.Region.Margin != 2.0 {
		t.Fatalf("unexpected default region: %+v", cfg.Region)
	}
	if cfg.Grid.Resolution != 0.0025 || cfg.Grid.ScaleFactor != 64 || cfg.Grid.GroundResolutionM != 275 {
		t.Fatalf("unexpected default grid: %+v", cfg.Grid)
	}
	if cfg.Batch.Workers != 1 {
		t.Fatalf("expected single worker by default, got %d", cfg.Batch.Workers)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[region]
target_lat = 10.5
target_lon = 20.25
margin = 0.75

[quality]
enabled = true
flags = ["cloud_detected", " cloud_detected ", "high_quality"]

[[quality.custom_flags]]
name = "aerosol_flag"
bits = [8, 9]
valid_values = [0, 1]

[clip]
enabled = true
source = "~/shapes/basin.shp"

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config to be read from %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Region.TargetLat != 10.5 || cfg.Region.Margin != 0.75 {
		t.Fatalf("unexpected region: %+v", cfg.Region)
	}
	if got := strings.Join(cfg.Quality.Flags, ","); got != "cloud_detected,high_quality" {
		t.Fatalf("expected deduplicated flags, got %q", got)
	}
	if cfg.Clip.Source != filepath.Join(tempHome, "shapes", "basin.shp") {
		t.Fatalf("unexpected clip source: %q", cfg.Clip.Source)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[region]\ntarget_latitude = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateMessages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"mode", func(c *config.Config) { c.Processing.Mode = "hdf" }, "processing.mode"},
		{"latitude", func(c *config.Config) { c.Region.TargetLat = 91 }, "region latitude"},
		{"margin", func(c *config.Config) { c.Region.Margin = 0 }, "region.margin"},
		{"resolution", func(c *config.Config) { c.Grid.Resolution = -1 }, "grid.resolution"},
		{"scale", func(c *config.Config) { c.Grid.ScaleFactor = -2 }, "grid.scale_factor"},
		{"quality source", func(c *config.Config) { c.Quality.Source = "mask" }, "quality.source"},
		{"custom bits", func(c *config.Config) {
			c.Quality.CustomFlags = []config.CustomFlag{{Name: "x", Bits: []int{3, 1}, ValidValues: []uint32{0}}}
		}, "quality.custom_flags[0].bits"},
		{"clip", func(c *config.Config) { c.Clip.Enabled = true; c.Clip.Source = "" }, "clip.source"},
		{"toolkit corners", func(c *config.Config) {
			c.Processing.Mode = config.ModeToolkit
			c.Toolkit.ULCLat, c.Toolkit.LRCLat = -15, -12
		}, "toolkit.ulc_lat"},
		{"workers", func(c *config.Config) { c.Batch.Workers = 0 }, "batch.workers"},
		{"log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err)
			}
		})
	}
}

func TestPresetAppliesRegionAndClip(t *testing.T) {
	cfg, err := config.Parse([]byte(`
[region]
preset = "Basin"

[presets.basin]
target_lat = -16.5
target_lon = -68.1
margin = 0.4
clip_source = "/tmp/basin.geojson"
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Region.TargetLat != -16.5 || cfg.Region.TargetLon != -68.1 || cfg.Region.Margin != 0.4 {
		t.Fatalf("preset not applied: %+v", cfg.Region)
	}
	if !cfg.Clip.Enabled || cfg.Clip.Source != "/tmp/basin.geojson" {
		t.Fatalf("preset clip not applied: %+v", cfg.Clip)
	}

	if _, err := config.Parse([]byte("[region]\npreset = \"nowhere\"\n")); err == nil {
		t.Fatal("expected unknown preset error")
	}
}

func TestSampleConfigParses(t *testing.T) {
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config invalid TOML: %v", err)
	}
	if _, err := config.Parse([]byte(config.SampleConfig())); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[region]") {
		t.Fatalf("sample missing region section: %q", data)
	}
}
