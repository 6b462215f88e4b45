package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var knownLogFormats = map[string]bool{"console": true, "json": true}

var knownLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateRegion(); err != nil {
		return err
	}
	if err := c.validateGrid(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}
	if err := c.validateClip(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateToolkit(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validatePresets()
}

func (c *Config) validateProcessing() error {
	switch c.Processing.Mode {
	case ModeGrid, ModeToolkit:
		return nil
	default:
		return fmt.Errorf("processing.mode must be %q or %q, got %q", ModeGrid, ModeToolkit, c.Processing.Mode)
	}
}

func (c *Config) validateRegion() error {
	if err := validateLatLon("region", c.Region.TargetLat, c.Region.TargetLon); err != nil {
		return err
	}
	if !(c.Region.Margin > 0) {
		return errors.New("region.margin must be positive")
	}
	return nil
}

func (c *Config) validateGrid() error {
	if !(c.Grid.Resolution > 0) {
		return errors.New("grid.resolution must be positive")
	}
	if c.Grid.ScaleFactor < 0 {
		return errors.New("grid.scale_factor must be zero (auto) or positive")
	}
	if !(c.Grid.GroundResolutionM > 0) {
		return errors.New("grid.ground_resolution_m must be positive")
	}
	return nil
}

func (c *Config) validateQuality() error {
	switch c.Quality.Source {
	case QualitySourceQA, QualitySourceRDQI:
	default:
		return fmt.Errorf("quality.source must be %q or %q, got %q", QualitySourceQA, QualitySourceRDQI, c.Quality.Source)
	}
	names := make(map[string]struct{}, len(c.Quality.CustomFlags))
	for i, flag := range c.Quality.CustomFlags {
		key := fmt.Sprintf("quality.custom_flags[%d]", i)
		if flag.Name == "" {
			return fmt.Errorf("%s.name must be set", key)
		}
		if _, dup := names[flag.Name]; dup {
			return fmt.Errorf("%s.name %q is defined twice", key, flag.Name)
		}
		names[flag.Name] = struct{}{}
		switch len(flag.Bits) {
		case 1:
			if flag.Bits[0] < 0 || flag.Bits[0] > 31 {
				return fmt.Errorf("%s.bits must be within 0..31", key)
			}
		case 2:
			if flag.Bits[0] < 0 || flag.Bits[1] > 31 || flag.Bits[0] > flag.Bits[1] {
				return fmt.Errorf("%s.bits must be an ascending range within 0..31", key)
			}
		default:
			return fmt.Errorf("%s.bits must hold one bit index or a [low, high] range", key)
		}
		if len(flag.ValidValues) == 0 {
			return fmt.Errorf("%s.valid_values must not be empty", key)
		}
	}
	return nil
}

func (c *Config) validateClip() error {
	if c.Clip.Enabled && strings.TrimSpace(c.Clip.Source) == "" {
		return errors.New("clip.source must be set when clip.enabled is true")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir must be set")
	}
	if c.Output.QuicklookCM < 0 {
		return errors.New("output.quicklook_width_cm must not be negative")
	}
	return nil
}

func (c *Config) validateToolkit() error {
	if c.Processing.Mode != ModeToolkit {
		return nil
	}
	if err := validateLatLon("toolkit.ulc", c.Toolkit.ULCLat, c.Toolkit.ULCLon); err != nil {
		return err
	}
	if err := validateLatLon("toolkit.lrc", c.Toolkit.LRCLat, c.Toolkit.LRCLon); err != nil {
		return err
	}
	if c.Toolkit.ULCLat <= c.Toolkit.LRCLat {
		return errors.New("toolkit.ulc_lat must be north of toolkit.lrc_lat")
	}
	if c.Toolkit.ULCLon >= c.Toolkit.LRCLon {
		return errors.New("toolkit.ulc_lon must be west of toolkit.lrc_lon")
	}
	if strings.TrimSpace(c.Toolkit.FieldName) == "" {
		return errors.New("toolkit.field_name must be set")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Workers < 1 {
		return errors.New("batch.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !knownLogFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if !knownLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	for stage, level := range c.Logging.StageOverrides {
		if !knownLogLevels[strings.ToLower(strings.TrimSpace(level))] {
			return fmt.Errorf("logging.stage_overrides.%s: unknown level %q", stage, level)
		}
	}
	return nil
}

func (c *Config) validatePresets() error {
	for _, name := range c.PresetNames() {
		p := c.Presets[name]
		if err := validateLatLon("presets."+name, p.TargetLat, p.TargetLon); err != nil {
			return err
		}
		if p.Margin < 0 {
			return fmt.Errorf("presets.%s.margin must not be negative", name)
		}
		if p.Resolution < 0 {
			return fmt.Errorf("presets.%s.resolution must not be negative", name)
		}
	}
	return nil
}

func validateLatLon(key string, lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%s latitude must be within -90..90, got %v", key, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%s longitude must be within -180..180, got %v", key, lon)
	}
	return nil
}
