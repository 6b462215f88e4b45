package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.Processing.Mode = strings.ToLower(strings.TrimSpace(c.Processing.Mode))
	if c.Processing.Mode == "" {
		c.Processing.Mode = defaultMode
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.applyPreset(); err != nil {
		return err
	}
	c.normalizeQuality()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	if c.Clip.Source, err = expandPath(strings.TrimSpace(c.Clip.Source)); err != nil {
		return fmt.Errorf("clip.source: %w", err)
	}
	for name, preset := range c.Presets {
		if preset.ClipSource == "" {
			continue
		}
		if preset.ClipSource, err = expandPath(preset.ClipSource); err != nil {
			return fmt.Errorf("presets.%s.clip_source: %w", name, err)
		}
		c.Presets[name] = preset
	}
	return nil
}

func (c *Config) normalizeQuality() {
	c.Quality.Source = strings.ToLower(strings.TrimSpace(c.Quality.Source))
	if c.Quality.Source == "" {
		c.Quality.Source = defaultQualitySource
	}
	flags := make([]string, 0, len(c.Quality.Flags))
	seen := make(map[string]struct{}, len(c.Quality.Flags))
	for _, name := range c.Quality.Flags {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		flags = append(flags, name)
	}
	c.Quality.Flags = flags
	for i := range c.Quality.CustomFlags {
		c.Quality.CustomFlags[i].Name = strings.TrimSpace(c.Quality.CustomFlags[i].Name)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
