package config

import (
	"fmt"
	"sort"
	"strings"
)

// PresetNames returns the configured preset names in sorted order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupPreset finds a preset by name, ignoring case.
func (c *Config) LookupPreset(name string) (Preset, bool) {
	name = strings.TrimSpace(name)
	if p, ok := c.Presets[name]; ok {
		return p, true
	}
	for key, p := range c.Presets {
		if strings.EqualFold(key, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// UsePreset selects a preset and copies its region into the config.
func (c *Config) UsePreset(name string) error {
	c.Region.Preset = name
	return c.applyPreset()
}

func (c *Config) applyPreset() error {
	name := strings.TrimSpace(c.Region.Preset)
	if name == "" {
		return nil
	}
	preset, ok := c.LookupPreset(name)
	if !ok {
		return fmt.Errorf("region.preset: unknown preset %q (available: %s)", name, strings.Join(c.PresetNames(), ", "))
	}
	c.Region.TargetLat = preset.TargetLat
	c.Region.TargetLon = preset.TargetLon
	if preset.Margin > 0 {
		c.Region.Margin = preset.Margin
	}
	if preset.Resolution > 0 {
		c.Grid.Resolution = preset.Resolution
	}
	if preset.ClipSource != "" {
		c.Clip.Source = preset.ClipSource
		c.Clip.Enabled = true
	}
	return nil
}
