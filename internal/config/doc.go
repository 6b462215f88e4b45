// Package config loads, normalizes, and validates misrgrid configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and resolves named region presets. The Config
// type centralizes every knob the batch processor and CLI need so the target
// region, quality flags, clipping source and outputs are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
