// Command misrgrid subsets, filters, reprojects and clips MISR red band
// swaths onto regular WGS84 grids.
//
// The run command processes files or directories in one batch and records
// the outcome in the sqlite run history; validate, flags, presets, config
// and history inspect the environment without processing anything.
package main
