// Package stageexec runs the named steps of a per-file pipeline with uniform
// progress reporting and stage_start, stage_complete and stage_failure log
// records.
package stageexec
