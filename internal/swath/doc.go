// Package swath defines how the pipeline reads sensor swaths: an Opener
// turns a path into a Source exposing the coordinate grid, the primary band
// and optional quality data.
//
// Container-specific readers live outside this module. The package ships a
// JSON fixture format and an in-memory source used by tests and demos.
package swath
