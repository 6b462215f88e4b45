// Package services defines shared utilities consumed by the processing stages.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, input files, and stage names for
//     logging.
//   - Structured error markers plus the Wrap helper, and Kind, which turns a
//     failure into the short classification stored with a failed file.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
