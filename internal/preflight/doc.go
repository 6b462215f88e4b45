// Package preflight provides readiness checks for the filesystem paths and
// polygon sources a batch depends on.
//
// These checks run in two contexts:
//   - The batch processor's ValidateInputs reports failures as warnings
//     before any file is processed.
//   - The CLI "misrgrid validate" command prints every result as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
