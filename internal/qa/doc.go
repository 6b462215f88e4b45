// Package qa decodes bit-packed quality fields and masks radiance pixels that
// fail the enabled quality flags.
//
// A Filter owns its own flag catalog: the built-in definitions returned by
// DefaultCatalog plus any custom flags registered on that instance. Masking
// is fail-open. A quality array that cannot be aligned with the data leaves
// the data untouched.
package qa
