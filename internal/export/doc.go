// Package export hands finished grids to format writers and names the files
// they produce.
//
// A Set holds one Writer per output kind and honours the per-kind toggles
// from configuration. Container writers (NetCDF, GeoTIFF) are registered by
// callers that link a suitable encoder; this package ships the quicklook PNG
// and JSON metadata writers.
package export
