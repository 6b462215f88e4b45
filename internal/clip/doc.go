// Package clip masks reprojected grids to polygon regions of interest.
//
// Polygons come from ESRI shapefiles or GeoJSON and are held in their source
// reference system. They are transformed into a grid's reference system the
// first time that system is seen and indexed in an R-tree for point lookups.
// A loaded Clipper is read-only apart from that cache and may be shared by
// concurrent pipelines.
package clip
