// Package reproject turns an irregular swath subset into a regular WGS84
// latitude/longitude grid.
//
// The pipeline is: FindRegionBounds locates the rectangle of coordinate cells
// around the target point, ExtractSubset slices coordinates and values
// (scaling the bounds when the value array is denser), CreateFineGrid assigns
// a coordinate to every value pixel, and ReprojectToRegularGrid interpolates
// the scattered pixels onto regular axes at the latitude-adjusted native
// resolution.
//
// Interpolation is linear over a Delaunay triangulation of the valid pixels.
// Output nodes outside the convex hull of the input stay NaN; nothing is
// extrapolated. When several input pixels share one coordinate, the
// triangulation keeps whichever it sorts first, so the value chosen at such a
// point is not guaranteed to be stable across implementations.
package reproject
