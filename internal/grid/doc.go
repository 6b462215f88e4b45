// Package grid holds the array and grid types shared by the swath processing
// packages.
//
// Matrix is a dense row-major 2-D array. CoordinateGrid pairs the latitude and
// longitude matrices of an irregular swath, RegionBounds addresses an
// inclusive rectangle of cells, and ReprojectedGrid is the regular WGS84
// product handed to clipping and export.
package grid
