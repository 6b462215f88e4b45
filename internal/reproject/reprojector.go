package reproject

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

// MetersPerDegree is the length of one degree of latitude used for native
// resolution sizing.
const MetersPerDegree = 111320.0

// Params are the pipeline-wide reprojection settings shared by every file.
type Params struct {
	TargetLat float64
	TargetLon float64
	Margin    float64
	// TargetResolution is the nominal output resolution in degrees. It is
	// recorded on the output; the actual pixel size comes from
	// GroundResolutionM and the subset latitude.
	TargetResolution  float64
	ScaleFactor       int
	GroundResolutionM float64
}

// DefaultParams returns the reference settings.
func DefaultParams() Params {
	return Params{
		TargetLat:         -13.8,
		TargetLon:         -70.8,
		Margin:            2.0,
		TargetResolution:  0.0025,
		ScaleFactor:       64,
		GroundResolutionM: 275,
	}
}

// Reprojector holds Params and runs the subset-to-regular-grid pipeline.
// Params can be changed between files; a running reprojection uses the
// snapshot taken when it started.
type Reprojector struct {
	mu     sync.RWMutex
	params Params
	logger *slog.Logger
}

// New constructs a Reprojector.
func New(params Params, logger *slog.Logger) *Reprojector {
	return &Reprojector{params: params, logger: logging.NewComponentLogger(logger, "reprojector")}
}

// Params returns the current settings.
func (r *Reprojector) Params() Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params
}

// SetParams replaces every setting.
func (r *Reprojector) SetParams(p Params) {
	r.mu.Lock()
	r.params = p
	r.mu.Unlock()
}

// Snapshot returns an independent Reprojector holding the current Params.
// Later changes to r do not reach it.
func (r *Reprojector) Snapshot() *Reprojector {
	return &Reprojector{params: r.Params(), logger: r.logger}
}

// UpdateTargetRegion moves the target point. A nil margin keeps the current one.
func (r *Reprojector) UpdateTargetRegion(lat, lon float64, margin *float64) {
	r.mu.Lock()
	r.params.TargetLat = lat
	r.params.TargetLon = lon
	if margin != nil {
		r.params.Margin = *margin
	}
	p := r.params
	r.mu.Unlock()
	r.logger.Info("target region updated",
		logging.Float64("target_lat", p.TargetLat),
		logging.Float64("target_lon", p.TargetLon),
		logging.Float64("margin", p.Margin),
	)
}

// FindRegion applies FindRegionBounds with the configured target.
func (r *Reprojector) FindRegion(coords grid.CoordinateGrid) (grid.RegionBounds, bool) {
	p := r.Params()
	return FindRegionBounds(coords, p.TargetLat, p.TargetLon, p.Margin)
}

// ExtractSubset slices coords and values to bounds. A configured scale factor
// of zero is derived from the arrays; a configured factor that disagrees with
// the arrays is used as configured and logged.
func (r *Reprojector) ExtractSubset(coords grid.CoordinateGrid, values *grid.Matrix[float64], bounds grid.RegionBounds) (grid.CoordinateGrid, *grid.Matrix[float64], error) {
	rows, cols := coords.Shape()
	factor, err := r.scaleFactor(rows, cols, values.Rows, values.Cols)
	if err != nil {
		return grid.CoordinateGrid{}, nil, err
	}
	return ExtractSubset(coords, values, bounds, factor)
}

// ValueWindow returns the half-open value-array window matching bounds, so a
// loader can read only the subset. Scale factor handling follows
// ExtractSubset.
func (r *Reprojector) ValueWindow(coordRows, coordCols, valueRows, valueCols int, bounds grid.RegionBounds) (grid.Span, grid.Span, error) {
	factor, err := r.scaleFactor(coordRows, coordCols, valueRows, valueCols)
	if err != nil {
		return grid.Span{}, grid.Span{}, err
	}
	return ValueWindow(coordRows, coordCols, valueRows, valueCols, bounds, factor)
}

func (r *Reprojector) scaleFactor(rows, cols, valueRows, valueCols int) (int, error) {
	factor := r.Params().ScaleFactor
	if valueRows == rows && valueCols == cols {
		return 1, nil
	}
	derived, err := DeriveScaleFactor(rows, cols, valueRows, valueCols)
	switch {
	case factor == 0 && err != nil:
		return 0, services.Wrap(services.ErrValidation, "subset_extraction", "derive scale factor", "", err)
	case factor == 0:
		r.logger.Debug("scale factor derived", logging.Int("scale_factor", derived))
		return derived, nil
	case err != nil || derived != factor:
		logging.WarnWithContext(r.logger, "configured scale factor disagrees with array shapes", "scale_factor_mismatch",
			logging.Int("configured", factor),
			logging.String("coord_shape", strconv.Itoa(rows)+"x"+strconv.Itoa(cols)),
			logging.String("value_shape", strconv.Itoa(valueRows)+"x"+strconv.Itoa(valueCols)),
			logging.String(logging.FieldErrorHint, "set grid.scale_factor = 0 to derive it per file"),
			logging.String(logging.FieldImpact, "value subset may be misaligned with coordinates"),
		)
	}
	return factor, nil
}

// NativeResolution returns the (latitude, longitude) pixel size in degrees
// that spans GroundResolutionM metres at centerLat.
func (r *Reprojector) NativeResolution(centerLat float64) (float64, float64) {
	return NativeResolution(r.Params().GroundResolutionM, centerLat)
}

// NativeResolution returns the (latitude, longitude) pixel size in degrees
// that spans meters on the ground at centerLat.
func NativeResolution(meters, centerLat float64) (float64, float64) {
	latRes := meters / MetersPerDegree
	cos := math.Cos(centerLat * math.Pi / 180)
	if cos < 1e-6 {
		cos = 1e-6
	}
	return latRes, meters / (MetersPerDegree * cos)
}

// ReprojectToRegularGrid interpolates the valid value pixels located by fine
// onto regular ascending axes spanning their bounding box at the native
// resolution. It returns nil with no error when no pixel is valid, when the
// valid pixels span no area, or when every interpolated node is NaN.
func (r *Reprojector) ReprojectToRegularGrid(fine grid.CoordinateGrid, values *grid.Matrix[float64]) (*grid.ReprojectedGrid, error) {
	rows, cols := fine.Shape()
	if !values.SameShape(rows, cols) {
		return nil, fmt.Errorf("fine grid %dx%d does not match values %dx%d", rows, cols, values.Rows, values.Cols)
	}
	p := r.Params()

	n := values.Size() - grid.CountNaN(values)
	lats := make([]float64, 0, n)
	lons := make([]float64, 0, n)
	vals := make([]float64, 0, n)
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for i, v := range values.Data {
		lat, lon := fine.Lat.Data[i], fine.Lon.Data[i]
		if math.IsNaN(v) || math.IsNaN(lat) || math.IsNaN(lon) {
			continue
		}
		lats = append(lats, lat)
		lons = append(lons, lon)
		vals = append(vals, v)
		minLat, maxLat = min(minLat, lat), max(maxLat, lat)
		minLon, maxLon = min(minLon, lon), max(maxLon, lon)
	}
	if len(vals) == 0 {
		r.logger.Warn("no valid data in subset", logging.String(logging.FieldEventType, "reproject_empty"))
		return nil, nil
	}

	centerLat := (minLat + maxLat) / 2
	latRes, lonRes := NativeResolution(p.GroundResolutionM, centerLat)
	latAxis := grid.Axis(minLat, maxLat, latRes)
	lonAxis := grid.Axis(minLon, maxLon, lonRes)
	r.logger.Debug("native resolution",
		logging.Float64("center_lat", centerLat),
		logging.Float64("lat_res", latRes),
		logging.Float64("lon_res", lonRes),
		logging.Int("points", len(vals)),
		logging.Int("rows", len(latAxis)),
		logging.Int("cols", len(lonAxis)),
	)

	out, err := InterpolateLinear(lats, lons, vals, latAxis, lonAxis)
	if errors.Is(err, ErrDegenerate) {
		r.logger.Warn("valid pixels span no area", logging.Error(err), logging.String(logging.FieldEventType, "reproject_degenerate"))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}
	if grid.CountNaN(out) == out.Size() {
		r.logger.Warn("no valid data after interpolation", logging.String(logging.FieldEventType, "reproject_empty"))
		return nil, nil
	}

	return grid.NewReprojectedGrid(latAxis, lonAxis, out, outputAttributes(p, latRes, lonRes))
}

func outputAttributes(p Params, latRes, lonRes float64) map[string]string {
	meters := strconv.FormatFloat(p.GroundResolutionM, 'f', -1, 64)
	return map[string]string{
		"title":              "MISR Red Band - Native " + meters + "m Resolution WGS84",
		"source":             "MISR Camera",
		"variable":           "red_radiance",
		"units":              "W/m²/sr/μm",
		"long_name":          "Red band radiance",
		"Conventions":        "CF-1.6",
		"resolution":         strconv.FormatFloat(p.TargetResolution, 'f', -1, 64) + "° (~" + meters + "m)",
		"lat_resolution_deg": strconv.FormatFloat(latRes, 'g', 8, 64),
		"lon_resolution_deg": strconv.FormatFloat(lonRes, 'g', 8, 64),
		"scale_factor":       strconv.Itoa(p.ScaleFactor),
		"crs":                grid.WGS84.String(),
	}
}
