package clip

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"misrgrid/internal/grid"
	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

// SupportedExtensions lists the polygon source formats LoadGeometries reads.
var SupportedExtensions = []string{".shp", ".geojson", ".json"}

// LoadGeometries reads every polygonal feature from path. Non-polygonal
// features are skipped. A source without polygons is an error.
func LoadGeometries(path string, logger *slog.Logger) (*Clipper, error) {
	logger = logging.NewComponentLogger(logger, "clip")
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "clip", "load geometries", "polygon source path is empty", nil)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "clip", "load geometries", path, err)
		}
		return nil, services.Wrap(services.ErrValidation, "clip", "load geometries", path, err)
	}

	var (
		set *sourceSet
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".shp":
		set, err = loadShapefile(path, logger)
	case ".geojson", ".json":
		set, err = loadGeoJSON(path)
	default:
		return nil, services.Wrap(services.ErrValidation, "clip", "load geometries",
			fmt.Sprintf("unsupported polygon source %q (want %s)", ext, strings.Join(SupportedExtensions, ", ")), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "clip", "load geometries", path, err)
	}
	if len(set.polygons) == 0 {
		return nil, services.Wrap(services.ErrValidation, "clip", "load geometries",
			fmt.Sprintf("%s contains no polygons", path), nil)
	}
	if set.skipped > 0 {
		logging.WarnWithContext(logger, "non-polygon features ignored", "clip_features_skipped",
			logging.String("source", path),
			logging.Int("skipped", set.skipped),
			logging.String(logging.FieldImpact, "only polygon features are used for clipping"),
		)
	}

	c := newClipper(path, set, logger)
	logger.Info("polygon source loaded",
		logging.String("source", path),
		logging.Int("geometries", len(set.polygons)),
		logging.String("crs", set.crs),
	)
	return c, nil
}

// ValidateSource checks that path can be loaded and yields at least one
// polygon.
func ValidateSource(path string) error {
	_, err := LoadGeometries(path, logging.NewNop())
	return err
}

type sourceSet struct {
	polygons []geom.Polygonal
	sr       *proj.SR
	crs      string
	geodetic bool
	skipped  int
}

func wgs84SR() (*proj.SR, error) {
	return proj.Parse(grid.WGS84.Proj4)
}

func loadShapefile(path string, logger *slog.Logger) (*sourceSet, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer dec.Close()

	set := &sourceSet{}
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if _, statErr := os.Stat(prj); statErr == nil {
		set.sr, err = dec.SR()
		if err != nil {
			return nil, fmt.Errorf("read projection %s: %w", filepath.Base(prj), err)
		}
		set.crs = "prj:" + filepath.Base(prj)
	} else {
		logging.WarnWithContext(logger, "shapefile has no .prj; assuming WGS84", "clip_missing_prj",
			logging.String("source", path),
			logging.String(logging.FieldErrorHint, "ship the .prj next to the .shp"),
			logging.String(logging.FieldImpact, "polygons are treated as longitude/latitude degrees"),
		)
		if set.sr, err = wgs84SR(); err != nil {
			return nil, err
		}
		set.crs = grid.WGS84.String()
		set.geodetic = true
	}

	for {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		set.add(g)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode shapefile: %w", err)
	}
	return set, nil
}

type geoJSONDoc struct {
	Type     string          `json:"type"`
	Geometry json.RawMessage `json:"geometry"`
	Features []struct {
		Geometry json.RawMessage `json:"geometry"`
	} `json:"features"`
}

// loadGeoJSON accepts a FeatureCollection, a Feature or a bare geometry.
// GeoJSON coordinates are always WGS84.
func loadGeoJSON(path string) (*sourceSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc geoJSONDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var raws []json.RawMessage
	switch doc.Type {
	case "FeatureCollection":
		for _, f := range doc.Features {
			raws = append(raws, f.Geometry)
		}
	case "Feature":
		raws = append(raws, doc.Geometry)
	case "":
		return nil, errors.New("geojson document has no type")
	default:
		raws = append(raws, data)
	}

	set := &sourceSet{crs: grid.WGS84.String(), geodetic: true}
	if set.sr, err = wgs84SR(); err != nil {
		return nil, err
	}
	for i, raw := range raws {
		if len(raw) == 0 || string(raw) == "null" {
			set.skipped++
			continue
		}
		g, err := geojson.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		set.add(g)
	}
	return set, nil
}

func (s *sourceSet) add(g geom.Geom) {
	p, ok := g.(geom.Polygonal)
	if !ok || g == nil {
		s.skipped++
		return
	}
	s.polygons = append(s.polygons, p)
}
