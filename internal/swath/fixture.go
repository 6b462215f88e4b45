package swath

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"misrgrid/internal/fileutil"
	"misrgrid/internal/grid"
	"misrgrid/internal/services"
)

// FixtureExtension is the file extension of JSON swath fixtures.
const FixtureExtension = ".swath.json"

// Fixture is the on-disk JSON swath layout. Null cells decode as NaN.
type Fixture struct {
	Band       string            `json:"band,omitempty"`
	Lat        [][]*float64      `json:"lat"`
	Lon        [][]*float64      `json:"lon"`
	Values     [][]*float64      `json:"values"`
	Quality    [][]uint32        `json:"quality,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewFixture captures in-memory arrays as a Fixture. qa may be nil.
func NewFixture(coords grid.CoordinateGrid, values *grid.Matrix[float64], qa *grid.Matrix[uint32]) Fixture {
	f := Fixture{
		Lat:    toNullable(coords.Lat),
		Lon:    toNullable(coords.Lon),
		Values: toNullable(values),
	}
	if qa != nil {
		f.Quality = qa.Rows2D()
	}
	return f
}

// WriteFixture stores f at path atomically.
func WriteFixture(path string, f Fixture) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

// FixtureOpener reads Fixture files fully into memory on Open.
type FixtureOpener struct{}

func (FixtureOpener) Open(ctx context.Context, path string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "loading", "open swath", path, err)
		}
		return nil, services.Wrap(services.ErrValidation, "loading", "open swath", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, services.Wrap(services.ErrValidation, "loading", "decode fixture", path, err)
	}
	return f.source(path)
}

func (f Fixture) source(path string) (*MemorySource, error) {
	src := &MemorySource{Name: path}
	lat, err := fromNullable(f.Lat)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "loading", "decode fixture", path+": lat", err)
	}
	lon, err := fromNullable(f.Lon)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "loading", "decode fixture", path+": lon", err)
	}
	if lat.Size() > 0 || lon.Size() > 0 {
		if src.Coords, err = grid.NewCoordinateGrid(lat, lon); err != nil {
			return nil, services.Wrap(services.ErrValidation, "loading", "decode fixture", path, err)
		}
	}
	if src.Band, err = fromNullable(f.Values); err != nil {
		return nil, services.Wrap(services.ErrValidation, "loading", "decode fixture", path+": values", err)
	}
	if len(f.Quality) > 0 {
		if src.QA, err = grid.FromRows(f.Quality); err != nil {
			return nil, services.Wrap(services.ErrValidation, "loading", "decode fixture", path+": quality", err)
		}
	}
	return src, nil
}

func fromNullable(rows [][]*float64) (*grid.Matrix[float64], error) {
	plain := make([][]float64, len(rows))
	for r, row := range rows {
		plain[r] = make([]float64, len(row))
		for c, v := range row {
			if v == nil {
				plain[r][c] = math.NaN()
				continue
			}
			plain[r][c] = *v
		}
	}
	return grid.FromRows(plain)
}

func toNullable(m *grid.Matrix[float64]) [][]*float64 {
	if m == nil {
		return nil
	}
	out := make([][]*float64, m.Rows)
	for r := range out {
		out[r] = make([]*float64, m.Cols)
		for c := range out[r] {
			v := m.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out[r][c] = &v
		}
	}
	return out
}
