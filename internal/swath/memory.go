package swath

import (
	"context"
	"fmt"

	"misrgrid/internal/grid"
	"misrgrid/internal/services"
)

// MemorySource serves arrays held in memory.
type MemorySource struct {
	Name       string
	Coords     grid.CoordinateGrid
	Band       *grid.Matrix[float64]
	QA         *grid.Matrix[uint32]
	InvalidErr error

	closed int
}

// Closed reports how many times Close ran.
func (s *MemorySource) Closed() int { return s.closed }

func (s *MemorySource) Path() string { return s.Name }

func (s *MemorySource) Coordinates(ctx context.Context) (grid.CoordinateGrid, error) {
	if err := ctx.Err(); err != nil {
		return grid.CoordinateGrid{}, err
	}
	if s.Coords.Empty() {
		return grid.CoordinateGrid{}, services.Wrap(services.ErrValidation, "loading", "read coordinates", s.Name+" has no geolocation", nil)
	}
	return grid.CoordinateGrid{Lat: s.Coords.Lat.Clone(), Lon: s.Coords.Lon.Clone()}, nil
}

func (s *MemorySource) ValueShape() (int, int) { return s.Band.Shape() }

func (s *MemorySource) Values(ctx context.Context, rows, cols grid.Span) (*grid.Matrix[float64], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Band == nil {
		return nil, services.Wrap(services.ErrValidation, "loading", "read values", s.Name+" has no primary band", nil)
	}
	return sliceSpan(s.Band, rows, cols)
}

func (s *MemorySource) Quality(ctx context.Context) (*grid.Matrix[uint32], bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.QA == nil {
		return nil, false, nil
	}
	return s.QA.Clone(), true, nil
}

func (s *MemorySource) Validate(context.Context) error {
	if s.InvalidErr != nil {
		return services.Wrap(services.ErrValidation, "loading", "validate", s.Name, s.InvalidErr)
	}
	return validateArrays(s.Name, s.Coords, s.Band)
}

func (s *MemorySource) Close() error {
	s.closed++
	return nil
}

// MemoryOpener opens MemorySources by path. Unknown paths fail with
// services.ErrNotFound.
type MemoryOpener map[string]*MemorySource

func (m MemoryOpener) Open(ctx context.Context, path string) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, ok := m[path]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "loading", "open swath", path, nil)
	}
	return src, nil
}

func sliceSpan[T any](m *grid.Matrix[T], rows, cols grid.Span) (*grid.Matrix[T], error) {
	if rows.Len() <= 0 || cols.Len() <= 0 {
		return nil, services.Wrap(services.ErrValidation, "loading", "read values",
			fmt.Sprintf("empty window rows [%d,%d) cols [%d,%d)", rows.Start, rows.End, cols.Start, cols.End), nil)
	}
	out, err := m.Slice(rows.Start, rows.End-1, cols.Start, cols.End-1)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "loading", "read values", "", err)
	}
	return out, nil
}

func validateArrays(name string, coords grid.CoordinateGrid, band *grid.Matrix[float64]) error {
	if coords.Empty() {
		return services.Wrap(services.ErrValidation, "loading", "validate", name+": empty coordinate grid", nil)
	}
	if _, err := grid.NewCoordinateGrid(coords.Lat, coords.Lon); err != nil {
		return services.Wrap(services.ErrValidation, "loading", "validate", name, err)
	}
	if band == nil || band.Size() == 0 {
		return services.Wrap(services.ErrValidation, "loading", "validate", name+": empty primary band", nil)
	}
	cr, cc := coords.Shape()
	if band.Rows%cr != 0 || band.Cols%cc != 0 {
		return services.Wrap(services.ErrValidation, "loading", "validate",
			fmt.Sprintf("%s: band %dx%d is not aligned with coordinates %dx%d", name, band.Rows, band.Cols, cr, cc), nil)
	}
	return nil
}
