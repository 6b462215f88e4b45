package swath

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"misrgrid/internal/grid"
	"misrgrid/internal/services"
)

func sampleSource(t *testing.T) *MemorySource {
	t.Helper()
	lat, err := grid.FromRows([][]float64{{10, 10}, {11, 11}})
	require.NoError(t, err)
	lon, err := grid.FromRows([][]float64{{20, 21}, {20, 21}})
	require.NoError(t, err)
	coords, err := grid.NewCoordinateGrid(lat, lon)
	require.NoError(t, err)
	band := grid.Filled(4, 4, 5.0)
	band.Set(0, 1, math.NaN())
	qa := grid.Filled[uint32](4, 4, 0)
	qa.Set(3, 3, 1)
	return &MemorySource{Name: "mem", Coords: coords, Band: band, QA: qa}
}

func TestFixtureRoundTrip(t *testing.T) {
	src := sampleSource(t)
	path := filepath.Join(t.TempDir(), "scene"+FixtureExtension)
	require.NoError(t, WriteFixture(path, NewFixture(src.Coords, src.Band, src.QA)))

	opened, err := DefaultRegistry().Open(context.Background(), path)
	require.NoError(t, err)
	defer opened.Close()

	require.NoError(t, opened.Validate(context.Background()))
	coords, err := opened.Coordinates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, src.Coords.Lat.Data, coords.Lat.Data)

	rows, cols := opened.ValueShape()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)
	vals, err := opened.Values(context.Background(), grid.Span{Start: 0, End: 2}, grid.Span{Start: 1, End: 3})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(vals.At(0, 0)))
	assert.Equal(t, 5.0, vals.At(1, 1))

	qa, ok, err := opened.Quality(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), qa.At(3, 3))
}

func TestFixtureWithoutQuality(t *testing.T) {
	src := sampleSource(t)
	path := filepath.Join(t.TempDir(), "noqa"+FixtureExtension)
	require.NoError(t, WriteFixture(path, NewFixture(src.Coords, src.Band, nil)))

	opened, err := FixtureOpener{}.Open(context.Background(), path)
	require.NoError(t, err)
	_, ok, err := opened.Quality(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFixtureOpenErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad"+FixtureExtension)
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	ragged := filepath.Join(dir, "ragged"+FixtureExtension)
	require.NoError(t, os.WriteFile(ragged, []byte(`{"lat":[[1,2],[3]],"lon":[[1,2],[3,4]],"values":[[1]]}`), 0o644))

	_, err := FixtureOpener{}.Open(context.Background(), filepath.Join(dir, "missing"+FixtureExtension))
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = FixtureOpener{}.Open(context.Background(), bad)
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = FixtureOpener{}.Open(context.Background(), ragged)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestValidateRejectsMisalignedBand(t *testing.T) {
	src := sampleSource(t)
	src.Band = grid.Filled(3, 4, 1.0)
	assert.ErrorIs(t, src.Validate(context.Background()), services.ErrValidation)

	src = sampleSource(t)
	src.InvalidErr = errors.New("corrupt header")
	assert.ErrorIs(t, src.Validate(context.Background()), services.ErrValidation)
}

func TestWithClosesOnEveryPath(t *testing.T) {
	src := sampleSource(t)
	opener := MemoryOpener{"a": src}
	boom := errors.New("boom")

	require.NoError(t, With(context.Background(), opener, "a", func(Source) error { return nil }))
	assert.Equal(t, 1, src.Closed())

	err := With(context.Background(), opener, "a", func(Source) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, src.Closed())

	assert.Panics(t, func() {
		_ = With(context.Background(), opener, "a", func(Source) error { panic("bad") })
	})
	assert.Equal(t, 3, src.Closed())

	err = With(context.Background(), opener, "missing", func(Source) error { return nil })
	assert.ErrorIs(t, err, services.ErrNotFound)
}

type failingClose struct{ *MemorySource }

func (failingClose) Close() error { return errors.New("handle leak") }

func TestWithJoinsCloseError(t *testing.T) {
	src := sampleSource(t)
	opener := OpenerFunc(func(context.Context, string) (Source, error) { return failingClose{src}, nil })

	err := With(context.Background(), opener, "x", func(Source) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handle leak")
}

func TestRegistry(t *testing.T) {
	errPlainJSON := errors.New("plain json opener")
	r := DefaultRegistry()
	r.Register("json", OpenerFunc(func(context.Context, string) (Source, error) { return nil, errPlainJSON }))

	assert.True(t, r.Supports("/data/scene.SWATH.JSON"))
	assert.True(t, r.Supports("plain.json"))
	assert.False(t, r.Supports("scene.hdf"))
	assert.Equal(t, []string{".json", FixtureExtension}, r.Extensions())

	_, err := r.Open(context.Background(), "scene.hdf")
	assert.ErrorIs(t, err, services.ErrValidation)

	// ".swath.json" beats ".json"
	_, err = r.Open(context.Background(), filepath.Join(t.TempDir(), "x"+FixtureExtension))
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = r.Open(context.Background(), "plain.json")
	assert.ErrorIs(t, err, errPlainJSON)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MemoryOpener{"a": sampleSource(t)}.Open(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
