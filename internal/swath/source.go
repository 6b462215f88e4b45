package swath

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"misrgrid/internal/grid"
	"misrgrid/internal/services"
)

// Source is an open swath. Implementations must release every underlying
// handle in Close; Close may be called more than once.
type Source interface {
	Path() string
	Coordinates(ctx context.Context) (grid.CoordinateGrid, error)
	// ValueShape is the full shape of the primary band.
	ValueShape() (rows, cols int)
	// Values reads the half-open window rows x cols of the primary band.
	Values(ctx context.Context, rows, cols grid.Span) (*grid.Matrix[float64], error)
	// Quality returns packed quality data aligned with the primary band, or
	// ok=false when the swath carries none.
	Quality(ctx context.Context) (qa *grid.Matrix[uint32], ok bool, err error)
	// Validate returns an error tagged services.ErrValidation when the swath
	// is structurally unusable.
	Validate(ctx context.Context) error
	Close() error
}

// Opener opens swaths by path.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Source, error) { return f(ctx, path) }

// With opens path, runs fn and closes the source on every exit path,
// including a panic in fn. A close failure is joined to fn's error.
func With(ctx context.Context, opener Opener, path string, fn func(Source) error) (err error) {
	if opener == nil {
		return services.Wrap(services.ErrConfiguration, "loading", "open swath", "no opener configured", nil)
	}
	src, err := opener.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close %s: %w", path, cerr))
		}
	}()
	return fn(src)
}

// Registry dispatches to an Opener by file extension.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

func NewRegistry() *Registry {
	return &Registry{openers: make(map[string]Opener)}
}

// DefaultRegistry knows the JSON fixture format.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(FixtureExtension, FixtureOpener{})
	return r
}

// Register binds ext (with or without the leading dot) to opener.
func (r *Registry) Register(ext string, opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[normalizeExt(ext)] = opener
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.openers))
	for ext := range r.openers {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.lookup(path)
	return ok
}

func (r *Registry) Open(ctx context.Context, path string) (Source, error) {
	opener, ok := r.lookup(path)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "loading", "open swath",
			fmt.Sprintf("no reader for %q (known: %s)", filepath.Ext(path), strings.Join(r.Extensions(), ", ")), nil)
	}
	return opener.Open(ctx, path)
}

// lookup matches the longest registered suffix so multi-part extensions
// such as ".swath.json" win over ".json".
func (r *Registry) lookup(path string) (Opener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lower := strings.ToLower(path)
	var (
		best    Opener
		bestLen int
	)
	for ext, opener := range r.openers {
		if ext != "" && strings.HasSuffix(lower, ext) && len(ext) > bestLen {
			best, bestLen = opener, len(ext)
		}
	}
	return best, best != nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
