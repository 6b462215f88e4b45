package batch

import (
	"context"

	"misrgrid/internal/preflight"
)

func outputWarnings(dir string) []string {
	res := preflight.CheckOutputDirectory("Output directory", dir)
	if res.Passed {
		return nil
	}
	return []string{"Output directory is not writable: " + res.Detail}
}

func clipWarnings(ctx context.Context, source string) []string {
	res := preflight.CheckClipSource(ctx, source)
	if res.Passed {
		return nil
	}
	if source == "" {
		return []string{"Clipping enabled but no polygon source specified"}
	}
	return []string{"Invalid polygon source: " + res.Detail}
}
