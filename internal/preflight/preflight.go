package preflight

import (
	"context"

	"misrgrid/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Output directory (always checked)
	results = append(results, CheckOutputDirectory("Output directory", cfg.Output.Dir))

	if cfg.Clip.Enabled {
		results = append(results, CheckClipSource(ctx, cfg.Clip.Source))
	}

	if cfg.History.Enabled {
		results = append(results, CheckParentWritable("History database", cfg.History.Path))
	}

	if cfg.Logging.Dir != "" {
		results = append(results, CheckOutputDirectory("Log directory", cfg.Logging.Dir))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
