package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"misrgrid/internal/export"
	"misrgrid/internal/textutil"
)

func formatElapsed(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// formatWhen renders t relative to now, e.g. "3 minutes ago".
func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func formatOutputs(outputs map[string]string) string {
	if len(outputs) == 0 {
		return "-"
	}
	sum := export.Summarize(outputs)
	parts := make([]string, 0, len(sum.Files))
	for _, f := range sum.Files {
		if !f.Exists {
			parts = append(parts, fmt.Sprintf("%s (missing)", f.Kind))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", f.Kind, formatBytes(f.Size)))
	}
	return strings.Join(parts, ", ")
}

func shortPath(path string) string {
	return filepath.Base(path)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// unknownNameError reports an unknown name with the closest known one.
func unknownNameError(what, name string, known []string) error {
	if guess, ok := textutil.Suggest(name, known); ok {
		return fmt.Errorf("unknown %s %q (did you mean %q?)", what, name, guess)
	}
	if len(known) == 0 {
		return fmt.Errorf("unknown %s %q", what, name)
	}
	return fmt.Errorf("unknown %s %q (available: %s)", what, name, strings.Join(known, ", "))
}
