package main

import (
	"fmt"
	"io"
	"strconv"

	"misrgrid/internal/logging"
)

// progressPrinter writes throttled batch progress lines. ProcessBatch
// serialises callbacks, so no locking is needed here.
type progressPrinter struct {
	out     io.Writer
	silent  bool
	sampler *logging.ProgressSampler
}

func newProgressPrinter(out io.Writer, silent bool) *progressPrinter {
	return &progressPrinter{out: out, silent: silent, sampler: logging.NewProgressSampler(10)}
}

func (p *progressPrinter) report(message string, fraction float64, index, total int) {
	if p.silent {
		return
	}
	percent := fraction * 100
	if !p.sampler.ShouldLog(percent, strconv.Itoa(index)) && fraction < 1 {
		return
	}
	fmt.Fprintf(p.out, "[%d/%d] %5.1f%% %s\n", index, total, percent, message)
}
