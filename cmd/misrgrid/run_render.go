package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"misrgrid/internal/batch"
	"misrgrid/internal/export"
)

func renderRunResults(results []batch.Result, summary batch.Summary, runID string) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status, detail := "ok", formatOutputs(r.OutputFiles)
		if !r.Success {
			status, detail = "failed", r.ErrorMessage()
			if r.Error != nil {
				status = r.Error.Kind
			}
		}
		rows = append(rows, []string{shortPath(r.InputFile), status, string(r.FinalState), formatElapsed(r.Elapsed), detail})
	}

	var b strings.Builder
	b.WriteString(renderTable(tableSpec{
		Title:   "Run " + shortID(runID),
		Headers: []string{"File", "Status", "State", "Elapsed", "Outputs / Error"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	}))
	b.WriteString("\n")
	b.WriteString(renderSummary(results, summary))
	return b.String()
}

func renderSummary(results []batch.Result, summary batch.Summary) string {
	var total int64
	for _, r := range results {
		total += export.Summarize(r.OutputFiles).TotalSize
	}
	lines := []string{
		fmt.Sprintf("Processed %d files: %d succeeded, %d failed (%s success)",
			summary.TotalFiles, summary.Successful, summary.Failed, formatPercent(summary.SuccessRate)),
		fmt.Sprintf("Elapsed %s total, %s per file; %d outputs, %s written",
			formatElapsed(summary.TotalElapsed), formatElapsed(summary.AverageElapsed), len(summary.OutputFiles), formatBytes(total)),
	}
	for _, kind := range slices.Sorted(maps.Keys(summary.ErrorKinds)) {
		lines = append(lines, "  "+kind+": "+strconv.Itoa(summary.ErrorKinds[kind]))
	}
	return strings.Join(lines, "\n")
}
