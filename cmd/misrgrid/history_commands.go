package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"misrgrid/internal/history"
)

type runView struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Status     string    `json:"status"`
	Mode       string    `json:"mode"`
	ConfigPath string    `json:"config_path,omitempty"`
	OutputDir  string    `json:"output_dir"`
	TotalFiles int       `json:"total_files"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	ElapsedMS  int64     `json:"elapsed_ms"`
}

type fileView struct {
	Position     int               `json:"position"`
	InputFile    string            `json:"input_file"`
	Success      bool              `json:"success"`
	FinalState   string            `json:"final_state"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ElapsedMS    int64             `json:"elapsed_ms"`
	Outputs      map[string]string `json:"outputs,omitempty"`
}

func newRunView(r history.Run) runView {
	return runView{
		ID: r.ID, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, Status: r.Status, Mode: r.Mode,
		ConfigPath: r.ConfigPath, OutputDir: r.OutputDir, TotalFiles: r.TotalFiles,
		Successful: r.Successful, Failed: r.Failed, ElapsedMS: r.Elapsed.Milliseconds(),
	}
}

func newFileView(f history.FileRecord) fileView {
	return fileView{
		Position: f.Position, InputFile: f.InputFile, Success: f.Success, FinalState: f.FinalState,
		ErrorKind: f.ErrorKind, ErrorMessage: f.ErrorMessage, ElapsedMS: f.Elapsed.Milliseconds(), Outputs: f.Outputs,
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	return historyCmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := ctx.openHistory(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("run history is disabled (history.enabled = false)")
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				views := make([]runView, 0, len(runs))
				for _, r := range runs {
					views = append(views, newRunView(r))
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						shortID(v.ID), formatWhen(v.StartedAt), v.Status, v.Mode,
						strconv.Itoa(v.TotalFiles), strconv.Itoa(v.Successful), strconv.Itoa(v.Failed),
						formatElapsed(time.Duration(v.ElapsedMS) * time.Millisecond),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
					Headers: []string{"Run", "Started", "Status", "Mode", "Files", "OK", "Failed", "Elapsed"},
					Rows:    rows,
					Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				}))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its files; a unique ID prefix is enough",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				run, files, err := store.GetRun(cmd.Context(), args[0])
				if errors.Is(err, history.ErrRunNotFound) {
					return fmt.Errorf("run %q not found", args[0])
				}
				if err != nil {
					return err
				}
				view := struct {
					runView
					Files []fileView `json:"files"`
				}{runView: newRunView(run)}
				for _, f := range files {
					view.Files = append(view.Files, newFileView(f))
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Status)
				fmt.Fprintf(out, "  Started:  %s (%s)\n", run.StartedAt.Local().Format(time.DateTime), formatWhen(run.StartedAt))
				fmt.Fprintf(out, "  Mode:     %s\n", run.Mode)
				fmt.Fprintf(out, "  Output:   %s\n", run.OutputDir)
				if run.ConfigPath != "" {
					fmt.Fprintf(out, "  Config:   %s\n", run.ConfigPath)
				}
				fmt.Fprintf(out, "  Files:    %d total, %d succeeded, %d failed in %s\n",
					run.TotalFiles, run.Successful, run.Failed, formatElapsed(run.Elapsed))

				rows := make([][]string, 0, len(files))
				for _, f := range files {
					status, detail := "ok", formatOutputs(f.Outputs)
					if !f.Success {
						status, detail = f.ErrorKind, f.ErrorMessage
					}
					rows = append(rows, []string{strconv.Itoa(f.Position + 1), shortPath(f.InputFile), status, f.FinalState, formatElapsed(f.Elapsed), detail})
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable(tableSpec{
						Headers: []string{"#", "File", "Status", "State", "Elapsed", "Outputs / Error"},
						Rows:    rows,
						Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					}))
				}
				return nil
			})
		},
	}
}
