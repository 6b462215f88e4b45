package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"misrgrid/internal/batch"
	"misrgrid/internal/config"
	"misrgrid/internal/history"
	"misrgrid/internal/logging"
	"misrgrid/internal/qa"
	"misrgrid/internal/services"
	"misrgrid/internal/swath"
)

// lockFileName guards an output directory against concurrent runs.
const lockFileName = ".misrgrid.lock"

type runOptions struct {
	outputDir   string
	preset      string
	workers     int
	clipSource  string
	qaFlags     []string
	noHistory   bool
	noTimestamp bool
	quiet       bool
}

// apply copies command line overrides onto cfg. Unknown preset names are
// rejected with the closest known name.
func (o runOptions) apply(cfg *config.Config) error {
	if preset := strings.TrimSpace(o.preset); preset != "" {
		if _, ok := cfg.LookupPreset(preset); !ok {
			return unknownNameError("preset", preset, cfg.PresetNames())
		}
		if err := cfg.UsePreset(preset); err != nil {
			return err
		}
	}
	if dir := strings.TrimSpace(o.outputDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve output dir: %w", err)
		}
		cfg.Output.Dir = expanded
	}
	if o.workers > 0 {
		cfg.Batch.Workers = o.workers
	}
	if src := strings.TrimSpace(o.clipSource); src != "" {
		expanded, err := config.ExpandPath(src)
		if err != nil {
			return fmt.Errorf("resolve clip source: %w", err)
		}
		cfg.Clip.Enabled = true
		cfg.Clip.Source = expanded
	}
	if len(o.qaFlags) > 0 {
		cfg.Quality.Enabled = true
		cfg.Quality.Flags = slices.Clone(o.qaFlags)
	}
	if o.noHistory {
		cfg.History.Enabled = false
	}
	if o.noTimestamp {
		cfg.Output.AddTimestamp = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.EnsureDirectories()
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <file|dir>...",
		Short: "Process swath files into regional WGS84 grids",
		Long: "Process every file named on the command line. Directories are scanned (not recursively)\n" +
			"for files with a known swath extension. One failing file never stops the batch.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}
			warnUnknownFlags(cmd, cfg, logger)

			settings, err := batch.SettingsFromConfig(cfg)
			if err != nil {
				return err
			}
			registry := swath.DefaultRegistry()
			paths, err := collectInputs(args, inputFilter(settings, registry))
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no input files found")
			}
			pipeline, err := batch.Select(settings, batch.Deps{
				Opener:      registry,
				Logger:      logger,
				StageLevels: logging.StageLevels(cfg.Logging.StageOverrides),
			})
			if err != nil {
				return err
			}

			lock := flock.New(filepath.Join(cfg.Output.Dir, lockFileName))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire output lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another misrgrid run is writing to %s", cfg.Output.Dir)
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					logger.Warn("failed to release output lock", logging.Error(err))
				}
			}()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := ctx.openHistory(cfg)
			if err != nil {
				logging.WarnWithContext(logger, "run history unavailable", "history_unavailable",
					logging.Error(err),
					logging.String(logging.FieldImpact, "this run will not be recorded"),
					logging.String(logging.FieldErrorHint, "check history.path or pass --no-history"),
				)
			}
			if store != nil {
				defer store.Close()
			}

			recorder := newRunRecorder(store, logger, history.Run{
				ID:         history.NewRunID(),
				Mode:       settings.Mode(),
				ConfigPath: ctx.configPath,
				OutputDir:  cfg.Output.Dir,
				TotalFiles: len(paths),
			})
			runCtx = services.WithRunID(runCtx, recorder.run.ID)
			recorder.start(runCtx)

			started := time.Now()
			progress := newProgressPrinter(cmd.ErrOrStderr(), opts.quiet || ctx.jsonOutput())
			results := pipeline.ProcessBatch(runCtx, paths, progress.report)
			summary := batch.Summarize(results)
			recorder.finish(context.WithoutCancel(runCtx), results, summary, time.Since(started), runStatus(runCtx, summary))

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, runReport{RunID: recorder.run.ID, Summary: summary, Results: results}); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderRunResults(results, summary, recorder.run.ID))
			}

			if err := runCtx.Err(); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", summary.Failed, summary.TotalFiles)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (overrides output.dir)")
	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "", "Named region preset")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Files processed concurrently (overrides batch.workers)")
	cmd.Flags().StringVar(&opts.clipSource, "clip", "", "Clip to the polygons in this shapefile or GeoJSON")
	cmd.Flags().StringSliceVar(&opts.qaFlags, "qa-flags", nil, "Enable quality filtering with these flags")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record this run in the history database")
	cmd.Flags().BoolVar(&opts.noTimestamp, "no-timestamp", false, "Omit the timestamp suffix from output names")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

type runReport struct {
	RunID   string         `json:"run_id"`
	Summary batch.Summary  `json:"summary"`
	Results []batch.Result `json:"results"`
}

func runStatus(ctx context.Context, summary batch.Summary) string {
	switch {
	case ctx.Err() != nil:
		return history.StatusCancelled
	case summary.TotalFiles > 0 && summary.Successful == 0:
		return history.StatusFailed
	default:
		return history.StatusCompleted
	}
}

// warnUnknownFlags reports quality flag names the catalog does not know. The
// filter skips them; the warning only adds a suggestion.
func warnUnknownFlags(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Quality.Enabled {
		return
	}
	filter := qa.New(logger)
	var known []string
	for _, def := range filter.AvailableFlags() {
		known = append(known, def.Name)
	}
	for _, cf := range cfg.Quality.CustomFlags {
		known = append(known, cf.Name)
	}
	for _, name := range cfg.Quality.Flags {
		if !slices.Contains(known, name) {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; it will be ignored\n", unknownNameError("quality flag", name, known))
		}
	}
}

// inputFilter picks directory entries the selected pipeline can read.
func inputFilter(settings batch.Settings, registry *swath.Registry) func(string) bool {
	if settings.Mode() == config.ModeToolkit {
		return func(path string) bool {
			return slices.Contains(batch.ToolkitExtensions, strings.ToLower(filepath.Ext(path)))
		}
	}
	return registry.Supports
}

// collectInputs expands directories one level deep through keep and passes
// explicit files through untouched, so a bad file is reported by the batch
// rather than silently dropped. Duplicates keep their first position.
func collectInputs(args []string, keep func(string) bool) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, arg := range args {
		path, err := config.ExpandPath(strings.TrimSpace(arg))
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			add(path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read input directory %s: %w", path, err)
		}
		for _, entry := range entries {
			full := filepath.Join(path, entry.Name())
			if entry.Type().IsRegular() && keep(full) {
				add(full)
			}
		}
	}
	return paths, nil
}
