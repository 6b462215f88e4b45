package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"misrgrid/internal/logging"
	"misrgrid/internal/services"
)

// Step is one state of a per-file pipeline.
type Step struct {
	// Name is the snake_case state name used in logs.
	Name string
	// Message is the progress text; empty uses Label(Name).
	Message string
	// Progress is the fraction reported when the step starts.
	Progress float64
	Run      func(ctx context.Context) error
}

// Options controls step execution.
type Options struct {
	Logger *slog.Logger
	// Levels overrides the log level per step name.
	Levels     logging.StageLevels
	OnProgress func(message string, fraction float64)
	// Attrs are added to the start and completion records.
	Attrs []logging.Attr
}

// Run reports progress, executes step and logs its start, completion or
// failure. The step's error is returned unchanged.
func Run(ctx context.Context, opts Options, step Step) error {
	if step.Run == nil {
		return fmt.Errorf("step %q has no body", step.Name)
	}
	stageCtx := logging.WithStage(ctx, step.Name)
	stageLogger := opts.Levels.Apply(logging.WithContext(stageCtx, opts.Logger), step.Name)

	if opts.OnProgress != nil {
		msg := step.Message
		if msg == "" {
			msg = Label(step.Name)
		}
		opts.OnProgress(msg, step.Progress)
	}
	stageLogger.Debug(
		"stage started",
		logging.Args(append([]logging.Attr{
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Float64("progress", step.Progress),
		}, opts.Attrs...)...)...,
	)

	started := time.Now()
	if err := step.Run(stageCtx); err != nil {
		handleFailure(stageLogger, step, err, time.Since(started))
		return err
	}

	stageLogger.Debug(
		"stage completed",
		logging.Args(append([]logging.Attr{
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("elapsed", time.Since(started)),
		}, opts.Attrs...)...)...,
	)
	return nil
}

func handleFailure(logger *slog.Logger, step Step, stageErr error, elapsed time.Duration) {
	kind := services.Kind(stageErr)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", kind),
		logging.Duration("elapsed", elapsed),
		logging.Error(stageErr),
	}
	// Domain-empty outcomes are expected for files that miss the target.
	if kind == services.KindNoData || kind == services.KindCancelled {
		logger.Warn("stage ended without data", logging.Args(attrs...)...)
		return
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)
}

// Label turns a step name such as "fine_grid_build" into "Fine Grid Build".
// Casers are stateful, so each call builds its own.
func Label(name string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(strings.ReplaceAll(name, "_", " ")), " "))
}
