package main

import (
	"context"
	"log/slog"
	"time"

	"misrgrid/internal/batch"
	"misrgrid/internal/history"
	"misrgrid/internal/logging"
)

// runRecorder mirrors a batch into the history store. A nil store records
// nothing; store failures are logged and never fail the run.
type runRecorder struct {
	store  *history.Store
	logger *slog.Logger
	run    history.Run
}

func newRunRecorder(store *history.Store, logger *slog.Logger, run history.Run) *runRecorder {
	return &runRecorder{store: store, logger: logging.NewComponentLogger(logger, "history"), run: run}
}

func (r *runRecorder) start(ctx context.Context) {
	if r.store == nil {
		return
	}
	if err := r.store.StartRun(ctx, &r.run); err != nil {
		r.disable(err)
	}
}

func (r *runRecorder) finish(ctx context.Context, results []batch.Result, summary batch.Summary, elapsed time.Duration, status string) {
	r.run.Status = status
	r.run.Successful = summary.Successful
	r.run.Failed = summary.Failed
	r.run.Elapsed = elapsed
	if r.store == nil {
		return
	}
	for i, res := range results {
		if err := r.store.RecordFile(ctx, r.run.ID, fileRecord(i, res)); err != nil {
			r.disable(err)
			return
		}
	}
	if err := r.store.FinishRun(ctx, r.run); err != nil {
		r.disable(err)
	}
}

func (r *runRecorder) disable(err error) {
	logging.WarnWithContext(r.logger, "run history write failed", "history_write_failed",
		logging.String("run_id", r.run.ID),
		logging.Error(err),
		logging.String(logging.FieldImpact, "run history is incomplete for this run"),
	)
	r.store = nil
}

func fileRecord(position int, res batch.Result) history.FileRecord {
	rec := history.FileRecord{
		Position:   position,
		InputFile:  res.InputFile,
		Success:    res.Success,
		FinalState: string(res.FinalState),
		Elapsed:    res.Elapsed,
		Outputs:    res.OutputFiles,
	}
	if res.Error != nil {
		rec.ErrorKind = res.Error.Kind
		rec.ErrorMessage = res.Error.Message
	}
	return rec
}
