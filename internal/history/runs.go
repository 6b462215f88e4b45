package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run is one invocation of the batch command.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Mode       string
	ConfigPath string
	OutputDir  string
	TotalFiles int
	Successful int
	Failed     int
	Elapsed    time.Duration
}

// FileRecord is the outcome of one input file within a run.
type FileRecord struct {
	Position     int
	InputFile    string
	Success      bool
	FinalState   string
	ErrorKind    string
	ErrorMessage string
	Elapsed      time.Duration
	Outputs      map[string]string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// StartRun inserts a run in the running state. An empty ID is assigned.
func (s *Store) StartRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	err := s.exec(ctx, `INSERT INTO runs (id, started_at, status, mode, config_path, output_dir, total_files)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Status,
		run.Mode,
		nullableString(run.ConfigPath),
		nullableString(run.OutputDir),
		run.TotalFiles,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordFile stores the outcome of one file of a run.
func (s *Store) RecordFile(ctx context.Context, runID string, rec FileRecord) error {
	var outputs any
	if len(rec.Outputs) > 0 {
		encoded, err := json.Marshal(rec.Outputs)
		if err != nil {
			return fmt.Errorf("encode outputs: %w", err)
		}
		outputs = string(encoded)
	}
	err := s.exec(ctx, `INSERT OR REPLACE INTO run_files
        (run_id, position, input_file, success, final_state, error_kind, error_message, elapsed_ms, outputs_json)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		rec.Position,
		rec.InputFile,
		boolToInt(rec.Success),
		rec.FinalState,
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		rec.Elapsed.Milliseconds(),
		outputs,
	)
	if err != nil {
		return fmt.Errorf("insert run file: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and status of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE runs
            SET finished_at = ?, status = ?, total_files = ?, successful = ?, failed = ?, elapsed_ms = ?
            WHERE id = ?`,
			finished.UTC().Format(time.RFC3339Nano),
			run.Status,
			run.TotalFiles,
			run.Successful,
			run.Failed,
			run.Elapsed.Milliseconds(),
			run.ID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, mode, config_path, output_dir,
    total_files, successful, failed, elapsed_ms`

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a run and its file records ordered by position. A unique ID
// prefix is accepted.
func (s *Store) GetRun(ctx context.Context, id string) (Run, []FileRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Run{}, nil, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR id LIKE ? ORDER BY started_at DESC LIMIT 2",
		id, id+"%")
	if err != nil {
		return Run{}, nil, fmt.Errorf("get run: %w", err)
	}
	var matches []Run
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			rows.Close()
			return Run{}, nil, scanErr
		}
		matches = append(matches, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Run{}, nil, err
	}
	switch {
	case len(matches) == 0:
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case len(matches) > 1 && matches[0].ID != id && matches[1].ID != id:
		return Run{}, nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
	run := matches[0]
	if len(matches) > 1 && matches[1].ID == id {
		run = matches[1]
	}

	files, err := s.runFiles(ctx, run.ID)
	if err != nil {
		return Run{}, nil, err
	}
	return run, files, nil
}

func (s *Store) runFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, input_file, success, final_state,
        error_kind, error_message, elapsed_ms, outputs_json
        FROM run_files WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var (
			rec       FileRecord
			success   int
			errKind   sql.NullString
			errMsg    sql.NullString
			elapsedMS int64
			outputs   sql.NullString
		)
		if err := rows.Scan(&rec.Position, &rec.InputFile, &success, &rec.FinalState,
			&errKind, &errMsg, &elapsedMS, &outputs); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		rec.Success = success != 0
		rec.ErrorKind = errKind.String
		rec.ErrorMessage = errMsg.String
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if outputs.Valid && outputs.String != "" {
			if err := json.Unmarshal([]byte(outputs.String), &rec.Outputs); err != nil {
				return nil, fmt.Errorf("decode outputs for %s: %w", rec.InputFile, err)
			}
		}
		files = append(files, rec)
	}
	return files, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
		configPath sql.NullString
		outputDir  sql.NullString
		elapsedMS  int64
	)
	if err := row.Scan(&run.ID, &startedAt, &finishedAt, &run.Status, &run.Mode, &configPath, &outputDir,
		&run.TotalFiles, &run.Successful, &run.Failed, &elapsedMS); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	run.ConfigPath = configPath.String
	run.OutputDir = outputDir.String
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return run, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
