package batch

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"misrgrid/internal/services"
)

// ErrorInfo classifies a failed file.
type ErrorInfo struct {
	// Kind is one of the services.Kind* values.
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the outcome of one input file.
type Result struct {
	InputFile   string            `json:"input_file"`
	Success     bool              `json:"success"`
	OutputFiles map[string]string `json:"output_files,omitempty"`
	Error       *ErrorInfo        `json:"error,omitempty"`
	Elapsed     time.Duration     `json:"elapsed_ns"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	// FinalState is StateDone on success. On failure it is the state that
	// failed; the file itself is in StateFailed.
	FinalState State `json:"final_state"`
}

// ErrorMessage returns the failure message or "".
func (r Result) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Clone copies the maps so the result can be handed out safely.
func (r Result) Clone() Result {
	r.OutputFiles = maps.Clone(r.OutputFiles)
	r.Metadata = maps.Clone(r.Metadata)
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	return r
}

// resultBuilder accumulates a file's outcome. It is finalised exactly once.
type resultBuilder struct {
	res      Result
	state    State
	started  time.Time
	finished bool
}

func newResultBuilder(path string) *resultBuilder {
	return &resultBuilder{
		res:     Result{InputFile: path, Metadata: map[string]any{}},
		state:   StateLoading,
		started: time.Now(),
	}
}

func (b *resultBuilder) enter(s State) { b.state = s }

func (b *resultBuilder) set(key string, v any) { b.res.Metadata[key] = v }

func (b *resultBuilder) finish(outputs map[string]string, err error) Result {
	if b.finished {
		return b.res.Clone()
	}
	b.finished = true
	b.res.Elapsed = time.Since(b.started)
	if err != nil {
		b.res.Success = false
		b.res.FinalState = b.state
		b.res.Error = &ErrorInfo{Kind: services.Kind(err), Message: failureMessage(b.state, err)}
		return b.res.Clone()
	}
	b.res.Success = true
	b.res.FinalState = StateDone
	b.res.OutputFiles = maps.Clone(outputs)
	return b.res.Clone()
}

func failureMessage(state State, err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = string(state) + " failed"
	}
	return "Processing failed: " + msg
}

func cancelledResult(path string, cause error) Result {
	if cause == nil {
		cause = errors.New("batch cancelled")
	}
	return Result{
		InputFile:  path,
		FinalState: StateLoading,
		Error:      &ErrorInfo{Kind: services.KindCancelled, Message: "Processing skipped: " + cause.Error()},
	}
}

// Summary aggregates a result list. It is derived and never mutated.
type Summary struct {
	TotalFiles     int            `json:"total_files"`
	Successful     int            `json:"successful"`
	Failed         int            `json:"failed"`
	SuccessRate    float64        `json:"success_rate"`
	TotalElapsed   time.Duration  `json:"total_elapsed_ns"`
	AverageElapsed time.Duration  `json:"average_elapsed_ns"`
	Errors         map[string]int `json:"errors,omitempty"`
	ErrorKinds     map[string]int `json:"error_kinds,omitempty"`
	OutputFiles    []string       `json:"output_files,omitempty"`
}

// Summarize aggregates results. An empty list yields zero counts and a zero
// success rate.
func Summarize(results []Result) Summary {
	var s Summary
	s.TotalFiles = len(results)
	for _, r := range results {
		s.TotalElapsed += r.Elapsed
		if r.Success {
			s.Successful++
			for _, kind := range slices.Sorted(maps.Keys(r.OutputFiles)) {
				s.OutputFiles = append(s.OutputFiles, r.OutputFiles[kind])
			}
			continue
		}
		s.Failed++
		if s.Errors == nil {
			s.Errors = map[string]int{}
			s.ErrorKinds = map[string]int{}
		}
		s.Errors[r.ErrorMessage()]++
		if r.Error != nil {
			s.ErrorKinds[r.Error.Kind]++
		}
	}
	if s.TotalFiles > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalFiles) * 100
		s.AverageElapsed = s.TotalElapsed / time.Duration(s.TotalFiles)
	}
	return s
}
