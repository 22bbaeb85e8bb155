package model

import (
	"fmt"
	"time"
)

// RunState is the lifecycle state of a crawl run.
type RunState int

const (
	// RunIdle is the state before Run is called.
	RunIdle RunState = iota

	// RunRunning is the state while pages are being walked.
	RunRunning

	// RunCompleted means pagination ended normally. Target failures may exist.
	RunCompleted

	// RunAborted means initialization failed and no targets were processed.
	RunAborted

	// RunCancelled means the caller cancelled the run; stats are partial.
	RunCancelled
)

// String returns the lower-case name of the state.
func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunAborted:
		return "aborted"
	case RunCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(text []byte) error {
	for _, st := range []RunState{RunIdle, RunRunning, RunCompleted, RunAborted, RunCancelled} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// RunStats summarizes a single crawl run. It is owned by the orchestrator
// while the run is in progress and handed to the caller at the end.
type RunStats struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	// Pages is the number of listing pages visited.
	Pages int `json:"pages"`

	// Processed counts targets that were fetched, classified and persisted,
	// including unchanged ones.
	Processed int `json:"processed"`
	New       int `json:"new"`
	Unchanged int `json:"unchanged"`
	Modified  int `json:"modified"`

	// Errors counts terminal per-target failures.
	Errors int `json:"errors"`

	// Retries counts extra fetch attempts across all targets.
	Retries int `json:"retries"`
}

// Duration returns the wall time of the run, or zero if it has not ended.
func (s RunStats) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// FailureKind classifies a terminal per-target failure.
type FailureKind string

// Failure kinds recorded in RunResult.Failures.
const (
	FailureTimeout          FailureKind = "timeout"
	FailureNetwork          FailureKind = "network"
	FailureHTTPStatus       FailureKind = "http_status"
	FailureInvalidURL       FailureKind = "invalid_url"
	FailureTooLarge         FailureKind = "too_large"
	FailureRetriesExhausted FailureKind = "retries_exhausted"
	FailureStore            FailureKind = "store"
	FailureListing          FailureKind = "listing"
	FailureCancelled        FailureKind = "cancelled"
)

// TargetFailure records why a single target could not be processed.
type TargetFailure struct {
	Target   CrawlTarget `json:"target"`
	Kind     FailureKind `json:"kind"`
	Attempts int         `json:"attempts"`
	Err      error       `json:"-"`
	Message  string      `json:"message"`
}

// NewTargetFailure builds a failure record, copying err's message for serialization.
func NewTargetFailure(target CrawlTarget, kind FailureKind, attempts int, err error) TargetFailure {
	f := TargetFailure{Target: target, Kind: kind, Attempts: attempts, Err: err}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

// RunResult is the machine-readable summary of a crawl run.
type RunResult struct {
	State    RunState        `json:"state"`
	Stats    RunStats        `json:"stats"`
	Failures []TargetFailure `json:"failures"`

	// AbortErr is set when State is RunAborted.
	AbortErr error `json:"-"`

	// AbortReason mirrors AbortErr for serialization.
	AbortReason string `json:"abort_reason,omitempty"`
}

// Clean reports whether the run completed with no target failures.
func (r *RunResult) Clean() bool {
	return r.State == RunCompleted && len(r.Failures) == 0
}

// Degraded reports whether the run finished but some targets failed.
func (r *RunResult) Degraded() bool {
	return (r.State == RunCompleted || r.State == RunCancelled) && len(r.Failures) > 0
}

// Aborted reports whether the run never processed targets.
func (r *RunResult) Aborted() bool {
	return r.State == RunAborted
}
