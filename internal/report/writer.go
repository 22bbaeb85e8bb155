package report

import (
	"io"
	"time"

	"github.com/nao1215/lexcrawl/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl run results in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the
// same API.
type Writer interface {
	// Write outputs the report of a single run.
	// Returns the number of bytes written and any error encountered.
	Write(result *model.RunResult) (int, error)

	// WriteAll outputs one report covering every run of a batch.
	WriteAll(results []*model.RunResult) (int, error)
}

// MultiWriter renders the same runs through several Writers, each in its own
// format. The crawl command uses it to write the chosen report to a file
// while printing a text summary to stdout.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.RunResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteAll outputs the batch to all configured Writers.
func (m *MultiWriter) WriteAll(results []*model.RunResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteAll(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Totals aggregates the counters of several runs.
type Totals struct {
	Sources   int `json:"sources"`
	Pages     int `json:"pages"`
	Processed int `json:"processed"`
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
	Retries   int `json:"retries"`
	Aborted   int `json:"aborted"`
	Cancelled int `json:"cancelled"`
}

// Summarize adds up the stats of results. Nil entries are skipped.
func Summarize(results []*model.RunResult) Totals {
	var t Totals
	for _, r := range results {
		if r == nil {
			continue
		}
		t.Sources++
		t.Pages += r.Stats.Pages
		t.Processed += r.Stats.Processed
		t.New += r.Stats.New
		t.Modified += r.Stats.Modified
		t.Unchanged += r.Stats.Unchanged
		t.Errors += r.Stats.Errors
		t.Retries += r.Stats.Retries
		switch r.State {
		case model.RunAborted:
			t.Aborted++
		case model.RunCancelled:
			t.Cancelled++
		}
	}
	return t
}

// timeFormat is used for every timestamp in text and markdown reports.
const timeFormat = "2006-01-02 15:04:05 MST"

// formatDuration rounds d for display; zero means the run never ended.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// statusText describes the outcome of a run in one line.
func statusText(r *model.RunResult) string {
	switch {
	case r.Aborted():
		return "Aborted - " + r.AbortReason
	case r.State == model.RunCancelled:
		return "Cancelled (partial results)"
	case r.Degraded():
		return "Completed with failures"
	case r.Clean():
		return "Completed"
	default:
		return r.State.String()
	}
}
