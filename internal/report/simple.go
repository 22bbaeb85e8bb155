package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/lexcrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because the report is often redirected to a file or a
// cron mail.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to show are printed.
	showEmpty bool

	// verbose adds failure messages and timestamps.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs a single run in human-readable format.
func (w *SimpleWriter) Write(result *model.RunResult) (int, error) {
	return w.WriteAll([]*model.RunResult{result})
}

// WriteAll outputs every run followed by a total line when there is more than one.
func (w *SimpleWriter) WriteAll(results []*model.RunResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb)

	for _, r := range results {
		if r == nil {
			continue
		}
		w.writeRun(&sb, r)
	}

	if len(results) > 1 {
		w.writeTotals(&sb, Summarize(results))
	}

	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report banner.
func (w *SimpleWriter) writeHeader(sb *strings.Builder) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          LEXCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

// writeRun writes the information, counters and failures of one run.
func (w *SimpleWriter) writeRun(sb *strings.Builder, r *model.RunResult) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("SOURCE: %s\n", r.Stats.Source))
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Run ID:     %s\n", r.Stats.RunID))
	if !r.Stats.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Started:    %s\n", r.Stats.StartedAt.Format(timeFormat)))
	}
	if w.verbose && !r.Stats.EndedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Ended:      %s\n", r.Stats.EndedAt.Format(timeFormat)))
	}
	sb.WriteString(fmt.Sprintf("Duration:   %s\n", formatDuration(r.Stats.Duration())))
	sb.WriteString(fmt.Sprintf("Status:     %s\n", statusText(r)))
	sb.WriteString("\n")

	if !r.Aborted() || w.showEmpty {
		sb.WriteString(fmt.Sprintf("  PAGES:     %d\n", r.Stats.Pages))
		sb.WriteString(fmt.Sprintf("  NEW:       %d\n", r.Stats.New))
		sb.WriteString(fmt.Sprintf("  MODIFIED:  %d\n", r.Stats.Modified))
		sb.WriteString(fmt.Sprintf("  UNCHANGED: %d\n", r.Stats.Unchanged))
		sb.WriteString(fmt.Sprintf("  ERRORS:    %d\n", r.Stats.Errors))
		sb.WriteString(fmt.Sprintf("  RETRIES:   %d\n", r.Stats.Retries))
		sb.WriteString("\n")
	}

	w.writeFailures(sb, r.Failures)
}

// writeFailures lists failed targets.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, failures []model.TargetFailure) {
	if len(failures) == 0 {
		if w.showEmpty {
			sb.WriteString("FAILURES\n  No failures\n\n")
		}
		return
	}

	sb.WriteString("FAILURES\n")
	for _, f := range failures {
		sb.WriteString(fmt.Sprintf("  [%s] %s\n", f.Kind, targetLabel(f.Target)))
		if f.Target.URL != "" && f.Target.URL != f.Target.ID {
			sb.WriteString(fmt.Sprintf("    URL: %s\n", f.Target.URL))
		}
		if w.verbose {
			sb.WriteString(fmt.Sprintf("    Attempts: %d\n", f.Attempts))
			if f.Message != "" {
				sb.WriteString(fmt.Sprintf("    Error: %s\n", f.Message))
			}
		}
	}
	sb.WriteString("\n")
}

// writeTotals writes the sums over all runs.
func (w *SimpleWriter) writeTotals(sb *strings.Builder, t Totals) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("TOTAL\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("  SOURCES:   %d (%d aborted, %d cancelled)\n", t.Sources, t.Aborted, t.Cancelled))
	sb.WriteString(fmt.Sprintf("  NEW:       %d\n", t.New))
	sb.WriteString(fmt.Sprintf("  MODIFIED:  %d\n", t.Modified))
	sb.WriteString(fmt.Sprintf("  UNCHANGED: %d\n", t.Unchanged))
	sb.WriteString(fmt.Sprintf("  ERRORS:    %d\n", t.Errors))
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by lexcrawl\n")
	sb.WriteString("https://github.com/nao1215/lexcrawl\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// targetLabel prefers the external id and falls back to the URL.
func targetLabel(t model.CrawlTarget) string {
	if t.ID != "" {
		return t.ID
	}
	return t.URL
}
