package report

import (
	"io"
	"strconv"

	"github.com/nao1215/lexcrawl/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for pull request comments and archived run logs.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides tables, mermaid charts and GitHub alerts
// without hand-built string templates.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs a single run in Markdown format.
func (w *MarkdownWriter) Write(result *model.RunResult) (int, error) {
	return w.WriteAll([]*model.RunResult{result})
}

// WriteAll outputs every run as its own section, preceded by a totals table
// when there is more than one run.
func (w *MarkdownWriter) WriteAll(results []*model.RunResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("lexcrawl Report")
	md.PlainText("")

	if len(results) > 1 {
		w.writeTotals(md, Summarize(results))
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		w.writeRun(md, r)
	}

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeTotals writes the sums over all runs.
func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, t Totals) {
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Sources", "Aborted", "Cancelled", "New", "Modified", "Unchanged", "Errors"},
		Rows: [][]string{{
			strconv.Itoa(t.Sources),
			strconv.Itoa(t.Aborted),
			strconv.Itoa(t.Cancelled),
			strconv.Itoa(t.New),
			strconv.Itoa(t.Modified),
			strconv.Itoa(t.Unchanged),
			strconv.Itoa(t.Errors),
		}},
	})
	md.PlainText("")
}

// writeRun writes the section of one run.
func (w *MarkdownWriter) writeRun(md *markdown.Markdown, r *model.RunResult) {
	md.H2("Source `" + r.Stats.Source + "`")
	md.PlainText("")

	started := "-"
	if !r.Stats.StartedAt.IsZero() {
		started = r.Stats.StartedAt.Format(timeFormat)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + r.Stats.RunID + "`"},
			{"Started", started},
			{"Duration", formatDuration(r.Stats.Duration())},
			{"Status", statusIcon(r) + " " + statusText(r)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, r)

	if r.Aborted() {
		return
	}

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"🟢 New", strconv.Itoa(r.Stats.New)},
			{"🟡 Modified", strconv.Itoa(r.Stats.Modified)},
			{"⚪ Unchanged", strconv.Itoa(r.Stats.Unchanged)},
			{"🔴 Errors", strconv.Itoa(r.Stats.Errors)},
			{"Pages", strconv.Itoa(r.Stats.Pages)},
			{"Retries", strconv.Itoa(r.Stats.Retries)},
		},
	})
	md.PlainText("")

	if r.Stats.Processed+r.Stats.Errors > 0 {
		w.writePieChart(md, r.Stats)
	}

	w.writeFailures(md, r.Failures)
}

// statusIcon returns the emoji shown next to the status text.
func statusIcon(r *model.RunResult) string {
	switch {
	case r.Aborted():
		return "❌"
	case r.State == model.RunCancelled, r.Degraded():
		return "⚠️"
	default:
		return "✅"
	}
}

// writePieChart writes a mermaid pie chart of target outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.RunStats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Target Outcomes"),
		piechart.WithShowData(true),
	)

	if s.New > 0 {
		chart.LabelAndIntValue("New", uint64(s.New))
	}
	if s.Modified > 0 {
		chart.LabelAndIntValue("Modified", uint64(s.Modified))
	}
	if s.Unchanged > 0 {
		chart.LabelAndIntValue("Unchanged", uint64(s.Unchanged))
	}
	if s.Errors > 0 {
		chart.LabelAndIntValue("Errors", uint64(s.Errors))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the run outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, r *model.RunResult) {
	switch {
	case r.Aborted():
		md.Cautionf("The run was aborted before any document was processed: %s", r.AbortReason)
	case r.Degraded():
		md.Warningf("%d target(s) failed. They will be retried on the next run.", len(r.Failures))
	case r.State == model.RunCancelled:
		md.Importantf("The run was cancelled after %d page(s); counters are partial.", r.Stats.Pages)
	case r.Stats.New+r.Stats.Modified > 0:
		md.Note("New or modified documents were stored.")
	default:
		md.Tip("No changes since the previous run.")
	}
	md.PlainText("")
}

// writeFailures writes a table of failed targets followed by the full errors.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, failures []model.TargetFailure) {
	if len(failures) == 0 {
		return
	}

	md.PlainText("### Failures")
	md.PlainText("")

	rows := make([][]string, len(failures))
	for i, f := range failures {
		url := f.Target.URL
		if url == "" {
			url = "-"
		}
		rows[i] = []string{
			targetLabel(f.Target),
			truncateString(url, 60),
			string(f.Kind),
			strconv.Itoa(f.Attempts),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Target", "URL", "Kind", "Attempts"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range failures {
		if f.Message != "" {
			md.Details(targetLabel(f.Target), f.Message)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [lexcrawl](https://github.com/nao1215/lexcrawl)*")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
