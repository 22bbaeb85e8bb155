package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/lexcrawl/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because RunResult only carries plain fields and the run
// state already implements encoding.TextMarshaler.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs a single run result as a JSON object.
func (w *JSONWriter) Write(result *model.RunResult) (int, error) {
	return w.writeJSON(result)
}

// WriteAll outputs the run results as a JSON array.
func (w *JSONWriter) WriteAll(results []*model.RunResult) (int, error) {
	if results == nil {
		results = []*model.RunResult{}
	}
	return w.writeJSON(results)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport wraps run results with metadata.
//
// Design decision: We wrap the results rather than adding fields to
// RunResult because the version and totals describe the invocation,
// not a single run.
type JSONReport struct {
	// Version is the lexcrawl version that generated this report.
	Version string `json:"version"`

	// Runs are the per-source results in the order the sources were given.
	Runs []*model.RunResult `json:"runs"`

	// Totals sums the counters of all runs.
	Totals Totals `json:"totals"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(results []*model.RunResult, version string) *JSONReport {
	if results == nil {
		results = []*model.RunResult{}
	}
	return &JSONReport{
		Version: version,
		Runs:    results,
		Totals:  Summarize(results),
	}
}

// FullJSONWriter outputs complete reports with the metadata wrapper.
type FullJSONWriter struct {
	*JSONWriter

	// version is the lexcrawl version string.
	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs a single run wrapped with metadata.
func (w *FullJSONWriter) Write(result *model.RunResult) (int, error) {
	return w.WriteAll([]*model.RunResult{result})
}

// WriteAll outputs the runs wrapped with metadata.
func (w *FullJSONWriter) WriteAll(results []*model.RunResult) (int, error) {
	return w.writeJSON(NewJSONReport(results, w.version))
}
