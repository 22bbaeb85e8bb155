// Package report renders crawl run results.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter and FullJSONWriter: Structured JSON for tool integration
//   - MarkdownWriter: Markdown with outcome charts and GitHub alerts
//
// Design decision: We separate report writing from the run data structures
// (which are in the model package) so that the crawler never depends on
// presentation. New output formats do not touch model.RunResult.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report
