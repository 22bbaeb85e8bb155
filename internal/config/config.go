package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "lexcrawl"

	// DefaultTimeout bounds a single fetch attempt. Government sites are often
	// slow to serve large PDFs, so this is generous.
	DefaultTimeout = 30 * time.Second

	// DefaultWorkers is the number of documents fetched concurrently per source.
	// One worker keeps the request stream strictly sequential; the rate limiter
	// still applies when more workers are configured.
	DefaultWorkers = 1

	// DefaultBatchSize is the number of sources crawled at once.
	DefaultBatchSize = 2

	// DefaultMaxPages bounds pagination per source so that a listing which
	// generates pages forever cannot run away. 0 means unlimited.
	DefaultMaxPages = 100

	// DefaultUserAgent identifies lexcrawl in HTTP requests so that site
	// operators can recognize the traffic.
	DefaultUserAgent = "lexcrawl/1.0 (+https://github.com/nao1215/lexcrawl)"

	// DefaultMaxBodySize limits the maximum response body size to read.
	// Consolidated codes published as a single PDF can be large.
	DefaultMaxBodySize = 32 * 1024 * 1024 // 32MB
)

// Log formats accepted by Config.LogFormat.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the options of a lexcrawl invocation.
// It is populated from CLI flags and the sources file and passed through the
// application rather than kept in global state.
//
// Design decision: Command-level settings stay in a single flat struct.
// Everything that differs between sources lives in SourceConfig instead.
type Config struct {
	// Sources are the source names to crawl. Empty means every source
	// defined in the configuration file.
	Sources []string

	// Timeout overrides the per-fetch timeout of every source when positive.
	Timeout time.Duration

	// Workers overrides the per-source worker count when positive.
	Workers int

	// BatchSize is the number of sources crawled concurrently.
	BatchSize int

	// MaxPages overrides the per-source page limit when non-negative.
	// A negative value keeps the value from the sources file.
	MaxPages int

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// LogFormat selects the log encoding: LogFormatText or LogFormatJSON.
	LogFormat string

	// ConfigFilePath is the path to the sources file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// File is the loaded sources file.
	File *File

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file and only a plain text
	// summary goes to stdout.
	ReportFile string

	// DBDir is the directory of the document database.
	// Defaults to XDG data directory (~/.local/share/lexcrawl on Linux).
	DBDir string

	// UserAgent overrides the User-Agent of every source when set.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because several defaults are non-zero. MaxPages starts at -1 so
// that the sources file decides unless a flag says otherwise.
func NewConfig() *Config {
	return &Config{
		BatchSize:   DefaultBatchSize,
		MaxPages:    -1,
		LogFormat:   LogFormatText,
		DBDir:       XDGDataDir(),
		MaxBodySize: DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for lexcrawl.
// On Linux: ~/.local/share/lexcrawl
// On macOS: ~/Library/Application Support/lexcrawl
// On Windows: %LOCALAPPDATA%\lexcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for lexcrawl.
// On Linux: ~/.config/lexcrawl
// On macOS: ~/Library/Application Support/lexcrawl
// On Windows: %APPDATA%\lexcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast, before any request is sent. Every selected
// source is validated too, so a typo in the last source does not surface
// after the first ones were crawled.
func (c *Config) Validate() error {
	if c.File == nil || len(c.File.Sources) == 0 {
		return ErrNoSources
	}

	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.Workers < 0 {
		return ErrInvalidWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return ErrInvalidLogFormat
	}

	for _, name := range c.SelectedSources() {
		sc, err := c.SourceConfig(name)
		if err != nil {
			return err
		}
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
	}

	return nil
}

// SelectedSources returns the sources to crawl: the ones named on the
// command line, or every source of the file in name order.
func (c *Config) SelectedSources() []string {
	if len(c.Sources) > 0 {
		return c.Sources
	}
	if c.File == nil {
		return nil
	}
	return c.File.SourceNames()
}

// SourceConfig returns the effective configuration of a source: file
// defaults, then the source entry, then command-line overrides.
func (c *Config) SourceConfig(name string) (SourceConfig, error) {
	if c.File == nil {
		return SourceConfig{}, ErrNoSources
	}

	sc, err := c.File.SourceConfig(name)
	if err != nil {
		return SourceConfig{}, err
	}

	if c.Timeout > 0 {
		sc.Timeout = c.Timeout
	}
	if c.Workers > 0 {
		sc.Workers = c.Workers
	}
	if c.MaxPages >= 0 {
		sc.MaxPages = c.MaxPages
	}
	if c.UserAgent != "" {
		sc.UserAgent = c.UserAgent
	}
	return sc, nil
}
