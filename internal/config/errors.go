package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and SourceConfig.Validate()
// and can be inspected with errors.Is().
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). Callers wrap them with the
// offending source name when a value is useful in the message.
var (
	// ErrNoSources is returned when the configuration file defines no
	// sources, or no configuration file was found.
	ErrNoSources = errors.New("no sources configured: run 'lexcrawl init' or pass --config")

	// ErrUnknownSource is returned when a source named on the command line
	// is not defined in the configuration file.
	ErrUnknownSource = errors.New("unknown source")

	// ErrMissingBaseURL is returned when a source has no base URL.
	ErrMissingBaseURL = errors.New("source has no baseURL")

	// ErrInvalidBaseURL is returned when a source's base URL is not an
	// absolute http or https URL.
	ErrInvalidBaseURL = errors.New("invalid baseURL: must be an absolute http or https URL")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the number of workers per source
	// is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidBatchSize is returned when the number of sources crawled at
	// once is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxPages is returned when max pages is negative.
	// Use 0 for no limit.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidRetry is returned when retry settings cannot work.
	ErrInvalidRetry = errors.New("invalid retry settings")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidLogFormat is returned when the log format is neither
	// "text" nor "json".
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")
)
