// Package config provides configuration structures and utilities for lexcrawl.
// It defines the command-line settings of a crawl, the YAML sources file, and
// the conversion of a source entry into rate limit, retry and site settings.
package config
