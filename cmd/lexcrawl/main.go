// Package main provides the entry point for the lexcrawl CLI.
//
// lexcrawl is a change-tracking crawler for legal publication sources. It
// walks paginated listings, fetches each document politely, and classifies
// it as new, modified or unchanged against a local SQLite database.
//
// Usage:
//
//	lexcrawl init
//	lexcrawl crawl [source...]
//	lexcrawl history [external-id]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
