package model

import "fmt"

// StoreError reports a failed call against the persistent store.
// The orchestrator treats it as a failure of the single target being
// processed; it is never retried by the crawler.
type StoreError struct {
	// Op is the store operation that failed (find, insert, update, insert_version).
	Op string

	// ExternalID is the document the operation was about.
	ExternalID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.ExternalID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}
