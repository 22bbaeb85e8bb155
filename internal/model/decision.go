package model

import (
	"encoding/hex"
	"fmt"
)

// ChangeKind is the outcome of comparing a fetched document with the stored one.
type ChangeKind int

const (
	// ChangeNew means no record exists for the external id.
	ChangeNew ChangeKind = iota

	// ChangeUnchanged means the stored hash equals the new hash.
	ChangeUnchanged

	// ChangeModified means the hashes differ.
	ChangeModified
)

// String returns the lower-case name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeUnchanged:
		return "unchanged"
	case ChangeModified:
		return "modified"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler so kinds render by name in JSON.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ChangeDecision is the classification of one fetched document.
//
// Invariants:
//   - Kind == ChangeUnchanged iff the new hash equals the stored hash.
//   - Kind == ChangeModified only when hashes differ; Similarity is in [0,1].
//   - Prior is set for Unchanged and Modified, nil for New.
type ChangeDecision struct {
	Kind       ChangeKind      `json:"kind"`
	Similarity float64         `json:"similarity,omitempty"`
	Prior      *DocumentRecord `json:"-"`
}

// NewDecision returns a decision for a document seen for the first time.
func NewDecision() ChangeDecision {
	return ChangeDecision{Kind: ChangeNew}
}

// UnchangedDecision returns a decision for content identical to prior.
func UnchangedDecision(prior *DocumentRecord) ChangeDecision {
	return ChangeDecision{Kind: ChangeUnchanged, Similarity: 1, Prior: prior}
}

// ModifiedDecision returns a decision for content that differs from prior.
func ModifiedDecision(prior *DocumentRecord, similarity float64) ChangeDecision {
	return ChangeDecision{Kind: ChangeModified, Similarity: similarity, Prior: prior}
}

// Hex returns the hex-encoded content hash.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f.ContentHash[:])
}
