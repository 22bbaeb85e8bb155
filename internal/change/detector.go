// Package change classifies fetched documents against their stored state.
//
// A document is New when the store has no record for its external id,
// Unchanged when the stored content hash equals the new one, and Modified
// otherwise. Only Modified decisions carry a computed similarity score;
// equal hashes short-circuit before any edit distance is computed.
//
// The Detector never writes. Persisting a decision is the job of the
// versionstore package.
package change

import (
	"context"

	"github.com/nao1215/lexcrawl/internal/fingerprint"
	"github.com/nao1215/lexcrawl/internal/model"
)

// Store is the read side of the document store used for classification.
// FindByExternalID returns nil and no error when no record exists.
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.DocumentRecord, error)
}

// SimilarityFunc scores two texts in [0,1].
type SimilarityFunc func(a, b string) float64

// Detector classifies documents as new, unchanged or modified.
type Detector struct {
	store      Store
	similarity SimilarityFunc
}

// Option configures a Detector.
type Option func(*Detector)

// WithSimilarity replaces the similarity function.
// The default is fingerprint.Similarity.
func WithSimilarity(fn SimilarityFunc) Option {
	return func(d *Detector) {
		if fn != nil {
			d.similarity = fn
		}
	}
}

// NewDetector creates a Detector reading from store.
func NewDetector(store Store, opts ...Option) *Detector {
	d := &Detector{
		store:      store,
		similarity: fingerprint.Similarity,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify compares newHash (hex SHA-256) and newText with the stored record
// for externalID. Lookup failures are returned as *model.StoreError.
func (d *Detector) Classify(ctx context.Context, externalID, newHash, newText string) (model.ChangeDecision, error) {
	prior, err := d.store.FindByExternalID(ctx, externalID)
	if err != nil {
		return model.ChangeDecision{}, &model.StoreError{Op: "find", ExternalID: externalID, Err: err}
	}

	if prior == nil {
		return model.NewDecision(), nil
	}

	if prior.ContentHash == newHash {
		return model.UnchangedDecision(prior), nil
	}

	return model.ModifiedDecision(prior, d.similarity(prior.ContentText, newText)), nil
}
