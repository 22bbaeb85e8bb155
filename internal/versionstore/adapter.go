// Package versionstore turns change decisions into store writes.
//
// Durability order for a modified document: the prior content is archived as
// a DocumentVersion first, and only then is the live DocumentRecord
// overwritten. If the process dies between the two writes, the next crawl
// sees the old hash, classifies the document as modified again, and the
// version insert is a no-op because versions are unique per
// (document_id, content_hash). History is never lost.
package versionstore

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/lexcrawl/internal/model"
)

// Store operation names reported in model.StoreError.Op.
const (
	OpInsert        = "insert"
	OpUpdate        = "update"
	OpInsertVersion = "insert_version"
)

// errMissingPrior is returned for a modified decision without a prior record.
var errMissingPrior = errors.New("modified decision has no prior record")

// Store is the write side of the document store.
type Store interface {
	// Insert creates a record and returns its id.
	Insert(ctx context.Context, doc *model.DocumentRecord) (int64, error)

	// Update overwrites the mutable fields of record id.
	Update(ctx context.Context, id int64, fields model.DocumentUpdate) error

	// InsertVersion archives a snapshot. Inserting the same
	// (DocumentID, ContentHash) twice must succeed without a duplicate.
	InsertVersion(ctx context.Context, v *model.DocumentVersion) error
}

// Adapter persists change decisions.
type Adapter struct {
	store Store
	now   func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock sets the time source for LastModifiedAt and ArchivedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter creates an Adapter writing to store.
func NewAdapter(store Store, opts ...Option) *Adapter {
	a := &Adapter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Persist applies decision for doc.
//
//   - New: insert a fresh record.
//   - Unchanged: no write.
//   - Modified: archive the prior content, then update the live record.
//
// Failures are returned as *model.StoreError.
func (a *Adapter) Persist(ctx context.Context, decision model.ChangeDecision, doc *model.FetchedDocument) error {
	switch decision.Kind {
	case model.ChangeNew:
		return a.insert(ctx, doc)
	case model.ChangeUnchanged:
		return nil
	case model.ChangeModified:
		return a.archiveAndUpdate(ctx, decision, doc)
	default:
		return &model.StoreError{Op: OpUpdate, ExternalID: doc.Target.ID, Err: errors.New("unknown change kind " + decision.Kind.String())}
	}
}

func (a *Adapter) insert(ctx context.Context, doc *model.FetchedDocument) error {
	now := a.now()
	record := &model.DocumentRecord{
		ExternalID:     doc.Target.ID,
		Title:          title(doc),
		SourceURL:      doc.Target.URL,
		DocumentType:   doc.DocumentType,
		ContentHash:    doc.Fingerprint.Hex(),
		ContentText:    doc.Text,
		PublishedAt:    doc.Meta.PublishedAt,
		LastModifiedAt: now,
		Metadata:       doc.Meta.Fields,
	}

	if _, err := a.store.Insert(ctx, record); err != nil {
		return &model.StoreError{Op: OpInsert, ExternalID: doc.Target.ID, Err: err}
	}
	return nil
}

func (a *Adapter) archiveAndUpdate(ctx context.Context, decision model.ChangeDecision, doc *model.FetchedDocument) error {
	prior := decision.Prior
	if prior == nil {
		return &model.StoreError{Op: OpInsertVersion, ExternalID: doc.Target.ID, Err: errMissingPrior}
	}

	now := a.now()
	version := &model.DocumentVersion{
		DocumentID:      prior.ID,
		ContentHash:     prior.ContentHash,
		ContentText:     prior.ContentText,
		SimilarityScore: decision.Similarity,
		ArchivedAt:      now,
	}
	if err := a.store.InsertVersion(ctx, version); err != nil {
		return &model.StoreError{Op: OpInsertVersion, ExternalID: doc.Target.ID, Err: err}
	}

	update := model.DocumentUpdate{
		Title:          title(doc),
		ContentHash:    doc.Fingerprint.Hex(),
		ContentText:    doc.Text,
		LastModifiedAt: now,
		Metadata:       doc.Meta.Fields,
	}
	if err := a.store.Update(ctx, prior.ID, update); err != nil {
		return &model.StoreError{Op: OpUpdate, ExternalID: doc.Target.ID, Err: err}
	}
	return nil
}

// title prefers the title found in the document over the listing title.
func title(doc *model.FetchedDocument) string {
	if doc.Meta.Title != "" {
		return doc.Meta.Title
	}
	return doc.Target.Title
}
