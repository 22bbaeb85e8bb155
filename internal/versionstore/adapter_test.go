package versionstore

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/lexcrawl/internal/fingerprint"
	"github.com/nao1215/lexcrawl/internal/model"
)

// recordingStore records every call in order.
type recordingStore struct {
	calls      []string
	inserted   []*model.DocumentRecord
	versions   []*model.DocumentVersion
	updates    map[int64]model.DocumentUpdate
	failOn     string
	failureErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{updates: make(map[int64]model.DocumentUpdate)}
}

func (s *recordingStore) fail(op string) error {
	if s.failOn == op {
		return s.failureErr
	}
	return nil
}

func (s *recordingStore) Insert(_ context.Context, doc *model.DocumentRecord) (int64, error) {
	s.calls = append(s.calls, OpInsert)
	if err := s.fail(OpInsert); err != nil {
		return 0, err
	}
	s.inserted = append(s.inserted, doc)
	return int64(len(s.inserted)), nil
}

func (s *recordingStore) Update(_ context.Context, id int64, fields model.DocumentUpdate) error {
	s.calls = append(s.calls, OpUpdate)
	if err := s.fail(OpUpdate); err != nil {
		return err
	}
	s.updates[id] = fields
	return nil
}

func (s *recordingStore) InsertVersion(_ context.Context, v *model.DocumentVersion) error {
	s.calls = append(s.calls, OpInsertVersion)
	if err := s.fail(OpInsertVersion); err != nil {
		return err
	}
	s.versions = append(s.versions, v)
	return nil
}

func fetchedDoc(id, body, text string) *model.FetchedDocument {
	return &model.FetchedDocument{
		Target:       model.CrawlTarget{ID: id, Title: "Listing title", URL: "https://example.gov/" + id},
		Fingerprint:  fingerprint.New([]byte(body), text),
		Text:         text,
		DocumentType: "gazette",
		Meta: model.DocumentMeta{
			PublishedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Fields:      map[string]string{"issue": "42"},
		},
	}
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func TestAdapter_PersistNew(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	a := NewAdapter(store, WithClock(func() time.Time { return fixedNow }))
	doc := fetchedDoc("doc-1", "<p>v1</p>", "v1")

	if err := a.Persist(context.Background(), model.NewDecision(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(store.calls, []string{OpInsert}) {
		t.Fatalf("expected a single insert, got %v", store.calls)
	}
	rec := store.inserted[0]
	if rec.ExternalID != "doc-1" || rec.SourceURL != "https://example.gov/doc-1" {
		t.Errorf("unexpected identity fields: %+v", rec)
	}
	if rec.ContentHash != fingerprint.HashHex([]byte("<p>v1</p>")) {
		t.Errorf("unexpected hash %s", rec.ContentHash)
	}
	if rec.Title != "Listing title" || rec.DocumentType != "gazette" || rec.ContentText != "v1" {
		t.Errorf("unexpected content fields: %+v", rec)
	}
	if !rec.LastModifiedAt.Equal(fixedNow) || rec.PublishedAt.IsZero() {
		t.Errorf("unexpected timestamps: %+v", rec)
	}
	if rec.Metadata["issue"] != "42" {
		t.Errorf("metadata not carried: %v", rec.Metadata)
	}
}

func TestAdapter_PersistUnchangedWritesNothing(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	a := NewAdapter(store)
	prior := &model.DocumentRecord{ID: 1, ExternalID: "doc-1"}

	if err := a.Persist(context.Background(), model.UnchangedDecision(prior), fetchedDoc("doc-1", "x", "x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("expected no writes, got %v", store.calls)
	}
}

func TestAdapter_PersistModifiedArchivesBeforeUpdate(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	a := NewAdapter(store, WithClock(func() time.Time { return fixedNow }))
	prior := &model.DocumentRecord{ID: 5, ExternalID: "doc-1", ContentHash: "oldhash", ContentText: "old text"}
	doc := fetchedDoc("doc-1", "<p>v2</p>", "new text")
	doc.Meta.Title = "Document title"

	if err := a.Persist(context.Background(), model.ModifiedDecision(prior, 0.75), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(store.calls, []string{OpInsertVersion, OpUpdate}) {
		t.Fatalf("expected version then update, got %v", store.calls)
	}

	v := store.versions[0]
	if v.DocumentID != 5 || v.ContentHash != "oldhash" || v.ContentText != "old text" {
		t.Errorf("version must hold the prior content: %+v", v)
	}
	if v.SimilarityScore != 0.75 || !v.ArchivedAt.Equal(fixedNow) {
		t.Errorf("unexpected version score or time: %+v", v)
	}

	u, ok := store.updates[5]
	if !ok {
		t.Fatal("live record was not updated")
	}
	if u.ContentHash != doc.Fingerprint.Hex() || u.ContentText != "new text" {
		t.Errorf("update must hold the new content: %+v", u)
	}
	if u.Title != "Document title" {
		t.Errorf("expected document title to win, got %q", u.Title)
	}
}

func TestAdapter_FailedArchiveSkipsUpdate(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	store := newRecordingStore()
	store.failOn = OpInsertVersion
	store.failureErr = cause
	a := NewAdapter(store)
	prior := &model.DocumentRecord{ID: 5, ContentHash: "old"}

	err := a.Persist(context.Background(), model.ModifiedDecision(prior, 0.5), fetchedDoc("doc-1", "new", "new"))

	var storeErr *model.StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != OpInsertVersion {
		t.Fatalf("expected insert_version StoreError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be wrapped")
	}
	if slices.Contains(store.calls, OpUpdate) {
		t.Error("live record must not be overwritten when archiving fails")
	}
}

func TestAdapter_StoreErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("constraint failed")
	prior := &model.DocumentRecord{ID: 5, ContentHash: "old"}

	tests := []struct {
		name     string
		failOn   string
		decision model.ChangeDecision
	}{
		{"insert", OpInsert, model.NewDecision()},
		{"update", OpUpdate, model.ModifiedDecision(prior, 0.1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newRecordingStore()
			store.failOn = tt.failOn
			store.failureErr = cause

			err := NewAdapter(store).Persist(context.Background(), tt.decision, fetchedDoc("doc-3", "b", "b"))

			var storeErr *model.StoreError
			if !errors.As(err, &storeErr) {
				t.Fatalf("expected StoreError, got %v", err)
			}
			if storeErr.Op != tt.failOn || storeErr.ExternalID != "doc-3" {
				t.Errorf("unexpected error fields: %+v", storeErr)
			}
		})
	}
}

func TestAdapter_ModifiedWithoutPrior(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	err := NewAdapter(store).Persist(context.Background(), model.ChangeDecision{Kind: model.ChangeModified}, fetchedDoc("d", "b", "b"))

	var storeErr *model.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("expected no writes, got %v", store.calls)
	}
}
