package model

import "time"

// DocumentRecord is the live, persisted state of a legal document.
// It is created on the first sighting of an ExternalID and updated in place
// whenever a later crawl classifies it as modified. The crawler never deletes it.
type DocumentRecord struct {
	// ID is the store-assigned primary key. Zero until inserted.
	ID int64 `json:"id"`

	// ExternalID identifies the document at its source.
	ExternalID string `json:"external_id"`

	// Title is the document title.
	Title string `json:"title"`

	// SourceURL is where the document was fetched from.
	SourceURL string `json:"source_url"`

	// DocumentType classifies the publication (gazette, regulation, notice...).
	DocumentType string `json:"document_type"`

	// ContentHash is the hex-encoded SHA-256 digest of the raw body.
	ContentHash string `json:"content_hash"`

	// ContentText is the extracted text used for similarity scoring.
	ContentText string `json:"content_text,omitempty"`

	// PublishedAt is when the source published the document, if known.
	PublishedAt time.Time `json:"published_at"`

	// LastModifiedAt is when the crawler last observed a content change.
	LastModifiedAt time.Time `json:"last_modified_at"`

	// Metadata holds source-specific key/value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DocumentUpdate carries the fields overwritten on a modified document.
type DocumentUpdate struct {
	Title          string
	ContentHash    string
	ContentText    string
	LastModifiedAt time.Time
	Metadata       map[string]string
}

// DocumentVersion is an archived snapshot of a document's content taken
// right before the live record was overwritten. Versions are append-only.
type DocumentVersion struct {
	// ID is the store-assigned primary key.
	ID int64 `json:"id"`

	// DocumentID references DocumentRecord.ID.
	DocumentID int64 `json:"document_id"`

	// ContentHash is the hash of the archived (prior) content.
	ContentHash string `json:"content_hash"`

	// ContentText is the archived (prior) text.
	ContentText string `json:"content_text,omitempty"`

	// SimilarityScore is the similarity in [0,1] between the archived text
	// and the text that replaced it.
	SimilarityScore float64 `json:"similarity_score"`

	// ArchivedAt is when the snapshot was taken.
	ArchivedAt time.Time `json:"archived_at"`
}

// DocumentMeta is what a site adapter knows about a document beyond its body.
type DocumentMeta struct {
	// Title overrides the listing title when the document itself carries one.
	Title string

	// PublishedAt is the publication time, zero when unknown.
	PublishedAt time.Time

	// Fields are stored verbatim in DocumentRecord.Metadata.
	Fields map[string]string
}

// FetchedDocument bundles everything persisted for one successful fetch.
type FetchedDocument struct {
	Target       CrawlTarget
	Result       *FetchResult
	Fingerprint  Fingerprint
	Text         string
	DocumentType string
	Meta         DocumentMeta
}

// Fingerprint is a deterministic digest of a document body.
type Fingerprint struct {
	// ContentHash is the SHA-256 digest of the body.
	ContentHash [32]byte

	// Length is the body length in bytes.
	Length int

	// TextSample is a short prefix of the extracted text for logs and reports.
	TextSample string
}
