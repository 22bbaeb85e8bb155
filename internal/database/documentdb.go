package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/lexcrawl/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "lexcrawl.db"

// ErrDocumentNotFound is returned by Update when no record has the given id.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentDB provides SQLite-based storage for documents, their archived
// versions and run summaries. It satisfies change.Store and versionstore.Store.
//
// Design decision: Versions live in their own table keyed by
// (document_id, content_hash) instead of being embedded in the document row.
// The unique key makes archiving idempotent, so a crash between archiving and
// updating the live record is repaired by simply crawling again.
type DocumentDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures DocumentDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a DocumentDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*DocumentDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ddb := &DocumentDB{
		db:     db,
		dbPath: dbPath,
	}

	// history may read while a crawl holds the write lock.
	if _, err := db.ExecContext(context.Background(), "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := ddb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return ddb, nil
}

// Path returns the database file path.
func (ddb *DocumentDB) Path() string {
	return ddb.dbPath
}

// Close closes the database connection.
func (ddb *DocumentDB) Close() error {
	return ddb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (ddb *DocumentDB) createTables() error {
	schema := `
	-- Live state of every document ever seen
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT,
		source_url TEXT NOT NULL,
		document_type TEXT,
		content_hash TEXT NOT NULL,
		content_text TEXT,
		published_at TEXT,
		last_modified_at TEXT,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(document_type);
	CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(last_modified_at);

	-- Append-only snapshots taken before a document is overwritten
	CREATE TABLE IF NOT EXISTS document_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES documents(id),
		content_hash TEXT NOT NULL,
		content_text TEXT,
		similarity_score REAL NOT NULL,
		archived_at TEXT NOT NULL,
		UNIQUE(document_id, content_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_versions_document ON document_versions(document_id);

	-- Run summaries stored as JSON
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_source ON crawl_runs(source);
	`

	_, err := ddb.db.ExecContext(context.Background(), schema)
	return err
}

// FindByExternalID returns the record for externalID, or nil and no error
// when none exists.
func (ddb *DocumentDB) FindByExternalID(ctx context.Context, externalID string) (*model.DocumentRecord, error) {
	query := `
	SELECT id, external_id, title, source_url, document_type, content_hash,
		content_text, published_at, last_modified_at, metadata
	FROM documents
	WHERE external_id = ?
	`

	record, err := scanDocument(ddb.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return record, nil
}

// Insert stores a new document and returns its id. Inserting an external id
// that already exists is an error.
func (ddb *DocumentDB) Insert(ctx context.Context, doc *model.DocumentRecord) (int64, error) {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return 0, err
	}

	query := `
	INSERT INTO documents (external_id, title, source_url, document_type, content_hash,
		content_text, published_at, last_modified_at, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := ddb.db.ExecContext(ctx, query,
		doc.ExternalID,
		doc.Title,
		doc.SourceURL,
		doc.DocumentType,
		doc.ContentHash,
		doc.ContentText,
		formatTimestamp(doc.PublishedAt),
		formatTimestamp(doc.LastModifiedAt),
		metadataJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read document id: %w", err)
	}
	doc.ID = id
	return id, nil
}

// Update overwrites the mutable fields of document id.
func (ddb *DocumentDB) Update(ctx context.Context, id int64, fields model.DocumentUpdate) error {
	metadataJSON, err := marshalMetadata(fields.Metadata)
	if err != nil {
		return err
	}

	query := `
	UPDATE documents SET
		title = ?,
		content_hash = ?,
		content_text = ?,
		last_modified_at = ?,
		metadata = ?
	WHERE id = ?
	`

	result, err := ddb.db.ExecContext(ctx, query,
		fields.Title,
		fields.ContentHash,
		fields.ContentText,
		formatTimestamp(fields.LastModifiedAt),
		metadataJSON,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrDocumentNotFound, id)
	}
	return nil
}

// InsertVersion archives a snapshot. A snapshot with the same document id and
// content hash that is already stored is left untouched and no error is
// returned. v.ID is set only when a row was written.
func (ddb *DocumentDB) InsertVersion(ctx context.Context, v *model.DocumentVersion) error {
	query := `
	INSERT INTO document_versions (document_id, content_hash, content_text, similarity_score, archived_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(document_id, content_hash) DO NOTHING
	`

	result, err := ddb.db.ExecContext(ctx, query,
		v.DocumentID,
		v.ContentHash,
		v.ContentText,
		v.SimilarityScore,
		formatTimestamp(v.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 1 {
		if id, err := result.LastInsertId(); err == nil {
			v.ID = id
		}
	}
	return nil
}

// ListDocuments returns documents ordered by most recent change first.
// An empty documentType matches every type; limit <= 0 means no limit.
func (ddb *DocumentDB) ListDocuments(ctx context.Context, documentType string, limit int) ([]model.DocumentRecord, error) {
	query := `
	SELECT id, external_id, title, source_url, document_type, content_hash,
		content_text, published_at, last_modified_at, metadata
	FROM documents
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if documentType != "" {
		query += " AND document_type = ?"
		args = append(args, documentType)
	}

	query += " ORDER BY last_modified_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ddb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var results []model.DocumentRecord
	for rows.Next() {
		record, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		results = append(results, *record)
	}

	return results, rows.Err()
}

// ListVersions returns the archived versions of a document, newest first.
func (ddb *DocumentDB) ListVersions(ctx context.Context, documentID int64) ([]model.DocumentVersion, error) {
	query := `
	SELECT id, document_id, content_hash, content_text, similarity_score, archived_at
	FROM document_versions
	WHERE document_id = ?
	ORDER BY archived_at DESC, id DESC
	`

	rows, err := ddb.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var results []model.DocumentVersion
	for rows.Next() {
		var v model.DocumentVersion
		var text sql.NullString
		var archivedAt string

		if err := rows.Scan(&v.ID, &v.DocumentID, &v.ContentHash, &text, &v.SimilarityScore, &archivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.ContentText = text.String
		v.ArchivedAt = parseTimestamp(archivedAt)
		results = append(results, v)
	}

	return results, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument reads one documents row in the column order used by the queries above.
func scanDocument(row rowScanner) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	var title, docType, text, publishedAt, modifiedAt, metadataJSON sql.NullString

	err := row.Scan(
		&record.ID,
		&record.ExternalID,
		&title,
		&record.SourceURL,
		&docType,
		&record.ContentHash,
		&text,
		&publishedAt,
		&modifiedAt,
		&metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	record.Title = title.String
	record.DocumentType = docType.String
	record.ContentText = text.String
	record.PublishedAt = parseTimestamp(publishedAt.String)
	record.LastModifiedAt = parseTimestamp(modifiedAt.String)

	if metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}

	return &record, nil
}

// marshalMetadata encodes metadata as JSON; empty maps are stored as NULL.
func marshalMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to serialize metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// timestampLayout is RFC 3339 with a fixed-width fraction so that stored
// values sort lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp stores times in UTC using timestampLayout.
// The zero time is stored as an empty string.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,           // Format written by formatTimestamp
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
