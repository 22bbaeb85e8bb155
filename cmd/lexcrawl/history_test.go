package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/lexcrawl/internal/database"
	"github.com/nao1215/lexcrawl/internal/model"
)

var seedTime = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

// seedHistory creates a database with two documents, one archived version
// of the first, and one stored run.
func seedHistory(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	decree := &model.DocumentRecord{
		ExternalID:     "JORFTEXT000049000017",
		Title:          "Décret n° 2024-17",
		SourceURL:      "https://gazette.example.gov/jo/17",
		DocumentType:   "decree",
		ContentHash:    strings.Repeat("b", 64),
		ContentText:    "Article 1. Le présent décret entre en vigueur le 1er mars.",
		PublishedAt:    seedTime,
		LastModifiedAt: seedTime.Add(48 * time.Hour),
	}
	id, err := db.Insert(ctx, decree)
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	notice := &model.DocumentRecord{
		ExternalID:     "BOE-A-2024-100",
		Title:          "Anuncio 100",
		SourceURL:      "https://boe.example.gov/dias/100",
		DocumentType:   "notice",
		ContentHash:    strings.Repeat("c", 64),
		LastModifiedAt: seedTime,
	}
	if _, err := db.Insert(ctx, notice); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	if err := db.InsertVersion(ctx, &model.DocumentVersion{
		DocumentID:      id,
		ContentHash:     strings.Repeat("a", 64),
		ContentText:     "Article 1. Le présent décret entre en vigueur le 1er janvier.",
		SimilarityScore: 0.93,
		ArchivedAt:      seedTime.Add(48 * time.Hour),
	}); err != nil {
		t.Fatalf("failed to insert version: %v", err)
	}

	if err := db.SaveRun(ctx, &model.RunResult{
		State: model.RunCompleted,
		Stats: model.RunStats{RunID: "run-1", Source: "jorf", StartedAt: seedTime, Modified: 1},
	}); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	return dir
}

// runHistory executes history with args against dir and returns its output.
func runHistory(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(append([]string{"--db-dir", dir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	// Subtests share one database file and run sequentially.
	dir := seedHistory(t)

	t.Run("lists documents newest first", func(t *testing.T) {
		output, err := runHistory(t, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "Documents (2)") {
			t.Errorf("expected two documents:\n%s", output)
		}
		if strings.Index(output, "JORFTEXT000049000017") > strings.Index(output, "BOE-A-2024-100") {
			t.Error("the most recently changed document must come first")
		}
	})

	t.Run("filters by type", func(t *testing.T) {
		output, err := runHistory(t, dir, "--type", "notice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(output, "JORFTEXT") || !strings.Contains(output, "BOE-A-2024-100") {
			t.Errorf("unexpected filtered output:\n%s", output)
		}
	})

	t.Run("shows a document with its versions", func(t *testing.T) {
		output, err := runHistory(t, dir, "JORFTEXT000049000017")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Décret n° 2024-17", "Archived versions (1)", "93.0%", "aaaaaaaaaaaa"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("document without versions", func(t *testing.T) {
		output, err := runHistory(t, dir, "BOE-A-2024-100")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "No archived versions") {
			t.Errorf("unexpected output:\n%s", output)
		}
	})

	t.Run("unknown document is an error", func(t *testing.T) {
		if _, err := runHistory(t, dir, "nope"); !errors.Is(err, database.ErrDocumentNotFound) {
			t.Errorf("expected ErrDocumentNotFound, got %v", err)
		}
	})

	t.Run("JSON omits text unless asked", func(t *testing.T) {
		output, err := runHistory(t, dir, "--json", "JORFTEXT000049000017")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded documentHistory
		if err := json.Unmarshal([]byte(output), &decoded); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		if decoded.Document == nil || len(decoded.Versions) != 1 {
			t.Fatalf("unexpected history %+v", decoded)
		}
		if decoded.Document.ContentText != "" || decoded.Versions[0].ContentText != "" {
			t.Error("text must be omitted by default")
		}

		output, err = runHistory(t, dir, "--json", "--text", "JORFTEXT000049000017")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "1er janvier") {
			t.Error("expected archived text with --text")
		}
	})

	t.Run("lists runs", func(t *testing.T) {
		output, err := runHistory(t, dir, "--runs", "--source", "jorf")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "run-1") || !strings.Contains(output, "completed") {
			t.Errorf("unexpected runs output:\n%s", output)
		}

		output, err = runHistory(t, dir, "--runs", "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var results []model.RunResult
		if err := json.Unmarshal([]byte(output), &results); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		if len(results) != 1 || results[0].Stats.Modified != 1 {
			t.Errorf("unexpected runs %+v", results)
		}
	})
}

func TestHistoryCmdWithoutDatabase(t *testing.T) {
	t.Parallel()

	_, err := runHistory(t, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "run a crawl first") {
		t.Errorf("expected a hint to crawl first, got %v", err)
	}
}

func TestShortHash(t *testing.T) {
	t.Parallel()

	if got := shortHash(strings.Repeat("f", 64)); got != "ffffffffffff" {
		t.Errorf("shortHash() = %q", got)
	}
	if got := shortHash("abc"); got != "abc" {
		t.Errorf("shortHash() = %q", got)
	}
}
