package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/lexcrawl/internal/model"
)

// RunSummary is the metadata of a stored run, used for history listings
// without decoding the full result.
type RunSummary struct {
	// RunID is the run's UUID.
	RunID string

	// Source is the configured source name.
	Source string

	// State is the final run state name.
	State string

	// StartedAt is when the run began.
	StartedAt time.Time
}

// SaveRun stores a finished run result as JSON. Saving the same run id twice
// replaces the stored result.
func (ddb *DocumentDB) SaveRun(ctx context.Context, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize run result: %w", err)
	}

	query := `
	INSERT INTO crawl_runs (run_id, source, state, started_at, result_json)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		state = excluded.state,
		result_json = excluded.result_json
	`

	_, err = ddb.db.ExecContext(ctx, query,
		result.Stats.RunID,
		result.Stats.Source,
		result.State.String(),
		formatTimestamp(result.Stats.StartedAt),
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// ListRuns returns run summaries newest first. An empty source matches every
// source; limit <= 0 means no limit.
func (ddb *DocumentDB) ListRuns(ctx context.Context, source string, limit int) ([]RunSummary, error) {
	query := `
	SELECT run_id, source, state, started_at
	FROM crawl_runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	query += " ORDER BY started_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ddb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var s RunSummary
		var startedAt string
		if err := rows.Scan(&s.RunID, &s.Source, &s.State, &startedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTimestamp(startedAt)
		results = append(results, s)
	}

	return results, rows.Err()
}

// GetRun returns the stored result of runID, or nil and no error when absent.
// Failure causes are restored from their messages only.
func (ddb *DocumentDB) GetRun(ctx context.Context, runID string) (*model.RunResult, error) {
	var resultJSON string
	err := ddb.db.QueryRowContext(ctx, `SELECT result_json FROM crawl_runs WHERE run_id = ?`, runID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var result model.RunResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse run result: %w", err)
	}
	return &result, nil
}
