package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/lexcrawl/internal/config"
	"github.com/nao1215/lexcrawl/internal/database"
	"github.com/nao1215/lexcrawl/internal/model"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit bounds listings unless --limit says otherwise.
const defaultHistoryLimit = 50

// NewHistoryCmd creates the history command.
// This command browses the documents, versions and runs stored by crawl.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [external-id]",
		Short: "Browse stored documents, their versions and past runs",
		Long: `History reads the local document database written by 'lexcrawl crawl'.

Without arguments it lists the most recently changed documents. With an
external id it shows that document and every archived version of it,
newest first, with the similarity to the content that replaced it.

Examples:
  # List recently changed documents
  lexcrawl history

  # Only decrees
  lexcrawl history --type decree

  # Show the versions of one document
  lexcrawl history JORFTEXT000049000017

  # List past runs of a source
  lexcrawl history --runs --source jorf

  # Output in JSON format
  lexcrawl history --json JORFTEXT000049000017`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("runs", "r", false,
		"List past crawl runs instead of documents")
	cmd.Flags().StringP("source", "s", "",
		"Only list runs of this source (with --runs)")
	cmd.Flags().StringP("type", "T", "",
		"Only list documents of this type")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of rows (0 = unlimited)")
	cmd.Flags().Bool("text", false,
		"Include extracted document text in JSON output")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", "",
		"Directory of the document database (default: XDG data directory)")

	return cmd
}

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	runs         bool
	source       string
	documentType string
	limit        int
	withText     bool
	jsonOutput   bool
	dbDir        string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd)
	if err != nil {
		return err
	}

	// The database is only read here; a missing file means nothing was crawled yet.
	db, err := database.Open(opts.dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case opts.runs:
		return listRuns(ctx, out, db, opts)
	case len(args) == 1:
		return showDocument(ctx, out, db, args[0], opts)
	default:
		return listDocuments(ctx, out, db, opts)
	}
}

// parseHistoryFlags reads the history flags.
func parseHistoryFlags(cmd *cobra.Command) (historyOptions, error) {
	var opts historyOptions
	var err error

	if opts.runs, err = cmd.Flags().GetBool("runs"); err != nil {
		return opts, err
	}
	if opts.source, err = cmd.Flags().GetString("source"); err != nil {
		return opts, err
	}
	if opts.documentType, err = cmd.Flags().GetString("type"); err != nil {
		return opts, err
	}
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return opts, err
	}
	if opts.withText, err = cmd.Flags().GetBool("text"); err != nil {
		return opts, err
	}
	if opts.jsonOutput, err = cmd.Flags().GetBool("json"); err != nil {
		return opts, err
	}
	if opts.dbDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return opts, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}
	return opts, nil
}

// listDocuments lists documents ordered by most recent change.
func listDocuments(ctx context.Context, out io.Writer, db *database.DocumentDB, opts historyOptions) error {
	docs, err := db.ListDocuments(ctx, opts.documentType, opts.limit)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if !opts.withText {
		for i := range docs {
			docs[i].ContentText = ""
		}
	}

	if opts.jsonOutput {
		if docs == nil {
			docs = []model.DocumentRecord{}
		}
		return writeJSON(out, docs)
	}

	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents found in the database.")
		fmt.Fprintln(out, "\nUse 'lexcrawl crawl' to crawl the configured sources.")
		return nil
	}

	fmt.Fprintf(out, "Documents (%d):\n\n", len(docs))
	fmt.Fprintf(out, "  %-24s  %-10s  %-19s  %s\n", "External ID", "Type", "Last Modified", "Title")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 76))
	for _, d := range docs {
		fmt.Fprintf(out, "  %-24s  %-10s  %-19s  %s\n",
			d.ExternalID,
			d.DocumentType,
			d.LastModifiedAt.Format("2006-01-02 15:04:05"),
			d.Title,
		)
	}
	fmt.Fprintln(out, "\nUse 'lexcrawl history <external-id>' to see the versions of a document.")

	return nil
}

// documentHistory is the JSON shape of a document with its versions.
type documentHistory struct {
	Document *model.DocumentRecord   `json:"document"`
	Versions []model.DocumentVersion `json:"versions"`
}

// showDocument prints a document and its archived versions.
func showDocument(ctx context.Context, out io.Writer, db *database.DocumentDB, externalID string, opts historyOptions) error {
	doc, err := db.FindByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", database.ErrDocumentNotFound, externalID)
	}

	versions, err := db.ListVersions(ctx, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}

	if !opts.withText {
		doc.ContentText = ""
		for i := range versions {
			versions[i].ContentText = ""
		}
	}

	if opts.jsonOutput {
		if versions == nil {
			versions = []model.DocumentVersion{}
		}
		return writeJSON(out, documentHistory{Document: doc, Versions: versions})
	}

	fmt.Fprintf(out, "%s\n\n", doc.Title)
	fmt.Fprintf(out, "  External ID:   %s\n", doc.ExternalID)
	fmt.Fprintf(out, "  Type:          %s\n", doc.DocumentType)
	fmt.Fprintf(out, "  URL:           %s\n", doc.SourceURL)
	if !doc.PublishedAt.IsZero() {
		fmt.Fprintf(out, "  Published:     %s\n", doc.PublishedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "  Last Modified: %s\n", doc.LastModifiedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Content Hash:  %s\n\n", doc.ContentHash)

	if len(versions) == 0 {
		fmt.Fprintln(out, "No archived versions; the document has not changed since it was first seen.")
		return nil
	}

	fmt.Fprintf(out, "Archived versions (%d):\n\n", len(versions))
	fmt.Fprintf(out, "  %-19s  %-10s  %s\n", "Archived", "Similarity", "Content Hash")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, v := range versions {
		fmt.Fprintf(out, "  %-19s  %-10s  %s\n",
			v.ArchivedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1f%%", v.SimilarityScore*100),
			shortHash(v.ContentHash),
		)
	}

	return nil
}

// listRuns lists past crawl runs.
func listRuns(ctx context.Context, out io.Writer, db *database.DocumentDB, opts historyOptions) error {
	runs, err := db.ListRuns(ctx, opts.source, opts.limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if opts.jsonOutput {
		// Full results so that failures can be inspected.
		results := make([]*model.RunResult, 0, len(runs))
		for _, r := range runs {
			result, err := db.GetRun(ctx, r.RunID)
			if err != nil {
				return err
			}
			if result != nil {
				results = append(results, result)
			}
		}
		return writeJSON(out, results)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		return nil
	}

	fmt.Fprintf(out, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-12s  %-10s  %s\n", "Run ID", "Source", "State", "Started")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 82))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-12s  %-10s  %s\n",
			r.RunID,
			r.Source,
			r.State,
			r.StartedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// shortHash abbreviates a content hash for tables.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
