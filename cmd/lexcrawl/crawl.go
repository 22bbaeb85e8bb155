package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nao1215/lexcrawl/internal/config"
	"github.com/nao1215/lexcrawl/internal/crawler"
	"github.com/nao1215/lexcrawl/internal/database"
	"github.com/nao1215/lexcrawl/internal/fetcher"
	"github.com/nao1215/lexcrawl/internal/log"
	"github.com/nao1215/lexcrawl/internal/model"
	"github.com/nao1215/lexcrawl/internal/ratelimit"
	"github.com/nao1215/lexcrawl/internal/report"
	"github.com/nao1215/lexcrawl/internal/retry"
	"github.com/nao1215/lexcrawl/internal/site"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [source...]",
		Short: "Crawl legal publication sources and record document changes",
		Long: `Crawl walks the listing pages of each configured source, fetches every
document it finds, and classifies it as new, modified or unchanged against
the local document database. Modified documents keep their previous content
as an archived version.

Sources are defined in the configuration file (.lexcrawl). Without
arguments every source of the file is crawled.

Examples:
  # Crawl every configured source
  lexcrawl crawl

  # Crawl two sources, three at most at a time
  lexcrawl crawl jorf boe --batch 3

  # Stop after the first five listing pages
  lexcrawl crawl jorf --max-pages 5

  # Write a Markdown report
  lexcrawl crawl --markdown -o reports/today.md

Configuration file (.lexcrawl) example:
  defaults:
    timeout: 30s
    rateLimit:
      capacity: 2
      refillRatePerMs: 0.001
  sources:
    jorf:
      baseURL: https://gazette.example.gov/jo
      documentType: decree
      linkSelector: a.doc
      nextSelector: a[rel=next]
      idPattern: '/jo/decret/(\d+)'`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .lexcrawl in current or home directory)")

	// Crawl behavior flags
	cmd.Flags().DurationP("timeout", "t", 0,
		"Per-request timeout; overrides the configuration file when set")
	cmd.Flags().IntP("workers", "w", 0,
		"Documents fetched concurrently per source; overrides the configuration file when set")
	cmd.Flags().IntP("max-pages", "p", -1,
		"Maximum listing pages per source (0 = unlimited); overrides the configuration file when set")
	cmd.Flags().String("user-agent", "",
		"User-Agent header; overrides the configuration file when set")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes; larger documents fail")

	// Logging flags
	cmd.Flags().String("log-format", config.LogFormatText,
		"Log format written to stderr: text or json")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sources crawled concurrently")

	// Storage flags
	cmd.Flags().String("db-dir", "",
		"Directory of the document database (default: XDG data directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed); a text summary still goes to stdout")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// In-flight documents are finished or recorded as cancelled; the report
	// and the run history are still written.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// newLogger creates the secure logger in the configured format.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.LogFormat == config.LogFormatJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the sources file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.Workers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.UserAgent, err = cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}

	cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size")
	if err != nil {
		return nil, err
	}

	cfg.LogFormat, err = cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// An explicitly named file must exist. Without one, a missing file is
	// reported by Validate as "no sources configured".
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.File = &config.File{Sources: make(map[string]config.SourceConfig)}
	}

	cfg.Sources = args

	return cfg, nil
}

// runCrawl crawls every selected source and writes the report.
// It returns an error when a source was aborted or the report could not be written.
func runCrawl(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("database opened", "path", db.Path())

	sources := cfg.SelectedSources()
	jobs := make([]crawler.Job, 0, len(sources))
	for _, name := range sources {
		sc, err := cfg.SourceConfig(name)
		if err != nil {
			return err
		}
		job, err := newJob(name, sc, cfg, db, logger)
		if err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		jobs = append(jobs, job)
	}

	logger.Info("starting crawl", "sources", sources, "batchSize", cfg.BatchSize)

	results, runErr := crawler.RunSources(ctx, jobs, cfg.BatchSize)

	// Cancelled runs are recorded too; the store calls must outlive ctx.
	// Sources cancelled before they started have no run id and are skipped.
	saveCtx := context.WithoutCancel(ctx)
	for _, r := range results {
		if r == nil || r.Stats.RunID == "" {
			continue
		}
		if err := db.SaveRun(saveCtx, r); err != nil {
			logger.Error("failed to save run", "source", r.Stats.Source, "error", err)
		}
	}

	if err := outputReport(cfg, out, results); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return runErr
}

// newJob wires the fetcher, limiter, retry policy and site adapter of one source.
// Each source gets its own limiter so that slow hosts do not throttle fast ones.
func newJob(name string, sc config.SourceConfig, cfg *config.Config, store crawler.Store, logger *slog.Logger) (crawler.Job, error) {
	logger.Debug("source configured",
		"source", name,
		"baseURL", sc.BaseURL,
		"headers", sc.Headers,
		"proxies", sc.Proxies,
	)

	limiter, err := ratelimit.New(sc.LimiterConfig())
	if err != nil {
		return crawler.Job{}, err
	}

	fetchOpts := []fetcher.Option{
		fetcher.WithUserAgent(sc.UserAgent),
		fetcher.WithHeaders(sc.Headers),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
	}
	if len(sc.Proxies) > 0 {
		rotator, err := fetcher.NewRoundRobin(sc.Proxies)
		if err != nil {
			return crawler.Job{}, err
		}
		fetchOpts = append(fetchOpts, fetcher.WithProxyRotator(rotator))
	}

	adapter, err := site.NewHTMLAdapter(sc.SiteConfig())
	if err != nil {
		return crawler.Job{}, err
	}

	orchestrator := crawler.NewOrchestrator(fetcher.NewHTTPFetcher(fetchOpts...), adapter, store,
		crawler.WithBaseURL(sc.BaseURL),
		crawler.WithSource(name),
		crawler.WithDocumentType(sc.DocumentType),
		crawler.WithRateLimiter(limiter),
		crawler.WithRetryPolicy(retry.New(sc.RetryPolicyConfig())),
		crawler.WithFetchTimeout(sc.Timeout),
		crawler.WithWorkers(sc.Workers),
		crawler.WithMaxPages(sc.PageLimit()),
		crawler.WithLogger(logger),
	)

	return crawler.Job{Source: name, Runner: orchestrator}, nil
}

// outputReport writes the run results in the requested format to the
// report file, or to out when no file is configured. With a report file, out
// still receives the plain text summary.
func outputReport(cfg *config.Config, out io.Writer, results []*model.RunResult) error {
	var summary report.Writer
	if cfg.ReportFile != "" {
		summary = report.NewSimpleWriter(out)

		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list source URLs and error messages; keep them owner-only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(out)
	default:
		writer = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
	if summary != nil {
		writer = report.NewMultiWriter(writer, summary)
	}

	_, err := writer.WriteAll(results)
	return err
}
