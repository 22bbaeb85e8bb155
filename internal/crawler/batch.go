package crawler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/lexcrawl/internal/model"
)

// DefaultSourceConcurrency is the number of sources crawled at once by
// RunSources when the caller passes a non-positive limit.
const DefaultSourceConcurrency = 2

// Runner runs one crawl. *Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context) (*model.RunResult, error)
}

// Job is one source to crawl in a batch.
type Job struct {
	// Source names the job in errors.
	Source string

	// Runner is usually an *Orchestrator with its own rate limiter, so that
	// sources on different hosts do not slow each other down.
	Runner Runner
}

// RunSources crawls several sources concurrently, at most concurrency at a
// time, and returns their results in the order of jobs.
//
// Design decision: An aborted source does not cancel the others. Its result
// is still returned and its error is joined into the returned error, so the
// caller can report every source and still exit non-zero.
func RunSources(ctx context.Context, jobs []Job, concurrency int) ([]*model.RunResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultSourceConcurrency
	}

	results := make([]*model.RunResult, len(jobs))
	errs := make([]error, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &model.RunResult{
					State: model.RunCancelled,
					Stats: model.RunStats{Source: job.Source},
				}
				return nil
			}

			result, err := job.Runner.Run(ctx)
			results[i] = result
			if err != nil {
				errs[i] = fmt.Errorf("source %s: %w", job.Source, err)
			}
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // jobs never return errors to the group

	return results, errors.Join(errs...)
}
