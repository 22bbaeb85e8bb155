package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/lexcrawl/internal/model"
)

// stubRunner returns a fixed result after an optional delay and tracks how
// many runners are active at once.
type stubRunner struct {
	source string
	err    error
	delay  time.Duration

	active    *atomic.Int32
	maxActive *atomic.Int32
}

func (s *stubRunner) Run(ctx context.Context) (*model.RunResult, error) {
	if s.active != nil {
		n := s.active.Add(1)
		defer s.active.Add(-1)
		for {
			m := s.maxActive.Load()
			if n <= m || s.maxActive.CompareAndSwap(m, n) {
				break
			}
		}
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}

	result := &model.RunResult{State: model.RunCompleted, Stats: model.RunStats{Source: s.source}}
	if s.err != nil {
		result.State = model.RunAborted
	}
	return result, s.err
}

func TestRunSources(t *testing.T) {
	t.Parallel()

	t.Run("returns results in input order", func(t *testing.T) {
		t.Parallel()

		var jobs []Job
		for i := range 5 {
			name := fmt.Sprintf("source-%d", i)
			// Earlier jobs take longer so completion order differs from input order.
			jobs = append(jobs, Job{Source: name, Runner: &stubRunner{source: name, delay: time.Duration(5-i) * time.Millisecond}})
		}

		results, err := RunSources(context.Background(), jobs, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, r := range results {
			if want := fmt.Sprintf("source-%d", i); r.Stats.Source != want {
				t.Errorf("result %d is %q, want %q", i, r.Stats.Source, want)
			}
		}
	})

	t.Run("respects the concurrency limit", func(t *testing.T) {
		t.Parallel()

		var active, maxActive atomic.Int32
		var jobs []Job
		for i := range 6 {
			jobs = append(jobs, Job{
				Source: fmt.Sprint(i),
				Runner: &stubRunner{delay: 5 * time.Millisecond, active: &active, maxActive: &maxActive},
			})
		}

		if _, err := RunSources(context.Background(), jobs, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := maxActive.Load(); got > 2 {
			t.Errorf("expected at most 2 concurrent runs, saw %d", got)
		}
	})

	t.Run("an aborted source does not stop the others", func(t *testing.T) {
		t.Parallel()

		jobs := []Job{
			{Source: "broken", Runner: &stubRunner{source: "broken", err: ErrFatalInit}},
			{Source: "fine", Runner: &stubRunner{source: "fine"}},
		}

		results, err := RunSources(context.Background(), jobs, 0)
		if !errors.Is(err, ErrFatalInit) {
			t.Fatalf("expected the abort to be reported, got %v", err)
		}
		if results[0].State != model.RunAborted || results[1].State != model.RunCompleted {
			t.Errorf("unexpected states %v, %v", results[0].State, results[1].State)
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results, err := RunSources(ctx, []Job{{Source: "late", Runner: &stubRunner{}}}, 1)
		if err != nil {
			t.Fatalf("cancellation is not an error: %v", err)
		}
		if results[0].State != model.RunCancelled || results[0].Stats.Source != "late" {
			t.Errorf("unexpected result %+v", results[0])
		}
	})
}
