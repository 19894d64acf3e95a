// Package task implements the fan-out/fan-in runner spec.md §5 describes:
// "internal parallelism is expressed as fan-out–fan-in over independent
// identities (one task per managed dependency to fetch, one per artifact
// to download)". Every suspending operation is cancellable at await
// points (§5); this package merges the caller's context with a
// per-task timeout context using github.com/sdboyer/constext, the same
// library golang-dep vendors for combining the overall operation's
// cancellation with per-command deadlines (cmd.go's monitoredCmd).
package task

import (
	"context"
	"time"

	"github.com/sdboyer/constext"
)

// Func is one unit of fan-out work, identified by name for diagnostics.
type Func func(ctx context.Context) error

// Outcome pairs a named task with its result.
type Outcome struct {
	Name string
	Err  error
}

// RunAll executes fns concurrently, each under a context derived from ctx
// merged with an optional per-task timeout, and returns once every task
// has finished (fan-in). Per spec.md §5 ("Prebuilt fetches and binary-
// artifact fetches are independent and may proceed concurrently"), the
// caller decides which task sets are independent; RunAll itself makes no
// assumption about ordering among them beyond "all complete or the
// context is cancelled".
func RunAll(ctx context.Context, timeout time.Duration, tasks map[string]Func) []Outcome {
	results := make(chan Outcome, len(tasks))

	for name, fn := range tasks {
		go func(name string, fn Func) {
			taskCtx := ctx
			var cancel context.CancelFunc
			if timeout > 0 {
				deadlineCtx, dcancel := context.WithTimeout(context.Background(), timeout)
				merged, mcancel := constext.Cons(ctx, deadlineCtx)
				taskCtx = merged
				cancel = func() { dcancel(); mcancel() }
			}
			err := fn(taskCtx)
			if cancel != nil {
				cancel()
			}
			results <- Outcome{Name: name, Err: err}
		}(name, fn)
	}

	out := make([]Outcome, 0, len(tasks))
	for i := 0; i < len(tasks); i++ {
		out = append(out, <-results)
	}
	return out
}

// FirstError returns the first non-nil error among a set of outcomes, or
// nil if every task succeeded. Per spec.md §7's "partial-graph mode",
// callers generally do NOT early-return on the first error — they collect
// every Outcome and decide per-identity what to do — so this helper is
// for the few call sites (e.g. checksum verification) where any failure
// really is fatal to the whole operation.
func FirstError(outcomes []Outcome) error {
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}
