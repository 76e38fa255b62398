package executor

import (
	"context"
	"sync"

	"github.com/opmodel/opc/internal/output"
)

// Result is the outcome of one request in a batch.
type Result struct {
	// Index is the request's position in the batch.
	Index int
	Value any
	Err   error
}

type job struct {
	index int
	op    any
}

// ExecuteAll runs ops over a pool of workers and returns one Result per op,
// in input order. A failing request only affects its own Result. Requests
// not started before ctx is done are reported as cancelled.
func (e *Executor) ExecuteAll(ctx context.Context, ops []any, workers int) []Result {
	results := make([]Result, len(ops))
	if len(ops) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(ops) {
		workers = len(ops)
	}
	output.Debug("executing batch", "count", len(ops), "workers", workers)

	jobs := make(chan job, len(ops))
	for i, op := range ops {
		jobs <- job{index: i, op: op}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runWorker(ctx, jobs, results)
		}()
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	output.Debug("batch complete", "count", len(ops), "failed", failed)
	return results
}

// runWorker drains jobs. Each worker writes only the result slots of the
// jobs it took.
func (e *Executor) runWorker(ctx context.Context, jobs <-chan job, results []Result) {
	for j := range jobs {
		res := Result{Index: j.index}
		select {
		case <-ctx.Done():
			res.Err = e.cancelled(j.op, ctx.Err())
		default:
			res.Value, res.Err = e.Execute(ctx, j.op)
		}
		results[j.index] = res
	}
}

func (e *Executor) cancelled(op any, cause error) error {
	name := ""
	if entry, err := e.Lookup(op); err == nil {
		name = entry.Descriptor.Name
	}
	return &OperationCancelledError{Operation: name, Cause: cause}
}
