// ABOUTME: This file provides a bounded-concurrency map over a slice of inputs.
// ABOUTME: Results keep input order so callers can correlate failures to items.
package orchestrator

import (
	"context"
	"sync"
)

// Result pairs the output of a mapped function with its error.
type Result[Out any] struct {
	Value Out
	Err   error
}

// Map applies fn to every input with at most workers goroutines running at
// once. Results are returned in input order. A cancelled context marks the
// remaining results with the context error instead of abandoning them.
func Map[In, Out any](ctx context.Context, workers int, inputs []In, fn func(ctx context.Context, input In) (Out, error)) []Result[Out] {
	if len(inputs) == 0 {
		return nil
	}

	if workers <= 0 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	results := make([]Result[Out], len(inputs))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		go func(idx int, in In) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = Result[Out]{Err: ctx.Err()}
				return
			}

			if ctx.Err() != nil {
				results[idx] = Result[Out]{Err: ctx.Err()}
				return
			}

			out, err := fn(ctx, in)
			results[idx] = Result[Out]{Value: out, Err: err}
		}(i, input)
	}

	wg.Wait()
	return results
}
