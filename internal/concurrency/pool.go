package concurrency

import (
	"context"
	"sync"
)

// Result is the outcome of one task run by RunBounded.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// RunBounded runs fn for every index in [0, n) on at most workers goroutines
// and returns once all n tasks have finished, with results ordered by index.
//
// A failing task does not stop the others: errors are collected in the
// results. ctx is handed to fn unchanged; cancelling it only affects tasks
// that observe it.
func RunBounded[R any](ctx context.Context, workers, n int, fn func(ctx context.Context, index int) (R, error)) []Result[R] {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	tasks := make(chan int)
	results := make(chan Result[R], workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				v, err := fn(ctx, idx)
				results <- Result[R]{Index: idx, Value: v, Err: err}
			}
		}()
	}

	go func() {
		for i := 0; i < n; i++ {
			tasks <- i
		}
		close(tasks)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result[R], n)
	for r := range results {
		out[r.Index] = r
	}
	return out
}

// Failed returns the results that carry an error, in index order.
func Failed[R any](results []Result[R]) []Result[R] {
	var failed []Result[R]
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
