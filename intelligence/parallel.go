package intelligence

import (
	"context"
	"sync"
)

// ParallelMap runs fn over every item with at most maxConcurrency in flight
// at once, honoring ctx cancellation, and returns results positionally. This
// is the parallel_limit(tasks, N) primitive of Design Notes §9 — the engine
// maps it onto goroutines plus a buffered channel acting as a semaphore, the
// same bounded worker-pool shape as fitness-evaluator.go's battle workers.
func ParallelMap[T any, R any](ctx context.Context, items []T, maxConcurrency int, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if maxConcurrency > len(items) {
		maxConcurrency = len(items)
	}
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(ctx, item)
		}()
	}
	wg.Wait()
	return results
}
