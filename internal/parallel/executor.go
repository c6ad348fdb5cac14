// Package parallel runs a batch of items through a bounded worker pool
// and reports a per-item outcome. The reaper uses it so one hung kill
// cannot serialize a cleanup sweep.
package parallel

import (
	"sync"
)

// Result is the outcome of processing one item.
type Result[T any] struct {
	Index   int   // position in the input slice
	Input   T     // the item itself
	Success bool
	Error   error
}

// WorkFunc processes one item.
type WorkFunc[T any] func(item T) error

// Execute runs work over items with at most parallelism workers.
// Results come back indexed in input order regardless of completion
// order. A parallelism below 1 is treated as 1.
func Execute[T any](items []T, parallelism int, work WorkFunc[T]) []Result[T] {
	return ExecuteWithCallback(items, parallelism, work, nil)
}

// ExecuteWithCallback is Execute with a per-completion hook. The
// callback fires from worker goroutines as items finish, so it sees
// results out of order and must be safe for concurrent use. A nil
// callback is allowed.
func ExecuteWithCallback[T any](items []T, parallelism int, work WorkFunc[T], callback func(Result[T])) []Result[T] {
	if len(items) == 0 {
		return nil
	}
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(items) {
		parallelism = len(items)
	}

	results := make([]Result[T], len(items))
	queue := make(chan int, len(items))

	var wg sync.WaitGroup
	for w := 0; w < parallelism; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				err := work(items[idx])
				r := Result[T]{
					Index:   idx,
					Input:   items[idx],
					Success: err == nil,
					Error:   err,
				}
				// Workers own disjoint indices, so writing
				// results[idx] needs no lock.
				results[idx] = r
				if callback != nil {
					callback(r)
				}
			}
		}()
	}

	for i := range items {
		queue <- i
	}
	close(queue)
	wg.Wait()

	return results
}

// CountSuccesses returns how many results succeeded.
func CountSuccesses[T any](results []Result[T]) int {
	count := 0
	for _, r := range results {
		if r.Success {
			count++
		}
	}
	return count
}

// Errors collects the non-nil errors from results.
func Errors[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
		}
	}
	return errs
}
