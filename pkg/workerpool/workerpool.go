// Package workerpool provides simple concurrent processing utilities.
package workerpool

import (
	"context"
	"sync"
)

// Map runs process over items with workerCount goroutines and returns
// the results in input order. The first error cancels outstanding work
// and is returned.
func Map[T, R any](
	ctx context.Context,
	workerCount int,
	items []T,
	process func(context.Context, T) (R, error),
) ([]R, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(items) {
		workerCount = len(items)
	}

	results := make([]R, len(items))
	indices := make(chan int)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				res, err := process(ctx, items[i])
				if err != nil {
					fail(err)
					return
				}
				results[i] = res
			}
		}()
	}

feed:
	for i := range items {
		select {
		case <-ctx.Done():
			fail(ctx.Err())
			break feed
		case indices <- i:
		}
	}
	close(indices)

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
