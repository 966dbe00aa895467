package search

import (
	"runtime"
	"sync"

	"github.com/pthm-cable/prism/config"
)

// BatchResult pairs one request's outcome with its index in the batch.
type BatchResult struct {
	Index  int
	Result *Result
	Err    error
}

// RunBatch evaluates many independent search requests across a worker pool.
// Trials share nothing: each reconstructs its own mixture from its snapshot,
// so the batch is embarrassingly parallel. Results come back in input order.
func RunBatch(reqs []Request, cfg *config.Config, workers int) []BatchResult {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	results := make([]BatchResult, len(reqs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := Run(reqs[i], cfg)
				results[i] = BatchResult{Index: i, Result: res, Err: err}
			}
		}()
	}

	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
