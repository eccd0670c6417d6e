// Package worker runs batches of downloads on a bounded pool. Each job is
// an independent download call; the pool adds no cross-job state beyond
// collecting results.
package worker

import (
	"context"
	"net/url"
	"sync"

	"github.com/alitto/pond/v2"

	"github.com/geodata-tools/granule-dl/internal/fetch"
	"github.com/geodata-tools/granule-dl/internal/logging"
)

// Fetcher retrieves one URL into a local file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, data url.Values) (string, fetch.Outcome, error)
}

// Job is one URL to retrieve, with optional extra form data.
type Job struct {
	URL  string
	Data url.Values
}

// Result is the terminal state of one job.
type Result struct {
	URL     string
	Path    string // local path on success
	Outcome fetch.Outcome
	Err     error
}

// Pool fans jobs out over a fixed number of workers.
type Pool struct {
	fetcher Fetcher
	workers int
}

// NewPool creates a pool with the given parallelism.
func NewPool(fetcher Fetcher, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{fetcher: fetcher, workers: workers}
}

// Run executes all jobs and returns their results in completion order. It
// blocks until every job has finished or the context is canceled.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	log := logging.With("worker")
	pool := pond.NewPool(p.workers, pond.WithContext(ctx))

	var mu sync.Mutex
	results := make([]Result, 0, len(jobs))

	for _, job := range jobs {
		job := job
		pool.Submit(func() {
			path, outcome, err := p.fetcher.Fetch(ctx, job.URL, job.Data)
			if err != nil {
				log.Error().Str("url", job.URL).Err(err).Msg("download failed")
			} else if outcome.Kind != fetch.OutcomeSuccess {
				log.Warn().Str("url", job.URL).Str("outcome", outcome.Kind.String()).Msg(outcome.Message)
			}
			mu.Lock()
			results = append(results, Result{URL: job.URL, Path: path, Outcome: outcome, Err: err})
			mu.Unlock()
		})
	}

	pool.StopAndWait()
	return results
}
