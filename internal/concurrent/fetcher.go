package concurrent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of one product job.
type Result struct {
	Index     int // position of the product in the input slice
	ProductID string
	Data      interface{}
	Error     error
	Attempts  int
}

// ConcurrentFetcher runs product jobs on a fixed pool of workers that share
// one rate limiter.
type ConcurrentFetcher struct {
	workers      int
	rateLimit    *rate.Limiter
	timeout      time.Duration
	maxAttempts  int
	backoff      time.Duration
	errorHandler ErrorHandler
	progressChan chan Progress
	metrics      *FetchMetrics
}

// FetcherConfig holds configuration for the concurrent fetcher
type FetcherConfig struct {
	Workers      int           // Number of concurrent workers
	RateLimit    rate.Limit    // Jobs started per second
	Timeout      time.Duration // Timeout per job, across all attempts
	MaxAttempts  int
	Backoff      time.Duration // first retry delay, doubled on each retry
	ErrorHandler ErrorHandler  // nil disables retries
}

// ErrorHandler decides whether a failed job is retried.
type ErrorHandler func(productID string, err error, retryCount int) bool

// Progress represents progress information
type Progress struct {
	Completed int
	Total     int
	Current   string
	StartTime time.Time
	Errors    int
}

// FetchMetrics tracks performance metrics
type FetchMetrics struct {
	TotalRequests  int
	SuccessfulReqs int
	FailedRequests int
	Retries        int
	AverageLatency time.Duration
	TotalLatency   time.Duration
	StartTime      time.Time
	EndTime        time.Time
	mu             sync.RWMutex
}

// DataFetcher performs the work for one product.
type DataFetcher interface {
	Fetch(ctx context.Context, productID string) (interface{}, error)
}

// FetchFunc adapts a function to DataFetcher.
type FetchFunc func(ctx context.Context, productID string) (interface{}, error)

func (f FetchFunc) Fetch(ctx context.Context, productID string) (interface{}, error) {
	return f(ctx, productID)
}

func NewConcurrentFetcher(config FetcherConfig) *ConcurrentFetcher {
	workers := config.Workers
	if workers <= 0 {
		workers = min(runtime.NumCPU(), 10)
	}

	rateLimit := config.RateLimit
	if rateLimit == 0 {
		rateLimit = rate.Limit(5)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	backoff := config.Backoff
	if backoff == 0 {
		backoff = time.Second
	}

	return &ConcurrentFetcher{
		workers:      workers,
		rateLimit:    rate.NewLimiter(rateLimit, workers),
		timeout:      timeout,
		maxAttempts:  maxAttempts,
		backoff:      backoff,
		errorHandler: config.ErrorHandler,
		progressChan: make(chan Progress, 100),
		metrics:      &FetchMetrics{StartTime: time.Now()},
	}
}

// FetchAll runs fetcher for every product id and returns one result per id
// in input order. Ids not started before ctx is cancelled carry ctx's error.
func (f *ConcurrentFetcher) FetchAll(ctx context.Context, productIDs []string, fetcher DataFetcher) []Result {
	if len(productIDs) == 0 {
		return nil
	}

	f.metrics.mu.Lock()
	f.metrics.TotalRequests += len(productIDs)
	f.metrics.StartTime = time.Now()
	f.metrics.mu.Unlock()

	jobs := make(chan Result, len(productIDs))
	results := make(chan Result, len(productIDs))

	var wg sync.WaitGroup
	for w := 0; w < f.workers; w++ {
		wg.Add(1)
		go f.worker(ctx, jobs, results, fetcher, &wg)
	}

	for i, id := range productIDs {
		jobs <- Result{Index: i, ProductID: id}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	all := f.collectResults(results, productIDs)

	f.metrics.mu.Lock()
	f.metrics.EndTime = time.Now()
	f.metrics.mu.Unlock()
	return all
}

func (f *ConcurrentFetcher) worker(ctx context.Context, jobs <-chan Result, results chan<- Result, fetcher DataFetcher, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		if err := ctx.Err(); err != nil {
			job.Error = err
			results <- job
			continue
		}

		if err := f.rateLimit.Wait(ctx); err != nil {
			job.Error = fmt.Errorf("rate limiter error: %w", err)
			results <- job
			continue
		}

		result := f.fetchWithTimeout(ctx, job, fetcher)
		f.updateMetrics(result)
		results <- result
	}
}

// fetchWithTimeout runs one job, retrying while the error handler allows it.
func (f *ConcurrentFetcher) fetchWithTimeout(ctx context.Context, job Result, fetcher DataFetcher) Result {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	defer func() { f.recordLatency(time.Since(start)) }()

	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		job.Attempts = attempt + 1
		data, err := fetcher.Fetch(timeoutCtx, job.ProductID)
		if err == nil {
			job.Data = data
			return job
		}
		lastErr = err

		if f.errorHandler == nil || attempt == f.maxAttempts-1 || !f.errorHandler(job.ProductID, err, attempt) {
			break
		}

		f.metrics.mu.Lock()
		f.metrics.Retries++
		f.metrics.mu.Unlock()

		select {
		case <-time.After(f.backoff * time.Duration(1<<uint(attempt))):
		case <-timeoutCtx.Done():
			job.Error = timeoutCtx.Err()
			return job
		}
	}

	job.Error = fmt.Errorf("failed after %d attempts: %w", job.Attempts, lastErr)
	return job
}

func (f *ConcurrentFetcher) collectResults(results <-chan Result, productIDs []string) []Result {
	all := make([]Result, 0, len(productIDs))
	startTime := f.GetMetrics().StartTime

	for result := range results {
		all = append(all, result)

		select {
		case f.progressChan <- Progress{
			Completed: len(all),
			Total:     len(productIDs),
			Current:   result.ProductID,
			StartTime: startTime,
			Errors:    f.getErrorCount(),
		}:
		default:
			// Don't block if progress channel is full
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return all
}

// ProgressChannel returns the progress channel for monitoring
func (f *ConcurrentFetcher) ProgressChannel() <-chan Progress {
	return f.progressChan
}

// GetMetrics returns a snapshot of the metrics.
func (f *ConcurrentFetcher) GetMetrics() *FetchMetrics {
	f.metrics.mu.RLock()
	defer f.metrics.mu.RUnlock()

	metrics := FetchMetrics{
		TotalRequests:  f.metrics.TotalRequests,
		SuccessfulReqs: f.metrics.SuccessfulReqs,
		FailedRequests: f.metrics.FailedRequests,
		Retries:        f.metrics.Retries,
		TotalLatency:   f.metrics.TotalLatency,
		StartTime:      f.metrics.StartTime,
		EndTime:        f.metrics.EndTime,
	}
	if done := metrics.SuccessfulReqs + metrics.FailedRequests; done > 0 {
		metrics.AverageLatency = metrics.TotalLatency / time.Duration(done)
	}
	return &metrics
}

func (f *ConcurrentFetcher) updateMetrics(result Result) {
	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()

	if result.Error != nil {
		f.metrics.FailedRequests++
	} else {
		f.metrics.SuccessfulReqs++
	}
}

func (f *ConcurrentFetcher) recordLatency(latency time.Duration) {
	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()

	f.metrics.TotalLatency += latency
}

func (f *ConcurrentFetcher) getErrorCount() int {
	f.metrics.mu.RLock()
	defer f.metrics.mu.RUnlock()
	return f.metrics.FailedRequests
}

// DefaultErrorHandler retries errors that declare themselves retryable and
// common transient network failures, up to two retries.
func DefaultErrorHandler(productID string, err error, retryCount int) bool {
	if err == nil || retryCount >= 2 {
		return false
	}

	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"timeout", "temporary", "connection reset", "connection refused"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
