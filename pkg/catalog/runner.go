package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/querygen/pkg/orchestrator"
	"github.com/Sternrassler/querygen/pkg/product"
)

var catalogPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "querygen_catalog_pages_total",
	Help: "Catalog pages processed by the precompute runner by status",
}, []string{"status"})

// Config holds runner configuration.
type Config struct {
	// PageSize is the number of products handed to the orchestrator at once.
	PageSize int

	// Workers is the number of pages processed in parallel. Generation
	// concurrency inside a page is bounded by the orchestrator.
	Workers int

	// PageTimeout bounds one page. Zero disables the limit.
	PageTimeout time.Duration

	// ProgressEvery logs progress after this many pages.
	ProgressEvery int
}

// DefaultConfig returns defaults suited to a single generation backend.
func DefaultConfig() Config {
	return Config{
		PageSize:      50,
		Workers:       2,
		PageTimeout:   10 * time.Minute,
		ProgressEvery: 10,
	}
}

// Processor runs one page. *orchestrator.Orchestrator implements it.
type Processor interface {
	Process(ctx context.Context, products []product.Product) (orchestrator.BatchResult, error)
}

// PageResult is the outcome of processing a single page.
type PageResult struct {
	PageNumber int
	Offset     int
	Results    []orchestrator.ProductResult
	Error      error
}

// Report is the outcome of a run. Results mirrors the input order.
type Report struct {
	Results     []orchestrator.ProductResult
	Pages       int
	FailedPages int
	Duration    time.Duration
}

// Stats summarizes the product results.
func (r Report) Stats() orchestrator.Stats {
	return orchestrator.BatchResult{Results: r.Results}.Stats()
}

// Runner processes a catalog in pages through a worker pool.
type Runner struct {
	processor Processor
	config    Config
	logger    zerolog.Logger
}

// NewRunner creates a runner, filling in defaults for unset fields.
func NewRunner(processor Processor, config Config, logger zerolog.Logger) *Runner {
	def := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = def.PageSize
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = def.ProgressEvery
	}

	return &Runner{
		processor: processor,
		config:    config,
		logger:    logger.With().Str("component", "catalog").Logger(),
	}
}

// Run processes every product. A failed page marks its products with a
// transient error and the run continues. When ctx ends early the partial
// report is returned together with ctx.Err(); unprocessed products carry a
// marker as well.
func (r *Runner) Run(ctx context.Context, products []product.Product) (Report, error) {
	if len(products) == 0 {
		return Report{}, ErrNoProducts
	}
	start := time.Now()

	pages := (len(products) + r.config.PageSize - 1) / r.config.PageSize
	report := Report{
		Results: make([]orchestrator.ProductResult, len(products)),
		Pages:   pages,
	}
	for i, p := range products {
		report.Results[i] = orchestrator.ProductResult{
			ProductID: p.ID,
			Err:       &orchestrator.ProductError{Type: orchestrator.ErrorTransient, Message: "not processed"},
		}
	}

	r.logger.Info().
		Int("products", len(products)).
		Int("pages", pages).
		Int("workers", r.config.Workers).
		Msg("Starting catalog run")

	pageQueue := make(chan int, pages)
	for page := range pages {
		pageQueue <- page
	}
	close(pageQueue)

	pageResults := make(chan PageResult, pages)

	var wg sync.WaitGroup
	for i := range r.config.Workers {
		wg.Add(1)
		go r.worker(ctx, products, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	done := 0
	for result := range pageResults {
		done++
		if result.Error != nil {
			report.FailedPages++
			catalogPagesTotal.WithLabelValues("failed").Inc()
			r.logger.Warn().
				Err(result.Error).
				Int("page", result.PageNumber).
				Msg("Page failed")
			for i := range r.pageLen(result.PageNumber, len(products)) {
				report.Results[result.Offset+i].Err = &orchestrator.ProductError{
					Type:    orchestrator.ErrorTransient,
					Message: result.Error.Error(),
				}
			}
		} else {
			catalogPagesTotal.WithLabelValues("ok").Inc()
			copy(report.Results[result.Offset:], result.Results)
		}

		if done%r.config.ProgressEvery == 0 {
			r.logger.Info().
				Int("done", done).
				Int("total", pages).
				Float64("progress_pct", float64(done)/float64(pages)*100).
				Msg("Catalog progress")
		}
	}

	report.Duration = time.Since(start)
	stats := report.Stats()
	r.logger.Info().
		Int("pages", pages).
		Int("failed_pages", report.FailedPages).
		Int("cached", stats.Cached).
		Int("generated", stats.Generated+stats.Shared).
		Int("failed", stats.Total-stats.Succeeded()).
		Dur("duration", report.Duration).
		Msg("Catalog run complete")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("catalog run interrupted after %d/%d pages: %w", done, pages, err)
	}
	return report, nil
}

// worker processes pages from the queue until it is drained or ctx ends.
func (r *Runner) worker(ctx context.Context, products []product.Product, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for page := range pageQueue {
		if ctx.Err() != nil {
			r.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		offset := page * r.config.PageSize
		batch := products[offset : offset+r.pageLen(page, len(products))]

		pageCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.config.PageTimeout > 0 {
			pageCtx, cancel = context.WithTimeout(ctx, r.config.PageTimeout)
		}
		out, err := r.processor.Process(pageCtx, batch)
		cancel()

		results <- PageResult{
			PageNumber: page,
			Offset:     offset,
			Results:    out.Results,
			Error:      err,
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		r.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func (r *Runner) pageLen(page, total int) int {
	return min(r.config.PageSize, total-page*r.config.PageSize)
}
