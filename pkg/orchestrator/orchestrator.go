// Package orchestrator implements the cache-with-fallback pipeline: for a
// batch of products it serves fresh stored queries, generates the rest with
// bounded concurrency and writes new results back through the store's
// conditional write.
//
// Within a process at most one generation per fingerprint is in flight; a
// second request for the same fingerprint waits for and reuses that result.
// Across processes the store decides the single visible entry and losers
// adopt it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/querygen/pkg/cache"
	"github.com/Sternrassler/querygen/pkg/generator"
	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

const tracerName = "github.com/Sternrassler/querygen/pkg/orchestrator"

// ErrEmptyBatch is returned by Process when no products are given.
var ErrEmptyBatch = errors.New("empty batch")

// Config holds the pipeline configuration.
type Config struct {
	// Version is the current generator version. Stored entries with a lower
	// version are regenerated.
	Version int64

	// Model is recorded on new entries.
	Model string

	// Concurrency bounds simultaneous generations. Excess work queues.
	Concurrency int

	// GenerationTimeout bounds one product's generation including retries,
	// measured from the moment it gets a concurrency slot.
	GenerationTimeout time.Duration

	// MaxAge is the optional entry age limit. Zero keeps entries until the
	// version advances.
	MaxAge time.Duration

	// Retry applies to transient generation failures.
	Retry generator.RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Version:           1,
		Concurrency:       4,
		GenerationTimeout: 60 * time.Second,
		Retry:             generator.DefaultRetryConfig(),
	}
}

// Orchestrator runs batches through the pipeline. It is safe for concurrent use.
type Orchestrator struct {
	store   cache.Store
	gen     generator.Generator
	config  Config
	sem     *semaphore.Weighted
	flights singleflight.Group
	tracer  trace.Tracer
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates an orchestrator.
func New(store cache.Store, gen generator.Generator, cfg Config, logger zerolog.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be >= 1 (got %d)", cfg.Concurrency)
	}
	if cfg.Version < 0 {
		return nil, fmt.Errorf("version must not be negative (got %d)", cfg.Version)
	}
	if cfg.MaxAge < 0 {
		return nil, fmt.Errorf("max_age must not be negative (got %s)", cfg.MaxAge)
	}

	return &Orchestrator{
		store:  store,
		gen:    gen,
		config: cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		tracer: otel.Tracer(tracerName),
		logger: logger.With().Str("component", "orchestrator").Logger(),
		now:    time.Now,
	}, nil
}

// Process returns one result per product in input order. Per-product
// failures are attached to that product's result; the returned error is
// only set for an empty batch or when ctx ends first, in which case no
// result is returned. Generations already started keep running and still
// populate the store.
func (o *Orchestrator) Process(ctx context.Context, products []product.Product) (BatchResult, error) {
	if len(products) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.Process",
		trace.WithAttributes(attribute.Int("batch.size", len(products))))
	defer span.End()

	start := time.Now()
	batchSize.Observe(float64(len(products)))

	results := make([]ProductResult, len(products))

	var g errgroup.Group
	for i, p := range products {
		g.Go(func() error {
			results[i] = o.processOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	batchDuration.Observe(time.Since(start).Seconds())

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn().
			Err(err).
			Int("batch_size", len(products)).
			Msg("Batch abandoned by caller")
		return BatchResult{}, err
	}

	batch := BatchResult{Results: results}
	stats := batch.Stats()
	span.SetAttributes(
		attribute.Int("batch.cached", stats.Cached),
		attribute.Int("batch.generated", stats.Generated+stats.Shared),
		attribute.Int("batch.failed", stats.Total-stats.Succeeded()),
	)

	o.logger.Info().
		Int("batch_size", stats.Total).
		Int("cached", stats.Cached).
		Int("generated", stats.Generated).
		Int("shared", stats.Shared).
		Int("invalid", stats.Invalid).
		Int("failed", stats.Transient+stats.Permanent).
		Dur("duration", time.Since(start)).
		Msg("Batch processed")

	return batch, nil
}

// flightResult is the value shared by every caller of one generation.
type flightResult struct {
	queries []query.GeneratedQuery
	source  Source
}

func (o *Orchestrator) processOne(ctx context.Context, p product.Product) ProductResult {
	res := ProductResult{ProductID: p.ID}

	if err := p.Validate(); err != nil {
		res.Err = productError(err)
		productsTotal.WithLabelValues(string(ErrorValidation)).Inc()
		return res
	}

	p = product.Clean(p)
	fp := p.Fingerprint()

	if entry := o.lookup(ctx, fp); entry != nil {
		res.Queries = slices.Clone(entry.Queries)
		res.Source = SourceCache
		productsTotal.WithLabelValues(string(SourceCache)).Inc()
		return res
	}

	// The flight runs detached from ctx so a cancelled caller does not
	// cancel a generation other callers or the store are waiting on.
	detached := context.WithoutCancel(ctx)
	ch := o.flights.DoChan(string(fp), func() (any, error) {
		return o.generate(detached, p, fp)
	})

	select {
	case <-ctx.Done():
		return res
	case r := <-ch:
		if r.Err != nil {
			res.Err = productError(r.Err)
			productsTotal.WithLabelValues(string(res.Err.Type)).Inc()
			return res
		}
		fr := r.Val.(flightResult)
		res.Queries = slices.Clone(fr.queries)
		res.Source = fr.source
		if r.Shared && fr.source == SourceGenerated {
			res.Source = SourceShared
		}
		productsTotal.WithLabelValues(string(res.Source)).Inc()
		return res
	}
}

// lookup returns a fresh entry for fp, or nil. Store failures are logged and
// treated as a miss.
func (o *Orchestrator) lookup(ctx context.Context, fp product.Fingerprint) *cache.CacheEntry {
	entry, err := o.store.Get(ctx, fp)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && ctx.Err() == nil {
			storeFallbacksTotal.WithLabelValues("get").Inc()
			o.logger.Warn().
				Err(err).
				Str("fingerprint", string(fp)).
				Msg("Store read failed, treating as cache miss")
		}
		return nil
	}
	if !entry.Fresh(o.config.Version, o.now()) {
		o.logger.Debug().
			Str("fingerprint", string(fp)).
			Int64("entry_version", entry.GeneratorVersion).
			Int64("current_version", o.config.Version).
			Msg("Stored entry is stale")
		return nil
	}
	return entry
}

// generate runs one generation for fp and publishes it through the store.
func (o *Orchestrator) generate(ctx context.Context, p product.Product, fp product.Fingerprint) (flightResult, error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return flightResult{}, err
	}
	defer o.sem.Release(1)
	generationsInFlight.Inc()
	defer generationsInFlight.Dec()

	if o.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.GenerationTimeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.generate",
		trace.WithAttributes(
			attribute.String("product.id", p.ID),
			attribute.String("product.fingerprint", string(fp)),
		))
	defer span.End()

	logger := o.logger.With().Str("product_id", p.ID).Str("fingerprint", string(fp)).Logger()

	// Another instance may have published while this one waited for a slot.
	if entry := o.lookup(ctx, fp); entry != nil {
		span.SetAttributes(attribute.Bool("generation.skipped", true))
		return flightResult{queries: entry.Queries, source: SourceCache}, nil
	}

	var queries []query.GeneratedQuery
	err := generator.Retry(ctx, o.config.Retry, logger, func(ctx context.Context) error {
		q, err := o.gen.Generate(ctx, p)
		if err != nil {
			return err
		}
		queries = q
		return nil
	})
	if err == nil {
		err = checkQueries(queries)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Msg("Generation failed")
		return flightResult{}, err
	}

	now := o.now()
	entry := &cache.CacheEntry{
		Fingerprint:      fp,
		Queries:          queries,
		GeneratedAt:      now,
		GeneratorVersion: o.config.Version,
		Model:            o.config.Model,
	}
	if o.config.MaxAge > 0 {
		entry.ExpiresAt = now.Add(o.config.MaxAge)
	}

	stored, visible, err := o.store.PutIfAbsentOrNewer(ctx, entry)
	if err != nil {
		storeFallbacksTotal.WithLabelValues("put").Inc()
		logger.Error().Err(err).Msg("Store write failed, returning uncached queries")
		return flightResult{queries: queries, source: SourceGenerated}, nil
	}
	if !stored && visible != nil {
		logger.Debug().
			Int64("winner_version", visible.GeneratorVersion).
			Msg("Concurrent writer won, adopting stored entry")
		return flightResult{queries: visible.Queries, source: SourceShared}, nil
	}

	logger.Debug().Int("queries", len(queries)).Msg("Generated and stored queries")
	return flightResult{queries: queries, source: SourceGenerated}, nil
}

// checkQueries rejects generator output that could not be stored.
func checkQueries(queries []query.GeneratedQuery) error {
	if len(queries) == 0 {
		return generator.NewPermanent(generator.ClassEmptyOutput, "generator returned no queries", nil)
	}
	for i, q := range queries {
		if err := q.Validate(); err != nil {
			return generator.NewPermanent(generator.ClassSchema, fmt.Sprintf("query %d", i), err)
		}
	}
	return nil
}
