// Command precompute generates and stores queries for a product catalog so
// that later API requests are served from the store.
//
// Usage:
//
//	QUERYGEN_PRECOMPUTE_INPUT=products.json.gz precompute
//	precompute -precompute.input products.json -precompute.output queries.jsonl.gz -precompute.limit 20
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/querygen/internal/app"
	"github.com/Sternrassler/querygen/internal/config"
	"github.com/Sternrassler/querygen/pkg/catalog"
	"github.com/Sternrassler/querygen/pkg/logging"
	"github.com/Sternrassler/querygen/pkg/product"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.NewLogger("precompute")
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := logging.Setup(cfg.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Fatal().Err(err).Msg("Precompute failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, stdout io.Writer) error {
	pc := cfg.Precompute
	if pc.Input == "" {
		return errors.New("input is required: set -precompute.input or QUERYGEN_PRECOMPUTE_INPUT")
	}

	raw, err := catalog.Load(pc.Input)
	if err != nil {
		return err
	}
	products := product.FromShopifyBatch(raw)
	if pc.Limit > 0 && len(products) > pc.Limit {
		products = products[:pc.Limit]
	}
	if len(products) == 0 {
		return errors.Wrapf(catalog.ErrNoProducts, "no usable products in %s", pc.Input)
	}
	logger.Info().
		Str("input", pc.Input).
		Int("records", len(raw)).
		Int("products", len(products)).
		Msg("Catalog loaded")

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := catalog.NewRunner(a.Orchestrator, catalog.Config{
		PageSize:    pc.PageSize,
		Workers:     pc.Workers,
		PageTimeout: cfg.Pipeline.RequestTimeout,
	}, logger)

	report, runErr := runner.Run(ctx, products)
	if runErr != nil && report.Results == nil {
		return runErr
	}

	if pc.Output != "" {
		w, err := catalog.Create(pc.Output)
		if err != nil {
			return err
		}
		if err := w.WriteAll(products, report.Results); err != nil {
			_ = w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Saved %d records to %s\n", w.Count(), pc.Output)
	}

	catalog.WritePreview(stdout, products, report.Results, pc.Preview)

	stats := report.Stats()
	fmt.Fprintf(stdout, "\n%d products: %d cached, %d generated, %d failed\n",
		stats.Total, stats.Cached, stats.Generated+stats.Shared, stats.Total-stats.Succeeded())

	if runErr != nil {
		return runErr
	}
	if stats.Succeeded() == 0 {
		return errors.New("no product produced queries")
	}
	return nil
}
