// Package catalog precomputes queries for a whole product catalog.
//
// A catalog is a JSON file of Shopify-like products, either a bare array or
// an object with a "products" array, optionally gzip-compressed. The Runner
// splits the adapted products into pages and feeds them through a worker
// pool into the orchestrator, which warms the shared store. Results can be
// exported as JSON Lines.
//
// Example usage:
//
//	raw, err := catalog.Load("products.json.gz")
//	products := product.FromShopifyBatch(raw)
//	runner := catalog.NewRunner(orch, catalog.DefaultConfig(), logger)
//	report, err := runner.Run(ctx, products)
//
// The runner:
//   - Splits products into pages of Config.PageSize
//   - Spawns a worker pool of Config.Workers
//   - Bounds each page with Config.PageTimeout
//   - Reassembles results in input order with progress logging
//   - Marks products of failed pages instead of aborting the run
package catalog
