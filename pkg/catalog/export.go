package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/Sternrassler/querygen/pkg/orchestrator"
	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// Record is one exported line: the product fields followed by its queries.
type Record struct {
	product.Product
	Queries []query.GeneratedQuery     `json:"queries"`
	Source  orchestrator.Source        `json:"source,omitempty"`
	Error   *orchestrator.ProductError `json:"error,omitempty"`
}

// NewRecord pairs a product with its result.
func NewRecord(p product.Product, r orchestrator.ProductResult) Record {
	queries := r.Queries
	if queries == nil {
		queries = []query.GeneratedQuery{}
	}
	return Record{Product: p, Queries: queries, Source: r.Source, Error: r.Err}
}

// Writer writes records as JSON Lines.
type Writer struct {
	buf     *bufio.Writer
	enc     *json.Encoder
	closers []io.Closer
	count   int
}

// NewWriter writes uncompressed records to w. Close flushes but does not
// close w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Writer{buf: buf, enc: enc}
}

// Create opens path for writing. A ".gz" suffix enables gzip compression.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		w := NewWriter(f)
		w.closers = []io.Closer{f}
		return w, nil
	}

	gz := pgzip.NewWriter(f)
	w := NewWriter(gz)
	w.closers = []io.Closer{gz, f}
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(rec Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return errors.Wrapf(err, "encode record %q", rec.ID)
	}
	w.count++
	return nil
}

// WriteAll writes one record per product and result pair.
func (w *Writer) WriteAll(products []product.Product, results []orchestrator.ProductResult) error {
	if len(products) != len(results) {
		return fmt.Errorf("got %d products but %d results", len(products), len(results))
	}
	for i := range products {
		if err := w.Write(NewRecord(products[i], results[i])); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes buffered records and closes the underlying files.
func (w *Writer) Close() error {
	err := w.buf.Flush()
	for _, c := range w.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return errors.Wrap(err, "close export")
	}
	return nil
}

// WritePreview prints up to n products and their first queries in a
// human-readable form.
func WritePreview(out io.Writer, products []product.Product, results []orchestrator.ProductResult, n int) {
	const maxQueries = 10

	for i := 0; i < n && i < len(products) && i < len(results); i++ {
		p, r := products[i], results[i]
		fmt.Fprintln(out, "\n=== Product ===")
		fmt.Fprintln(out, "id:", p.ID)
		fmt.Fprintln(out, "title:", p.Title)
		if p.Price != nil {
			fmt.Fprintln(out, "price:", p.Price.String())
		}
		if p.Size != "" {
			fmt.Fprintln(out, "size:", p.Size)
		}
		if p.Vendor != "" {
			fmt.Fprintln(out, "vendor:", p.Vendor)
		}
		if p.ProductType != "" {
			fmt.Fprintln(out, "product_type:", p.ProductType)
		}
		if len(p.Tags) > 0 {
			fmt.Fprintln(out, "tags:", strings.Join(p.Tags, ", "))
		}
		if r.Err != nil {
			fmt.Fprintln(out, "error:", r.Err.Error())
			continue
		}
		fmt.Fprintf(out, "queries: %d (%s)\n", len(r.Queries), r.Source)
		for _, q := range r.Queries[:min(len(r.Queries), maxQueries)] {
			fmt.Fprintf(out, "- %s | %s | %s\n", q.Style, q.Bucket, q.Text)
		}
	}
}
