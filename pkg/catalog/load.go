package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/Sternrassler/querygen/pkg/product"
)

// ErrNoProducts is returned for catalogs without any product.
var ErrNoProducts = errors.New("catalog contains no products")

var gzipMagic = []byte{0x1f, 0x8b}

// Load reads a catalog file. Gzip input is detected from the content, not
// the file name.
func Load(path string) ([]product.ShopifyProduct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	products, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return products, nil
}

// Decode reads a catalog from r, transparently decompressing gzip.
func Decode(r io.Reader) ([]product.ShopifyProduct, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(len(gzipMagic)); err == nil && bytes.Equal(magic, gzipMagic) {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	} else {
		r = br
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoProducts
	}

	var products []product.ShopifyProduct
	if data[0] == '[' {
		err = json.Unmarshal(data, &products)
	} else {
		var doc struct {
			Products []product.ShopifyProduct `json:"products"`
		}
		err = json.Unmarshal(data, &doc)
		products = doc.Products
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if len(products) == 0 {
		return nil, ErrNoProducts
	}
	return products, nil
}
