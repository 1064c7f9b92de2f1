package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/querygen/pkg/orchestrator"
	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// GenerateRequest is the body of POST /generate. A bare JSON array of
// products is accepted as well.
type GenerateRequest struct {
	Products []product.Product `json:"products" binding:"required,min=1,dive"`
}

// ShopifyRequest is the body of POST /generate/shopify. A bare JSON array is
// accepted as well.
type ShopifyRequest struct {
	Products []product.ShopifyProduct `json:"products" binding:"required,min=1"`
}

// ErrorResponse is returned for request-level failures. Results carries the
// per-product markers when the batch was processed but nothing succeeded.
type ErrorResponse struct {
	Error     string                       `json:"error"`
	Details   string                       `json:"details,omitempty"`
	RequestID string                       `json:"request_id,omitempty"`
	Results   []orchestrator.ProductResult `json:"results,omitempty"`
}

func (s *Server) generate(c *gin.Context) {
	var req GenerateRequest
	if err := s.bindProducts(c, &req, &req.Products); err != nil {
		s.failBind(c, err)
		return
	}
	s.process(c, req.Products)
}

func (s *Server) generateShopify(c *gin.Context) {
	var req ShopifyRequest
	if err := s.bindProducts(c, &req, &req.Products); err != nil {
		s.failBind(c, err)
		return
	}

	products := product.FromShopifyBatch(req.Products)
	if len(products) == 0 {
		s.fail(c, http.StatusBadRequest, "invalid request", errors.New("no product has both an id and a title"))
		return
	}
	if skipped := len(req.Products) - len(products); skipped > 0 {
		zerolog.Ctx(c.Request.Context()).Warn().
			Int("skipped", skipped).
			Msg("Skipped Shopify products without id or title")
	}
	s.process(c, products)
}

// bindProducts decodes either {"products": [...]} or a bare array into req
// and validates it with gin's validator. The body is capped at
// Options.MaxBodyBytes.
func (s *Server) bindProducts(c *gin.Context, req any, list any) error {
	if s.opts.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxBodyBytes)
	}
	body, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return errors.New("empty body")
	}

	target := req
	if trimmed[0] == '[' {
		target = list
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return binding.Validator.ValidateStruct(req)
}

func (s *Server) failBind(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.fail(c, http.StatusRequestEntityTooLarge, "request body too large",
			fmt.Errorf("body exceeds the limit of %d bytes", tooLarge.Limit))
		return
	}
	s.fail(c, http.StatusBadRequest, "invalid request", err)
}

func (s *Server) process(c *gin.Context, products []product.Product) {
	if s.opts.MaxBatchSize > 0 && len(products) > s.opts.MaxBatchSize {
		s.fail(c, http.StatusBadRequest, "batch too large",
			fmt.Errorf("%d products exceeds the limit of %d", len(products), s.opts.MaxBatchSize))
		return
	}

	ctx := c.Request.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	batch, err := s.processor.Process(ctx, products)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.fail(c, http.StatusGatewayTimeout, "request timed out", err)
		return
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the response.
		c.Status(499)
		return
	case errors.Is(err, orchestrator.ErrEmptyBatch):
		s.fail(c, http.StatusBadRequest, "invalid request", err)
		return
	case err != nil:
		s.fail(c, http.StatusInternalServerError, "processing failed", err)
		return
	}

	for i := range batch.Results {
		if batch.Results[i].Queries == nil {
			batch.Results[i].Queries = []query.GeneratedQuery{}
		}
	}

	stats := batch.Stats()
	switch {
	case stats.Invalid == stats.Total:
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "no valid products",
			RequestID: RequestIDFromContext(c.Request.Context()),
			Results:   batch.Results,
		})
		return
	case stats.Succeeded() == 0 && stats.Permanent == 0 && stats.Transient > 0:
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:     "generation backend unavailable",
			RequestID: RequestIDFromContext(c.Request.Context()),
			Results:   batch.Results,
		})
		return
	}

	c.JSON(http.StatusOK, batch)
}

func (s *Server) fail(c *gin.Context, status int, msg string, err error) {
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{
		Error:     msg,
		Details:   err.Error(),
		RequestID: RequestIDFromContext(c.Request.Context()),
	})
}
