// Package api exposes the query generator over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/querygen/pkg/metrics"
	"github.com/Sternrassler/querygen/pkg/orchestrator"
	"github.com/Sternrassler/querygen/pkg/product"
)

// Processor runs a batch through the pipeline. *orchestrator.Orchestrator
// implements it.
type Processor interface {
	Process(ctx context.Context, products []product.Product) (orchestrator.BatchResult, error)
}

// Pinger reports backend readiness. Every cache.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the handlers.
type Options struct {
	// MaxBatchSize rejects larger requests with 400.
	MaxBatchSize int

	// MaxBodyBytes rejects larger request bodies with 413. Zero disables
	// the limit.
	MaxBodyBytes int64

	// RequestTimeout bounds one request. Zero disables the limit.
	RequestTimeout time.Duration

	// ReadyTimeout bounds the readiness check.
	ReadyTimeout time.Duration
}

// DefaultOptions returns the handler defaults.
func DefaultOptions() Options {
	return Options{
		MaxBatchSize:   100,
		MaxBodyBytes:   10 << 20,
		RequestTimeout: 120 * time.Second,
		ReadyTimeout:   2 * time.Second,
	}
}

// Server holds the handler dependencies.
type Server struct {
	processor Processor
	ready     Pinger
	opts      Options
	logger    zerolog.Logger
}

// NewServer creates the HTTP handlers. ready may be nil, in which case
// /ready always succeeds.
func NewServer(processor Processor, ready Pinger, opts Options, logger zerolog.Logger) *Server {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Second
	}
	return &Server{
		processor: processor,
		ready:     ready,
		opts:      opts,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(s.logger), AccessLog(s.logger), Metrics())

	r.GET("/health", s.health)
	r.GET("/ready", s.readiness)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	generate := r.Group("/generate")
	{
		generate.POST("", s.generate)
		generate.POST("/shopify", s.generateShopify)
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) readiness(c *gin.Context) {
	if s.ready == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.ReadyTimeout)
	defer cancel()

	if err := s.ready.Ping(ctx); err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
