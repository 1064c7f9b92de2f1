// Command querygen-server serves the query generator over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Sternrassler/querygen/internal/api"
	"github.com/Sternrassler/querygen/internal/app"
	"github.com/Sternrassler/querygen/internal/config"
	"github.com/Sternrassler/querygen/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.NewLogger("querygen-server")
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := logging.Setup(cfg.Logging())
	if cfg.Log.Level != string(logging.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(a, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("Starting query generator server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// newHandler builds the traced HTTP handler for a wired pipeline.
func newHandler(a *app.App, cfg *config.Config, logger zerolog.Logger) http.Handler {
	opts := api.DefaultOptions()
	opts.MaxBatchSize = cfg.Pipeline.MaxBatchSize
	opts.MaxBodyBytes = cfg.Pipeline.MaxBodyBytes
	opts.RequestTimeout = cfg.Pipeline.RequestTimeout

	server := api.NewServer(a.Orchestrator, a.Store, opts, logger)
	return otelhttp.NewHandler(server.Router(), "querygen",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}))
}
