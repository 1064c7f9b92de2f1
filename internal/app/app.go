// Package app assembles the query generation pipeline from configuration.
// It is shared by the HTTP server and the precompute command.
package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/querygen/internal/config"
	"github.com/Sternrassler/querygen/pkg/cache"
	"github.com/Sternrassler/querygen/pkg/cache/pgstore"
	"github.com/Sternrassler/querygen/pkg/cache/sqlitestore"
	"github.com/Sternrassler/querygen/pkg/generator"
	"github.com/Sternrassler/querygen/pkg/orchestrator"
	"github.com/Sternrassler/querygen/pkg/ratelimit"
)

const connectTimeout = 5 * time.Second

// App holds the wired pipeline.
type App struct {
	Store        cache.Store
	Generator    *generator.OpenAIGenerator
	Orchestrator *orchestrator.Orchestrator

	// Redis is set when the store or the rate-limit tracker uses it.
	Redis *redis.Client

	closers []func()
	logger  zerolog.Logger
}

// New connects the configured store, the optional shared rate-limit tracker
// and the OpenAI generator, and builds the orchestrator on top of them.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{logger: logger}

	needRedis := cfg.Store.Backend == config.BackendRedis || cfg.LLM.TrackRateLimit
	if needRedis && cfg.Store.RedisURL != "" {
		rdb, err := connectRedis(ctx, cfg.Store.RedisURL)
		switch {
		case err == nil:
			a.Redis = rdb
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			logger.Info().Msg("Connected to Redis")
		case cfg.Store.Backend == config.BackendRedis:
			return nil, errors.Wrap(err, "connect redis")
		default:
			logger.Warn().Err(err).Msg("Redis unavailable, rate limit tracking disabled")
		}
	}

	store, closeStore, err := OpenStore(ctx, cfg.Store, a.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	var gate generator.RateGate
	if cfg.LLM.TrackRateLimit && a.Redis != nil {
		gate = ratelimit.NewTracker(a.Redis, logger.With().Str("component", "ratelimit").Logger())
	}

	gen, err := generator.NewOpenAIGenerator(cfg.Generator(), gate, logger)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "create generator")
	}
	a.Generator = gen

	orch, err := orchestrator.New(store, gen, cfg.Orchestrator(), logger)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "create orchestrator")
	}
	a.Orchestrator = orch

	logger.Info().
		Str("store", cfg.Store.Backend).
		Str("model", cfg.LLM.Model).
		Int64("generator_version", cfg.Pipeline.GeneratorVersion).
		Int("concurrency", cfg.Pipeline.Concurrency).
		Bool("rate_limit_tracking", gate != nil).
		Msg("Pipeline ready")

	return a, nil
}

// OpenStore opens the configured store backend. rdb is required for the
// redis backend. The returned close function may be nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig, rdb *redis.Client) (cache.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return cache.NewMemoryStore(), nil, nil

	case config.BackendRedis:
		if rdb == nil {
			return nil, nil, errors.New("redis store requires a redis client")
		}
		return cache.NewRedisStore(rdb, cfg.Prefix), nil, nil

	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store, err := pgstore.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open postgres store")
		}
		return store, store.Close, nil

	case config.BackendSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open sqlite store")
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping %s", opts.Addr)
	}
	return rdb, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
