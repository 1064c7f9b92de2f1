// Package config loads the service configuration from a .env file,
// environment variables (QUERYGEN_ prefix), flags and YAML files.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/Sternrassler/querygen/pkg/generator"
	"github.com/Sternrassler/querygen/pkg/logging"
	"github.com/Sternrassler/querygen/pkg/orchestrator"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

const defaultAddr = "0.0.0.0:8080"

// DefaultFiles are the YAML files tried in order.
var DefaultFiles = []string{"querygen.yaml", "/etc/querygen/config.yaml"}

// Config holds the complete application configuration.
type Config struct {
	Addr       string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	Log        LogConfig
	LLM        LLMConfig
	Store      StoreConfig
	Pipeline   PipelineConfig
	Retry      RetryConfig
	Precompute PrecomputeConfig
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `default:"info" usage:"Log level (debug, info, warn, error)"`
	Pretty bool   `default:"false" usage:"Human-readable console output instead of JSON"`
}

// LLMConfig configures the language model backend.
type LLMConfig struct {
	APIKey            string        `env:"API_KEY" yaml:"api_key" usage:"API key (QUERYGEN_LLM_API_KEY or OPENAI_API_KEY)"`
	BaseURL           string        `env:"BASE_URL" yaml:"base_url" usage:"OpenAI-compatible base URL (empty for api.openai.com)"`
	Model             string        `default:"gpt-4o-mini" usage:"Model identifier"`
	Temperature       float32       `default:"0.7" usage:"Sampling temperature"`
	MaxTokens         int           `env:"MAX_TOKENS" yaml:"max_tokens" default:"600" usage:"Completion token limit"`
	Timeout           time.Duration `default:"30s" usage:"Per-call HTTP timeout"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" yaml:"requests_per_second" default:"5" usage:"Client-side request rate (0 disables)"`
	Burst             int           `default:"5" usage:"Client-side burst size"`
	PerBucket         int           `env:"PER_BUCKET" yaml:"per_bucket" default:"2" usage:"Queries requested per bucket"`
	SelfCheck         bool          `env:"SELF_CHECK" yaml:"self_check" default:"false" usage:"Run a second refinement pass"`
	JSONMode          bool          `env:"JSON_MODE" yaml:"json_mode" default:"true" usage:"Request JSON response format"`
	TrackRateLimit    bool          `env:"TRACK_RATE_LIMIT" yaml:"track_rate_limit" default:"true" usage:"Share provider rate limit state via Redis"`
}

// StoreConfig selects and configures the query store.
type StoreConfig struct {
	Backend     string        `default:"redis" usage:"Store backend (memory, redis, postgres, sqlite)"`
	RedisURL    string        `env:"REDIS_URL" yaml:"redis_url" default:"redis://localhost:6379/0" usage:"Redis URL (QUERYGEN_STORE_REDIS_URL or REDIS_URL)"`
	Prefix      string        `default:"qgen" usage:"Redis key prefix"`
	PostgresURL string        `env:"POSTGRES_URL" yaml:"postgres_url" usage:"PostgreSQL URL (QUERYGEN_STORE_POSTGRES_URL or DATABASE_URL)"`
	SQLitePath  string        `env:"SQLITE_PATH" yaml:"sqlite_path" default:"querygen.db" usage:"SQLite database file"`
	MaxAge      time.Duration `env:"MAX_AGE" yaml:"max_age" default:"0s" usage:"Entry age limit (0 keeps entries until the generator version changes)"`
}

// PipelineConfig controls batch processing.
type PipelineConfig struct {
	GeneratorVersion  int64         `env:"GENERATOR_VERSION" yaml:"generator_version" default:"1" usage:"Current generator version; bump to invalidate stored queries"`
	Concurrency       int           `default:"4" usage:"Maximum simultaneous generations"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" yaml:"generation_timeout" default:"60s" usage:"Per-product generation timeout including retries"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout" default:"120s" usage:"Per-request timeout"`
	MaxBatchSize      int           `env:"MAX_BATCH_SIZE" yaml:"max_batch_size" default:"100" usage:"Maximum products per request"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" yaml:"max_body_bytes" default:"10485760" usage:"Maximum request body size in bytes (0 for no limit)"`
}

// RetryConfig controls retries of transient generation failures.
type RetryConfig struct {
	MaxAttempts       int           `env:"MAX_ATTEMPTS" yaml:"max_attempts" default:"3" usage:"Attempts per generation"`
	InitialBackoff    time.Duration `env:"INITIAL_BACKOFF" yaml:"initial_backoff" default:"500ms" usage:"First backoff delay"`
	MaxBackoff        time.Duration `env:"MAX_BACKOFF" yaml:"max_backoff" default:"10s" usage:"Backoff cap"`
	BackoffMultiplier float64       `env:"BACKOFF_MULTIPLIER" yaml:"backoff_multiplier" default:"2" usage:"Backoff growth factor"`
}

// PrecomputeConfig is used by the precompute command only.
type PrecomputeConfig struct {
	Input    string `usage:"Catalog file (JSON array or {\"products\": [...]}, optionally .gz)"`
	Output   string `usage:"Optional export file for generated records (.jsonl, .gz compresses)"`
	PageSize int    `env:"PAGE_SIZE" yaml:"page_size" default:"50" usage:"Products per page"`
	Workers  int    `default:"2" usage:"Pages processed in parallel"`
	Preview  int    `default:"3" usage:"Products printed as a preview"`
	Limit    int    `default:"0" usage:"Process only the first N products (0 for all)"`
}

// LoadOptions customizes Load.
type LoadOptions struct {
	// Files are YAML files tried in order. Nil means DefaultFiles.
	Files []string

	// DotEnv files are loaded into the environment first. Nil means ".env".
	DotEnv []string

	// Args are parsed as flags. Nil means os.Args[1:].
	Args []string

	// SkipFlags disables flag parsing.
	SkipFlags bool
}

// Load loads configuration with default options.
func Load() (*Config, error) {
	return LoadWith(LoadOptions{})
}

// LoadWith loads configuration from .env, YAML files, environment variables
// and flags, applies platform defaults and validates the result.
func LoadWith(opts LoadOptions) (*Config, error) {
	dotenv := opts.DotEnv
	if dotenv == nil {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}

	files := opts.Files
	if files == nil {
		files = DefaultFiles
	}
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "QUERYGEN",
		SkipFlags: opts.SkipFlags,
		Args:      args,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
			".yml":  aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps conventional environment variables such as
// OPENAI_API_KEY, REDIS_URL, DATABASE_URL and PORT onto the configuration
// when the QUERYGEN_ equivalents are unset.
func (c *Config) applyPlatformDefaults() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("QUERYGEN_STORE_REDIS_URL") == "" {
		c.Store.RedisURL = v
	}
	if c.Store.PostgresURL == "" {
		c.Store.PostgresURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return errors.Errorf("unknown log level %q", c.Log.Level)
	}

	if c.LLM.Model == "" {
		return errors.New("llm model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.Errorf("llm temperature must be between 0 and 2 (got %v)", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		return errors.Errorf("llm max_tokens must be positive (got %d)", c.LLM.MaxTokens)
	}
	if c.LLM.PerBucket < 1 {
		return errors.Errorf("llm per_bucket must be positive (got %d)", c.LLM.PerBucket)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return errors.Errorf("llm requests_per_second must not be negative (got %v)", c.LLM.RequestsPerSecond)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return errors.New("redis store requires a URL: set QUERYGEN_STORE_REDIS_URL or REDIS_URL")
		}
	case BackendPostgres:
		if c.Store.PostgresURL == "" {
			return errors.New("postgres store requires a URL: set QUERYGEN_STORE_POSTGRES_URL or DATABASE_URL")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("sqlite store requires a path")
		}
	default:
		return errors.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.MaxAge < 0 {
		return errors.Errorf("store max_age must not be negative (got %s)", c.Store.MaxAge)
	}

	if c.Pipeline.GeneratorVersion < 1 {
		return errors.Errorf("generator_version must be >= 1 (got %d)", c.Pipeline.GeneratorVersion)
	}
	if c.Pipeline.Concurrency < 1 {
		return errors.Errorf("concurrency must be >= 1 (got %d)", c.Pipeline.Concurrency)
	}
	if c.Pipeline.MaxBatchSize < 1 {
		return errors.Errorf("max_batch_size must be >= 1 (got %d)", c.Pipeline.MaxBatchSize)
	}
	if c.Pipeline.MaxBodyBytes < 0 {
		return errors.Errorf("max_body_bytes must not be negative (got %d)", c.Pipeline.MaxBodyBytes)
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.Errorf("retry max_attempts must be >= 1 (got %d)", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return errors.Errorf("retry max_backoff %s is below initial_backoff %s", c.Retry.MaxBackoff, c.Retry.InitialBackoff)
	}
	if c.Retry.BackoffMultiplier < 1 {
		return errors.Errorf("retry backoff_multiplier must be >= 1 (got %v)", c.Retry.BackoffMultiplier)
	}
	return nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// Generator returns the OpenAI generator configuration.
func (c *Config) Generator() generator.Config {
	cfg := generator.DefaultConfig(c.LLM.APIKey)
	cfg.BaseURL = c.LLM.BaseURL
	cfg.Model = c.LLM.Model
	cfg.Temperature = c.LLM.Temperature
	cfg.MaxTokens = c.LLM.MaxTokens
	cfg.Timeout = c.LLM.Timeout
	cfg.RequestsPerSecond = c.LLM.RequestsPerSecond
	cfg.Burst = c.LLM.Burst
	cfg.PerBucket = c.LLM.PerBucket
	cfg.SelfCheck = c.LLM.SelfCheck
	cfg.JSONMode = c.LLM.JSONMode
	return cfg
}

// Orchestrator returns the pipeline configuration.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Version:           c.Pipeline.GeneratorVersion,
		Model:             c.LLM.Model,
		Concurrency:       c.Pipeline.Concurrency,
		GenerationTimeout: c.Pipeline.GenerationTimeout,
		MaxAge:            c.Store.MaxAge,
		Retry: generator.RetryConfig{
			MaxAttempts:       c.Retry.MaxAttempts,
			InitialBackoff:    c.Retry.InitialBackoff,
			MaxBackoff:        c.Retry.MaxBackoff,
			BackoffMultiplier: c.Retry.BackoffMultiplier,
		},
	}
}
