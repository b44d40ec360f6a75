package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	PostgresDSN         string        `env:"POSTGRES_DSN"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Corpus store
	SolrURL           string        `env:"SOLR_URL"`
	SolrTimeout       time.Duration `env:"SOLR_TIMEOUT" envDefault:"30s"`
	SolrMaxRPS        float64       `env:"SOLR_MAX_RPS" envDefault:"0"`
	SolrFactsField    string        `env:"SOLR_FACTS_FIELD" envDefault:"texta_facts"`
	SolrFactKeysField string        `env:"SOLR_FACT_KEYS_FIELD" envDefault:"texta_fact_keys"`
	SolrSortField     string        `env:"SOLR_SORT_FIELD" envDefault:"id"`

	// Evaluation engine
	EvalScrollSize          int     `env:"EVAL_SCROLL_SIZE" envDefault:"500"`
	EvalMemoryBufferGB      float64 `env:"EVAL_MEMORY_BUFFER_GB" envDefault:"1"`
	EvalMaxConfusionClasses int     `env:"EVAL_MAX_CONFUSION_CLASSES" envDefault:"70"`
	EvalLedgerTopN          int     `env:"EVAL_LEDGER_TOP_N" envDefault:"1000"`
	EvalLedgerMaxKeys       int     `env:"EVAL_LEDGER_MAX_KEYS" envDefault:"0"`
	EvalErrorMaxLen         int     `env:"EVAL_ERROR_MAX_LEN" envDefault:"100"`
	EvalSkipMalformed       bool    `env:"EVAL_SKIP_MALFORMED" envDefault:"false"`
	EvalParallelism         int     `env:"EVAL_PARALLELISM" envDefault:"4"`
	EvalEntityFoldCase      bool    `env:"EVAL_ENTITY_FOLD_CASE" envDefault:"false"`

	// Worker
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"10s"`
	WorkerStaleAfter   time.Duration `env:"WORKER_STALE_AFTER" envDefault:"1h"`
	HealthPort         int           `env:"HEALTH_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.EvalScrollSize <= 0 {
		return fmt.Errorf("%w: EVAL_SCROLL_SIZE must be positive", ErrInvalidConfig)
	}

	if c.EvalMemoryBufferGB < 0 {
		return fmt.Errorf("%w: EVAL_MEMORY_BUFFER_GB must not be negative", ErrInvalidConfig)
	}

	if c.EvalParallelism <= 0 {
		return fmt.Errorf("%w: EVAL_PARALLELISM must be positive", ErrInvalidConfig)
	}

	if c.EvalErrorMaxLen <= 0 {
		return fmt.Errorf("%w: EVAL_ERROR_MAX_LEN must be positive", ErrInvalidConfig)
	}

	if c.SolrMaxRPS < 0 {
		return fmt.Errorf("%w: SOLR_MAX_RPS must not be negative", ErrInvalidConfig)
	}

	return nil
}

// RequireDatabase fails when no POSTGRES_DSN is configured.
func (c *Config) RequireDatabase() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("%w: POSTGRES_DSN is required", ErrInvalidConfig)
	}

	return nil
}

// RequireCorpus fails when no SOLR_URL is configured.
func (c *Config) RequireCorpus() error {
	if c.SolrURL == "" {
		return fmt.Errorf("%w: SOLR_URL is required", ErrInvalidConfig)
	}

	return nil
}
