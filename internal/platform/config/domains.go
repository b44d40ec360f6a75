package config

import (
	"errors"
	"time"
)

// ErrInvalidConfig indicates a configuration value is missing or out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	PostgresDSN       string
	MaxConnections    int32
	MinConnections    int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// SolrConfig holds corpus store settings.
type SolrConfig struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRPS        float64
	FactsField    string
	FactKeysField string
	SortField     string
}

// EvaluatorConfig holds evaluation engine settings.
type EvaluatorConfig struct {
	ScrollSize          int
	MemoryBufferGB      float64
	MaxConfusionClasses int
	LedgerTopN          int
	LedgerMaxKeys       int
	ErrorMaxLen         int
	SkipMalformed       bool
	Parallelism         int
	EntityFoldCase      bool
	FactsField          string
}

// DatabaseCfg returns the database configuration extracted from Config.
func (c *Config) DatabaseCfg() DatabaseConfig {
	return DatabaseConfig{
		PostgresDSN:       c.PostgresDSN,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// SolrCfg returns the corpus store configuration.
func (c *Config) SolrCfg() SolrConfig {
	return SolrConfig{
		BaseURL:       c.SolrURL,
		Timeout:       c.SolrTimeout,
		MaxRPS:        c.SolrMaxRPS,
		FactsField:    c.SolrFactsField,
		FactKeysField: c.SolrFactKeysField,
		SortField:     c.SolrSortField,
	}
}

// EvaluatorCfg returns the evaluation engine configuration.
func (c *Config) EvaluatorCfg() EvaluatorConfig {
	return EvaluatorConfig{
		ScrollSize:          c.EvalScrollSize,
		MemoryBufferGB:      c.EvalMemoryBufferGB,
		MaxConfusionClasses: c.EvalMaxConfusionClasses,
		LedgerTopN:          c.EvalLedgerTopN,
		LedgerMaxKeys:       c.EvalLedgerMaxKeys,
		ErrorMaxLen:         c.EvalErrorMaxLen,
		SkipMalformed:       c.EvalSkipMalformed,
		Parallelism:         c.EvalParallelism,
		EntityFoldCase:      c.EvalEntityFoldCase,
		FactsField:          c.SolrFactsField,
	}
}
