package db

import (
	"time"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
)

// Run statuses as stored in evaluation_runs.status.
const (
	RunStatusQueued    = domain.RunStatusQueued
	RunStatusRunning   = domain.RunStatusRunning
	RunStatusCompleted = domain.RunStatusCompleted
	RunStatusFailed    = domain.RunStatusFailed
	RunStatusCanceled  = domain.RunStatusCanceled
)

const (
	// ConnectionRetrySleep is the wait between connection attempts.
	ConnectionRetrySleep = 2 * time.Second
	maxConnectionRetries = 10
)

// Pool defaults used for zero PoolOptions fields.
const (
	defaultMaxConns          int32         = 10
	defaultMinConns          int32         = 2
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)
