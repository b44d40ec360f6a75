// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Worker mode: drains the evaluation run queue
//   - Run mode: executes a single run in the foreground
//   - Enqueue mode: stores a run for a worker to pick up
//   - Cancel mode: stops a queued or running run
//   - Status mode: reads back a run's progress and result
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
	"github.com/lueurxax/fact-evaluator/internal/core/solr"
	"github.com/lueurxax/fact-evaluator/internal/platform/config"
	"github.com/lueurxax/fact-evaluator/internal/platform/memory"
	"github.com/lueurxax/fact-evaluator/internal/platform/observability"
	"github.com/lueurxax/fact-evaluator/internal/platform/worker"
	"github.com/lueurxax/fact-evaluator/internal/process/evaluator"
	db "github.com/lueurxax/fact-evaluator/internal/storage"
)

const (
	workerName      = "evaluation-worker"
	logFieldRunID   = "run_id"
	claimResultRun  = "claimed"
	claimResultNone = "empty"
	claimResultErr  = "error"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	runs     ports.RunRepository
	jobs     func(id string) evaluator.Job
	solrCfg  solr.Config
	solr     *solr.Client
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	sc := cfg.SolrCfg()
	solrCfg := solr.Config{
		BaseURL:       sc.BaseURL,
		Timeout:       sc.Timeout,
		MaxRPS:        sc.MaxRPS,
		FactKeysField: sc.FactKeysField,
		SortField:     sc.SortField,
	}

	return &App{
		cfg:      cfg,
		database: database,
		runs:     database,
		jobs:     databaseJobs(database),
		solrCfg:  solrCfg,
		solr:     solr.New(solrCfg),
		logger:   logger,
	}
}

// databaseJobs binds each run's tracker, sink and cancel check to its row.
func databaseJobs(database *db.DB) func(id string) evaluator.Job {
	return func(id string) evaluator.Job {
		job := database.Job(id)

		return evaluator.Job{Tracker: job, Sink: job, Cancel: job}
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	checks := map[string]observability.Pinger{"db": a.database}
	if a.solr.Enabled() {
		checks["solr"] = a.solr
	}

	srv := observability.NewServer(a.cfg.HealthPort, checks, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// NewEngine builds an evaluation engine reading from the configured Solr
// collection.
func (a *App) NewEngine() (*evaluator.Engine, error) {
	if err := a.cfg.RequireCorpus(); err != nil {
		return nil, err
	}

	corpus := solr.NewCorpus(a.solr, a.solrCfg)
	ec := a.cfg.EvaluatorCfg()

	return evaluator.New(corpus, corpus, memory.NewEstimator(memory.SystemProbe{}, ec.MemoryBufferGB), EngineOptions(ec), a.logger), nil
}

// EngineOptions maps the engine configuration onto evaluator options.
func EngineOptions(ec config.EvaluatorConfig) evaluator.Options {
	return evaluator.Options{
		ScrollSize:          ec.ScrollSize,
		MaxConfusionClasses: ec.MaxConfusionClasses,
		LedgerTopN:          ec.LedgerTopN,
		LedgerMaxKeys:       ec.LedgerMaxKeys,
		ErrorMaxLen:         ec.ErrorMaxLen,
		SkipMalformed:       ec.SkipMalformed,
		Parallelism:         ec.Parallelism,
		EntityFoldCase:      ec.EntityFoldCase,
		FactsField:          ec.FactsField,
	}
}

// RunWorker claims queued runs and executes them until ctx is canceled.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Msg("Starting worker mode")

	engine, err := a.NewEngine()
	if err != nil {
		return err
	}

	return worker.Loop(ctx, worker.Config{
		Name:         workerName,
		PollInterval: a.cfg.WorkerPollInterval,
		Logger:       a.logger,
		OnStart: func(ctx context.Context) {
			n, err := a.database.RequeueStaleRuns(ctx, time.Now().Add(-a.cfg.WorkerStaleAfter))
			if err != nil {
				a.logger.Warn().Err(err).Msg("failed to requeue stale runs")

				return
			}

			if n > 0 {
				a.logger.Info().Int64("runs", n).Msg("requeued stale runs")
			}
		},
		Process: func(ctx context.Context) (bool, error) {
			return a.processNext(ctx, engine)
		},
		OnError: func(err error) bool {
			a.logger.Error().Err(err).Msg("worker iteration failed")

			return !errors.Is(err, context.Canceled)
		},
	})
}

func (a *App) processNext(ctx context.Context, engine *evaluator.Engine) (bool, error) {
	run, err := a.runs.ClaimNextRun(ctx)
	if err != nil {
		observability.WorkerQueueClaims.WithLabelValues(claimResultErr).Inc()

		return false, err
	}

	if run == nil {
		observability.WorkerQueueClaims.WithLabelValues(claimResultNone).Inc()

		return false, nil
	}

	observability.WorkerQueueClaims.WithLabelValues(claimResultRun).Inc()

	a.execute(ctx, engine, *run)

	return true, ctx.Err()
}

// execute runs one evaluation against its database row. Run failures are
// recorded on the row by the engine and are not worker errors.
func (a *App) execute(ctx context.Context, engine *evaluator.Engine, run domain.EvaluationRun) evaluator.Report {
	defer worker.RecoverPanic(a.logger, "execute run "+run.ID)

	rep, err := engine.Run(ctx, run, a.jobs(run.ID))

	entry := a.logger.Info()
	if err != nil {
		entry = a.logger.Warn().Err(err)
	}

	entry.Str(logFieldRunID, run.ID).
		Str("state", string(rep.State)).
		Str("mode", string(rep.Mode)).
		Int("batches", rep.Batches).
		Msg("run finished")

	return rep
}

// RunOnce claims the queued run id and executes it in the foreground. A run
// that is not queued is refused, so a run a worker already owns is never
// executed twice.
func (a *App) RunOnce(ctx context.Context, id string) (evaluator.Report, error) {
	engine, err := a.NewEngine()
	if err != nil {
		return evaluator.Report{}, err
	}

	run, err := a.runs.ClaimRun(ctx, id)
	if err != nil {
		return evaluator.Report{}, fmt.Errorf("claim run: %w", err)
	}

	return a.execute(ctx, engine, *run), nil
}

// Enqueue stores run for a worker.
func (a *App) Enqueue(ctx context.Context, run domain.EvaluationRun) (string, error) {
	if err := evaluator.ValidateType(run.Type); err != nil {
		return "", err
	}

	id, err := a.runs.EnqueueRun(ctx, run)
	if err != nil {
		return "", err
	}

	a.logger.Info().Str(logFieldRunID, id).Str("type", string(run.Type)).Msg("run enqueued")

	return id, nil
}

// Cancel stops the run id.
func (a *App) Cancel(ctx context.Context, id string) error {
	if err := a.database.CancelRun(ctx, id); err != nil {
		return err
	}

	a.logger.Info().Str(logFieldRunID, id).Msg("run canceled")

	return nil
}

// Status returns the stored state of run id.
func (a *App) Status(ctx context.Context, id string) (*db.RunSummary, error) {
	return a.database.GetRunSummary(ctx, id)
}
