// Package evaluator runs one evaluation end to end: it validates the run,
// picks whole-corpus or score-after-scroll aggregation from a memory
// estimate, scrolls the corpus batch by batch and persists the result.
//
// A run moves through INIT, ESTIMATE_MEMORY, SCROLLING, FINALIZING and DONE.
// Any error after INIT moves it to FAILED and is reported to the job tracker
// truncated to Options.ErrorMaxLen; a cancellation seen at a batch boundary
// moves it to CANCELED and leaves the last persisted result in place.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
	"github.com/lueurxax/fact-evaluator/internal/core/ports"
	"github.com/lueurxax/fact-evaluator/internal/platform/memory"
	"github.com/lueurxax/fact-evaluator/internal/platform/observability"
	"github.com/lueurxax/fact-evaluator/internal/process/extract"
)

// State is a step of the run state machine.
type State string

// Run states.
const (
	StateInit           State = "INIT"
	StateEstimateMemory State = "ESTIMATE_MEMORY"
	StateScrolling      State = "SCROLLING"
	StateFinalizing     State = "FINALIZING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
	StateCanceled       State = "CANCELED"
	StateInterrupted    State = "INTERRUPTED"
)

// Mode is the aggregation strategy picked for a run.
type Mode string

// Aggregation modes. Entity runs always count incrementally and exactly.
const (
	ModeWholeCorpus      Mode = "whole_corpus"
	ModeScoreAfterScroll Mode = "score_after_scroll"
	ModeIncremental      Mode = "incremental"
)

// Tracker step labels.
const (
	stepInit      = "initializing"
	stepMemory    = "estimating memory"
	stepScrolling = "scrolling"
	stepFinalize  = "finalizing"
)

const (
	logFieldRunID = "run_id"
	logFieldState = "state"
)

// Defaults applied to zero Options fields.
const (
	DefaultScrollSize     = 500
	DefaultErrorMaxLen    = 100
	DefaultMemoryBufferGB = 1.0
	DefaultParallelism    = 4
)

// Options tunes the engine.
type Options struct {
	ScrollSize          int
	MaxConfusionClasses int
	LedgerTopN          int
	LedgerMaxKeys       int
	ErrorMaxLen         int
	SkipMalformed       bool
	Parallelism         int
	EntityFoldCase      bool
	FactsField          string
}

func (o Options) withDefaults() Options {
	if o.ScrollSize <= 0 {
		o.ScrollSize = DefaultScrollSize
	}

	if o.ErrorMaxLen <= 0 {
		o.ErrorMaxLen = DefaultErrorMaxLen
	}

	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}

	if o.FactsField == "" {
		o.FactsField = domain.DefaultFactsField
	}

	return o
}

// MemoryChecker decides whether a whole-corpus pass fits in memory.
type MemoryChecker interface {
	Check(ctx context.Context, nDocs, nClasses int, evalType domain.EvaluationType) (memory.Decision, error)
}

// Job bundles the per-run collaborators. Cancel may be nil.
type Job struct {
	Tracker ports.JobTracker
	Sink    ports.ResultSink
	Cancel  ports.CancelChecker
}

// Report describes how a run ended.
type Report struct {
	State   State
	Mode    Mode
	Batches int
	Result  domain.EvaluationResult
}

// Engine executes evaluation runs. It holds no per-run state and may run
// several evaluations concurrently.
type Engine struct {
	corpus    ports.CorpusReader
	catalog   ports.FactCatalog
	memory    MemoryChecker
	extractor *extract.Extractor
	opts      Options
	logger    *zerolog.Logger
}

// New creates an engine.
func New(corpus ports.CorpusReader, catalog ports.FactCatalog, mem MemoryChecker, opts Options, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	opts = opts.withDefaults()

	return &Engine{
		corpus:    corpus,
		catalog:   catalog,
		memory:    mem,
		extractor: extract.New(opts.FactsField),
		opts:      opts,
		logger:    logger,
	}
}

// runState is owned by a single Run call.
type runState struct {
	run       domain.EvaluationRun
	job       Job
	logger    zerolog.Logger
	state     State
	mode      Mode
	strategy  strategy
	batches   int
	processed int
	malformed *multierror.Error
	last      domain.EvaluationResult
}

func (r *runState) transition(s State) {
	r.logger.Info().Str(logFieldState, string(s)).Str("from", string(r.state)).Msg("evaluation state changed")
	r.state = s
}

func (r *runState) malformedCount() int {
	if r.malformed == nil {
		return 0
	}

	return len(r.malformed.Errors)
}

// Run executes run to completion. The returned Report is always populated;
// the error is set for FAILED, CANCELED and INTERRUPTED runs.
func (e *Engine) Run(ctx context.Context, run domain.EvaluationRun, job Job) (rep Report, err error) {
	if job.Tracker == nil || job.Sink == nil {
		return Report{State: StateFailed}, fmt.Errorf("%w: job tracker and result sink are required", apperrors.ErrInvalidInput)
	}

	r := &runState{
		run:    run,
		job:    job,
		logger: e.logger.With().Str(logFieldRunID, run.ID).Str("type", string(run.Type)).Logger(),
		state:  StateInit,
	}
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during %s: %v", r.state, rec)
		}

		rep = e.finish(ctx, r, err)
		observability.RunDurationSeconds.WithLabelValues(string(run.Type)).Observe(time.Since(start).Seconds())
		observability.RunsTotal.WithLabelValues(string(run.Type), string(rep.State)).Inc()
	}()

	return Report{}, e.execute(ctx, r)
}

func (e *Engine) execute(ctx context.Context, r *runState) error {
	r.logger.Info().Str("query", r.run.Query).Msg("evaluation started")

	if err := r.job.Tracker.UpdateProgress(ctx, 0, stepInit); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}

	if err := e.initialize(ctx, r); err != nil {
		return err
	}

	r.transition(StateEstimateMemory)

	total, err := e.estimate(ctx, r)
	if err != nil {
		return err
	}

	r.transition(StateScrolling)

	if err := e.scroll(ctx, r, total); err != nil {
		return err
	}

	r.transition(StateFinalizing)

	return e.finalize(ctx, r)
}

func (e *Engine) initialize(ctx context.Context, r *runState) error {
	factory, err := lookupStrategy(r.run.Type)
	if err != nil {
		return err
	}

	if r.run.TrueFact == "" || r.run.PredFact == "" {
		return fmt.Errorf("%w: true and predicted fact names are required", apperrors.ErrInvalidInput)
	}

	s, err := factory(e, r.run, func(doc domain.Document, err error) error {
		return e.handleDocError(r, doc, err)
	})
	if err != nil {
		return err
	}

	if err := s.init(ctx); err != nil {
		return err
	}

	r.strategy = s

	return nil
}

func (e *Engine) estimate(ctx context.Context, r *runState) (int, error) {
	if err := r.job.Tracker.UpdateProgress(ctx, 0, stepMemory); err != nil {
		return 0, fmt.Errorf("report progress: %w", err)
	}

	total, err := e.corpus.Count(ctx, r.run.Query)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}

	if err := r.job.Tracker.SetTotal(ctx, total); err != nil {
		return 0, fmt.Errorf("set total: %w", err)
	}

	r.mode = e.pickMode(ctx, r, total)
	r.strategy.begin(r.mode)

	if r.mode == ModeScoreAfterScroll {
		observability.ScoreAfterScrollRuns.Inc()
	}

	r.logger.Info().Int("total", total).Str("mode", string(r.mode)).Msg("aggregation mode selected")

	return total, nil
}

func (e *Engine) pickMode(ctx context.Context, r *runState, total int) Mode {
	if !r.strategy.needsMemoryCheck() {
		return ModeIncremental
	}

	if e.memory == nil {
		return ModeScoreAfterScroll
	}

	d, err := e.memory.Check(ctx, total, len(r.strategy.classes()), r.run.Type)
	observability.EstimatedMemoryGB.Set(d.RequiredGB)

	if err != nil {
		r.logger.Warn().Err(err).Msg("memory check failed, scoring after each batch")

		return ModeScoreAfterScroll
	}

	r.logger.Debug().
		Float64("required_gb", d.RequiredGB).
		Float64("available_gb", d.AvailableGB).
		Float64("buffer_gb", d.BufferGB).
		Msg("memory estimate")

	if d.Enough {
		return ModeWholeCorpus
	}

	return ModeScoreAfterScroll
}

func (e *Engine) scroll(ctx context.Context, r *runState, total int) error {
	size := r.run.ScrollSize
	if size <= 0 {
		size = e.opts.ScrollSize
	}

	scroller, err := e.corpus.Scroll(ctx, ports.ScrollRequest{
		Query:     r.run.Query,
		Fields:    r.strategy.fields(),
		BatchSize: size,
	})
	if err != nil {
		return fmt.Errorf("open scroll: %w", err)
	}

	for {
		if err := e.checkCanceled(ctx, r); err != nil {
			return err
		}

		docs, err := scroller.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("scroll batch %d: %w", r.batches+1, err)
		}

		if err := e.processBatch(ctx, r, docs); err != nil {
			return err
		}

		r.logger.Debug().Int("batch", r.batches).Int("docs", len(docs)).Int("processed", r.processed).Int("total", total).Msg("batch processed")
	}
}

func (e *Engine) processBatch(ctx context.Context, r *runState, docs []domain.Document) error {
	start := time.Now()

	if err := r.strategy.processBatch(ctx, docs); err != nil {
		return fmt.Errorf("batch %d: %w", r.batches+1, err)
	}

	r.batches++
	r.processed += len(docs)

	observability.BatchDurationSeconds.WithLabelValues(string(r.run.Type)).Observe(time.Since(start).Seconds())
	observability.BatchesProcessed.WithLabelValues(string(r.run.Type), string(r.mode)).Inc()
	observability.DocumentsProcessed.WithLabelValues(string(r.run.Type), "scrolled").Add(float64(len(docs)))

	if r.mode != ModeWholeCorpus {
		res := e.decorate(r, r.strategy.snapshot())
		if err := r.job.Sink.SaveResult(ctx, res); err != nil {
			return fmt.Errorf("save partial result: %w", err)
		}

		r.last = res
	}

	if err := r.job.Tracker.UpdateProgress(ctx, r.processed, stepScrolling); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}

	return nil
}

func (e *Engine) checkCanceled(ctx context.Context, r *runState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.job.Cancel == nil {
		return nil
	}

	canceled, err := r.job.Cancel.IsCanceled(ctx)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}

	if canceled {
		return apperrors.ErrRunCanceled
	}

	return nil
}

func (e *Engine) finalize(ctx context.Context, r *runState) error {
	if err := r.job.Tracker.UpdateProgress(ctx, r.processed, stepFinalize); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}

	res, err := r.strategy.finalize()
	if err != nil {
		return err
	}

	res = e.decorate(r, res)

	if err := r.job.Sink.SaveResult(ctx, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	r.last = res

	if n := r.malformedCount(); n > 0 {
		msg := truncate(fmt.Sprintf("skipped %d malformed documents: %v", n, r.malformed.Errors[0]), e.opts.ErrorMaxLen)
		if err := r.job.Tracker.AddError(ctx, msg); err != nil {
			return fmt.Errorf("report skipped documents: %w", err)
		}
	}

	if err := r.job.Tracker.Complete(ctx); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	return nil
}

// decorate adds the run-level fields every persisted result carries.
func (e *Engine) decorate(r *runState, res domain.EvaluationResult) domain.EvaluationResult {
	res.DocumentsSkipped += r.malformedCount()
	res.ScoreAfterScroll = r.mode == ModeScoreAfterScroll

	return res
}

// handleDocError decides whether a per-document extraction error aborts the
// batch or is skipped and counted.
func (e *Engine) handleDocError(r *runState, doc domain.Document, err error) error {
	skippable := errors.Is(err, apperrors.ErrMissingField) || errors.Is(err, apperrors.ErrMalformedAnnotation)
	if !e.opts.SkipMalformed || !skippable {
		return fmt.Errorf("document %q: %w", doc.ID, err)
	}

	r.malformed = multierror.Append(r.malformed, err)
	observability.DocumentsProcessed.WithLabelValues(string(r.run.Type), "malformed").Inc()
	r.logger.Debug().Err(err).Str("doc_id", doc.ID).Msg("skipping malformed document")

	return nil
}

func (e *Engine) finish(ctx context.Context, r *runState, err error) Report {
	rep := Report{State: r.state, Mode: r.mode, Batches: r.batches, Result: r.last}

	switch {
	case err == nil:
		r.transition(StateDone)
		r.logger.Info().Int("documents", r.last.DocumentCount).Int("batches", r.batches).Msg("evaluation completed")
	case errors.Is(err, apperrors.ErrRunCanceled):
		r.transition(StateCanceled)
		r.logger.Info().Int("batches", r.batches).Msg("evaluation canceled")
	case ctx.Err() != nil:
		// The caller is shutting down. The row stays running so the stale
		// sweep can requeue it.
		r.transition(StateInterrupted)
		r.logger.Warn().Err(err).Int("batches", r.batches).Msg("evaluation interrupted")
	default:
		r.transition(StateFailed)
		r.logger.Error().Err(err).Msg("evaluation failed")
		e.reportFailure(context.WithoutCancel(ctx), r, err)
	}

	rep.State = r.state

	return rep
}

func (e *Engine) reportFailure(ctx context.Context, r *runState, err error) {
	msg := truncate(err.Error(), e.opts.ErrorMaxLen)

	if terr := r.job.Tracker.AddError(ctx, msg); terr != nil {
		r.logger.Warn().Err(terr).Msg("failed to record run error")
	}

	if terr := r.job.Tracker.UpdateStatus(ctx, domain.RunStatusFailed); terr != nil {
		r.logger.Warn().Err(terr).Msg("failed to mark run failed")
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}
