// Package worker provides the poll loop that drains the evaluation run queue.
// It encapsulates context cancellation, draining consecutive items without
// waiting, error handling and panic recovery.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	// maxDrain bounds how many items one iteration handles before yielding.
	maxDrain = 100
)

// ProcessFunc handles at most one work item. handled reports whether an item
// was found; the loop polls again immediately while items keep coming.
type ProcessFunc func(ctx context.Context) (handled bool, err error)

// Config configures the worker loop behavior.
type Config struct {
	// Name identifies the worker for logging.
	Name string

	// PollInterval is the wait after the queue was found empty or an
	// iteration failed.
	PollInterval time.Duration

	// Process is called each iteration to do the main work.
	Process ProcessFunc

	// OnStart is called once when the loop starts.
	OnStart func(ctx context.Context)

	// OnStop is called once when the loop exits.
	OnStop func()

	// OnError is called when Process returns an error.
	// Return true to continue, false to exit the loop.
	OnError func(err error) bool

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Loop runs a worker loop with the given configuration.
// Returns a wrapped ctx.Err() when the context is canceled, or the first
// fatal error.
func Loop(ctx context.Context, cfg Config) error {
	logger := getLogger(cfg.Logger)

	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")

	if cfg.OnStart != nil {
		cfg.OnStart(ctx)
	}

	defer func() {
		if cfg.OnStop != nil {
			cfg.OnStop()
		}

		logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")
	}()

	for {
		if err := checkCanceled(ctx, cfg.Name); err != nil {
			return err
		}

		if err := drain(ctx, cfg, logger); err != nil {
			return err
		}

		if err := Wait(ctx, cfg.PollInterval); err != nil {
			return err
		}
	}
}

// drain processes items until the queue is empty, a step fails, or maxDrain
// items were handled.
func drain(ctx context.Context, cfg Config, logger *zerolog.Logger) error {
	for i := 0; i < maxDrain; i++ {
		if err := checkCanceled(ctx, cfg.Name); err != nil {
			return err
		}

		handled, err := runProcessStep(ctx, cfg, logger)
		if err != nil {
			if cfg.OnError != nil && !cfg.OnError(err) {
				return err
			}

			if cfg.OnError == nil {
				logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("process error")
			}

			return nil
		}

		if !handled {
			return nil
		}
	}

	return nil
}

func runProcessStep(ctx context.Context, cfg Config, logger *zerolog.Logger) (handled bool, err error) {
	if cfg.Process == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			RecoverPanicValue(logger, cfg.Name, r)

			handled, err = false, fmt.Errorf("worker %s: panic: %v", cfg.Name, r)
		}
	}()

	return cfg.Process(ctx)
}

func checkCanceled(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("worker loop %s: %w", name, ctx.Err())
	default:
		return nil
	}
}

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		RecoverPanicValue(logger, operation, r)
	}
}

// RecoverPanicValue logs a value already obtained from recover.
func RecoverPanicValue(logger *zerolog.Logger, operation string, r interface{}) {
	getLogger(logger).Error().
		Interface("panic", r).
		Str("operation", operation).
		Msg("recovered from panic")
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
