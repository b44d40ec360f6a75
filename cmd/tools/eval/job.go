package main

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
)

// localJob logs run progress instead of persisting it.
type localJob struct {
	logger *zerolog.Logger
	total  atomic.Int64
	saves  atomic.Int64
}

func newLocalJob(logger *zerolog.Logger) *localJob {
	return &localJob{logger: logger}
}

func (j *localJob) SetTotal(_ context.Context, total int) error {
	j.total.Store(int64(total))
	j.logger.Info().Int("total", total).Msg("documents matched")

	return nil
}

func (j *localJob) UpdateProgress(_ context.Context, value int, step string) error {
	j.logger.Debug().Int("progress", value).Int64("total", j.total.Load()).Str("step", step).Msg("progress")

	return nil
}

func (j *localJob) Complete(ctx context.Context) error {
	return j.UpdateStatus(ctx, domain.RunStatusCompleted)
}

func (j *localJob) AddError(_ context.Context, message string) error {
	j.logger.Error().Str("error", message).Msg("run error")

	return nil
}

func (j *localJob) UpdateStatus(_ context.Context, status string) error {
	j.logger.Info().Str("status", status).Msg("run status")

	return nil
}

func (j *localJob) SaveResult(_ context.Context, result domain.EvaluationResult) error {
	j.saves.Add(1)
	j.logger.Debug().Int("documents", result.DocumentCount).Int64("saves", j.saves.Load()).Msg("result saved")

	return nil
}
