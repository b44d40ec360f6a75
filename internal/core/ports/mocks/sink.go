package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	apperrors "github.com/lueurxax/fact-evaluator/internal/core/errors"
)

// ResultSink is a thread-safe in-memory implementation of ports.ResultSink.
// Results are stored JSON-encoded, the same way the database stores them.
type ResultSink struct {
	mu      sync.RWMutex
	results [][]byte

	// SaveResultFn allows overriding SaveResult behavior.
	SaveResultFn func(ctx context.Context, result domain.EvaluationResult) error
}

// NewResultSink creates a new mock result sink.
func NewResultSink() *ResultSink {
	return &ResultSink{}
}

// SaveResult stores the encoded result.
func (s *ResultSink) SaveResult(ctx context.Context, result domain.EvaluationResult) error {
	if s.SaveResultFn != nil {
		return s.SaveResultFn(ctx, result)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, data)

	return nil
}

// Count returns the number of saved results.
func (s *ResultSink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.results)
}

// Last decodes the most recently saved result.
func (s *ResultSink) Last() (domain.EvaluationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.results) == 0 {
		return domain.EvaluationResult{}, false
	}

	var out domain.EvaluationResult
	if err := json.Unmarshal(s.results[len(s.results)-1], &out); err != nil {
		return domain.EvaluationResult{}, false
	}

	return out, true
}

// LastJSON returns the raw encoding of the most recent result.
func (s *ResultSink) LastJSON() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.results) == 0 {
		return nil
	}

	return append([]byte(nil), s.results[len(s.results)-1]...)
}

// RunRepository is a thread-safe in-memory implementation of ports.RunRepository.
type RunRepository struct {
	mu   sync.Mutex
	runs map[string]domain.EvaluationRun

	// ClaimNextRunFn allows overriding ClaimNextRun behavior.
	ClaimNextRunFn func(ctx context.Context) (*domain.EvaluationRun, error)
}

// NewRunRepository creates a new mock run repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[string]domain.EvaluationRun)}
}

// EnqueueRun stores run as queued and returns its ID.
func (r *RunRepository) EnqueueRun(_ context.Context, run domain.EvaluationRun) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	run.Status = domain.RunStatusQueued
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	r.runs[run.ID] = run

	return run.ID, nil
}

// ClaimNextRun marks the oldest queued run as running and returns it. It
// returns nil, nil when nothing is queued.
func (r *RunRepository) ClaimNextRun(ctx context.Context) (*domain.EvaluationRun, error) {
	if r.ClaimNextRunFn != nil {
		return r.ClaimNextRunFn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	queued := make([]domain.EvaluationRun, 0, len(r.runs))

	for _, run := range r.runs {
		if run.Status == domain.RunStatusQueued {
			queued = append(queued, run)
		}
	}

	if len(queued) == 0 {
		return nil, nil //nolint:nilnil // nil,nil indicates an empty queue
	}

	sort.Slice(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})

	run := queued[0]
	run.Status = domain.RunStatusRunning
	r.runs[run.ID] = run

	return &run, nil
}

// ClaimRun marks run id as running if it is still queued.
func (r *RunRepository) ClaimRun(_ context.Context, id string) (*domain.EvaluationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	if run.Status != domain.RunStatusQueued {
		return nil, fmt.Errorf("%w: run %s is %s", apperrors.ErrInvalidInput, id, run.Status)
	}

	run.Status = domain.RunStatusRunning
	r.runs[id] = run

	return &run, nil
}

// Status returns the stored status of run id.
func (r *RunRepository) Status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runs[id].Status
}

// GetRun returns a copy of the run.
func (r *RunRepository) GetRun(_ context.Context, id string) (*domain.EvaluationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	return &run, nil
}
