package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_runs_total",
		Help: "The total number of finished evaluation runs by type and terminal status",
	}, []string{"type", "status"})

	RunDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evaluator_run_duration_seconds",
		Help:    "Duration of evaluation runs",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
	}, []string{"type"})

	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_batches_processed_total",
		Help: "The total number of corpus batches processed",
	}, []string{"type", "mode"})

	DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_documents_processed_total",
		Help: "The total number of documents processed by outcome",
	}, []string{"type", "outcome"})

	BatchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evaluator_batch_duration_seconds",
		Help:    "Duration in seconds to extract and score one batch",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"type"})

	EstimatedMemoryGB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evaluator_estimated_memory_gb",
		Help: "Memory estimated for the whole-corpus pass of the current run",
	})

	ScoreAfterScrollRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evaluator_score_after_scroll_runs_total",
		Help: "Runs that fell back to per-batch scoring",
	})

	CorpusRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evaluator_corpus_request_duration_seconds",
		Help:    "Duration of corpus store requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CorpusRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_corpus_request_errors_total",
		Help: "Failed corpus store requests",
	}, []string{"operation"})

	WorkerQueueClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evaluator_worker_queue_claims_total",
		Help: "Queue polls by result",
	}, []string{"result"})
)
