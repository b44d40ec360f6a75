// Package main evaluates a local JSONL corpus without Solr or Postgres.
//
// Each input line is one document carrying its facts. The tool runs the
// same engine as the worker and prints the resulting scores, failing when
// they fall below the given gates.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/fact-evaluator/internal/app"
	"github.com/lueurxax/fact-evaluator/internal/core/corpus"
	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	"github.com/lueurxax/fact-evaluator/internal/platform/config"
	"github.com/lueurxax/fact-evaluator/internal/platform/memory"
	"github.com/lueurxax/fact-evaluator/internal/process/evaluator"
)

const (
	defaultInputPath = "docs/eval/corpus.jsonl"
	outputFilePerm   = 0o600
	errFmt           = "%v\n"
)

var (
	errPrecisionBelowThreshold = errors.New("precision below threshold")
	errRecallBelowThreshold    = errors.New("recall below threshold")
	errRunNotDone              = errors.New("evaluation did not complete")
)

type evalConfig struct {
	inputPath    string
	outPath      string
	run          domain.EvaluationRun
	minPrecision float64
	minRecall    float64
	verbose      bool
}

func main() {
	cfg := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := evaluate(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, errFmt, err)
		os.Exit(1)
	}

	printSummary(cfg.run, res)

	if cfg.outPath != "" {
		if err := writeResult(cfg.outPath, res); err != nil {
			fmt.Fprintf(os.Stderr, errFmt, err)
			os.Exit(1)
		}
	}

	if err := checkThresholds(res, cfg); err != nil {
		fmt.Fprintf(os.Stderr, errFmt, err)
		os.Exit(1)
	}
}

func parseFlags() evalConfig {
	var (
		cfg        evalConfig
		evalType   string
		average    string
		entityMode string
	)

	flag.StringVar(&cfg.inputPath, "input", defaultInputPath, "Path to JSONL corpus")
	flag.StringVar(&cfg.outPath, "out", "", "Write the result as JSON to this path")
	flag.StringVar(&evalType, "type", string(domain.EvaluationBinary), "Evaluation type (binary, multilabel, entity)")
	flag.StringVar(&cfg.run.Query, "query", "", "Query selecting documents (field:value or *:*)")
	flag.StringVar(&cfg.run.TrueFact, "true-fact", "", "Fact holding the true labels")
	flag.StringVar(&cfg.run.TrueFactValue, "true-value", "", "Positive value of the true fact (binary)")
	flag.StringVar(&cfg.run.PredFact, "pred-fact", "", "Fact holding the predicted labels")
	flag.StringVar(&cfg.run.PredFactValue, "pred-value", "", "Positive value of the predicted fact (binary)")
	flag.StringVar(&cfg.run.DocPath, "doc-path", "", "Document field the entity spans refer to (entity)")
	flag.StringVar(&average, "average", "", "Averaging preset (binary, micro, macro, samples, weighted)")
	flag.BoolVar(&cfg.run.AddIndividualResults, "individual", false, "Add per-class results")
	flag.IntVar(&cfg.run.ScrollSize, "scroll-size", 0, "Documents per batch")
	flag.StringVar(&entityMode, "entity-scoring", string(domain.EntityScoringToken), "Entity scoring (token, value)")
	flag.Float64Var(&cfg.minPrecision, "min-precision", -1, "Fail if precision is below this value (disabled if <0)")
	flag.Float64Var(&cfg.minRecall, "min-recall", -1, "Fail if recall is below this value (disabled if <0)")
	flag.BoolVar(&cfg.verbose, "v", false, "Log engine progress")

	flag.Parse()

	cfg.run.ID = uuid.NewString()
	cfg.run.Name = cfg.inputPath
	cfg.run.Type = domain.EvaluationType(evalType)
	cfg.run.Average = domain.Average(average)
	cfg.run.EntityScoring = domain.EntityScoring(entityMode)

	return cfg
}

func evaluate(ctx context.Context, cfg evalConfig) (domain.EvaluationResult, error) {
	appCfg, err := config.Load()
	if err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.Nop()
	if cfg.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	ec := appCfg.EvaluatorCfg()

	store, err := corpus.Open(cfg.inputPath, ec.FactsField)
	if err != nil {
		return domain.EvaluationResult{}, err
	}

	engine := evaluator.New(store, store, memory.NewEstimator(memory.SystemProbe{}, ec.MemoryBufferGB), app.EngineOptions(ec), &logger)
	job := newLocalJob(&logger)

	rep, err := engine.Run(ctx, cfg.run, evaluator.Job{Tracker: job, Sink: job})
	if err != nil {
		return domain.EvaluationResult{}, err
	}

	if rep.State != evaluator.StateDone {
		return domain.EvaluationResult{}, fmt.Errorf("%w: %s", errRunNotDone, rep.State)
	}

	return rep.Result, nil
}

func writeResult(path string, res domain.EvaluationResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if err := os.WriteFile(path, data, outputFilePerm); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	return nil
}

// checkThresholds treats an undefined metric as failing any enabled gate.
func checkThresholds(res domain.EvaluationResult, cfg evalConfig) error {
	if cfg.minPrecision >= 0 && res.Precision < cfg.minPrecision {
		return fmt.Errorf("%w: %.3f < %.3f", errPrecisionBelowThreshold, res.Precision, cfg.minPrecision)
	}

	if cfg.minRecall >= 0 && res.Recall < cfg.minRecall {
		return fmt.Errorf("%w: %.3f < %.3f", errRecallBelowThreshold, res.Recall, cfg.minRecall)
	}

	return nil
}

func printSummary(run domain.EvaluationRun, res domain.EvaluationResult) {
	fmt.Printf("Evaluation Summary\n")
	fmt.Printf("  Type: %s (classes: %d)\n", run.Type, len(res.Classes))
	fmt.Printf("  Documents: %d (skipped: %d)\n", res.DocumentCount, res.DocumentsSkipped)
	fmt.Printf("  Confusion: TP=%d FP=%d FN=%d TN=%d\n", res.TP, res.FP, res.FN, res.TN)
	fmt.Printf("  Precision: %s\n", formatMetric(res.Precision))
	fmt.Printf("  Recall: %s\n", formatMetric(res.Recall))
	fmt.Printf("  F1: %s\n", formatMetric(res.F1))
	fmt.Printf("  Accuracy: %s\n", formatMetric(res.Accuracy))

	if res.ScoresImprecise {
		fmt.Printf("  Note: scores averaged over batches\n")
	}

	if m := res.Misclassified; m != nil {
		fmt.Printf("  Misclassified: substrings=%d superstrings=%d partial=%d fn=%d fp=%d\n",
			len(m.Substrings), len(m.Superstrings), len(m.Partial), len(m.FalseNegatives), len(m.FalsePositives))
	}
}

func formatMetric(v float64) string {
	if v == domain.NaNMarker {
		return "undefined"
	}

	return fmt.Sprintf("%.3f", v)
}
