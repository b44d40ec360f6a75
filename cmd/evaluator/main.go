package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/fact-evaluator/internal/app"
	"github.com/lueurxax/fact-evaluator/internal/core/domain"
	"github.com/lueurxax/fact-evaluator/internal/platform/config"
	"github.com/lueurxax/fact-evaluator/internal/process/evaluator"
	db "github.com/lueurxax/fact-evaluator/internal/storage"
)

var errMissingRunID = errors.New("-id is required")

func typeList() string {
	types := evaluator.SupportedTypes()
	names := make([]string, len(types))

	for i, t := range types {
		names[i] = string(t)
	}

	return strings.Join(names, ", ")
}

type cliFlags struct {
	mode string
	run  domain.EvaluationRun
}

func parseFlags() cliFlags {
	var (
		f          cliFlags
		evalType   string
		average    string
		entityMode string
	)

	flag.StringVar(&f.mode, "mode", "", "Service mode (worker, run, enqueue, cancel, status)")
	flag.StringVar(&f.run.ID, "id", "", "Run ID (run, cancel, status; optional for enqueue)")
	flag.StringVar(&f.run.Name, "name", "", "Run name")
	flag.StringVar(&evalType, "type", string(domain.EvaluationBinary), "Evaluation type ("+typeList()+")")
	flag.StringVar(&f.run.Query, "query", "", "Corpus query selecting documents")
	flag.StringVar(&f.run.TrueFact, "true-fact", "", "Fact holding the true labels")
	flag.StringVar(&f.run.TrueFactValue, "true-value", "", "Positive value of the true fact (binary)")
	flag.StringVar(&f.run.PredFact, "pred-fact", "", "Fact holding the predicted labels")
	flag.StringVar(&f.run.PredFactValue, "pred-value", "", "Positive value of the predicted fact (binary)")
	flag.StringVar(&f.run.DocPath, "doc-path", "", "Document field the entity spans refer to (entity)")
	flag.StringVar(&average, "average", "", "Averaging preset (binary, micro, macro, samples, weighted)")
	flag.BoolVar(&f.run.AddIndividualResults, "individual", false, "Add per-class results")
	flag.IntVar(&f.run.ScrollSize, "scroll-size", 0, "Documents per batch (0 uses EVAL_SCROLL_SIZE)")
	flag.StringVar(&entityMode, "entity-scoring", string(domain.EntityScoringToken), "Entity scoring (token, value)")

	flag.Parse()

	f.run.Type = domain.EvaluationType(evalType)
	f.run.Average = domain.Average(average)
	f.run.EntityScoring = domain.EntityScoring(entityMode)

	return f
}

func main() {
	f := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dc := cfg.DatabaseCfg()
	poolOpts := db.PoolOptions{
		MaxConns:          dc.MaxConnections,
		MinConns:          dc.MinConnections,
		MaxConnIdleTime:   dc.MaxConnIdleTime,
		MaxConnLifetime:   dc.MaxConnLifetime,
		HealthCheckPeriod: dc.HealthCheckPeriod,
	}

	database, err := db.NewWithOptions(ctx, dc.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if f.mode == "worker" {
		// Start health server in background
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()
	}

	if err := runMode(ctx, application, f); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(lvl).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, f cliFlags) error {
	switch f.mode {
	case "worker":
		return application.RunWorker(ctx)
	case "enqueue":
		id, err := application.Enqueue(ctx, f.run)
		if err != nil {
			return err
		}

		fmt.Println(id)

		return nil
	case "run", "cancel", "status":
		if f.run.ID == "" {
			return errMissingRunID
		}

		return runByID(ctx, application, f.mode, f.run.ID)
	default:
		log.Fatalf("Usage: %s --mode=[worker|run|enqueue|cancel|status]", os.Args[0])

		return nil
	}
}

func runByID(ctx context.Context, application *app.App, mode, id string) error {
	switch mode {
	case "run":
		rep, err := application.RunOnce(ctx, id)
		if err != nil {
			return err
		}

		return printJSON(rep)
	case "cancel":
		return application.Cancel(ctx, id)
	default:
		summary, err := application.Status(ctx, id)
		if err != nil {
			return err
		}

		return printJSON(summary)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return nil
}
