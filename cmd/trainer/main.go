package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"catch-forecast/internal/backtest"
	"catch-forecast/internal/cfg"
	"catch-forecast/internal/features"
	"catch-forecast/internal/metrics"
	"catch-forecast/internal/ml"
	"catch-forecast/internal/records"
	"catch-forecast/internal/storage"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		kind         = flag.String("kind", "", "Model kind: random_forest, gradient_boosting (overrides config)")
		outputPath   = flag.String("output", "reports", "Output directory for backtest reports")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		startDate    = flag.String("start", "", "Backtest start date (YYYY-MM-DD)")
		endDate      = flag.String("end", "", "Backtest end date (YYYY-MM-DD)")
		runBacktest  = flag.Bool("backtest", false, "Replay the ledger through the model after training")
		evaluateOnly = flag.Bool("evaluate-only", false, "Skip training and backtest the newest saved artifact")
		noSave       = flag.Bool("no-save", false, "Train and evaluate without writing an artifact")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *kind != "" {
		k, err := ml.ParseKind(*kind)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid model kind")
		}
		config.ModelKind = k
	}

	from, err := parseDateFlag(*startDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid start date format")
	}
	to, err := parseDateFlag(*endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid end date format")
	}

	fmt.Println("=== Training Configuration ===")
	fmt.Printf("Species: %s\n", config.TargetSpecies)
	fmt.Printf("Model Kind: %s\n", config.ModelKind)
	fmt.Printf("Models Directory: %s\n", config.ModelsDir)
	fmt.Printf("Validation Fraction: %.2f\n", config.ValidationFraction)
	fmt.Printf("CV Folds: %d\n", config.CVFolds)
	fmt.Println("==============================")

	// Metrics are collected on a private registry; nothing scrapes a CLI run.
	mw := metrics.NewWrapper(metrics.NewWithRegistry(prometheus.NewRegistry()))
	clock := clockwork.NewRealClock()

	recs, err := loadLedger(config, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load ledger")
	}

	manager := ml.NewManager(ml.Config{
		Dir:     config.ModelsDir,
		Prefix:  config.ArtifactPrefix,
		Kind:    config.ModelKind,
		Params:  config.Hyperparameters,
		Keep:    config.KeepArtifacts,
		Clock:   clock,
		Metrics: mw,
	})

	if *evaluateOnly {
		path, err := manager.LoadLatest()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load model artifact")
		}
		log.Info().Str("path", path).Msg("Loaded model artifact")
		*runBacktest = true
	} else {
		train(manager, config, recs, *noSave)
	}

	if !*runBacktest {
		return
	}

	engine := backtest.NewEngine(manager, config.TargetSpecies, clock)
	results, err := engine.Run(recs, from, to)
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	reporter := backtest.NewReporter(results, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().
		Str("output", *outputPath).
		Msg("Backtest completed successfully")
}

func loadLedger(config cfg.Settings, mw *metrics.MetricsWrapper) ([]records.Record, error) {
	source, closeSource, err := storage.Open(config.DataPath, config.LedgerCSV, config.LedgerURL, config.LedgerTimeout)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	ctx, cancel := context.WithTimeout(context.Background(), config.LedgerTimeout+30*time.Second)
	defer cancel()

	raws, err := source.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	recs, report := records.NewNormalizer(mw).Normalize(raws)
	log.Info().
		Int("rows", report.Total).
		Int("kept", report.Kept).
		Int("dropped", report.Dropped).
		Msg("Ledger loaded")
	return recs, nil
}

func train(manager *ml.Manager, config cfg.Settings, recs []records.Record, noSave bool) {
	ds, err := features.NewBuilder(config.TargetSpecies).Build(recs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build training set")
	}
	log.Info().Int("days", ds.Len()).Msg("Training set built")

	if cv, err := manager.CrossValidate(ds, config.CVFolds); err != nil {
		log.Warn().Err(err).Msg("Cross-validation skipped")
	} else {
		fmt.Printf("CV MAE: %.2f ± %.2f\n", cv.MeanMAE, cv.StdMAE)
		fmt.Printf("CV R²:  %.3f ± %.3f\n", cv.MeanR2, cv.StdR2)
	}

	rec, err := manager.Fit(ds, config.ValidationFraction)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
	fmt.Printf("Train MAE: %.2f  R²: %.3f  (n=%d)\n", rec.Train.MAE, rec.Train.R2, rec.TrainSize)
	if rec.Validation != nil {
		fmt.Printf("Validation MAE: %.2f  R²: %.3f  (n=%d)\n", rec.Validation.MAE, rec.Validation.R2, rec.ValidationSize)
	}

	if noSave {
		log.Info().Msg("Artifact not saved (-no-save)")
		return
	}
	path, err := manager.Save()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to save model artifact")
	}
	log.Info().Str("path", path).Msg("Model artifact saved")
}

// parseDateFlag parses an optional YYYY-MM-DD flag; empty means unbounded.
func parseDateFlag(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", v)
}
