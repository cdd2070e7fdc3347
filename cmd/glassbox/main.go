package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"glassbox/internal/cfg"
	"glassbox/internal/common"
	"glassbox/internal/dataset"
	"glassbox/internal/explain"
	"glassbox/internal/features"
	"glassbox/internal/model"
	"glassbox/internal/report"
	"glassbox/internal/storage"
)

func main() {
	var (
		dataPath    = flag.String("data", "", "Path to the dataset CSV")
		textColumn  = flag.String("text", "", "Text column for corpus datasets (overrides config)")
		targetCol   = flag.String("target", "", "Target column name (overrides config)")
		weightsPath = flag.String("weights", "", "Path to a linear model weights file")
		modelURL    = flag.String("url", "", "Base URL of a prediction service")
		storePath   = flag.String("store", "", "Path to the bbolt store for vocabulary caching and report history")
		vocabName   = flag.String("vocab", "", "Cached vocabulary name (defaults to the dataset file name)")
		vocabSize   = flag.Int("vocab-size", 0, "Vocabulary size for corpus datasets")
		lossName    = flag.String("loss", "", "Loss function: one_minus_auc, log_loss, brier")
		repeats     = flag.Int("repeats", 0, "Permutation repeats per feature")
		bins        = flag.Int("bins", 0, "Quantile bins per ALE profile")
		profiles    = flag.Int("profiles", common.DefaultTopProfiles, "ALE profiles for the top-ranked features; 0 disables")
		localRows   = flag.String("local", "", "Comma-separated row indices to explain locally")
		budget      = flag.Int("budget", 0, "Features per local explanation")
		samples     = flag.Int("samples", 0, "Neighborhood size per local explanation")
		seed        = flag.Int64("seed", -1, "Base seed; -1 uses the configured default")
		workers     = flag.Int("workers", 0, "Parallel prediction workers; 0 = one per CPU")
		outputPath  = flag.String("output", "reports", "Output directory for report files")
		noFiles     = flag.Bool("no-files", false, "Print the summary only, skip report files")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	applyFlags(&c, flagValues{
		dataPath: *dataPath, textColumn: *textColumn, targetCol: *targetCol,
		weightsPath: *weightsPath, modelURL: *modelURL, storePath: *storePath,
		vocabName: *vocabName, vocabSize: *vocabSize, lossName: *lossName,
		repeats: *repeats, bins: *bins, budget: *budget, samples: *samples,
		seed: *seed, workers: *workers,
	})

	if c.DataPath == "" {
		log.Fatal().Msg(common.ErrMsgDataRequired)
	}

	rows, err := parseRowList(*localRows)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -local row list")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *storage.Store
	if c.StorePath != "" {
		store, err = storage.Open(c.StorePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open store")
		}
		defer store.Close()
	}

	matrix, target, baseline, err := loadDataset(ctx, c, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}

	predictor, label, err := buildPredictor(ctx, c, matrix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up predictor")
	}

	ex, err := explain.New(ctx, matrix, target, predictor, explain.Config{
		Label: label,
		Loss:  c.Loss,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build explainer")
	}

	runner := report.NewRunner(ex, report.Options{
		Repeats:      c.Repeats,
		Workers:      c.Workers,
		Seed:         c.Seed,
		ALEBins:      c.ALEBins,
		TopProfiles:  *profiles,
		LocalRows:    rows,
		LocalBudget:  c.LocalBudget,
		LocalSamples: c.LocalSamples,
		Baseline:     baseline,
	})

	rep, err := runner.Run(ctx)
	if err != nil {
		if explain.IsKind(err, explain.KindInterrupted) {
			log.Fatal().Msg("Run interrupted")
		}
		log.Fatal().Err(err).Msg("Explanation run failed")
	}

	reporter := report.NewReporter(rep, *outputPath)
	reporter.PrintSummary()

	if !*noFiles {
		if err := reporter.GenerateAll(); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report files")
		}
	}

	if store != nil {
		if err := saveReport(store, rep); err != nil {
			log.Warn().Err(err).Msg("Failed to archive report")
		}
	}

	if len(rep.Warnings) > 0 {
		log.Warn().Int("count", len(rep.Warnings)).Msg("run completed with warnings")
	}
}

type flagValues struct {
	dataPath, textColumn, targetCol   string
	weightsPath, modelURL, storePath  string
	vocabName, lossName               string
	vocabSize, repeats, bins          int
	budget, samples, workers          int
	seed                              int64
}

func applyFlags(c *cfg.Settings, f flagValues) {
	if f.dataPath != "" {
		c.DataPath = f.dataPath
	}
	if f.textColumn != "" {
		c.TextColumn = f.textColumn
	}
	if f.targetCol != "" {
		c.TargetColumn = f.targetCol
	}
	if f.weightsPath != "" {
		c.ModelWeights = f.weightsPath
		c.ModelURL = ""
	}
	if f.modelURL != "" {
		c.ModelURL = f.modelURL
		c.ModelWeights = ""
	}
	if f.storePath != "" {
		c.StorePath = f.storePath
	}
	if f.vocabName != "" {
		c.VocabName = f.vocabName
	}
	if f.vocabSize > 0 {
		c.VocabSize = f.vocabSize
	}
	if f.lossName != "" {
		c.Loss = f.lossName
	}
	if f.repeats > 0 {
		c.Repeats = f.repeats
	}
	if f.bins > 0 {
		c.ALEBins = f.bins
	}
	if f.budget > 0 {
		c.LocalBudget = f.budget
	}
	if f.samples > 0 {
		c.LocalSamples = f.samples
	}
	if f.seed >= 0 {
		c.Seed = f.seed
	}
	if f.workers > 0 {
		c.Workers = f.workers
	}
}

func parseRowList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("row index %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// loadDataset mirrors the daemon's loading path: corpus CSVs go through
// the feature pipeline, anything else is read as a numeric matrix.
func loadDataset(ctx context.Context, c cfg.Settings, store *storage.Store) (*dataset.Matrix, []float64, []float64, error) {
	docs, target, corpusErr := dataset.LoadCorpusCSV(c.DataPath, c.TextColumn, c.TargetColumn)
	if corpusErr != nil {
		matrix, target, err := dataset.LoadCSV(c.DataPath, dataset.Schema{Target: c.TargetColumn})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("not a corpus (%v) and not numeric: %w", corpusErr, err)
		}
		return matrix, target, nil, nil
	}

	vocabName := c.VocabName
	if vocabName == "" {
		vocabName = strings.TrimSuffix(filepath.Base(c.DataPath), filepath.Ext(c.DataPath))
	}

	pipeline := features.NewPipeline(features.PipelineConfig{VocabSize: c.VocabSize})

	var vocab *features.Vocabulary
	if store != nil {
		cached, err := store.LoadVocabulary(vocabName)
		if err != nil {
			return nil, nil, nil, err
		}
		vocab = cached
	}
	if vocab == nil {
		fitted, err := pipeline.Fit(ctx, docs)
		if err != nil {
			return nil, nil, nil, err
		}
		vocab = fitted
		if store != nil {
			if err := store.SaveVocabulary(vocabName, vocab); err != nil {
				log.Warn().Err(err).Str("vocabulary", vocabName).Msg("vocabulary cache write failed")
			}
		}
	} else {
		log.Info().Str("vocabulary", vocabName).Int("terms", vocab.Size()).Msg("using cached vocabulary")
	}

	matrix, err := pipeline.Transform(docs, vocab)
	if err != nil {
		return nil, nil, nil, err
	}
	return matrix, target, vocab.Baseline(), nil
}

func buildPredictor(ctx context.Context, c cfg.Settings, matrix *dataset.Matrix) (explain.Predictor, string, error) {
	switch {
	case c.ModelWeights != "":
		linear, err := model.LoadLinear(c.ModelWeights)
		if err != nil {
			return nil, "", err
		}
		if err := linear.Validate(matrix.Names()); err != nil {
			return nil, "", err
		}
		label := strings.TrimSuffix(filepath.Base(c.ModelWeights), filepath.Ext(c.ModelWeights))
		return linear, label, nil

	case c.ModelURL != "":
		remote := model.NewRemote(model.RemoteConfig{
			BaseURL: c.ModelURL,
			Timeout: c.ModelTimeout,
			Retries: 2,
		}, nil)
		healthCtx, cancel := context.WithTimeout(ctx, c.ModelTimeout)
		defer cancel()
		if err := remote.Health(healthCtx); err != nil {
			return nil, "", err
		}
		return remote, c.ModelURL, nil

	default:
		return nil, "", fmt.Errorf("%s", common.ErrMsgModelRequired)
	}
}

func saveReport(store *storage.Store, rep *report.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	key, err := store.SaveReport(rep.Label, rep.GeneratedAt, payload)
	if err != nil {
		return err
	}
	log.Info().Str("key", key).Msg("report archived")
	return nil
}
