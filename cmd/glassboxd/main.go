package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"glassbox/internal/api"
	"glassbox/internal/cfg"
	"glassbox/internal/common"
	"glassbox/internal/dataset"
	"glassbox/internal/explain"
	"glassbox/internal/features"
	"glassbox/internal/metrics"
	"glassbox/internal/model"
	"glassbox/internal/storage"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel)

	if c.DataPath == "" {
		log.Fatal().Msg(common.ErrMsgDataRequired)
	}

	m := metrics.New()

	store, err := storage.Open(c.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("storage open failed")
	}
	defer store.Close()

	matrix, target, baseline, err := loadDataset(c, store)
	if err != nil {
		log.Fatal().Err(err).Msg("dataset load failed")
	}

	predictor, label, err := buildPredictor(c, m, matrix)
	if err != nil {
		log.Fatal().Err(err).Msg("predictor setup failed")
	}

	ex, err := explain.New(context.Background(), matrix, target, predictor, explain.Config{
		Label: label,
		Loss:  c.Loss,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("explainer construction failed")
	}
	m.ObservePrediction(metrics.StageBaseline, ex.Rows())

	manager := api.NewManager(ex, api.JobDefaults{
		Repeats:  c.Repeats,
		Workers:  c.Workers,
		Seed:     c.Seed,
		Bins:     c.ALEBins,
		Budget:   c.LocalBudget,
		Samples:  c.LocalSamples,
		Baseline: baseline,
	}, c.JobLimit, m)

	server := api.NewServer(c.ListenAddr, ex, manager)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("server start failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// loadDataset reads the configured CSV. A file carrying the text column
// goes through the feature pipeline (with the fitted vocabulary cached in
// storage); anything else is loaded as a numeric matrix directly.
func loadDataset(c cfg.Settings, store *storage.Store) (*dataset.Matrix, []float64, []float64, error) {
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

	vocab, err := store.LoadVocabulary(vocabName)
	if err != nil {
		return nil, nil, nil, err
	}
	if vocab == nil {
		vocab, err = pipeline.Fit(context.Background(), docs)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.SaveVocabulary(vocabName, vocab); err != nil {
			log.Warn().Err(err).Str("vocabulary", vocabName).Msg("vocabulary cache write failed")
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

func buildPredictor(c cfg.Settings, m *metrics.Metrics, matrix *dataset.Matrix) (explain.Predictor, string, error) {
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
		}, metrics.NewModelMetrics(m))
		ctx, cancel := context.WithTimeout(context.Background(), c.ModelTimeout)
		defer cancel()
		if err := remote.Health(ctx); err != nil {
			return nil, "", err
		}
		return remote, c.ModelURL, nil

	default:
		return nil, "", fmt.Errorf("%s", common.ErrMsgModelRequired)
	}
}
