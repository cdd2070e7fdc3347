// Package features turns raw labeled text into the numeric matrix the
// explainability engine consumes: tokenize, drop stopwords, keep a bounded
// vocabulary by document frequency, weight with TF-IDF, and z-score each
// column with training-partition statistics. The fitted Vocabulary is the
// only artifact: applying it to any partition reproduces the exact same
// column set, order, and scaling.
package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"glassbox/internal/common"
	"glassbox/internal/dataset"
)

// ErrEmptyVocabulary reports a fit that retained no tokens, e.g. an empty
// corpus or one consisting entirely of stopwords.
var ErrEmptyVocabulary = errors.New("features: vocabulary is empty after fitting")

// Term is one retained vocabulary entry: everything Transform needs to
// reproduce the fitted column for that token.
type Term struct {
	Token   string  `json:"token"`
	DocFreq int     `json:"doc_freq"`
	IDF     float64 `json:"idf"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
}

// Vocabulary is the fitted artifact. Immutable once returned by Fit;
// JSON round-trips exactly, so a cached copy is interchangeable with a
// refit on the same corpus.
type Vocabulary struct {
	Terms []Term `json:"terms"`
	Docs  int    `json:"docs"`
}

// Size returns the number of retained tokens.
func (v *Vocabulary) Size() int { return len(v.Terms) }

// Tokens returns the retained tokens in column order.
func (v *Vocabulary) Tokens() []string {
	out := make([]string, len(v.Terms))
	for i, t := range v.Terms {
		out[i] = t.Token
	}
	return out
}

// Baseline returns the per-column value an empty document transforms to:
// the z-scored image of raw TF-IDF zero. Local surrogates use it as the
// "token absent" value when toggling features off.
func (v *Vocabulary) Baseline() []float64 {
	out := make([]float64, len(v.Terms))
	for i, t := range v.Terms {
		out[i] = (0 - t.Mean) / t.Std
	}
	return out
}

// PipelineConfig bounds the fitted vocabulary.
type PipelineConfig struct {
	VocabSize int `yaml:"vocab_size" json:"vocab_size"`
}

// Pipeline fits and applies the text transform.
type Pipeline struct {
	vocabSize int
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	size := cfg.VocabSize
	if size <= 0 {
		size = common.DefaultVocabSize
	}
	return &Pipeline{vocabSize: size}
}

// Fit builds a Vocabulary from the training corpus: rank tokens by
// document frequency (ties broken by token, ascending), retain the top
// vocabSize, compute smoothed IDF weights and per-column normalization
// statistics over the training TF-IDF matrix.
func (p *Pipeline) Fit(ctx context.Context, docs []string) (*Vocabulary, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("features: fit needs at least one document")
	}

	counts := make([]map[string]int, len(docs))
	docFreq := make(map[string]int)
	for i, doc := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c := make(map[string]int)
		for _, tok := range Tokenize(doc) {
			c[tok]++
		}
		counts[i] = c
		for tok := range c {
			docFreq[tok]++
		}
	}

	ranked := make([]string, 0, len(docFreq))
	for tok := range docFreq {
		ranked = append(ranked, tok)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if docFreq[ranked[i]] != docFreq[ranked[j]] {
			return docFreq[ranked[i]] > docFreq[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > p.vocabSize {
		ranked = ranked[:p.vocabSize]
	}
	if len(ranked) == 0 {
		return nil, ErrEmptyVocabulary
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := float64(len(docs))
	terms := make([]Term, len(ranked))
	column := make([]float64, len(docs))
	degenerate := 0
	for t, tok := range ranked {
		idf := math.Log((1+n)/(1+float64(docFreq[tok]))) + 1
		for d := range docs {
			column[d] = float64(counts[d][tok]) * idf
		}
		mean := stat.Mean(column, nil)
		std := stat.StdDev(column, nil)
		if math.IsNaN(std) || std == 0 {
			std = 1
			degenerate++
		}
		terms[t] = Term{
			Token:   tok,
			DocFreq: docFreq[tok],
			IDF:     idf,
			Mean:    mean,
			Std:     std,
		}
	}

	if degenerate > 0 {
		log.Warn().
			Int("columns", degenerate).
			Msg("vocabulary has constant TF-IDF columns; their scale was left at 1")
	}
	log.Info().
		Int("documents", len(docs)).
		Int("candidates", len(docFreq)).
		Int("retained", len(terms)).
		Msg("vocabulary fitted")

	return &Vocabulary{Terms: terms, Docs: len(docs)}, nil
}

// Transform applies a fitted vocabulary to any corpus partition. Tokens
// outside the vocabulary contribute nothing; they never fail. Column names
// and order always match the vocabulary exactly.
func (p *Pipeline) Transform(docs []string, vocab *Vocabulary) (*dataset.Matrix, error) {
	if vocab == nil || vocab.Size() == 0 {
		return nil, ErrEmptyVocabulary
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("features: transform needs at least one document")
	}

	index := make(map[string]int, vocab.Size())
	for i, term := range vocab.Terms {
		index[term.Token] = i
	}

	cols := make([][]float64, vocab.Size())
	for i, term := range vocab.Terms {
		col := make([]float64, len(docs))
		// A document without this token has raw TF-IDF 0; z-scoring maps
		// that to -mean/std rather than 0.
		base := (0 - term.Mean) / term.Std
		for d := range col {
			col[d] = base
		}
		cols[i] = col
	}

	for d, doc := range docs {
		for _, tok := range Tokenize(doc) {
			i, ok := index[tok]
			if !ok {
				continue
			}
			cols[i][d] += vocab.Terms[i].IDF / vocab.Terms[i].Std
		}
	}

	return dataset.NewMatrix(vocab.Tokens(), cols)
}
