package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Word pools for the two classes. Positive documents draw mostly from
// promoWords, negative ones from plainWords, and both mix in fillerWords
// so no single token perfectly separates the classes.
var (
	promoWords = []string{
		"free", "winner", "prize", "claim", "urgent", "offer", "bonus",
		"cash", "guaranteed", "exclusive", "limited", "discount", "act",
		"congratulations", "reward",
	}
	plainWords = []string{
		"meeting", "schedule", "project", "report", "review", "lunch",
		"tomorrow", "agenda", "notes", "draft", "update", "team",
		"question", "thanks", "attached",
	}
	fillerWords = []string{
		"please", "regarding", "today", "week", "time", "new", "work",
		"send", "call", "need", "know", "good", "back", "message",
	}
)

func main() {
	var (
		outPath      = flag.String("out", "data/corpus.csv", "Output CSV path")
		rows         = flag.Int("rows", 500, "Number of documents to generate")
		seed         = flag.Int64("seed", 42, "Random seed")
		positiveRate = flag.Float64("positive-rate", 0.4, "Fraction of positive-class documents")
		minWords     = flag.Int("min-words", 6, "Minimum words per document")
		maxWords     = flag.Int("max-words", 18, "Maximum words per document")
		noise        = flag.Float64("noise", 0.05, "Probability of flipping a label")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *rows <= 0 || *minWords <= 0 || *maxWords < *minWords {
		log.Fatal().Msg("invalid generation parameters")
	}

	rng := rand.New(rand.NewSource(*seed))

	if dir := filepath.Dir(*outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("failed to create output directory")
		}
	}

	file, err := os.Create(*outPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create output file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"text", "label"}); err != nil {
		log.Fatal().Err(err).Msg("failed to write header")
	}

	positives := 0
	for i := 0; i < *rows; i++ {
		positive := rng.Float64() < *positiveRate
		doc := generateDoc(rng, positive, *minWords, *maxWords)

		label := "0"
		observed := positive
		if rng.Float64() < *noise {
			observed = !observed
		}
		if observed {
			label = "1"
			positives++
		}

		if err := writer.Write([]string{doc, label}); err != nil {
			log.Fatal().Err(err).Msg("failed to write row")
		}
	}

	log.Info().
		Str("file", *outPath).
		Int("rows", *rows).
		Int("positives", positives).
		Msg("corpus generated")
	fmt.Printf("wrote %d documents to %s\n", *rows, *outPath)
}

func generateDoc(rng *rand.Rand, positive bool, minWords, maxWords int) string {
	n := minWords + rng.Intn(maxWords-minWords+1)
	words := make([]string, 0, n)

	topical := promoWords
	if !positive {
		topical = plainWords
	}

	for len(words) < n {
		switch {
		case rng.Float64() < 0.55:
			words = append(words, topical[rng.Intn(len(topical))])
		case rng.Float64() < 0.5:
			words = append(words, fillerWords[rng.Intn(len(fillerWords))])
		default:
			// Occasional cross-class word keeps the problem non-trivial.
			other := plainWords
			if !positive {
				other = promoWords
			}
			words = append(words, other[rng.Intn(len(other))])
		}
	}
	return strings.Join(words, " ")
}
