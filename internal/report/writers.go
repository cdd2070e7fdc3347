package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"glassbox/internal/explain"
)

// Reporter renders one Report into an output directory.
type Reporter struct {
	report     *Report
	outputPath string
}

// NewReporter creates a reporter writing under outputPath.
func NewReporter(report *Report, outputPath string) *Reporter {
	return &Reporter{report: report, outputPath: outputPath}
}

// GenerateAll writes every output format.
func (r *Reporter) GenerateAll() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.WriteJSON(); err != nil {
		return err
	}
	if err := r.WriteCSV(); err != nil {
		return err
	}
	return r.WriteText()
}

// WriteJSON writes the full report as indented JSON.
func (r *Reporter) WriteJSON() error {
	path := filepath.Join(r.outputPath, "report.json")
	data, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", path).Msg("JSON report generated")
	return nil
}

// WriteCSV writes the importance ranking as a CSV table.
func (r *Reporter) WriteCSV() error {
	path := filepath.Join(r.outputPath, "importance.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create importance table: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"rank", "feature", "mean_dropout_loss"}
	for i := 0; i < r.report.Importance.Repeats; i++ {
		header = append(header, fmt.Sprintf("repeat_%d", i+1))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for rank, f := range r.report.Importance.Features {
		record := []string{
			strconv.Itoa(rank + 1),
			f.Feature,
			strconv.FormatFloat(f.Mean, 'g', -1, 64),
		}
		for _, d := range f.DropoutLosses {
			record = append(record, strconv.FormatFloat(d, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", path).Msg("importance table generated")
	return nil
}

// WriteText writes the human-readable summary file.
func (r *Reporter) WriteText() error {
	path := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)
	log.Info().Str("file", path).Msg("summary report generated")
	return nil
}

// PrintSummary writes the summary to stdout.
func (r *Reporter) PrintSummary() {
	r.writeSummary(os.Stdout)
}

func (r *Reporter) writeSummary(w io.Writer) {
	rep := r.report

	fmt.Fprintf(w, "EXPLANATION REPORT: %s\n", rep.Label)
	fmt.Fprintf(w, "========================\n\n")
	fmt.Fprintf(w, "Generated: %s\n", rep.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Dataset: %d rows, %d features\n", rep.Rows, rep.FeatureCount)
	fmt.Fprintf(w, "Loss: %s (baseline %.6f)\n\n", rep.Loss, rep.BaselineLoss)

	fmt.Fprintf(w, "MODEL PERFORMANCE\n")
	fmt.Fprintf(w, "-----------------\n")
	fmt.Fprintf(w, "Accuracy:  %.4f\n", rep.Performance.Accuracy)
	fmt.Fprintf(w, "Precision: %.4f\n", rep.Performance.Precision)
	fmt.Fprintf(w, "Recall:    %.4f\n", rep.Performance.Recall)
	fmt.Fprintf(w, "F1:        %.4f\n", rep.Performance.F1)
	fmt.Fprintf(w, "AUC:       %.4f\n\n", rep.Performance.AUC)

	fmt.Fprintf(w, "TOP FEATURES BY PERMUTATION IMPORTANCE\n")
	fmt.Fprintf(w, "--------------------------------------\n")
	limit := 15
	if len(rep.Importance.Features) < limit {
		limit = len(rep.Importance.Features)
	}
	for i := 0; i < limit; i++ {
		f := rep.Importance.Features[i]
		fmt.Fprintf(w, "%3d. %-24s %+.6f\n", i+1, f.Feature, f.Mean)
	}

	if len(rep.Profiles) > 0 {
		fmt.Fprintf(w, "\nALE PROFILES\n")
		fmt.Fprintf(w, "------------\n")
		for _, p := range rep.Profiles {
			fmt.Fprintf(w, "%s: %d bins, effect range [%+.6f, %+.6f]\n",
				p.Feature, len(p.Bins), minEffect(p), maxEffect(p))
		}
	}

	if len(rep.Locals) > 0 {
		fmt.Fprintf(w, "\nLOCAL EXPLANATIONS\n")
		fmt.Fprintf(w, "------------------\n")
		for _, l := range rep.Locals {
			fmt.Fprintf(w, "row %d (R2 %.4f):\n", l.Row, l.R2)
			for _, term := range l.Terms {
				fmt.Fprintf(w, "    %-24s %+.6f\n", term.Feature, term.Coefficient)
			}
		}
	}

	if len(rep.Warnings) > 0 {
		fmt.Fprintf(w, "\nWARNINGS\n")
		fmt.Fprintf(w, "--------\n")
		for _, warning := range rep.Warnings {
			fmt.Fprintf(w, "- %s\n", warning)
		}
	}

	fmt.Fprintf(w, "\nElapsed: %dms\n", rep.ElapsedMS)
}

func minEffect(p *explain.ALEResult) float64 {
	min := p.Bins[0].Effect
	for _, b := range p.Bins {
		if b.Effect < min {
			min = b.Effect
		}
	}
	return min
}

func maxEffect(p *explain.ALEResult) float64 {
	max := p.Bins[0].Effect
	for _, b := range p.Bins {
		if b.Effect > max {
			max = b.Effect
		}
	}
	return max
}
