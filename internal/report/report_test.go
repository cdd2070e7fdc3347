package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"glassbox/internal/dataset"
	"glassbox/internal/explain"
)

// reportExplainer builds a small explainer whose "signal" column drives
// the (synthetic) model and whose "noise" column does not.
func reportExplainer(t *testing.T) *explain.Explainer {
	t.Helper()

	signal := []float64{0.9, 0.1, 0.15, 0.2, 0.05, 0.12, 0.08, 0.88, 0.95, 0.85, 0.92, 0.82}
	noise := []float64{0.3, 0.7, 0.1, 0.9, 0.5, 0.2, 0.8, 0.4, 0.6, 0.15, 0.85, 0.55}
	target := []float64{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}

	m, err := dataset.NewMatrix([]string{"signal", "noise"}, [][]float64{signal, noise})
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}

	predictor := explain.PredictorFunc(func(_ context.Context, m *dataset.Matrix) ([]float64, error) {
		col, _ := m.Col("signal")
		out := make([]float64, len(col))
		for i, v := range col {
			p := v
			if p < 0 {
				p = 0
			}
			if p > 1 {
				p = 1
			}
			out[i] = p
		}
		return out, nil
	})

	ex, err := explain.New(context.Background(), m, target, predictor, explain.Config{Label: "report-model"})
	if err != nil {
		t.Fatalf("explainer: %v", err)
	}
	return ex
}

func testOptions() Options {
	return Options{
		Repeats:      4,
		Seed:         11,
		ALEBins:      3,
		TopProfiles:  2,
		LocalRows:    []int{0},
		LocalBudget:  2,
		LocalSamples: 64,
	}
}

func TestRunnerRun(t *testing.T) {
	ex := reportExplainer(t)

	rep, err := NewRunner(ex, testOptions()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if rep.Label != "report-model" {
		t.Errorf("expected label report-model, got %s", rep.Label)
	}
	if rep.Rows != 12 || rep.FeatureCount != 2 {
		t.Errorf("expected 12 rows / 2 features, got %d / %d", rep.Rows, rep.FeatureCount)
	}
	if rep.Importance == nil || len(rep.Importance.Features) != 2 {
		t.Fatal("expected importance over both features")
	}
	if rep.Importance.Features[0].Feature != "signal" {
		t.Errorf("expected signal ranked first, got %s", rep.Importance.Features[0].Feature)
	}
	if len(rep.Profiles) != 2 {
		t.Errorf("expected 2 ALE profiles, got %d", len(rep.Profiles))
	}
	if len(rep.Locals) != 1 {
		t.Fatalf("expected 1 local explanation, got %d", len(rep.Locals))
	}
	if rep.Locals[0].Row != 0 {
		t.Errorf("expected local explanation for row 0, got %d", rep.Locals[0].Row)
	}
	if len(rep.Columns) != 2 {
		t.Errorf("expected 2 column summaries, got %d", len(rep.Columns))
	}
	if rep.Performance.Accuracy <= 0.5 {
		t.Errorf("expected the synthetic model to beat chance, accuracy %f", rep.Performance.Accuracy)
	}
}

func TestRunnerRunDeterministic(t *testing.T) {
	ex := reportExplainer(t)
	opts := testOptions()

	first, err := NewRunner(ex, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := NewRunner(ex, opts).Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first.Importance.Features[0].Feature != second.Importance.Features[0].Feature {
		t.Error("same-seed runs rank a different top feature")
	}
	if first.Importance.Features[0].Mean != second.Importance.Features[0].Mean {
		t.Error("same-seed runs produced a different top mean dropout")
	}
	if len(first.Locals) == 1 && len(second.Locals) == 1 {
		a, b := first.Locals[0].Terms, second.Locals[0].Terms
		if len(a) != len(b) {
			t.Fatal("same-seed local explanations differ in size")
		}
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("same-seed local term %d differs: %v vs %v", i, a[i], b[i])
			}
		}
	}
}

func TestRunnerInvalidRepeats(t *testing.T) {
	ex := reportExplainer(t)
	opts := testOptions()
	opts.Repeats = 0

	if _, err := NewRunner(ex, opts).Run(context.Background()); err == nil {
		t.Fatal("expected an error for zero repeats")
	}
}

func TestReporterGenerateAll(t *testing.T) {
	ex := reportExplainer(t)
	rep, err := NewRunner(ex, testOptions()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	dir := t.TempDir()
	if err := NewReporter(rep, dir).GenerateAll(); err != nil {
		t.Fatalf("GenerateAll() failed: %v", err)
	}

	// JSON parses back into a Report.
	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("read report.json: %v", err)
	}
	var parsed Report
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("report.json is not valid JSON: %v", err)
	}
	if parsed.Label != rep.Label {
		t.Errorf("round-tripped label %q, want %q", parsed.Label, rep.Label)
	}

	// CSV parses and has one row per ranked feature plus a header.
	f, err := os.Open(filepath.Join(dir, "importance.csv"))
	if err != nil {
		t.Fatalf("open importance.csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("importance.csv is not valid CSV: %v", err)
	}
	if len(records) != len(rep.Importance.Features)+1 {
		t.Errorf("expected %d CSV records, got %d", len(rep.Importance.Features)+1, len(records))
	}
	if records[1][1] != "signal" {
		t.Errorf("expected signal in the first ranked CSV row, got %q", records[1][1])
	}

	// Text summary mentions the essentials.
	text, err := os.ReadFile(filepath.Join(dir, "summary.txt"))
	if err != nil {
		t.Fatalf("read summary.txt: %v", err)
	}
	for _, want := range []string{"report-model", "MODEL PERFORMANCE", "signal"} {
		if !strings.Contains(string(text), want) {
			t.Errorf("summary.txt is missing %q", want)
		}
	}
}
