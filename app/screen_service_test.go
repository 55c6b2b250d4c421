package app

import (
	"context"
	"errors"
	"testing"

	"golmer/domain/core"
	"golmer/domain/fit"
	"golmer/domain/formula"
	"golmer/domain/table"
	"golmer/internal/testkit"
)

func lexicalBaseline() formula.Formula {
	return formula.MustNew("rt").
		WithRandomIntercept("subject").
		WithRandomIntercept("prime").
		WithRandomIntercept("target")
}

func lexicalTable(t *testing.T, subjects, pairs int, seed int64) *table.Table {
	t.Helper()
	cfg := testkit.DefaultLexicalConfig()
	cfg.SubjectCount = subjects
	cfg.PairCount = pairs
	cfg.Seed = seed
	tbl, err := testkit.NewLexicalGenerator(cfg).Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return tbl
}

func newTestService(maxParallel int) *ScreenService {
	kit := testkit.NewTestKit()
	return NewScreenService(kit.Fitter, kit.Comparator, nil, maxParallel)
}

func TestScreenReportsRowsInPredictorOrder(t *testing.T) {
	tbl := lexicalTable(t, 8, 10, 42)
	svc := newTestService(2)
	predictors := testkit.Predictors()

	report, err := svc.Screen(context.Background(), ScreenRequest{
		Table:      tbl,
		Baseline:   lexicalBaseline(),
		Predictors: predictors,
	})
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}

	if report.ScreenID.String() == "" {
		t.Error("Expected a generated screen ID")
	}
	if len(report.Rows) != len(predictors) {
		t.Fatalf("Expected %d rows, got %d", len(predictors), len(report.Rows))
	}
	for i, row := range report.Rows {
		if row.Predictor != predictors[i] {
			t.Errorf("Row %d: expected predictor %q, got %q", i, predictors[i], row.Predictor)
		}
		if row.DFDiff != 1 {
			t.Errorf("Row %q: expected DF diff 1 for a numeric predictor, got %d", row.Predictor, row.DFDiff)
		}
		if row.PValue < 0 || row.PValue > 1 {
			t.Errorf("Row %q: p-value %v outside [0, 1]", row.Predictor, row.PValue)
		}
	}

	if report.Baseline == nil {
		t.Fatal("Expected the baseline model on the report")
	}
	if report.Manifest.NObs != 80 {
		t.Errorf("Expected 80 observations in the manifest, got %d", report.Manifest.NObs)
	}
	if report.Manifest.FitsAttempted != 5 || report.Manifest.FitsSucceeded != 5 {
		t.Errorf("Expected 5 attempted and 5 succeeded fits, got %d and %d",
			report.Manifest.FitsAttempted, report.Manifest.FitsSucceeded)
	}
	if report.Manifest.Criterion != fit.ML {
		t.Errorf("Expected criterion to default to ML, got %q", report.Manifest.Criterion)
	}
	if report.Manifest.BaselineFormula != lexicalBaseline().String() {
		t.Errorf("Manifest records formula %q", report.Manifest.BaselineFormula)
	}
	if report.Manifest.RuntimeMs < 0 {
		t.Errorf("Expected non-negative runtime, got %d", report.Manifest.RuntimeMs)
	}

	matrix := report.Matrix()
	if len(matrix) != len(predictors) {
		t.Fatalf("Expected %d matrix rows, got %d", len(predictors), len(matrix))
	}
	for i, row := range matrix {
		if len(row) != 3 {
			t.Errorf("Matrix row %d: expected 3 columns, got %d", i, len(row))
		}
	}
	if _, ok := report.Row("similarity"); !ok {
		t.Error("Expected to look up the similarity row by predictor name")
	}
}

func TestScreenDetectsStrongPredictor(t *testing.T) {
	cfg := testkit.LexicalConfig{
		SubjectCount:    8,
		PairCount:       12,
		GrandMean:       520,
		SubjectSD:       25,
		PrimeSD:         10,
		TargetSD:        10,
		NoiseSD:         20,
		PrimeFreqSlope:  -5,
		TargetFreqSlope: -8,
		SimilaritySlope: -150,
		AssocSlope:      0,
		Seed:            4242,
	}
	tbl, err := testkit.NewLexicalGenerator(cfg).Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	svc := newTestService(1)
	report, err := svc.Screen(context.Background(), ScreenRequest{
		Table:      tbl,
		Baseline:   lexicalBaseline(),
		Predictors: []string{"similarity"},
	})
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}

	row := report.Rows[0]
	if row.ObjectiveDiff >= 0 {
		t.Errorf("Expected the similarity candidate to improve the objective, diff %v", row.ObjectiveDiff)
	}
	if row.PValue >= 1e-3 {
		t.Errorf("Expected a strong similarity effect, p-value %v", row.PValue)
	}
	if row.Anomalous {
		t.Error("An improving candidate must not be flagged anomalous")
	}
}

func TestScreenDeterministicAcrossParallelism(t *testing.T) {
	tbl := lexicalTable(t, 6, 8, 77)
	predictors := testkit.Predictors()

	request := func() ScreenRequest {
		return ScreenRequest{
			Table:      tbl,
			Baseline:   lexicalBaseline(),
			Predictors: predictors,
		}
	}

	sequential, err := newTestService(1).Screen(context.Background(), request())
	if err != nil {
		t.Fatalf("Sequential screen failed: %v", err)
	}
	parallel, err := newTestService(4).Screen(context.Background(), request())
	if err != nil {
		t.Fatalf("Parallel screen failed: %v", err)
	}

	if sequential.ScreenID == parallel.ScreenID {
		t.Error("Each run should get a fresh screen ID")
	}
	if sequential.Baseline.Objective != parallel.Baseline.Objective {
		t.Errorf("Baseline objectives differ: %v vs %v",
			sequential.Baseline.Objective, parallel.Baseline.Objective)
	}
	if len(sequential.Rows) != len(parallel.Rows) {
		t.Fatalf("Row counts differ: %d vs %d", len(sequential.Rows), len(parallel.Rows))
	}
	for i := range sequential.Rows {
		if sequential.Rows[i] != parallel.Rows[i] {
			t.Errorf("Row %d differs across parallelism: %+v vs %+v",
				i, sequential.Rows[i], parallel.Rows[i])
		}
	}
	if sequential.Manifest.Fingerprint != parallel.Manifest.Fingerprint {
		t.Errorf("Manifest fingerprints differ: %s vs %s",
			sequential.Manifest.Fingerprint, parallel.Manifest.Fingerprint)
	}
}

func TestScreenRejectsConstantPredictor(t *testing.T) {
	tbl := table.MustNew(
		table.MustNewNumericColumn("rt", []float64{520, 480, 455, 610, 540, 505}),
		table.MustNewNumericColumn("freq", []float64{3.1, 5.2, 4.4, 1.8, 2.9, 4.0}),
		table.MustNewNumericColumn("flat", []float64{1, 1, 1, 1, 1, 1}),
		table.MustNewFactorColumn("subject", []string{"s1", "s2"}, []int{0, 0, 0, 1, 1, 1}),
	)
	svc := newTestService(1)

	_, err := svc.Screen(context.Background(), ScreenRequest{
		Table:      tbl,
		Baseline:   formula.MustNew("rt").WithRandomIntercept("subject"),
		Predictors: []string{"freq", "flat"},
	})
	if !errors.Is(err, core.ErrConstantPredictor) {
		t.Fatalf("Expected ErrConstantPredictor, got %v", err)
	}
}

func TestScreenRejectsUnknownPredictor(t *testing.T) {
	tbl := lexicalTable(t, 4, 4, 9)
	svc := newTestService(1)

	_, err := svc.Screen(context.Background(), ScreenRequest{
		Table:      tbl,
		Baseline:   lexicalBaseline(),
		Predictors: []string{"prime_freq", "nope"},
	})
	if !errors.Is(err, core.ErrColumnNotFound) {
		t.Fatalf("Expected ErrColumnNotFound, got %v", err)
	}
	if !core.IsNotFoundError(err) {
		t.Error("Unknown predictors should classify as not-found errors")
	}
}

func TestScreenPersistsThroughLedger(t *testing.T) {
	tbl := lexicalTable(t, 4, 6, 5)
	kit := testkit.NewTestKit()
	ledger := testkit.NewInMemoryScreenLedger()
	svc := NewScreenService(kit.Fitter, kit.Comparator, ledger, 2)

	report, err := svc.Screen(context.Background(), ScreenRequest{
		Table:      tbl,
		Baseline:   lexicalBaseline(),
		Predictors: []string{"similarity"},
		Persist:    true,
	})
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}
	if ledger.Len() != 1 {
		t.Fatalf("Expected 1 stored report, got %d", ledger.Len())
	}

	stored, err := ledger.GetReport(context.Background(), report.ScreenID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if stored.Manifest.Fingerprint != report.Manifest.Fingerprint {
		t.Errorf("Stored fingerprint %s does not match returned %s",
			stored.Manifest.Fingerprint, report.Manifest.Fingerprint)
	}

	if _, err := svc.Screen(context.Background(), ScreenRequest{
		Table:      tbl,
		Baseline:   lexicalBaseline(),
		Predictors: []string{"similarity"},
	}); err != nil {
		t.Fatalf("Second screen failed: %v", err)
	}
	if ledger.Len() != 1 {
		t.Errorf("A run without Persist should not write, ledger has %d reports", ledger.Len())
	}
}

func TestScreenValidatesRequest(t *testing.T) {
	svc := newTestService(1)
	tbl := lexicalTable(t, 4, 4, 3)

	if _, err := svc.Screen(context.Background(), ScreenRequest{
		Baseline:   lexicalBaseline(),
		Predictors: []string{"similarity"},
	}); !errors.Is(err, core.ErrEmptyTable) {
		t.Errorf("Expected ErrEmptyTable for a nil table, got %v", err)
	}

	if _, err := svc.Screen(context.Background(), ScreenRequest{
		Table:    tbl,
		Baseline: lexicalBaseline(),
	}); err == nil {
		t.Error("Expected an error when no predictors are given")
	}

	if _, err := svc.Screen(context.Background(), ScreenRequest{
		Table:      tbl,
		Baseline:   lexicalBaseline(),
		Predictors: []string{"similarity"},
		Config:     fit.Config{Criterion: fit.REML},
	}); !errors.Is(err, core.ErrCriterionMismatch) {
		t.Errorf("Expected ErrCriterionMismatch for a REML screen, got %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Screen(cancelled, ScreenRequest{
		Table:      tbl,
		Baseline:   lexicalBaseline(),
		Predictors: []string{"similarity"},
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
