package screen

import (
	"math"
	"testing"

	"golmer/domain/core"
	"golmer/domain/fit"
	"golmer/domain/formula"
)

func testBaselineModel(t *testing.T) *fit.Model {
	t.Helper()
	f := formula.MustNew("rt").
		WithRandomIntercept("subject").
		WithRandomIntercept("prime").
		WithRandomIntercept("target")
	m, err := fit.NewModel(f, fit.ML, 4800.0, 960,
		[]fit.Coefficient{{Name: "(Intercept)", Estimate: 512.0}},
		[]fit.VarianceComponent{
			{Group: "subject", StdDev: 30},
			{Group: "prime", StdDev: 15},
			{Group: "target", StdDev: 18},
		},
		58.0, 100, core.FitFingerprint(core.ComputeFieldsHash("m")))
	if err != nil {
		t.Fatalf("Unexpected error building model: %v", err)
	}
	return m
}

func testRows(t *testing.T) []ComparisonRow {
	t.Helper()
	specs := []struct {
		predictor string
		objDiff   float64
		p         float64
	}{
		{"freq", -8.6, 0.0034},
		{"length", -1.2, 0.27},
		{"similarity", -15.9, 0.00007},
		{"assoc", 0.0, 1.0},
	}
	rows := make([]ComparisonRow, 0, len(specs))
	for _, s := range specs {
		row, err := NewComparisonRow(s.predictor, s.objDiff, 1, s.p, false)
		if err != nil {
			t.Fatalf("Unexpected error building row: %v", err)
		}
		rows = append(rows, row)
	}
	return rows
}

// TestNewComparisonRowValidation tests row invariants
func TestNewComparisonRowValidation(t *testing.T) {
	if _, err := NewComparisonRow("freq", -8.6, 1, 0.0034, false); err != nil {
		t.Errorf("Unexpected error for valid row: %v", err)
	}
	if _, err := NewComparisonRow("", -8.6, 1, 0.0034, false); err == nil {
		t.Error("Expected error for empty predictor")
	}
	if _, err := NewComparisonRow("freq", -8.6, 0, 0.0034, false); err == nil {
		t.Error("Expected error for zero df difference")
	}
	if _, err := NewComparisonRow("freq", -8.6, -1, 0.0034, false); err == nil {
		t.Error("Expected error for negative df difference")
	}
	if _, err := NewComparisonRow("freq", -8.6, 1, 1.5, false); err == nil {
		t.Error("Expected error for p-value above 1")
	}
	if _, err := NewComparisonRow("freq", -8.6, 1, -0.1, false); err == nil {
		t.Error("Expected error for negative p-value")
	}
	if _, err := NewComparisonRow("freq", -8.6, 1, math.NaN(), false); err == nil {
		t.Error("Expected error for NaN p-value")
	}
	if _, err := NewComparisonRow("freq", math.Inf(-1), 1, 0.5, false); err == nil {
		t.Error("Expected error for infinite objective difference")
	}

	// An anomalous row with a worse objective is still a valid row
	if _, err := NewComparisonRow("freq", 2.3, 1, 1.0, true); err != nil {
		t.Errorf("Anomalous rows must be representable: %v", err)
	}
}

// TestReportShape tests the N x 3 matrix and row ordering
func TestReportShape(t *testing.T) {
	baseline := testBaselineModel(t)
	rows := testRows(t)
	predictors := []string{"freq", "length", "similarity", "assoc"}

	manifest := Manifest{
		DatasetFingerprint: core.NewDatasetFingerprint([]byte("ds")),
		BaselineFormula:    baseline.FormulaText,
		Predictors:         predictors,
		Criterion:          fit.ML,
		NObs:               960,
		FitsAttempted:      5,
		FitsSucceeded:      5,
		CreatedAt:          core.Now(),
	}

	report, err := NewReport(core.ScreenID(core.NewID()), baseline, rows, manifest)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	matrix := report.Matrix()
	if len(matrix) != 4 {
		t.Fatalf("Expected 4 matrix rows, got %d", len(matrix))
	}
	for i, row := range matrix {
		if len(row) != 3 {
			t.Errorf("Row %d: expected 3 columns, got %d", i, len(row))
		}
	}
	if matrix[0][0] != -8.6 || matrix[0][1] != 1.0 || matrix[0][2] != 0.0034 {
		t.Errorf("Row 0 mismatch: %v", matrix[0])
	}

	// Row order must equal predictor input order
	for i, p := range predictors {
		if report.Rows[i].Predictor != p {
			t.Errorf("Row %d: expected %q, got %q", i, p, report.Rows[i].Predictor)
		}
	}

	if _, ok := report.Row("similarity"); !ok {
		t.Error("Expected lookup by predictor to succeed")
	}
	if _, ok := report.Row("nope"); ok {
		t.Error("Expected lookup of unknown predictor to fail")
	}
	if report.Manifest.AnomalousRows != 0 {
		t.Errorf("Expected no anomalous rows, got %d", report.Manifest.AnomalousRows)
	}
}

// TestReportRejectsMismatchedRows tests the order and count checks
func TestReportRejectsMismatchedRows(t *testing.T) {
	baseline := testBaselineModel(t)
	rows := testRows(t)

	wrongCount := Manifest{
		DatasetFingerprint: core.NewDatasetFingerprint([]byte("ds")),
		BaselineFormula:    baseline.FormulaText,
		Predictors:         []string{"freq"},
		Criterion:          fit.ML,
	}
	if _, err := NewReport(core.ScreenID(core.NewID()), baseline, rows, wrongCount); err == nil {
		t.Error("Expected error for row/predictor count mismatch")
	}

	wrongOrder := Manifest{
		DatasetFingerprint: core.NewDatasetFingerprint([]byte("ds")),
		BaselineFormula:    baseline.FormulaText,
		Predictors:         []string{"length", "freq", "similarity", "assoc"},
		Criterion:          fit.ML,
	}
	if _, err := NewReport(core.ScreenID(core.NewID()), baseline, rows, wrongOrder); err == nil {
		t.Error("Expected error for out-of-order rows")
	}

	if _, err := NewReport(core.ScreenID(core.NewID()), nil, rows, wrongOrder); err == nil {
		t.Error("Expected error for missing baseline")
	}
}

// TestFingerprintExcludesIdentity tests rerun-stable fingerprints
func TestFingerprintExcludesIdentity(t *testing.T) {
	baseline := testBaselineModel(t)
	predictors := []string{"freq", "length", "similarity", "assoc"}

	build := func() *Report {
		manifest := Manifest{
			DatasetFingerprint: core.NewDatasetFingerprint([]byte("ds")),
			BaselineFormula:    baseline.FormulaText,
			Predictors:         predictors,
			Criterion:          fit.ML,
			NObs:               960,
			RuntimeMs:          int64(len(predictors)), // varies in practice
			CreatedAt:          core.Now(),
		}
		r, err := NewReport(core.ScreenID(core.NewID()), baseline, testRows(t), manifest)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return r
	}

	r1 := build()
	r2 := build()
	if r1.ScreenID == r2.ScreenID {
		t.Fatal("Test setup broken: reruns must have distinct screen IDs")
	}
	if r1.Manifest.Fingerprint != r2.Manifest.Fingerprint {
		t.Errorf("Expected identical fingerprints across reruns, got %s vs %s",
			r1.Manifest.Fingerprint, r2.Manifest.Fingerprint)
	}

	// Any row change must move the fingerprint
	changed, err := NewComparisonRow("freq", -8.6000001, 1, 0.0034, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	rows := testRows(t)
	rows[0] = changed
	fp := ComputeFingerprint(core.NewDatasetFingerprint([]byte("ds")), baseline.FormulaText, fit.ML, rows)
	if fp == r1.Manifest.Fingerprint {
		t.Error("Expected fingerprint to track row contents")
	}
}
