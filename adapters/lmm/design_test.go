package lmm

import (
	"errors"
	"math"
	"testing"

	"golmer/domain/core"
	"golmer/domain/formula"
	"golmer/domain/table"
)

func designTable(t *testing.T) *table.Table {
	t.Helper()
	return table.MustNew(
		table.MustNewNumericColumn("rt", []float64{520, 480, 455, 610, 540, 505}),
		table.MustNewNumericColumn("freq", []float64{3.1, 5.2, 4.4, 1.8, 2.9, 4.0}),
		table.MustNewFactorColumn("cond", []string{"a", "b", "c"}, []int{0, 1, 2, 0, 1, 2}),
		table.MustNewFactorColumn("subject", []string{"s1", "s2"}, []int{0, 0, 0, 1, 1, 1}),
	)
}

func TestBuildDesignShapes(t *testing.T) {
	tbl := designTable(t)
	f := formula.MustNew("rt").
		WithFixed("freq").
		WithFixed("cond").
		WithRandomIntercept("subject")

	d, err := buildDesign(tbl, f, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if d.n != 6 {
		t.Errorf("Expected 6 rows, got %d", d.n)
	}
	if d.p != 4 {
		t.Errorf("Expected 4 fixed-effect columns (intercept, freq, 2 contrasts), got %d", d.p)
	}
	wantNames := []string{"(Intercept)", "freq", "cond[b]", "cond[c]"}
	for i, want := range wantNames {
		if d.coefNames[i] != want {
			t.Errorf("Coefficient %d: expected %q, got %q", i, want, d.coefNames[i])
		}
	}
	if d.m != 2 {
		t.Errorf("Expected 2 random-effects columns for a 2-level grouping, got %d", d.m)
	}
	if len(d.blocks) != 1 || d.blocks[0].group != "subject" || d.blocks[0].offset != 0 {
		t.Errorf("Unexpected random block layout: %+v", d.blocks)
	}

	// Row 1 is condition b: intercept 1, freq value, indicator on cond[b] only
	if d.x.At(1, 0) != 1 || d.x.At(1, 1) != 5.2 || d.x.At(1, 2) != 1 || d.x.At(1, 3) != 0 {
		t.Errorf("Treatment coding wrong for row 1: [%v %v %v %v]",
			d.x.At(1, 0), d.x.At(1, 1), d.x.At(1, 2), d.x.At(1, 3))
	}
	// Row 0 is the reference level: both contrast columns zero
	if d.x.At(0, 2) != 0 || d.x.At(0, 3) != 0 {
		t.Errorf("Reference level must have zero contrasts, got [%v %v]", d.x.At(0, 2), d.x.At(0, 3))
	}
	// Row 2 is condition c
	if d.x.At(2, 2) != 0 || d.x.At(2, 3) != 1 {
		t.Errorf("Treatment coding wrong for row 2: [%v %v]", d.x.At(2, 2), d.x.At(2, 3))
	}

	for i, want := range []float64{520, 480, 455, 610, 540, 505} {
		if d.y[i] != want {
			t.Errorf("Response %d: expected %v, got %v", i, want, d.y[i])
		}
	}
}

func TestBuildDesignSumCoding(t *testing.T) {
	tbl := designTable(t)
	f := formula.MustNew("rt").WithFixed("cond").WithRandomIntercept("subject")
	contrasts := formula.Contrasts{"cond": formula.Sum}

	d, err := buildDesign(tbl, f, contrasts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	wantNames := []string{"(Intercept)", "cond[a]", "cond[b]"}
	for i, want := range wantNames {
		if d.coefNames[i] != want {
			t.Errorf("Coefficient %d: expected %q, got %q", i, want, d.coefNames[i])
		}
	}
	// Row 0 codes level a: first contrast 1
	if d.x.At(0, 1) != 1 || d.x.At(0, 2) != 0 {
		t.Errorf("Sum coding wrong for level a: [%v %v]", d.x.At(0, 1), d.x.At(0, 2))
	}
	// Row 2 codes the last level: -1 in every contrast column
	if d.x.At(2, 1) != -1 || d.x.At(2, 2) != -1 {
		t.Errorf("Sum coding wrong for last level: [%v %v]", d.x.At(2, 1), d.x.At(2, 2))
	}
}

func TestBuildDesignMissingResponse(t *testing.T) {
	tbl := table.MustNew(
		table.MustNewNumericColumn("rt", []float64{520, math.NaN(), 455}),
		table.MustNewFactorColumn("subject", []string{"s1"}, []int{0, 0, 0}),
	)
	f := formula.MustNew("rt").WithRandomIntercept("subject")

	_, err := buildDesign(tbl, f, nil)
	if !errors.Is(err, core.ErrMissingData) {
		t.Errorf("Expected ErrMissingData for NaN response, got %v", err)
	}
}

func TestBuildDesignMissingPredictor(t *testing.T) {
	tbl := table.MustNew(
		table.MustNewNumericColumn("rt", []float64{520, 480, 455}),
		table.MustNewNumericColumn("freq", []float64{3.1, math.Inf(1), 4.4}),
		table.MustNewFactorColumn("subject", []string{"s1"}, []int{0, 0, 0}),
	)
	f := formula.MustNew("rt").WithFixed("freq").WithRandomIntercept("subject")

	_, err := buildDesign(tbl, f, nil)
	if !errors.Is(err, core.ErrMissingData) {
		t.Errorf("Expected ErrMissingData for non-finite predictor, got %v", err)
	}
}

func TestBuildDesignMissingGroupCode(t *testing.T) {
	tbl := table.MustNew(
		table.MustNewNumericColumn("rt", []float64{520, 480, 455}),
		table.MustNewFactorColumn("subject", []string{"s1", "s2"}, []int{0, -1, 1}),
	)
	f := formula.MustNew("rt").WithRandomIntercept("subject")

	_, err := buildDesign(tbl, f, nil)
	if !errors.Is(err, core.ErrMissingData) {
		t.Errorf("Expected ErrMissingData for unleveled grouping row, got %v", err)
	}
}

func TestBuildDesignGroupingMustBeFactor(t *testing.T) {
	tbl := table.MustNew(
		table.MustNewNumericColumn("rt", []float64{520, 480, 455}),
		table.MustNewNumericColumn("subject", []float64{1, 2, 3}),
	)
	f := formula.MustNew("rt").WithRandomIntercept("subject")

	_, err := buildDesign(tbl, f, nil)
	if !errors.Is(err, core.ErrColumnKind) {
		t.Errorf("Expected ErrColumnKind for numeric grouping column, got %v", err)
	}
}

func TestBuildDesignUnknownPredictor(t *testing.T) {
	tbl := designTable(t)
	f := formula.MustNew("rt").WithFixed("nope").WithRandomIntercept("subject")

	_, err := buildDesign(tbl, f, nil)
	if !core.IsNotFoundError(err) {
		t.Errorf("Expected a not-found error for unknown predictor, got %v", err)
	}
}
