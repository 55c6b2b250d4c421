package profiling

import (
	"math"
	"testing"

	"golmer/domain/table"
)

func TestProfileNumericColumn(t *testing.T) {
	col := table.MustNewNumericColumn("rt", []float64{400, 450, 500, 550, 600})

	p, err := ProfileColumn(col)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if p.Name != "rt" || p.Kind != table.KindNumeric {
		t.Errorf("Unexpected identity: %s %s", p.Name, p.Kind)
	}
	if p.N != 5 || p.Missing != 0 {
		t.Errorf("Expected 5 rows with no missing, got n=%d missing=%d", p.N, p.Missing)
	}
	if p.Summary.Mean != 500 {
		t.Errorf("Expected mean 500, got %v", p.Summary.Mean)
	}
	if p.Summary.Min != 400 || p.Summary.Max != 600 {
		t.Errorf("Expected range [400,600], got [%v,%v]", p.Summary.Min, p.Summary.Max)
	}
	if p.Summary.Median != 500 {
		t.Errorf("Expected median 500, got %v", p.Summary.Median)
	}
	if p.Summary.StdDev <= 0 {
		t.Errorf("Expected positive standard deviation, got %v", p.Summary.StdDev)
	}
	if p.Constant {
		t.Error("Varying column must not be constant")
	}
	// Symmetric data has no skew
	if math.Abs(p.Summary.Skewness) > 1e-9 {
		t.Errorf("Expected zero skewness for symmetric data, got %v", p.Summary.Skewness)
	}
}

func TestProfileCountsMissing(t *testing.T) {
	col := table.MustNewNumericColumn("freq", []float64{1.5, math.NaN(), 2.5, math.Inf(1)})

	p, err := ProfileColumn(col)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Missing != 2 {
		t.Errorf("Expected 2 missing values, got %d", p.Missing)
	}
	if p.Summary.Mean != 2.0 {
		t.Errorf("Expected mean of the finite values, got %v", p.Summary.Mean)
	}
}

func TestProfileDetectsConstantNumeric(t *testing.T) {
	col := table.MustNewNumericColumn("flat", []float64{7, 7, 7, 7})

	p, err := ProfileColumn(col)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !p.Constant {
		t.Error("Expected a zero-variance column to be flagged constant")
	}
	if p.Summary.StdDev != 0 {
		t.Errorf("Expected zero standard deviation, got %v", p.Summary.StdDev)
	}
}

func TestProfileFactorColumn(t *testing.T) {
	col := table.MustNewFactorColumn("cond", []string{"a", "b", "c"}, []int{0, 1, 1, -1, 0})

	p, err := ProfileColumn(col)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Kind != table.KindFactor {
		t.Errorf("Expected factor kind, got %s", p.Kind)
	}
	if p.Distinct != 2 {
		t.Errorf("Expected 2 observed levels (c never appears), got %d", p.Distinct)
	}
	if p.Missing != 1 {
		t.Errorf("Expected 1 missing code, got %d", p.Missing)
	}
	if p.Constant {
		t.Error("Two observed levels is not constant")
	}
}

func TestProfileDetectsSingleLevelFactor(t *testing.T) {
	col := table.MustNewFactorColumn("cond", []string{"a", "b"}, []int{0, 0, 0})

	p, err := ProfileColumn(col)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !p.Constant {
		t.Error("Expected a single observed level to be flagged constant")
	}
}

func TestProfileTableOrder(t *testing.T) {
	tbl := table.MustNew(
		table.MustNewNumericColumn("rt", []float64{500, 510, 490}),
		table.MustNewFactorColumn("subject", []string{"s1", "s2"}, []int{0, 1, 0}),
		table.MustNewNumericColumn("freq", []float64{3, 4, 5}),
	)

	profiles, err := ProfileTable(tbl)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("Expected 3 profiles, got %d", len(profiles))
	}
	wantOrder := []string{"rt", "subject", "freq"}
	for i, want := range wantOrder {
		if profiles[i].Name != want {
			t.Errorf("Profile %d: expected %q, got %q", i, want, profiles[i].Name)
		}
	}
}
