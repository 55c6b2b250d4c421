package table

import (
	"math"
	"testing"

	"golmer/domain/core"
)

// TestNewTableValidation tests table construction invariants
func TestNewTableValidation(t *testing.T) {
	rt := MustNewNumericColumn("rt", []float64{512, 480, 534})
	subj, err := NewFactorColumnFromStrings("subject", []string{"s1", "s2", "s1"})
	if err != nil {
		t.Fatalf("Unexpected error building factor column: %v", err)
	}

	tbl, err := New(rt, subj)
	if err != nil {
		t.Fatalf("Unexpected error building table: %v", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("Expected 3 rows, got %d", tbl.Len())
	}
	if tbl.NumCols() != 2 {
		t.Errorf("Expected 2 columns, got %d", tbl.NumCols())
	}

	// Ragged columns must fail
	short := MustNewNumericColumn("short", []float64{1.0})
	if _, err := New(rt, short); err == nil {
		t.Error("Expected error for mismatched column lengths")
	}

	// Duplicate names must fail
	rt2 := MustNewNumericColumn("rt", []float64{1, 2, 3})
	if _, err := New(rt, rt2); err == nil {
		t.Error("Expected error for duplicate column name")
	}
}

// TestColumnLookup tests typed column access and error kinds
func TestColumnLookup(t *testing.T) {
	tbl := MustNew(
		MustNewNumericColumn("freq", []float64{3.1, 2.2}),
		MustNewFactorColumn("cond", []string{"a", "b"}, []int{0, 1}),
	)

	if _, err := tbl.Numeric("freq"); err != nil {
		t.Errorf("Unexpected error for numeric lookup: %v", err)
	}
	if _, err := tbl.Factor("cond"); err != nil {
		t.Errorf("Unexpected error for factor lookup: %v", err)
	}

	_, err := tbl.Numeric("missing")
	if !core.IsNotFoundError(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}

	_, err = tbl.Numeric("cond")
	if !core.IsDataError(err) {
		t.Errorf("Expected column kind error, got %v", err)
	}
	if core.IsNotFoundError(err) {
		t.Error("Kind mismatch must not read as not-found")
	}
}

// TestFactorCoding tests first-appearance level order and missing cells
func TestFactorCoding(t *testing.T) {
	fc, err := NewFactorColumnFromStrings("prime", []string{"dog", "cat", "dog", "", "eel"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	levels := fc.Levels()
	expected := []string{"dog", "cat", "eel"}
	if len(levels) != len(expected) {
		t.Fatalf("Expected %d levels, got %d", len(expected), len(levels))
	}
	for i, lv := range expected {
		if levels[i] != lv {
			t.Errorf("Level %d: expected %q, got %q", i, lv, levels[i])
		}
	}

	if fc.Code(0) != 0 || fc.Code(2) != 0 {
		t.Error("Repeated value must reuse its first-appearance code")
	}
	if fc.Code(3) != -1 {
		t.Errorf("Empty cell must code as -1, got %d", fc.Code(3))
	}
	if !fc.HasMissing() {
		t.Error("Expected HasMissing to report the empty cell")
	}
	if fc.DistinctObserved() != 3 {
		t.Errorf("Expected 3 observed levels, got %d", fc.DistinctObserved())
	}
}

// TestAccessorsReturnCopies tests that callers cannot mutate table internals
func TestAccessorsReturnCopies(t *testing.T) {
	src := []float64{1, 2, 3}
	nc := MustNewNumericColumn("x", src)

	// Mutating the constructor input must not reach the column
	src[0] = 99
	if nc.Value(0) != 1 {
		t.Errorf("Constructor input aliasing: got %v", nc.Value(0))
	}

	// Mutating an accessor result must not reach the column
	vals := nc.Values()
	vals[1] = 99
	if nc.Value(1) != 2 {
		t.Errorf("Values() aliasing: got %v", nc.Value(1))
	}

	fc := MustNewFactorColumn("g", []string{"a", "b"}, []int{0, 1, 0})
	lvls := fc.Levels()
	lvls[0] = "mutated"
	if got := fc.Levels()[0]; got != "a" {
		t.Errorf("Levels() aliasing: got %q", got)
	}
}

// TestFingerprintDeterminism tests content hashing stability and sensitivity
func TestFingerprintDeterminism(t *testing.T) {
	build := func(tweak float64) *Table {
		return MustNew(
			MustNewNumericColumn("rt", []float64{512.5, 480.25 + tweak, 534.0}),
			MustNewFactorColumn("subject", []string{"s1", "s2"}, []int{0, 1, 0}),
		)
	}

	f1 := build(0).Fingerprint()
	f2 := build(0).Fingerprint()
	if f1 != f2 {
		t.Errorf("Expected identical fingerprints for identical tables, got %s vs %s", f1, f2)
	}

	f3 := build(1e-9).Fingerprint()
	if f1 == f3 {
		t.Error("Expected fingerprint to change when a cell changes")
	}

	if core.Hash(f1).IsEmpty() {
		t.Error("Fingerprint must not be empty")
	}
}

// TestNumericMissing tests NaN handling in numeric columns
func TestNumericMissing(t *testing.T) {
	nc := MustNewNumericColumn("len", []float64{4, math.NaN(), 6})
	if !nc.HasMissing() {
		t.Error("Expected HasMissing to report the NaN cell")
	}
	clean := MustNewNumericColumn("len2", []float64{4, 5, 6})
	if clean.HasMissing() {
		t.Error("Expected no missing cells")
	}
}
