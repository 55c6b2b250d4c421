package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golmer/domain/core"
)

// ============================================================================
// COLUMN TYPES
// ============================================================================

// Kind classifies a column for modeling purposes
type Kind string

const (
	KindNumeric Kind = "numeric" // float64 values, NaN marks a missing cell
	KindFactor  Kind = "factor"  // coded categorical values, -1 marks a missing cell
)

// Column is the read surface shared by all column kinds
type Column interface {
	Name() string
	Kind() Kind
	Len() int
}

// NumericColumn holds a named float64 vector.
// INVARIANTS:
// - values are never mutated after construction
// - a missing cell is NaN, never a sentinel value
type NumericColumn struct {
	name   string
	values []float64
}

// NewNumericColumn creates a numeric column with validation
func NewNumericColumn(name string, values []float64) (*NumericColumn, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("column name cannot be empty")
	}
	vals := make([]float64, len(values))
	copy(vals, values)
	return &NumericColumn{name: name, values: vals}, nil
}

// MustNewNumericColumn creates a numeric column (panics on invalid input)
// Use only in tests and development - production code should handle validation errors
func MustNewNumericColumn(name string, values []float64) *NumericColumn {
	c, err := NewNumericColumn(name, values)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *NumericColumn) Name() string { return c.name }
func (c *NumericColumn) Kind() Kind   { return KindNumeric }
func (c *NumericColumn) Len() int     { return len(c.values) }

// Value returns the cell at row i
func (c *NumericColumn) Value(i int) float64 { return c.values[i] }

// Values returns a copy of the column data
func (c *NumericColumn) Values() []float64 {
	out := make([]float64, len(c.values))
	copy(out, c.values)
	return out
}

// HasMissing reports whether any cell is NaN
func (c *NumericColumn) HasMissing() bool {
	for _, v := range c.values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// FactorColumn holds a named categorical vector as level codes.
// INVARIANTS:
// - level order is first-appearance order and is never re-sorted
// - codes index into the level list; -1 marks a missing cell
// - levels are unique and non-empty
type FactorColumn struct {
	name   string
	levels []string
	codes  []int
}

// NewFactorColumn creates a factor column with validation
func NewFactorColumn(name string, levels []string, codes []int) (*FactorColumn, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("column name cannot be empty")
	}
	seen := make(map[string]bool, len(levels))
	for _, lv := range levels {
		if lv == "" {
			return nil, fmt.Errorf("column %q: empty factor level (missing cells use code -1)", name)
		}
		if seen[lv] {
			return nil, fmt.Errorf("column %q: duplicate factor level %q", name, lv)
		}
		seen[lv] = true
	}
	for i, code := range codes {
		if code < -1 || code >= len(levels) {
			return nil, fmt.Errorf("column %q: code %d at row %d out of range for %d levels", name, code, i, len(levels))
		}
	}
	lvls := make([]string, len(levels))
	copy(lvls, levels)
	cds := make([]int, len(codes))
	copy(cds, codes)
	return &FactorColumn{name: name, levels: lvls, codes: cds}, nil
}

// MustNewFactorColumn creates a factor column (panics on invalid input)
func MustNewFactorColumn(name string, levels []string, codes []int) *FactorColumn {
	c, err := NewFactorColumn(name, levels, codes)
	if err != nil {
		panic(err)
	}
	return c
}

// NewFactorColumnFromStrings codes raw string cells by first appearance.
// Empty cells become code -1.
func NewFactorColumnFromStrings(name string, values []string) (*FactorColumn, error) {
	levels := make([]string, 0, 8)
	index := make(map[string]int, 8)
	codes := make([]int, len(values))
	for i, v := range values {
		if v == "" {
			codes[i] = -1
			continue
		}
		code, ok := index[v]
		if !ok {
			code = len(levels)
			levels = append(levels, v)
			index[v] = code
		}
		codes[i] = code
	}
	return NewFactorColumn(name, levels, codes)
}

func (c *FactorColumn) Name() string { return c.name }
func (c *FactorColumn) Kind() Kind   { return KindFactor }
func (c *FactorColumn) Len() int     { return len(c.codes) }

// Code returns the level code at row i (-1 = missing)
func (c *FactorColumn) Code(i int) int { return c.codes[i] }

// Codes returns a copy of the level codes
func (c *FactorColumn) Codes() []int {
	out := make([]int, len(c.codes))
	copy(out, c.codes)
	return out
}

// Levels returns a copy of the level list in first-appearance order
func (c *FactorColumn) Levels() []string {
	out := make([]string, len(c.levels))
	copy(out, c.levels)
	return out
}

// NumLevels returns the size of the level list
func (c *FactorColumn) NumLevels() int { return len(c.levels) }

// Level returns the label for a code
func (c *FactorColumn) Level(code int) (string, bool) {
	if code < 0 || code >= len(c.levels) {
		return "", false
	}
	return c.levels[code], true
}

// DistinctObserved counts levels that occur in at least one row
func (c *FactorColumn) DistinctObserved() int {
	seen := make(map[int]bool, len(c.levels))
	for _, code := range c.codes {
		if code >= 0 {
			seen[code] = true
		}
	}
	return len(seen)
}

// HasMissing reports whether any cell is uncoded
func (c *FactorColumn) HasMissing() bool {
	for _, code := range c.codes {
		if code < 0 {
			return true
		}
	}
	return false
}

// ============================================================================
// TABLE
// ============================================================================

// Table is an immutable columnar dataset with a fixed row count.
// INVARIANTS:
// - every column has exactly Len() entries
// - column names are unique; column order is construction order
// - row order is load order and is never re-sorted
type Table struct {
	n     int
	cols  []Column
	index map[string]int
}

// New creates a table from columns with validation
func New(columns ...Column) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table needs at least one column")
	}
	n := columns[0].Len()
	index := make(map[string]int, len(columns))
	cols := make([]Column, 0, len(columns))
	for i, col := range columns {
		if col == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if col.Len() != n {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name(), col.Len(), n)
		}
		if _, dup := index[col.Name()]; dup {
			return nil, fmt.Errorf("duplicate column name %q", col.Name())
		}
		index[col.Name()] = len(cols)
		cols = append(cols, col)
	}
	return &Table{n: n, cols: cols, index: index}, nil
}

// MustNew creates a table (panics on invalid input)
// Use only in tests and development - production code should handle validation errors
func MustNew(columns ...Column) *Table {
	t, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the row count
func (t *Table) Len() int { return t.n }

// NumCols returns the column count
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns column names in construction order
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, col := range t.cols {
		out[i] = col.Name()
	}
	return out
}

// Has reports whether a column exists
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column looks up a column by name
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Numeric returns the named column as numeric or a typed error
func (t *Table) Numeric(name string) (*NumericColumn, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, core.NewColumnNotFoundError(name)
	}
	nc, ok := col.(*NumericColumn)
	if !ok {
		return nil, core.NewColumnKindError(name, "numeric")
	}
	return nc, nil
}

// Factor returns the named column as a factor or a typed error
func (t *Table) Factor(name string) (*FactorColumn, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, core.NewColumnNotFoundError(name)
	}
	fc, ok := col.(*FactorColumn)
	if !ok {
		return nil, core.NewColumnKindError(name, "factor")
	}
	return fc, nil
}

// ============================================================================
// FINGERPRINTING
// ============================================================================

// Fingerprint computes a deterministic hash of the table schema and contents.
// Identical data always fingerprints identically; any cell, name, kind or
// ordering change produces a different value.
func (t *Table) Fingerprint() core.DatasetFingerprint {
	var data strings.Builder
	data.WriteString("rows=")
	data.WriteString(strconv.Itoa(t.n))
	for _, col := range t.cols {
		data.WriteString("|col=")
		data.WriteString(col.Name())
		data.WriteString(":")
		data.WriteString(string(col.Kind()))
		switch c := col.(type) {
		case *NumericColumn:
			for _, v := range c.values {
				data.WriteString(fmt.Sprintf(";%x", v))
			}
		case *FactorColumn:
			for _, lv := range c.levels {
				data.WriteString(";L" + lv)
			}
			for _, code := range c.codes {
				data.WriteString(";" + strconv.Itoa(code))
			}
		}
	}
	return core.NewDatasetFingerprint([]byte(data.String()))
}
