package lmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"golmer/domain/core"
	"golmer/domain/formula"
	"golmer/domain/table"
)

// interceptName is the design column name of the always-present intercept
const interceptName = "(Intercept)"

// randomBlock locates one grouping factor inside the random-effects design
type randomBlock struct {
	group   string
	offset  int   // first column of this block in Z
	levels  int   // block width = number of levels
	codes   []int // per-row level code
}

// design is the numeric form of one model specification on one table.
// X column 0 is the intercept. Z is kept as per-factor level codes rather
// than a dense matrix; each row has exactly one nonzero per block.
type design struct {
	n         int
	y         []float64
	x         *mat.Dense // n x p fixed-effects matrix
	p         int
	coefNames []string
	blocks    []randomBlock
	m         int // total random-effects columns across blocks
}

// buildDesign validates the formula against the table and assembles the
// response vector, the fixed-effects matrix under the configured contrasts,
// and the random-intercept blocks. Rows are never dropped: a missing value
// in any referenced column is an error, because baseline and candidates
// must be fit on identical observations.
func buildDesign(tbl *table.Table, f formula.Formula, contrasts formula.Contrasts) (*design, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := contrasts.Validate(); err != nil {
		return nil, err
	}
	if tbl.Len() == 0 {
		return nil, core.ErrEmptyTable
	}
	n := tbl.Len()

	respCol, err := tbl.Numeric(f.Response())
	if err != nil {
		return nil, fmt.Errorf("response: %w", err)
	}
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := respCol.Value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, core.NewMissingDataError(f.Response(), i)
		}
		y[i] = v
	}

	// Fixed-effects columns, intercept first
	cols := [][]float64{constantColumn(n, 1.0)}
	names := []string{interceptName}
	for _, term := range f.FixedTerms() {
		termCols, termNames, err := expandFixedTerm(tbl, term.Column, contrasts.SchemeFor(term.Column))
		if err != nil {
			return nil, err
		}
		cols = append(cols, termCols...)
		names = append(names, termNames...)
	}
	p := len(cols)
	x := mat.NewDense(n, p, nil)
	for j, col := range cols {
		for i := 0; i < n; i++ {
			x.Set(i, j, col[i])
		}
	}

	// Random-intercept blocks in formula order
	blocks := make([]randomBlock, 0, f.NumRandom())
	m := 0
	for _, term := range f.RandomTerms() {
		fc, err := tbl.Factor(term.Group)
		if err != nil {
			return nil, fmt.Errorf("grouping term %q: %w", term.Group, err)
		}
		codes := fc.Codes()
		for i, code := range codes {
			if code < 0 {
				return nil, core.NewMissingDataError(term.Group, i)
			}
		}
		blocks = append(blocks, randomBlock{
			group:  term.Group,
			offset: m,
			levels: fc.NumLevels(),
			codes:  codes,
		})
		m += fc.NumLevels()
	}

	return &design{
		n:         n,
		y:         y,
		x:         x,
		p:         p,
		coefNames: names,
		blocks:    blocks,
		m:         m,
	}, nil
}

// expandFixedTerm turns one predictor column into design columns.
// Numeric columns map to themselves. Factor columns expand to levels-1
// contrast columns under the requested scheme; a single-level factor
// contributes nothing and surfaces later as a degenerate comparison.
func expandFixedTerm(tbl *table.Table, column string, scheme formula.Scheme) ([][]float64, []string, error) {
	col, ok := tbl.Column(column)
	if !ok {
		return nil, nil, core.NewColumnNotFoundError(column)
	}
	n := col.Len()

	switch c := col.(type) {
	case *table.NumericColumn:
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			v := c.Value(i)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, core.NewMissingDataError(column, i)
			}
			vals[i] = v
		}
		return [][]float64{vals}, []string{column}, nil

	case *table.FactorColumn:
		k := c.NumLevels()
		levels := c.Levels()
		ncols := k - 1
		if ncols < 0 {
			ncols = 0
		}
		cols := make([][]float64, ncols)
		names := make([]string, ncols)
		for j := 0; j < ncols; j++ {
			cols[j] = make([]float64, n)
		}
		switch scheme {
		case formula.Sum:
			// contrast columns cover levels 0..k-2; the last level codes -1 everywhere
			for j := 0; j < ncols; j++ {
				names[j] = fmt.Sprintf("%s[%s]", column, levels[j])
			}
			for i := 0; i < n; i++ {
				code := c.Code(i)
				if code < 0 {
					return nil, nil, core.NewMissingDataError(column, i)
				}
				if code == k-1 {
					for j := 0; j < ncols; j++ {
						cols[j][i] = -1
					}
				} else {
					cols[code][i] = 1
				}
			}
		default: // formula.Treatment
			// level 0 is the reference; columns indicate levels 1..k-1
			for j := 0; j < ncols; j++ {
				names[j] = fmt.Sprintf("%s[%s]", column, levels[j+1])
			}
			for i := 0; i < n; i++ {
				code := c.Code(i)
				if code < 0 {
					return nil, nil, core.NewMissingDataError(column, i)
				}
				if code > 0 {
					cols[code-1][i] = 1
				}
			}
		}
		return cols, names, nil

	default:
		return nil, nil, core.NewColumnKindError(column, "numeric or factor")
	}
}

func constantColumn(n int, v float64) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = v
	}
	return col
}
