package tabular

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golmer/domain/core"
	"golmer/domain/table"
)

// Options controls how raw input becomes a typed table
type Options struct {
	// ForceFactor lists columns that must be treated as factors even when
	// every cell parses as a number (subject ids are the usual case)
	ForceFactor []string

	// Delimiter separates cells in delimited text input. Zero keeps the
	// reader's default: comma, or tab for .tsv and .tab files.
	Delimiter rune
}

// ParseDelimiter maps a delimiter spec from a flag or request field to a
// rune. Empty keeps the reader default; "tab" and "\t" mean tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", "\\t", "\t":
		return '\t', nil
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf(`delimiter must be a single character or "tab", got %q`, s)
	}
	return runes[0], nil
}

func (o Options) forcesFactor(name string) bool {
	for _, f := range o.ForceFactor {
		if f == name {
			return true
		}
	}
	return false
}

// BuildTable coerces raw rows into a typed table. A column where every
// non-empty cell parses as a number becomes numeric; anything else becomes a
// factor with levels in first-appearance order. Empty cells become missing
// values (NaN or an unassigned level code), never dropped rows.
func BuildTable(headers []string, rows [][]string, opts Options) (*table.Table, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("no columns in input")
	}
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if h == "" {
			return nil, fmt.Errorf("empty column name in header")
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate column name %q", h)
		}
		seen[h] = true
	}
	if len(rows) == 0 {
		return nil, core.ErrEmptyTable
	}

	// Columnize; short rows read as missing cells, long rows are malformed
	cells := make([][]string, len(headers))
	for c := range cells {
		cells[c] = make([]string, len(rows))
	}
	for i, row := range rows {
		if len(row) > len(headers) {
			return nil, fmt.Errorf("row %d has %d cells but the header has %d columns", i+1, len(row), len(headers))
		}
		for c := range headers {
			if c < len(row) {
				cells[c][i] = strings.TrimSpace(row[c])
			}
		}
	}

	columns := make([]table.Column, 0, len(headers))
	for c, name := range headers {
		col, err := coerceColumn(name, cells[c], opts)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return table.New(columns...)
}

func coerceColumn(name string, cells []string, opts Options) (table.Column, error) {
	if !opts.forcesFactor(name) && isNumericColumn(cells) {
		values := make([]float64, len(cells))
		for i, cell := range cells {
			if cell == "" {
				values[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i+1, err)
			}
			values[i] = v
		}
		return table.NewNumericColumn(name, values)
	}
	return table.NewFactorColumnFromStrings(name, cells)
}

// isNumericColumn reports whether every non-empty cell parses as a float.
// An all-empty column is a factor, there is nothing numeric to recover.
func isNumericColumn(cells []string) bool {
	nonEmpty := 0
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		nonEmpty++
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
	}
	return nonEmpty > 0
}
