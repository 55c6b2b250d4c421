package ports

import (
	"context"

	"golmer/domain/fit"
	"golmer/domain/formula"
	"golmer/domain/screen"
	"golmer/domain/table"
)

// FitterPort fits one model specification against a table.
// Implementations must be deterministic: the same table, formula and config
// always reproduce the same objective. Implementations must also be safe for
// concurrent calls, since candidate fits run in parallel.
type FitterPort interface {
	Fit(ctx context.Context, tbl *table.Table, f formula.Formula, cfg fit.Config) (*fit.Model, error)
}

// ComparatorPort performs the likelihood-ratio comparison of one candidate
// model against its nested baseline and reports it as a result row.
type ComparatorPort interface {
	Compare(ctx context.Context, baseline, candidate *fit.Model, cfg fit.Config) (screen.ComparisonRow, error)
}
