package lrt

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"golmer/domain/core"
	"golmer/domain/fit"
	"golmer/domain/screen"
	"golmer/internal"
)

// Comparator performs the likelihood-ratio test of a candidate model against
// its nested baseline and reports the result as a comparison row.
//
// The reported objective difference is candidate minus baseline (negative
// when the candidate improves the fit). The test statistic is the
// improvement, baseline minus candidate, clamped at zero before it reaches
// the chi-squared survival function; a candidate that fit worse than its
// nested baseline beyond tolerance is flagged anomalous and reported, never
// dropped.
type Comparator struct {
	logger *internal.Logger
}

// NewComparator creates the standard likelihood-ratio comparator
func NewComparator() *Comparator {
	return &Comparator{logger: internal.DefaultLogger.Component("Comparator")}
}

// Compare implements ports.ComparatorPort
func (c *Comparator) Compare(ctx context.Context, baseline, candidate *fit.Model, cfg fit.Config) (screen.ComparisonRow, error) {
	cfg = cfg.Normalized()
	if baseline == nil || candidate == nil {
		return screen.ComparisonRow{}, fmt.Errorf("comparison needs two fitted models")
	}
	if err := ctx.Err(); err != nil {
		return screen.ComparisonRow{}, err
	}

	if baseline.Criterion != candidate.Criterion {
		return screen.ComparisonRow{}, fmt.Errorf("%w: baseline %s, candidate %s",
			core.ErrCriterionMismatch, baseline.Criterion, candidate.Criterion)
	}
	if baseline.Criterion != fit.ML {
		return screen.ComparisonRow{}, fmt.Errorf("%w: likelihood-ratio tests need ML fits, models used %s",
			core.ErrCriterionMismatch, baseline.Criterion)
	}
	if baseline.NObs != candidate.NObs {
		return screen.ComparisonRow{}, fmt.Errorf("%w: baseline n=%d, candidate n=%d",
			core.ErrObservationMismatch, baseline.NObs, candidate.NObs)
	}
	if err := checkNesting(baseline, candidate); err != nil {
		return screen.ComparisonRow{}, err
	}

	// Degrees of freedom are differenced from the fitted models, never
	// assumed: a factor predictor legitimately adds more than one.
	dfDiff := candidate.DOF() - baseline.DOF()
	if dfDiff <= 0 {
		return screen.ComparisonRow{}, fmt.Errorf("%w: %q adds %d parameters over %q",
			core.ErrDegenerateDF, candidate.FormulaText, dfDiff, baseline.FormulaText)
	}

	objectiveDiff := candidate.Objective - baseline.Objective
	improvement := -objectiveDiff

	anomalous := false
	if improvement < -cfg.AnomalyTolerance {
		anomalous = true
		c.logger.Warn("candidate %q fit worse than its nested baseline (objective rose by %.6g); row reported as anomalous",
			candidate.FormulaText, objectiveDiff)
	}
	stat := math.Max(improvement, 0)

	dist := distuv.ChiSquared{K: float64(dfDiff)}
	p := dist.Survival(stat)
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}

	return screen.NewComparisonRow(predictorName(baseline, candidate), objectiveDiff, dfDiff, p, anomalous)
}

// checkNesting verifies the candidate contains every baseline term, which is
// what makes the chi-squared reference distribution applicable at all.
func checkNesting(baseline, candidate *fit.Model) error {
	for _, t := range baseline.Formula.FixedTerms() {
		if !candidate.Formula.HasFixed(t.Column) {
			return fmt.Errorf("%w: baseline fixed term %q missing from candidate", core.ErrNotNested, t.Column)
		}
	}
	for _, t := range baseline.Formula.RandomTerms() {
		if !candidate.Formula.HasRandom(t.Group) {
			return fmt.Errorf("%w: baseline grouping term %q missing from candidate", core.ErrNotNested, t.Group)
		}
	}
	return nil
}

// predictorName is the candidate fixed term absent from the baseline; with
// single-term candidates this is simply the added predictor.
func predictorName(baseline, candidate *fit.Model) string {
	terms := candidate.Formula.FixedTerms()
	for i := len(terms) - 1; i >= 0; i-- {
		if !baseline.Formula.HasFixed(terms[i].Column) {
			return terms[i].Column
		}
	}
	if len(terms) > 0 {
		return terms[len(terms)-1].Column
	}
	return candidate.FormulaText
}
