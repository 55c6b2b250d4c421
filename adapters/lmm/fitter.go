package lmm

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"golmer/domain/core"
	"golmer/domain/fit"
	"golmer/domain/formula"
	"golmer/domain/table"
	"golmer/internal"
)

// funcConvergeWindow is how many major iterations the objective must hold
// still (within the configured tolerance) before the search is converged
const funcConvergeWindow = 50

// Fitter fits linear mixed-effects models by minimizing the profiled
// deviance over the relative variance parameters with Nelder-Mead.
// The start is fixed and the search has no stochastic element, so a fit is
// reproducible bit for bit. Fitter is stateless and safe for concurrent use.
type Fitter struct {
	logger *internal.Logger
}

// NewFitter creates the standard model fitter
func NewFitter() *Fitter {
	return &Fitter{logger: internal.DefaultLogger.Component("Fitter")}
}

// Fit implements ports.FitterPort
func (ft *Fitter) Fit(ctx context.Context, tbl *table.Table, f formula.Formula, cfg fit.Config) (*fit.Model, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fit config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, err := buildDesign(tbl, f, cfg.Contrasts)
	if err != nil {
		return nil, fmt.Errorf("building design for %q: %w", f.String(), err)
	}
	e := newEvaluator(d, cfg.Criterion)
	q := len(d.blocks)

	// Evaluate the fixed start before optimizing so structural problems
	// (rank deficiency, collapsed variance) surface as typed errors rather
	// than as a poisoned search.
	theta0 := make([]float64, q)
	for i := range theta0 {
		theta0[i] = 1
	}
	final, err := e.evaluate(theta0)
	if err != nil {
		return nil, fmt.Errorf("fitting %q: %w", f.String(), err)
	}
	thetaHat := theta0

	if q > 0 {
		problem := optimize.Problem{Func: e.objectiveFunc}
		settings := &optimize.Settings{
			MajorIterations: cfg.MaxIterations,
			FuncEvaluations: cfg.MaxEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   cfg.Tolerance,
				Iterations: funcConvergeWindow,
			},
		}
		result, err := optimize.Minimize(problem, theta0, settings, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", core.ErrNoConvergence, f.String(), err)
		}
		switch result.Status {
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
			return nil, fmt.Errorf("%w: %q exhausted its optimizer budget after %d evaluations",
				core.ErrNoConvergence, f.String(), e.evals)
		case optimize.Failure:
			return nil, fmt.Errorf("%w: optimizer failed on %q", core.ErrNoConvergence, f.String())
		}

		thetaHat = make([]float64, q)
		for i, v := range result.X {
			thetaHat[i] = math.Abs(v)
		}
		final, err = e.evaluate(thetaHat)
		if err != nil {
			return nil, fmt.Errorf("fitting %q at optimum: %w", f.String(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	coefs := make([]fit.Coefficient, d.p)
	for j := range coefs {
		coefs[j] = fit.Coefficient{Name: d.coefNames[j], Estimate: final.beta[j]}
	}
	comps := make([]fit.VarianceComponent, q)
	for i := range d.blocks {
		comps[i] = fit.VarianceComponent{Group: d.blocks[i].group, StdDev: thetaHat[i] * final.sigma}
	}

	fingerprint := fit.ComputeInputFingerprint(tbl.Fingerprint(), f, cfg)
	model, err := fit.NewModel(f, cfg.Criterion, final.objective, d.n, coefs, comps, final.sigma, e.evals, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("assembling fitted model for %q: %w", f.String(), err)
	}

	ft.logger.Debug("fit %q: objective=%.6f dof=%d evaluations=%d", f.String(), model.Objective, model.DOF(), e.evals)
	return model, nil
}
