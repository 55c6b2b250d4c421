package lmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"golmer/domain/core"
	"golmer/domain/fit"
)

// evaluation is the full state of the profiled objective at one theta
type evaluation struct {
	objective float64   // -2 log likelihood (ML) or the REML criterion
	beta      []float64 // fixed-effect solution, length p
	u         []float64 // spherical random effects, length m
	prss      float64   // penalized residual sum of squares
	sigma     float64   // profiled residual standard deviation
}

// devianceEvaluator computes the profiled objective for one design.
//
// With U = Z*Lambda(theta) and G = [U X], the penalized least squares system
//
//	M [u; beta] = G'y,  M = G'G + diag(I_m, 0)
//
// is solved by Cholesky. A = U'U + I_m is positive definite for every theta,
// so a factorization failure on M means X is rank deficient. The profiled
// objectives follow from log|A|, log|M| and the penalized RSS:
//
//	ML:   log|A| + n(1 + log(2*pi*r2/n))
//	REML: log|M| + (n-p)(1 + log(2*pi*r2/(n-p)))
//
// The evaluator owns scratch buffers sized to one design and is not safe for
// concurrent use; each fit builds its own.
type devianceEvaluator struct {
	d         *design
	criterion fit.Criterion

	dim    int        // m + p
	g      *mat.Dense // n x dim; X block constant, U block rewritten per theta
	gtg    *mat.Dense
	msym   *mat.SymDense
	asym   *mat.SymDense // m x m, nil when the model has no random terms
	yvec   *mat.VecDense
	rhs    *mat.VecDense
	sol    *mat.VecDense
	fitted *mat.VecDense

	evals int
}

func newEvaluator(d *design, criterion fit.Criterion) *devianceEvaluator {
	dim := d.m + d.p
	g := mat.NewDense(d.n, dim, nil)
	for j := 0; j < d.p; j++ {
		for i := 0; i < d.n; i++ {
			g.Set(i, d.m+j, d.x.At(i, j))
		}
	}
	e := &devianceEvaluator{
		d:         d,
		criterion: criterion,
		dim:       dim,
		g:         g,
		gtg:       mat.NewDense(dim, dim, nil),
		msym:      mat.NewSymDense(dim, nil),
		yvec:      mat.NewVecDense(d.n, d.y),
		rhs:       mat.NewVecDense(dim, nil),
		sol:       mat.NewVecDense(dim, nil),
		fitted:    mat.NewVecDense(d.n, nil),
	}
	if d.m > 0 {
		e.asym = mat.NewSymDense(d.m, nil)
	}
	return e
}

// evaluate computes the objective at theta. The objective is even in every
// theta component, so the magnitude is used; this is what makes optimizing
// over unconstrained theta equivalent to the non-negative problem.
func (e *devianceEvaluator) evaluate(theta []float64) (*evaluation, error) {
	d := e.d
	if len(theta) != len(d.blocks) {
		return nil, fmt.Errorf("expected %d variance parameters, got %d", len(d.blocks), len(theta))
	}
	e.evals++

	// U block: the sparsity pattern is fixed per design, so each cell is
	// simply overwritten with the new scale
	for bi := range d.blocks {
		blk := &d.blocks[bi]
		th := math.Abs(theta[bi])
		for i, code := range blk.codes {
			e.g.Set(i, blk.offset+code, th)
		}
	}

	e.gtg.Mul(e.g.T(), e.g)

	for i := 0; i < e.dim; i++ {
		for j := i; j < e.dim; j++ {
			v := e.gtg.At(i, j)
			if i == j && i < d.m {
				v++
			}
			e.msym.SetSym(i, j, v)
		}
	}

	ldA := 0.0
	if d.m > 0 {
		for i := 0; i < d.m; i++ {
			for j := i; j < d.m; j++ {
				v := e.gtg.At(i, j)
				if i == j {
					v++
				}
				e.asym.SetSym(i, j, v)
			}
		}
		var cholA mat.Cholesky
		if !cholA.Factorize(e.asym) {
			return nil, fmt.Errorf("%w: random-effects factorization failed at theta %v", core.ErrDegenerateFit, theta)
		}
		ldA = cholA.LogDet()
	}

	var cholM mat.Cholesky
	if !cholM.Factorize(e.msym) {
		return nil, core.ErrRankDeficient
	}
	ldM := cholM.LogDet()

	e.rhs.MulVec(e.g.T(), e.yvec)
	if err := cholM.SolveVecTo(e.sol, e.rhs); err != nil {
		// A Condition error flags a near-singular system whose solution is
		// still usable; true rank loss already failed the factorization.
		if _, nearSingular := err.(mat.Condition); !nearSingular {
			return nil, fmt.Errorf("penalized least squares solve failed: %w", err)
		}
	}

	e.fitted.MulVec(e.g, e.sol)
	prss := 0.0
	for i := 0; i < d.n; i++ {
		r := d.y[i] - e.fitted.AtVec(i)
		prss += r * r
	}
	for k := 0; k < d.m; k++ {
		u := e.sol.AtVec(k)
		prss += u * u
	}
	if prss <= 0 || math.IsNaN(prss) || math.IsInf(prss, 0) {
		return nil, fmt.Errorf("%w: penalized RSS %v", core.ErrDegenerateFit, prss)
	}

	n := float64(d.n)
	var obj, sigma2 float64
	switch e.criterion {
	case fit.REML:
		nmp := n - float64(d.p)
		if nmp <= 0 {
			return nil, fmt.Errorf("REML needs more observations than fixed effects: n=%d p=%d", d.n, d.p)
		}
		obj = ldM + nmp*(1+math.Log(2*math.Pi*prss/nmp))
		sigma2 = prss / nmp
	default:
		obj = ldA + n*(1+math.Log(2*math.Pi*prss/n))
		sigma2 = prss / n
	}
	if math.IsNaN(obj) || math.IsInf(obj, 0) {
		return nil, fmt.Errorf("%w: objective %v at theta %v", core.ErrDegenerateFit, obj, theta)
	}

	beta := make([]float64, d.p)
	for j := 0; j < d.p; j++ {
		beta[j] = e.sol.AtVec(d.m + j)
	}
	u := make([]float64, d.m)
	for k := 0; k < d.m; k++ {
		u[k] = e.sol.AtVec(k)
	}

	return &evaluation{
		objective: obj,
		beta:      beta,
		u:         u,
		prss:      prss,
		sigma:     math.Sqrt(sigma2),
	}, nil
}

// objectiveFunc adapts evaluate for the optimizer. Failed evaluations return
// +Inf so the simplex backs away instead of aborting the search.
func (e *devianceEvaluator) objectiveFunc(theta []float64) float64 {
	ev, err := e.evaluate(theta)
	if err != nil {
		return math.Inf(1)
	}
	return ev.objective
}
