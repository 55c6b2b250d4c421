package fit

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golmer/domain/core"
	"golmer/domain/formula"
)

// ============================================================================
// CRITERION
// ============================================================================

// Criterion selects the objective a model is fit under
type Criterion string

const (
	ML   Criterion = "ML"   // maximum likelihood; required for likelihood-ratio comparisons
	REML Criterion = "REML" // restricted maximum likelihood; single-model summaries only
)

// Valid reports whether the criterion is known
func (c Criterion) Valid() bool {
	return c == ML || c == REML
}

// ============================================================================
// FIT CONFIGURATION
// ============================================================================

// Config carries everything a fit call needs beyond table and formula.
// Contrasts travel here explicitly so no coding decision hides in global state.
type Config struct {
	Criterion        Criterion         `json:"criterion"`
	Contrasts        formula.Contrasts `json:"contrasts,omitempty"`
	MaxIterations    int               `json:"max_iterations"`    // optimizer major iteration cap
	MaxEvaluations   int               `json:"max_evaluations"`   // objective evaluation cap
	Tolerance        float64           `json:"tolerance"`         // absolute function-convergence tolerance
	AnomalyTolerance float64           `json:"anomaly_tolerance"` // comparator slack before flagging a negative improvement
}

// DefaultConfig returns the standard screening configuration
func DefaultConfig() Config {
	return Config{
		Criterion:        ML,
		Contrasts:        nil,
		MaxIterations:    500,
		MaxEvaluations:   4000,
		Tolerance:        1e-10,
		AnomalyTolerance: 1e-6,
	}
}

// Normalized fills zero-valued knobs from DefaultConfig
func (c Config) Normalized() Config {
	def := DefaultConfig()
	if c.Criterion == "" {
		c.Criterion = def.Criterion
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.MaxEvaluations <= 0 {
		c.MaxEvaluations = def.MaxEvaluations
	}
	if c.Tolerance <= 0 {
		c.Tolerance = def.Tolerance
	}
	if c.AnomalyTolerance <= 0 {
		c.AnomalyTolerance = def.AnomalyTolerance
	}
	return c
}

// Validate checks the configuration invariants
func (c Config) Validate() error {
	if !c.Criterion.Valid() {
		return fmt.Errorf("unknown criterion %q", c.Criterion)
	}
	if err := c.Contrasts.Validate(); err != nil {
		return err
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("MaxIterations must be > 0, got %d", c.MaxIterations)
	}
	if c.MaxEvaluations <= 0 {
		return fmt.Errorf("MaxEvaluations must be > 0, got %d", c.MaxEvaluations)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("Tolerance must be > 0, got %g", c.Tolerance)
	}
	return nil
}

// ============================================================================
// FITTED MODEL
// ============================================================================

// Coefficient is one estimated fixed effect
type Coefficient struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
}

// VarianceComponent is one estimated random-intercept standard deviation
type VarianceComponent struct {
	Group  string  `json:"group"`
	StdDev float64 `json:"std_dev"`
}

// Model is the immutable result of one fit.
// INVARIANTS:
// - Objective is finite and is directly comparable between models fit on the
//   same observations under the same criterion (lower = better)
// - NObs > 0; Fixed includes the intercept so len(Fixed) >= 1
// - variance components and the residual standard deviation are >= 0
type Model struct {
	Formula        formula.Formula     `json:"-"`
	FormulaText    string              `json:"formula"`
	Criterion      Criterion           `json:"criterion"`
	Objective      float64             `json:"objective"` // -2 log likelihood at the optimum
	NObs           int                 `json:"n_obs"`
	Fixed          []Coefficient       `json:"fixed_effects"`
	Random         []VarianceComponent `json:"random_effects"`
	ResidualStdDev float64             `json:"residual_std_dev"`
	Evaluations    int                 `json:"evaluations"`
	FittedAt       core.Timestamp      `json:"fitted_at"`
	Fingerprint    core.FitFingerprint `json:"fingerprint"`
}

// NewModel creates a fitted model with invariant validation
func NewModel(f formula.Formula, criterion Criterion, objective float64, nObs int,
	fixed []Coefficient, random []VarianceComponent, residualStdDev float64,
	evaluations int, fingerprint core.FitFingerprint) (*Model, error) {

	if err := validateModel(criterion, objective, nObs, fixed, random, residualStdDev); err != nil {
		return nil, err
	}

	return &Model{
		Formula:        f,
		FormulaText:    f.String(),
		Criterion:      criterion,
		Objective:      objective,
		NObs:           nObs,
		Fixed:          fixed,
		Random:         random,
		ResidualStdDev: residualStdDev,
		Evaluations:    evaluations,
		FittedAt:       core.Now(),
		Fingerprint:    fingerprint,
	}, nil
}

// validateModel checks invariants for fitted models
func validateModel(criterion Criterion, objective float64, nObs int,
	fixed []Coefficient, random []VarianceComponent, residualStdDev float64) error {

	if !criterion.Valid() {
		return fmt.Errorf("unknown criterion %q", criterion)
	}
	if nObs <= 0 {
		return fmt.Errorf("NObs must be > 0, got %d", nObs)
	}
	if math.IsNaN(objective) || math.IsInf(objective, 0) {
		return fmt.Errorf("Objective must be finite, got %v", objective)
	}
	if len(fixed) == 0 {
		return fmt.Errorf("Fixed must include at least the intercept")
	}
	if residualStdDev < 0 || math.IsNaN(residualStdDev) {
		return fmt.Errorf("ResidualStdDev must be >= 0, got %v", residualStdDev)
	}
	for _, vc := range random {
		if vc.StdDev < 0 || math.IsNaN(vc.StdDev) {
			return fmt.Errorf("variance component %q must be >= 0, got %v", vc.Group, vc.StdDev)
		}
	}
	return nil
}

// DOF counts the parameters the likelihood was maximized over: fixed
// coefficients, one variance parameter per random intercept, and the
// residual variance. This is the count likelihood-ratio degrees of freedom
// are differenced from; nothing downstream assumes a particular difference.
func (m *Model) DOF() int {
	return len(m.Fixed) + len(m.Random) + 1
}

// Coefficient looks up a fixed effect by its design matrix column name
func (m *Model) Coefficient(name string) (Coefficient, bool) {
	for _, c := range m.Fixed {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// ============================================================================
// INPUT FINGERPRINTING
// ============================================================================

// ComputeInputFingerprint hashes everything that determines a fit result:
// dataset contents, the formula, and the parts of the configuration the
// optimizer sees. Two fits with equal input fingerprints must produce
// identical objectives.
func ComputeInputFingerprint(dataset core.DatasetFingerprint, f formula.Formula, cfg Config) core.FitFingerprint {
	cols := make([]string, 0, len(cfg.Contrasts))
	for col := range cfg.Contrasts {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	var contrasts strings.Builder
	for _, col := range cols {
		contrasts.WriteString(col)
		contrasts.WriteString("=")
		contrasts.WriteString(string(cfg.Contrasts[col]))
		contrasts.WriteString(",")
	}

	h := core.ComputeFieldsHash(
		dataset.String(),
		f.String(),
		string(cfg.Criterion),
		contrasts.String(),
		fmt.Sprintf("iter=%d;eval=%d;tol=%x", cfg.MaxIterations, cfg.MaxEvaluations, cfg.Tolerance),
	)
	return core.FitFingerprint(h)
}
