package formula

import (
	"fmt"
	"strings"

	"golmer/domain/core"
)

// ============================================================================
// TERMS
// ============================================================================

// FixedTerm names a predictor column contributing fixed-effect coefficients
type FixedTerm struct {
	Column string `json:"column"`
}

// RandomTerm names a grouping column contributing a random intercept, (1 | Group)
type RandomTerm struct {
	Group string `json:"group"`
}

// ============================================================================
// FORMULA
// ============================================================================

// Formula is an explicit model description: a response, ordered fixed terms
// and ordered random-intercept terms. The intercept is always present.
// INVARIANTS:
// - term order is construction order and is never re-sorted
// - a Formula value is immutable; With* operations return a new value and
//   share no backing arrays with the receiver
type Formula struct {
	response string
	fixed    []FixedTerm
	random   []RandomTerm
}

// New creates an intercept-only formula for a response column
func New(response string) (Formula, error) {
	if strings.TrimSpace(response) == "" {
		return Formula{}, core.ErrEmptyResponse
	}
	return Formula{response: response}, nil
}

// MustNew creates a formula (panics on invalid input)
// Use only in tests and development - production code should handle validation errors
func MustNew(response string) Formula {
	f, err := New(response)
	if err != nil {
		panic(err)
	}
	return f
}

// WithFixed returns a new formula with one fixed term appended.
// The receiver is not modified.
func (f Formula) WithFixed(column string) Formula {
	fixed := make([]FixedTerm, len(f.fixed), len(f.fixed)+1)
	copy(fixed, f.fixed)
	fixed = append(fixed, FixedTerm{Column: column})
	return Formula{
		response: f.response,
		fixed:    fixed,
		random:   copyRandom(f.random),
	}
}

// WithRandomIntercept returns a new formula with one random-intercept term appended.
// The receiver is not modified.
func (f Formula) WithRandomIntercept(group string) Formula {
	random := make([]RandomTerm, len(f.random), len(f.random)+1)
	copy(random, f.random)
	random = append(random, RandomTerm{Group: group})
	return Formula{
		response: f.response,
		fixed:    copyFixed(f.fixed),
		random:   random,
	}
}

// Response returns the response column name
func (f Formula) Response() string { return f.response }

// FixedTerms returns the fixed terms in order
func (f Formula) FixedTerms() []FixedTerm { return copyFixed(f.fixed) }

// RandomTerms returns the random-intercept terms in order
func (f Formula) RandomTerms() []RandomTerm { return copyRandom(f.random) }

// NumFixed returns the count of fixed terms (intercept excluded)
func (f Formula) NumFixed() int { return len(f.fixed) }

// NumRandom returns the count of random-intercept terms
func (f Formula) NumRandom() int { return len(f.random) }

// HasFixed reports whether a column is already a fixed term
func (f Formula) HasFixed(column string) bool {
	for _, t := range f.fixed {
		if t.Column == column {
			return true
		}
	}
	return false
}

// HasRandom reports whether a group already has a random intercept
func (f Formula) HasRandom(group string) bool {
	for _, t := range f.random {
		if t.Group == group {
			return true
		}
	}
	return false
}

// Validate checks structural invariants: non-empty response, non-empty
// unique term names, no column serving as both fixed term and grouping term.
func (f Formula) Validate() error {
	if strings.TrimSpace(f.response) == "" {
		return core.ErrEmptyResponse
	}
	seen := make(map[string]bool, len(f.fixed)+len(f.random))
	for _, t := range f.fixed {
		if strings.TrimSpace(t.Column) == "" {
			return fmt.Errorf("%w: fixed term", core.ErrEmptyTerm)
		}
		if t.Column == f.response {
			return fmt.Errorf("fixed term %q matches the response", t.Column)
		}
		if seen[t.Column] {
			return fmt.Errorf("%w: fixed term %q", core.ErrDuplicateTerm, t.Column)
		}
		seen[t.Column] = true
	}
	for _, t := range f.random {
		if strings.TrimSpace(t.Group) == "" {
			return fmt.Errorf("%w: random intercept", core.ErrEmptyTerm)
		}
		if t.Group == f.response {
			return fmt.Errorf("grouping term %q matches the response", t.Group)
		}
		if seen[t.Group] {
			return fmt.Errorf("%w: grouping term %q", core.ErrDuplicateTerm, t.Group)
		}
		seen[t.Group] = true
	}
	return nil
}

// String renders the formula in the conventional notation,
// e.g. "rt ~ 1 + freq + (1 | subject) + (1 | item)"
func (f Formula) String() string {
	var b strings.Builder
	b.WriteString(f.response)
	b.WriteString(" ~ 1")
	for _, t := range f.fixed {
		b.WriteString(" + ")
		b.WriteString(t.Column)
	}
	for _, t := range f.random {
		b.WriteString(" + (1 | ")
		b.WriteString(t.Group)
		b.WriteString(")")
	}
	return b.String()
}

func copyFixed(terms []FixedTerm) []FixedTerm {
	if len(terms) == 0 {
		return nil
	}
	out := make([]FixedTerm, len(terms))
	copy(out, terms)
	return out
}

func copyRandom(terms []RandomTerm) []RandomTerm {
	if len(terms) == 0 {
		return nil
	}
	out := make([]RandomTerm, len(terms))
	copy(out, terms)
	return out
}

// ============================================================================
// CANDIDATE GENERATION
// ============================================================================

// Candidates builds one candidate formula per predictor: the baseline plus
// that single predictor as the last fixed term. Output order equals input
// order. The baseline is never modified.
func Candidates(base Formula, predictors []string) ([]Formula, error) {
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("invalid baseline: %w", err)
	}
	seen := make(map[string]bool, len(predictors))
	out := make([]Formula, 0, len(predictors))
	for i, p := range predictors {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("%w: predictor %d", core.ErrEmptyTerm, i)
		}
		if base.HasFixed(p) || base.HasRandom(p) || p == base.Response() {
			return nil, fmt.Errorf("%w: predictor %q already appears in the baseline", core.ErrDuplicateTerm, p)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: predictor %q listed twice", core.ErrDuplicateTerm, p)
		}
		seen[p] = true
		out = append(out, base.WithFixed(p))
	}
	return out, nil
}
