package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrScreenNotFound = fmt.Errorf("%w: screen", ErrNotFound)
	ErrColumnNotFound = fmt.Errorf("%w: column", ErrNotFound)

	// Data errors
	ErrColumnKind  = errors.New("column has wrong kind for this use")
	ErrMissingData = errors.New("missing value in referenced column")
	ErrEmptyTable  = errors.New("table has no rows")

	// Formula errors
	ErrEmptyResponse = errors.New("formula has no response")
	ErrDuplicateTerm = errors.New("term already present in formula")
	ErrEmptyTerm     = errors.New("term name cannot be empty")

	// Fit errors
	ErrRankDeficient     = errors.New("fixed-effects design is rank deficient")
	ErrNoConvergence     = errors.New("optimizer did not converge")
	ErrDegenerateFit     = errors.New("residual variance collapsed to zero")
	ErrConstantPredictor = errors.New("predictor has zero variance")

	// Comparison errors
	ErrDegenerateDF        = errors.New("degrees-of-freedom difference is not positive")
	ErrCriterionMismatch   = errors.New("models were fit under incompatible criteria")
	ErrObservationMismatch = errors.New("models were fit on different observation counts")
	ErrNotNested           = errors.New("candidate model does not nest the baseline")
)

// Error constructors with context
func NewColumnNotFoundError(column string) error {
	return fmt.Errorf("%w: %q", ErrColumnNotFound, column)
}

func NewColumnKindError(column string, want string) error {
	return fmt.Errorf("%w: %q must be %s", ErrColumnKind, column, want)
}

func NewMissingDataError(column string, row int) error {
	return fmt.Errorf("%w: %q at row %d", ErrMissingData, column, row)
}

func NewConstantPredictorError(column string) error {
	return fmt.Errorf("%w: %q", ErrConstantPredictor, column)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDataError(err error) bool {
	return errors.Is(err, ErrColumnKind) ||
		errors.Is(err, ErrMissingData) ||
		errors.Is(err, ErrEmptyTable) ||
		errors.Is(err, ErrColumnNotFound)
}

func IsFitError(err error) bool {
	return errors.Is(err, ErrRankDeficient) ||
		errors.Is(err, ErrNoConvergence) ||
		errors.Is(err, ErrDegenerateFit) ||
		errors.Is(err, ErrConstantPredictor)
}

func IsComparisonError(err error) bool {
	return errors.Is(err, ErrDegenerateDF) ||
		errors.Is(err, ErrCriterionMismatch) ||
		errors.Is(err, ErrObservationMismatch) ||
		errors.Is(err, ErrNotNested)
}
