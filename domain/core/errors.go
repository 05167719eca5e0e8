package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrInvalidSpecification is fatal: fitting does not proceed.
	ErrInvalidSpecification  = errors.New("invalid specification")
	ErrUnknownColumn         = fmt.Errorf("%w: unknown column", ErrInvalidSpecification)
	ErrUnknownFamily         = fmt.Errorf("%w: unknown family", ErrInvalidSpecification)
	ErrUnsupportedLink       = fmt.Errorf("%w: unsupported link", ErrInvalidSpecification)
	ErrUnknownModifier       = fmt.Errorf("%w: unknown response modifier", ErrInvalidSpecification)
	ErrUnresolvedCoefficient = fmt.Errorf("%w: unresolved group-level coefficient", ErrInvalidSpecification)
	ErrUnknownPriorClass     = fmt.Errorf("%w: unknown prior class", ErrInvalidSpecification)
	ErrUnknownDistribution   = fmt.Errorf("%w: unknown distribution", ErrInvalidSpecification)
	ErrUnmatchedPrior        = fmt.Errorf("%w: prior matches no parameter", ErrInvalidSpecification)
	ErrInvalidControl        = fmt.Errorf("%w: invalid sampler control", ErrInvalidSpecification)

	// Not found errors
	ErrNotFound          = errors.New("resource not found")
	ErrFitNotFound       = fmt.Errorf("%w: fit", ErrNotFound)
	ErrParameterNotFound = fmt.Errorf("%w: parameter", ErrNotFound)

	// Analysis errors
	ErrIncomparableFits  = errors.New("fits are not comparable")
	ErrInvalidHypothesis = errors.New("invalid hypothesis")
	ErrInsufficientDraws = errors.New("insufficient draws for analysis")
	ErrNonFiniteLogLik   = errors.New("non-finite pointwise log-likelihood")
)

// NewSpecificationError reports an invalid field of a model specification.
func NewSpecificationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidSpecification, field, reason)
}

func NewUnknownColumnError(role, column string) error {
	return fmt.Errorf("%w %q referenced as %s", ErrUnknownColumn, column, role)
}

func NewHypothesisError(expr string, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidHypothesis, expr, reason)
}

// Error checking helpers
func IsInvalidSpecification(err error) bool {
	return errors.Is(err, ErrInvalidSpecification)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
