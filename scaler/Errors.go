package scaler

import "errors"

// ScalerError implements errors unique to a Scaler
type ScalerError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *ScalerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ScalerError) Unwrap() error {
	return e.Err
}

// ErrInvalidInput reports a batch that violates the Scaler's shape or
// finiteness preconditions
var ErrInvalidInput = errors.New("invalid input")

// IsInvalidInput returns whether an error reports input that violates
// the Scaler's preconditions.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
