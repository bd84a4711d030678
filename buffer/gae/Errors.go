package gae

import "errors"

// GAEError implements errors raised while computing returns,
// advantages, or training batches
type GAEError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (g *GAEError) Error() string {
	return g.Op + ": " + g.Err.Error()
}

// Unwrap returns the underlying error
func (g *GAEError) Unwrap() error {
	return g.Err
}

// ErrInvalidInput denotes trajectories or batches that violate the
// preconditions of an operation, such as mismatched lengths
var ErrInvalidInput = errors.New("invalid input")

// IsInvalidInput returns whether an error reports trajectories or
// batches that violate the preconditions of an operation
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func invalid(op, format string, args ...interface{}) error {
	return &GAEError{Op: op, Err: wrapf(ErrInvalidInput, format, args...)}
}
