package domain

import "errors"

// Simulation and indicator errors. Callers classify them with errors.Is.
var (
	// ErrInvalidParameter reports malformed simulation or indicator inputs.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrNumericInstability reports a generated price that is no longer finite and positive.
	ErrNumericInstability = errors.New("numeric instability")
	// ErrInvariantViolation reports an assembled bar outside its open/close envelope.
	// It indicates a generator defect, never a user input problem.
	ErrInvariantViolation = errors.New("invariant violation")
)
