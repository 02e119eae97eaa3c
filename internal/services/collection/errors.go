package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an operator input is not valid in the current state
	ErrInvalidTransition = errors.New("operation not allowed in current state")

	// ErrDuplicateRecord is returned when a bin already has a record and the input cannot override it
	ErrDuplicateRecord = errors.New("bin already has a record this session")

	// ErrSensorFailure is returned by a Sensor that could not produce a reading
	ErrSensorFailure = errors.New("sensor reading failed")

	ErrInvalidReason = errors.New("invalid missed reason")
	ErrInvalidWeight = errors.New("weight must be a non-negative number")
)

// InvalidBinError reports a scanned ID that is not in the catalog
type InvalidBinError struct {
	BinID string
}

func (e *InvalidBinError) Error() string {
	return fmt.Sprintf("invalid bin id %q", e.BinID)
}

func transitionError(op string, state State) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, state)
}
