package unitconv

import (
	"errors"
	"fmt"
)

var (
	ErrUnitNotFound          = errors.New("unit not found")
	ErrCycleDetected         = errors.New("unit chain contains a cycle")
	ErrChainTooLong          = errors.New("unit chain exceeds maximum depth")
	ErrDivisionByZero        = errors.New("division by zero in unit conversion")
	ErrIncompatibleUnits     = errors.New("units do not share a base unit")
	ErrInvalidUnitDefinition = errors.New("invalid unit definition")
)

// ConversionError carries the unit at which a conversion failed.
// It unwraps to one of the sentinel errors above.
type ConversionError struct {
	Err    error
	UnitID int64
	Detail string
}

func (e *ConversionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v (unit %d): %s", e.Err, e.UnitID, e.Detail)
	}
	return fmt.Sprintf("%v (unit %d)", e.Err, e.UnitID)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func fail(err error, unitID int64, detail string) error {
	return &ConversionError{Err: err, UnitID: unitID, Detail: detail}
}
