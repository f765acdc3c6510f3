package buffer

import (
	"errors"
	"fmt"
)

// Sentinel errors for array value misuse. Callers match them with errors.Is.
var (
	// ErrInvalidOperand reports a placeholder (or otherwise dataless value)
	// used where element data is required.
	ErrInvalidOperand = errors.New("operand has no data")

	// ErrIndexOutOfRange reports a scalar index outside [0, length).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUnsupportedSlice reports a lazy slice whose bounds are not concrete.
	ErrUnsupportedSlice = errors.New("unsupported slice")

	// ErrIncompatibleView reports an element-type reinterpretation that does
	// not evenly divide the byte length of the last axis.
	ErrIncompatibleView = errors.New("incompatible view")
)

// ConsistencyError reports a producer contract breach: the materialized
// buffer's shape or element type disagrees with the declared metadata.
// It is raised by panic and must never be recovered into a retry.
type ConsistencyError struct {
	DeclaredShape Shape
	DeclaredDType DataType
	GotShape      Shape
	GotDType      DataType
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf(
		"virtual array declared shape %v dtype %s but materialized shape %v dtype %s",
		[]int(e.DeclaredShape), e.DeclaredDType, []int(e.GotShape), e.GotDType)
}
