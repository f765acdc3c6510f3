package buffer

import (
	"fmt"
	"math"
)

// Unknown marks a dimension or bound whose value has not been resolved yet.
// Eager buffers and virtual arrays never carry it; it can appear in a
// requested reshape and is resolved from the total element count. It sits
// outside the valid index range so it can never collide with a negative
// count-from-the-end index.
const Unknown = math.MinInt

// Shape represents the dimensions of an array.
type Shape []int

// NumElements returns the total number of elements.
// A scalar (empty shape) has one element.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that all dimensions are concrete and non-negative.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// HasUnknown reports whether any dimension is Unknown.
func (s Shape) HasUnknown() bool {
	for _, dim := range s {
		if dim == Unknown {
			return true
		}
	}
	return false
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides (in elements) for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}
	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// ResolveDim resolves at most one Unknown dimension in s against the total
// element count of existing. The product of the concrete dimensions must
// divide the existing element count.
func (s Shape) ResolveDim(existing Shape) (Shape, error) {
	next := s.Clone()
	unknownAt := -1
	factor := 1
	for i, dim := range s {
		if dim != Unknown {
			factor *= dim
			continue
		}
		if unknownAt >= 0 {
			return nil, fmt.Errorf("shape %v has more than one unknown dimension", []int(s))
		}
		unknownAt = i
	}
	if unknownAt < 0 {
		return next, nil
	}
	total := existing.NumElements()
	if factor == 0 || total%factor != 0 {
		return nil, fmt.Errorf("cannot resolve unknown dimension of %v against %d elements", []int(s), total)
	}
	next[unknownAt] = total / factor
	return next, nil
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Dimensions are compared right to left; they are compatible when equal or
// when one of them is 1. Missing leading dimensions are treated as 1.
// Returns the broadcast shape and whether any operand needs broadcasting.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	maxLen := max(len(a), len(b))
	result := make(Shape, maxLen)
	needsBroadcast := false

	for i := 0; i < maxLen; i++ {
		aDim, bDim := 1, 1
		if j := len(a) - 1 - i; j >= 0 {
			aDim = a[j]
		}
		if j := len(b) - 1 - i; j >= 0 {
			bDim = b[j]
		}

		switch {
		case aDim == bDim:
			result[maxLen-1-i] = aDim
		case aDim == 1:
			result[maxLen-1-i] = bDim
			needsBroadcast = true
		case bDim == 1:
			result[maxLen-1-i] = aDim
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				[]int(a), []int(b), maxLen-1-i, aDim, bDim)
		}
	}

	return result, needsBroadcast, nil
}
