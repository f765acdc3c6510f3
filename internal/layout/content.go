// Package layout implements the live array nodes: the materialized
// counterparts of schema tree nodes, holding index/mask/offset buffers and
// child nodes. Literal constructors validate structure and fail with
// ErrInvalidLayout; the canonicalizing constructors in simplify.go may
// collapse redundant nesting instead.
package layout

import (
	"errors"
	"fmt"

	"github.com/ragged-ml/ragged/internal/buffer"
	"github.com/ragged-ml/ragged/internal/forms"
)

// ErrInvalidLayout reports a structurally inconsistent combination of
// buffers and node kinds.
var ErrInvalidLayout = errors.New("invalid layout")

// Content is one node of a live array tree.
type Content interface {
	// Class returns the node kind name, matching the schema vocabulary.
	Class() string

	// Length returns the number of elements, from declared metadata alone.
	Length() int

	// Form derives the schema describing this node. Derived forms carry no
	// form keys.
	Form() (forms.Form, error)

	// ToList materializes the node into native Go values: one entry per
	// element, nil for missing option elements, nested slices for lists,
	// maps for named records.
	ToList() ([]any, error)
}

// Index wraps a one-dimensional integer array used as an index, mask,
// offsets, or tags buffer.
type Index struct {
	data buffer.Array
}

// NewIndex validates and wraps an index buffer.
func NewIndex(data buffer.Array) (Index, error) {
	if data == nil {
		return Index{}, fmt.Errorf("%w: index buffer is nil", ErrInvalidLayout)
	}
	if len(data.Shape()) != 1 {
		return Index{}, fmt.Errorf("%w: index buffers must be one-dimensional, got shape %v",
			ErrInvalidLayout, []int(data.Shape()))
	}
	if dt := data.DType(); !dt.IsInteger() {
		return Index{}, fmt.Errorf("%w: index buffers must hold integers, got %s", ErrInvalidLayout, dt)
	}
	return Index{data: data}, nil
}

// Data returns the wrapped array, possibly still unmaterialized.
func (ix Index) Data() buffer.Array { return ix.data }

// Len returns the declared number of entries without materializing.
func (ix Index) Len() int { return ix.data.Len() }

// DType returns the declared element type.
func (ix Index) DType() buffer.DataType { return ix.data.DType() }

// Width returns the schema index width of the entries.
func (ix Index) Width() (forms.Index, error) {
	return forms.IndexFor(ix.data.DType())
}

// Values materializes the index and widens every entry to int64.
func (ix Index) Values() ([]int64, error) {
	raw, err := materialize(ix.data)
	if err != nil {
		return nil, err
	}
	out := make([]int64, raw.NumElements())
	for i := range out {
		out[i] = int64(raw.GetFloat64(i))
	}
	return out, nil
}

// materialize unwraps an array value to an eager buffer.
func materialize(x buffer.Array) (*buffer.Raw, error) {
	switch v := x.(type) {
	case *buffer.Raw:
		return v, nil
	case *buffer.Virtual:
		return v.Materialize()
	default:
		return nil, fmt.Errorf("%w: cannot read values of %T", buffer.ErrInvalidOperand, x)
	}
}
