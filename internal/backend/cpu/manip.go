package cpu

import (
	"fmt"

	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/buffer"
)

// BroadcastTo expands x to shape by repeating size-1 and missing leading
// axes. Scalars broadcast to any shape.
func (kernels) BroadcastTo(x *buffer.Raw, shape buffer.Shape) (*buffer.Raw, error) {
	common, _, err := buffer.BroadcastShapes(x.Shape(), shape)
	if err != nil {
		return nil, fmt.Errorf("BroadcastTo: %w", err)
	}
	if !common.Equal(shape) {
		return nil, fmt.Errorf("BroadcastTo: cannot broadcast %v to %v", []int(x.Shape()), []int(shape))
	}
	if x.Shape().Equal(shape) {
		return x, nil
	}

	out, err := buffer.NewRaw(shape, x.DType(), buffer.CPU)
	if err != nil {
		return nil, err
	}
	srcShape := x.Shape()
	srcStrides := x.Strides()
	offset := len(shape) - len(srcShape)
	idx := make([]int, len(shape))
	for flat := 0; flat < out.NumElements(); flat++ {
		rem := flat
		for i := len(shape) - 1; i >= 0; i-- {
			idx[i] = rem % shape[i]
			rem /= shape[i]
		}
		src := 0
		for i, dim := range srcShape {
			if dim != 1 {
				src += idx[i+offset] * srcStrides[i]
			}
		}
		out.SetComplex128(flat, x.GetComplex128(src))
	}
	return out, nil
}

func (kernels) Reshape(x *buffer.Raw, shape buffer.Shape) (*buffer.Raw, error) {
	return x.WithShape(shape)
}

func (kernels) AsContiguous(x *buffer.Raw) (*buffer.Raw, error) {
	return x.Contiguous(), nil
}

// Concat joins buffers along the first axis. Element types and trailing
// dimensions must agree.
func (kernels) Concat(xs []*buffer.Raw) (*buffer.Raw, error) {
	if len(xs) == 0 {
		return nil, fmt.Errorf("Concat: requires at least one buffer")
	}
	first := xs[0]
	if len(first.Shape()) == 0 {
		return nil, fmt.Errorf("Concat: cannot concatenate scalar buffers")
	}
	total := 0
	for _, x := range xs {
		if x.DType() != first.DType() {
			return nil, fmt.Errorf("Concat: element types differ: %s vs %s", first.DType(), x.DType())
		}
		if len(x.Shape()) != len(first.Shape()) || !x.Shape()[1:].Equal(first.Shape()[1:]) {
			return nil, fmt.Errorf("Concat: trailing dimensions differ: %v vs %v",
				[]int(first.Shape()), []int(x.Shape()))
		}
		total += x.Shape()[0]
	}

	shape := first.Shape().Clone()
	shape[0] = total
	out, err := buffer.NewRaw(shape, first.DType(), buffer.CPU)
	if err != nil {
		return nil, err
	}
	at := 0
	for _, x := range xs {
		at += copy(out.Data()[at:], x.Data())
	}
	return out, nil
}

// Stack joins equally shaped buffers along a new leading axis.
func (kernels) Stack(xs []*buffer.Raw) (*buffer.Raw, error) {
	if len(xs) == 0 {
		return nil, fmt.Errorf("Stack: requires at least one buffer")
	}
	first := xs[0]
	for _, x := range xs {
		if x.DType() != first.DType() {
			return nil, fmt.Errorf("Stack: element types differ: %s vs %s", first.DType(), x.DType())
		}
		if !x.Shape().Equal(first.Shape()) {
			return nil, fmt.Errorf("Stack: shapes differ: %v vs %v", []int(first.Shape()), []int(x.Shape()))
		}
	}

	shape := append(buffer.Shape{len(xs)}, first.Shape()...)
	out, err := buffer.NewRaw(shape, first.DType(), buffer.CPU)
	if err != nil {
		return nil, err
	}
	at := 0
	for _, x := range xs {
		at += copy(out.Data()[at:], x.Data())
	}
	return out, nil
}

// Nonzero returns one int64 index buffer per axis, listing the coordinates
// of every non-zero element in row-major order.
func (k kernels) Nonzero(x *buffer.Raw) ([]*buffer.Raw, error) {
	ndim := len(x.Shape())
	var hits [][]int
	idx := make([]int, ndim)
	for flat := 0; flat < x.NumElements(); flat++ {
		rem := flat
		for i := ndim - 1; i >= 0; i-- {
			idx[i] = rem % x.Shape()[i]
			rem /= x.Shape()[i]
		}
		if x.GetComplex128(flat) != 0 {
			hits = append(hits, append([]int(nil), idx...))
		}
	}

	out := make([]*buffer.Raw, ndim)
	for axis := 0; axis < ndim; axis++ {
		coords := make([]int64, len(hits))
		for i, hit := range hits {
			coords[i] = int64(hit[axis])
		}
		r, err := buffer.FromInt64s(coords, buffer.Shape{len(coords)})
		if err != nil {
			return nil, err
		}
		out[axis] = r
	}
	return out, nil
}

// Where selects elements from x1 where cond is truthy, x2 otherwise. The
// operands broadcast against each other; the result takes the promoted
// element type of x1 and x2.
func (k kernels) Where(cond, x1, x2 *buffer.Raw) (*buffer.Raw, error) {
	shape, _, err := buffer.BroadcastShapes(cond.Shape(), x1.Shape())
	if err != nil {
		return nil, fmt.Errorf("Where: %w", err)
	}
	shape, _, err = buffer.BroadcastShapes(shape, x2.Shape())
	if err != nil {
		return nil, fmt.Errorf("Where: %w", err)
	}
	dtype, err := backend.Promote(x1.DType(), x2.DType())
	if err != nil {
		return nil, fmt.Errorf("Where: %w", err)
	}

	bc, err := k.BroadcastTo(cond, shape)
	if err != nil {
		return nil, err
	}
	b1, err := k.BroadcastTo(x1, shape)
	if err != nil {
		return nil, err
	}
	b2, err := k.BroadcastTo(x2, shape)
	if err != nil {
		return nil, err
	}

	out, err := buffer.NewRaw(shape, dtype, buffer.CPU)
	if err != nil {
		return nil, err
	}
	for i := 0; i < out.NumElements(); i++ {
		if bc.GetComplex128(i) != 0 {
			out.SetComplex128(i, b1.GetComplex128(i))
		} else {
			out.SetComplex128(i, b2.GetComplex128(i))
		}
	}
	return out, nil
}
