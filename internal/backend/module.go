package backend

import (
	"fmt"

	"github.com/ragged-ml/ragged/internal/buffer"
)

// Module implements Backend generically over an engine's Kernels, adding the
// routing rules for the two deferred representations: placeholders pass
// through shape-only operations and are rejected by value-reading ones;
// unmaterialized virtual arrays pass through shape-only operations as new
// unmaterialized results and are materialized before everything else.
type Module struct {
	kernels Kernels
}

// NewModule wraps engine kernels in the generic Backend implementation.
func NewModule(k Kernels) *Module {
	return &Module{kernels: k}
}

// Kernels exposes the wrapped engine kernels.
func (m *Module) Kernels() Kernels { return m.kernels }

// KnownData reports whether the engine holds readable data.
func (m *Module) KnownData() bool { return m.kernels.KnownData() }

// Name returns the engine name.
func (m *Module) Name() string { return m.kernels.Name() }

// Device returns the engine device.
func (m *Module) Device() buffer.Device { return m.kernels.Device() }

// PrepareUfunc lets the engine substitute its own kernel for a requested
// ufunc.
func (m *Module) PrepareUfunc(uf *Ufunc) *Ufunc { return m.kernels.PrepareUfunc(uf) }

// materializeAll unwraps every operand to an eager buffer: virtual arrays
// are materialized, placeholders are rejected with ErrInvalidOperand.
func (m *Module) materializeAll(op string, xs ...buffer.Array) ([]*buffer.Raw, error) {
	out := make([]*buffer.Raw, len(xs))
	for i, x := range xs {
		switch v := x.(type) {
		case *buffer.Raw:
			out[i] = v
		case *buffer.Virtual:
			raw, err := v.Materialize()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			out[i] = raw
		case *buffer.Placeholder:
			return nil, fmt.Errorf("%s: %w (placeholder of shape %v, dtype %s)",
				op, buffer.ErrInvalidOperand, []int(v.Shape()), v.DType())
		default:
			return nil, fmt.Errorf("%s: unsupported array value %T", op, x)
		}
	}
	return out, nil
}

// Asarray normalizes an array value to this engine. Placeholders and
// unmaterialized virtual arrays pass through untouched; materialized
// virtual arrays unwrap to their cached buffer.
func (m *Module) Asarray(x buffer.Array) (buffer.Array, error) {
	switch v := x.(type) {
	case *buffer.Placeholder:
		return v, nil
	case *buffer.Virtual:
		if !v.IsMaterialized() {
			return v, nil
		}
		return v.Materialize()
	case *buffer.Raw:
		return v, nil
	default:
		return nil, fmt.Errorf("Asarray: unsupported array value %T", x)
	}
}

// Zeros creates a zero-filled buffer.
func (m *Module) Zeros(shape buffer.Shape, dtype buffer.DataType) (*buffer.Raw, error) {
	return m.kernels.Zeros(shape, dtype)
}

// Ones creates a one-filled buffer.
func (m *Module) Ones(shape buffer.Shape, dtype buffer.DataType) (*buffer.Raw, error) {
	return m.kernels.Full(shape, dtype, 1)
}

// Full creates a buffer filled with value.
func (m *Module) Full(shape buffer.Shape, dtype buffer.DataType, value complex128) (*buffer.Raw, error) {
	return m.kernels.Full(shape, dtype, value)
}

// likeResult builds a fill-result matching x's declared shape and element
// type without reading x: placeholders stay placeholders, unmaterialized
// virtual arrays stay unmaterialized.
func (m *Module) likeResult(x buffer.Array, value complex128) (buffer.Array, error) {
	switch v := x.(type) {
	case *buffer.Placeholder:
		return buffer.NewPlaceholder(v.Shape(), v.DType(), m.Device()), nil
	case *buffer.Virtual:
		if !v.IsMaterialized() {
			return buffer.NewVirtual(v.Shape(), v.DType(), m.Device(), func() (*buffer.Raw, error) {
				return m.kernels.Full(v.Shape(), v.DType(), value)
			})
		}
	}
	return m.kernels.Full(x.Shape(), x.DType(), value)
}

// ZerosLike creates zeros with x's declared shape and element type.
func (m *Module) ZerosLike(x buffer.Array) (buffer.Array, error) { return m.likeResult(x, 0) }

// OnesLike creates ones with x's declared shape and element type.
func (m *Module) OnesLike(x buffer.Array) (buffer.Array, error) { return m.likeResult(x, 1) }

// FullLike creates a value-filled buffer with x's declared shape and element
// type.
func (m *Module) FullLike(x buffer.Array, value complex128) (buffer.Array, error) {
	return m.likeResult(x, value)
}

// Arange creates a 1D buffer of evenly spaced values.
func (m *Module) Arange(start, stop, step float64, dtype buffer.DataType) (*buffer.Raw, error) {
	return m.kernels.Arange(start, stop, step, dtype)
}

// ArrayEqual reports whether two arrays hold equal values.
func (m *Module) ArrayEqual(x1, x2 buffer.Array, equalNaN bool) (bool, error) {
	raws, err := m.materializeAll("ArrayEqual", x1, x2)
	if err != nil {
		return false, err
	}
	return m.kernels.ArrayEqual(raws[0], raws[1], equalNaN)
}

// SearchSorted finds insertion points of values into sorted x.
func (m *Module) SearchSorted(x, values buffer.Array, side Side) (*buffer.Raw, error) {
	raws, err := m.materializeAll("SearchSorted", x, values)
	if err != nil {
		return nil, err
	}
	return m.kernels.SearchSorted(raws[0], raws[1], side)
}

// BroadcastArrays materializes the operands and broadcasts them to a common
// shape.
func (m *Module) BroadcastArrays(xs ...buffer.Array) ([]*buffer.Raw, error) {
	raws, err := m.materializeAll("BroadcastArrays", xs...)
	if err != nil {
		return nil, err
	}
	return m.broadcastRaws(raws)
}

func (m *Module) broadcastRaws(raws []*buffer.Raw) ([]*buffer.Raw, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	common := raws[0].Shape()
	for _, r := range raws[1:] {
		var err error
		common, _, err = buffer.BroadcastShapes(common, r.Shape())
		if err != nil {
			return nil, err
		}
	}
	out := make([]*buffer.Raw, len(raws))
	for i, r := range raws {
		if r.Shape().Equal(common) {
			out[i] = r
			continue
		}
		b, err := m.kernels.BroadcastTo(r, common)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// BroadcastTo broadcasts x to shape.
func (m *Module) BroadcastTo(x buffer.Array, shape buffer.Shape) (*buffer.Raw, error) {
	raws, err := m.materializeAll("BroadcastTo", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.BroadcastTo(raws[0], shape)
}

// Reshape changes x's shape; one dimension may be Unknown and is resolved
// from the total element count. Placeholders and unmaterialized virtual
// arrays are reshaped without reading data.
func (m *Module) Reshape(x buffer.Array, shape buffer.Shape) (buffer.Array, error) {
	switch v := x.(type) {
	case *buffer.Placeholder:
		resolved, err := shape.ResolveDim(v.Shape())
		if err != nil {
			return nil, err
		}
		return buffer.NewPlaceholder(resolved, v.DType(), m.Device()), nil
	case *buffer.Virtual:
		if !v.IsMaterialized() {
			resolved, err := shape.ResolveDim(v.Shape())
			if err != nil {
				return nil, err
			}
			return buffer.NewVirtual(resolved, v.DType(), m.Device(), func() (*buffer.Raw, error) {
				raw, err := v.Materialize()
				if err != nil {
					return nil, err
				}
				return m.kernels.Reshape(raw, resolved)
			})
		}
	}
	raws, err := m.materializeAll("Reshape", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.Reshape(raws[0], shape)
}

// AsContiguous returns x with contiguously stored data, preserving deferred
// representations.
func (m *Module) AsContiguous(x buffer.Array) (buffer.Array, error) {
	switch v := x.(type) {
	case *buffer.Placeholder:
		return v, nil
	case *buffer.Virtual:
		return v.Contiguous(), nil
	}
	raws, err := m.materializeAll("AsContiguous", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.AsContiguous(raws[0])
}

// Concat concatenates arrays along the first axis.
func (m *Module) Concat(xs []buffer.Array) (*buffer.Raw, error) {
	raws, err := m.materializeAll("Concat", xs...)
	if err != nil {
		return nil, err
	}
	return m.kernels.Concat(raws)
}

// Stack stacks arrays along a new leading axis.
func (m *Module) Stack(xs []buffer.Array) (*buffer.Raw, error) {
	raws, err := m.materializeAll("Stack", xs...)
	if err != nil {
		return nil, err
	}
	return m.kernels.Stack(raws)
}

// Nonzero returns the per-axis indices of non-zero elements.
func (m *Module) Nonzero(x buffer.Array) ([]*buffer.Raw, error) {
	raws, err := m.materializeAll("Nonzero", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.Nonzero(raws[0])
}

// Where selects elements from x1 or x2 by cond.
func (m *Module) Where(cond, x1, x2 buffer.Array) (*buffer.Raw, error) {
	raws, err := m.materializeAll("Where", cond, x1, x2)
	if err != nil {
		return nil, err
	}
	return m.kernels.Where(raws[0], raws[1], raws[2])
}

// All reports whether every element is truthy.
func (m *Module) All(x buffer.Array) (bool, error) {
	raws, err := m.materializeAll("All", x)
	if err != nil {
		return false, err
	}
	return m.kernels.All(raws[0])
}

// Any reports whether any element is truthy.
func (m *Module) Any(x buffer.Array) (bool, error) {
	raws, err := m.materializeAll("Any", x)
	if err != nil {
		return false, err
	}
	return m.kernels.Any(raws[0])
}

// Min returns the minimum element.
func (m *Module) Min(x buffer.Array) (float64, error) {
	raws, err := m.materializeAll("Min", x)
	if err != nil {
		return 0, err
	}
	return m.kernels.Min(raws[0])
}

// Max returns the maximum element.
func (m *Module) Max(x buffer.Array) (float64, error) {
	raws, err := m.materializeAll("Max", x)
	if err != nil {
		return 0, err
	}
	return m.kernels.Max(raws[0])
}

// CountNonzero counts non-zero elements.
func (m *Module) CountNonzero(x buffer.Array) (int, error) {
	raws, err := m.materializeAll("CountNonzero", x)
	if err != nil {
		return 0, err
	}
	return m.kernels.CountNonzero(raws[0])
}

// CumSum returns the running sum over the flattened elements.
func (m *Module) CumSum(x buffer.Array) (*buffer.Raw, error) {
	raws, err := m.materializeAll("CumSum", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.CumSum(raws[0])
}

// Sort returns the sorted elements.
func (m *Module) Sort(x buffer.Array, descending, stable bool) (*buffer.Raw, error) {
	raws, err := m.materializeAll("Sort", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.Sort(raws[0], descending, stable)
}

// UniqueValues returns the sorted distinct elements.
func (m *Module) UniqueValues(x buffer.Array) (*buffer.Raw, error) {
	raws, err := m.materializeAll("UniqueValues", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.UniqueValues(raws[0])
}

// UniqueAll returns distinct elements with indices, inverse and counts.
func (m *Module) UniqueAll(x buffer.Array) (UniqueAllResult, error) {
	raws, err := m.materializeAll("UniqueAll", x)
	if err != nil {
		return UniqueAllResult{}, err
	}
	return m.kernels.UniqueAll(raws[0])
}

// PackBits packs a boolean array into uint8 bits.
func (m *Module) PackBits(x buffer.Array, order BitOrder) (*buffer.Raw, error) {
	raws, err := m.materializeAll("PackBits", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.PackBits(raws[0], order)
}

// UnpackBits unpacks a uint8 array into count booleans.
func (m *Module) UnpackBits(x buffer.Array, count int, order BitOrder) (*buffer.Raw, error) {
	raws, err := m.materializeAll("UnpackBits", x)
	if err != nil {
		return nil, err
	}
	return m.kernels.UnpackBits(raws[0], count, order)
}

// Strides returns element strides. Placeholders are assumed contiguous so
// the query never needs data.
func (m *Module) Strides(x buffer.Array) ([]int, error) {
	if p, ok := x.(*buffer.Placeholder); ok {
		return p.Shape().ComputeStrides(), nil
	}
	raws, err := m.materializeAll("Strides", x)
	if err != nil {
		return nil, err
	}
	return raws[0].Strides(), nil
}

// IsCContiguous reports whether x's data is stored contiguously. Placeholders
// are assumed contiguous.
func (m *Module) IsCContiguous(x buffer.Array) (bool, error) {
	if _, ok := x.(*buffer.Placeholder); ok {
		return true, nil
	}
	raws, err := m.materializeAll("IsCContiguous", x)
	if err != nil {
		return false, err
	}
	return m.kernels.IsCContiguous(raws[0])
}

// MemoryPtr returns the address of the first element, materializing first.
func (m *Module) MemoryPtr(x buffer.Array) (uintptr, error) {
	raws, err := m.materializeAll("MemoryPtr", x)
	if err != nil {
		return 0, err
	}
	return m.kernels.MemoryPtr(raws[0])
}

// ApplyUfunc applies an elementwise function. All operands are materialized
// first (real computation breaks laziness), broadcast to a common shape, and
// handed to the engine kernel chosen by PrepareUfunc. Non-array operands
// must be Go scalars (bool, int, int64, float64, complex128).
func (m *Module) ApplyUfunc(uf *Ufunc, args []any) (buffer.Array, error) {
	if len(args) != uf.NIn {
		return nil, fmt.Errorf("ufunc %s takes %d operands, got %d", uf.Name, uf.NIn, len(args))
	}
	if m.kernels.SupportsDTypeResolution() && uf.ResolveDTypes != nil {
		return m.applyUfuncStrict(uf, args)
	}
	return m.applyUfuncLegacy(uf, args)
}

// applyUfuncStrict resolves the output element type from the operand element
// types alone, before any value is touched.
func (m *Module) applyUfuncStrict(uf *Ufunc, args []any) (buffer.Array, error) {
	dtypes := make([]buffer.DataType, len(args))
	for i, arg := range args {
		dt, err := operandDType(arg)
		if err != nil {
			return nil, fmt.Errorf("ufunc %s: %w", uf.Name, err)
		}
		dtypes[i] = dt
	}
	out, err := uf.ResolveDTypes(dtypes)
	if err != nil {
		return nil, fmt.Errorf("ufunc %s: %w", uf.Name, err)
	}

	raws, err := m.coerceOperands(uf.Name, args, dtypes)
	if err != nil {
		return nil, err
	}
	broadcast, err := m.broadcastRaws(raws)
	if err != nil {
		return nil, fmt.Errorf("ufunc %s: %w", uf.Name, err)
	}
	impl := m.kernels.PrepareUfunc(uf)
	return m.kernels.Apply(impl, broadcast, out)
}

// applyUfuncLegacy coerces operands by inspecting values: scalars adopt the
// promoted element type of the array operands instead of forcing a wider
// result.
func (m *Module) applyUfuncLegacy(uf *Ufunc, args []any) (buffer.Array, error) {
	var arrayDType buffer.DataType
	haveArray := false
	for _, arg := range args {
		if a, ok := arg.(buffer.Array); ok {
			if !haveArray {
				arrayDType = a.DType()
				haveArray = true
				continue
			}
			var err error
			arrayDType, err = Promote(arrayDType, a.DType())
			if err != nil {
				return nil, fmt.Errorf("ufunc %s: %w", uf.Name, err)
			}
		}
	}

	dtypes := make([]buffer.DataType, len(args))
	for i, arg := range args {
		if a, ok := arg.(buffer.Array); ok {
			dtypes[i] = a.DType()
			continue
		}
		if haveArray {
			dtypes[i] = arrayDType
			continue
		}
		dt, err := operandDType(arg)
		if err != nil {
			return nil, fmt.Errorf("ufunc %s: %w", uf.Name, err)
		}
		dtypes[i] = dt
	}
	out, err := promoteAll(dtypes)
	if err != nil {
		return nil, fmt.Errorf("ufunc %s: %w", uf.Name, err)
	}
	if uf.ResolveDTypes != nil {
		// Comparisons stay boolean on the legacy path too.
		if resolved, rerr := uf.ResolveDTypes(dtypes); rerr == nil && resolved == buffer.Bool {
			out = buffer.Bool
		}
	}

	raws, err := m.coerceOperands(uf.Name, args, dtypes)
	if err != nil {
		return nil, err
	}
	broadcast, err := m.broadcastRaws(raws)
	if err != nil {
		return nil, fmt.Errorf("ufunc %s: %w", uf.Name, err)
	}
	impl := m.kernels.PrepareUfunc(uf)
	return m.kernels.Apply(impl, broadcast, out)
}

// coerceOperands materializes array operands and lifts scalars to 0-d
// buffers of the per-operand element types.
func (m *Module) coerceOperands(op string, args []any, dtypes []buffer.DataType) ([]*buffer.Raw, error) {
	raws := make([]*buffer.Raw, len(args))
	for i, arg := range args {
		if a, ok := arg.(buffer.Array); ok {
			got, err := m.materializeAll(op, a)
			if err != nil {
				return nil, err
			}
			raws[i] = got[0]
			continue
		}
		r, err := scalarRaw(arg, dtypes[i], m.Device())
		if err != nil {
			return nil, fmt.Errorf("ufunc %s: %w", op, err)
		}
		raws[i] = r
	}
	return raws, nil
}

// operandDType maps an operand to its declared element type; Go scalars get
// their natural one.
func operandDType(arg any) (buffer.DataType, error) {
	switch v := arg.(type) {
	case buffer.Array:
		return v.DType(), nil
	case bool:
		return buffer.Bool, nil
	case int:
		return buffer.Int64, nil
	case int64:
		return buffer.Int64, nil
	case float64:
		return buffer.Float64, nil
	case complex128:
		return buffer.Complex128, nil
	default:
		return 0, fmt.Errorf("unsupported operand %T", arg)
	}
}

// scalarRaw lifts a Go scalar to a 0-d buffer of dtype.
func scalarRaw(arg any, dtype buffer.DataType, device buffer.Device) (*buffer.Raw, error) {
	r, err := buffer.NewRaw(buffer.Shape{}, dtype, device)
	if err != nil {
		return nil, err
	}
	switch v := arg.(type) {
	case bool:
		if v {
			r.SetFloat64(0, 1)
		}
	case int:
		r.SetFloat64(0, float64(v))
	case int64:
		r.SetFloat64(0, float64(v))
	case float64:
		r.SetFloat64(0, v)
	case complex128:
		r.SetComplex128(0, v)
	default:
		return nil, fmt.Errorf("unsupported operand %T", arg)
	}
	return r, nil
}
