package buffer

import (
	"fmt"
	"unsafe"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Raw is the eager byte-backed array. Data is stored contiguously in
// row-major order; typed access is zero-copy via unsafe.Slice.
type Raw struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw creates a zero-initialized Raw with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Raw{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the buffer's shape.
func (r *Raw) Shape() Shape { return r.shape }

// DType returns the buffer's element type.
func (r *Raw) DType() DataType { return r.dtype }

// Device returns the buffer's compute device.
func (r *Raw) Device() Device { return r.device }

// Strides returns the buffer's element strides.
func (r *Raw) Strides() []int { return r.stride }

// Len returns the length of the first axis (1 for scalars).
func (r *Raw) Len() int {
	if len(r.shape) == 0 {
		return 1
	}
	return r.shape[0]
}

// NumElements returns the total number of elements.
func (r *Raw) NumElements() int { return r.shape.NumElements() }

// ByteSize returns the total memory size in bytes.
func (r *Raw) ByteSize() int { return r.NumElements() * r.dtype.Size() }

// Data returns the raw byte slice.
// WARNING: direct access to underlying memory.
func (r *Raw) Data() []byte { return r.data }

func (r *Raw) checkDType(want DataType) {
	if r.dtype != want {
		panic(fmt.Sprintf("buffer dtype is %s, not %s", r.dtype, want))
	}
}

// AsFloat32 interprets the data as []float32. Panics on dtype mismatch.
func (r *Raw) AsFloat32() []float32 {
	r.checkDType(Float32)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64. Panics on dtype mismatch.
func (r *Raw) AsFloat64() []float64 {
	r.checkDType(Float64)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt8 interprets the data as []int8. Panics on dtype mismatch.
func (r *Raw) AsInt8() []int8 {
	r.checkDType(Int8)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt16 interprets the data as []int16. Panics on dtype mismatch.
func (r *Raw) AsInt16() []int16 {
	r.checkDType(Int16)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32. Panics on dtype mismatch.
func (r *Raw) AsInt32() []int32 {
	r.checkDType(Int32)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt64 interprets the data as []int64. Panics on dtype mismatch.
func (r *Raw) AsInt64() []int64 {
	r.checkDType(Int64)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsUint8 interprets the data as []uint8. Panics on dtype mismatch.
func (r *Raw) AsUint8() []uint8 {
	r.checkDType(Uint8)
	return r.data
}

// AsUint16 interprets the data as []uint16. Panics on dtype mismatch.
func (r *Raw) AsUint16() []uint16 {
	r.checkDType(Uint16)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsUint32 interprets the data as []uint32. Panics on dtype mismatch.
func (r *Raw) AsUint32() []uint32 {
	r.checkDType(Uint32)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsUint64 interprets the data as []uint64. Panics on dtype mismatch.
func (r *Raw) AsUint64() []uint64 {
	r.checkDType(Uint64)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsBool interprets the data as []bool. Panics on dtype mismatch.
func (r *Raw) AsBool() []bool {
	r.checkDType(Bool)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*bool)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat16 interprets the data as IEEE binary16 values.
// Panics on dtype mismatch.
func (r *Raw) AsFloat16() []float16.Float16 {
	r.checkDType(Float16)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*float16.Float16)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsBFloat16 interprets the data as brain-float16 values.
// Panics on dtype mismatch.
func (r *Raw) AsBFloat16() []bfloat16.BF16 {
	r.checkDType(BFloat16)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*bfloat16.BF16)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsComplex64 interprets the data as []complex64. Panics on dtype mismatch.
func (r *Raw) AsComplex64() []complex64 {
	r.checkDType(Complex64)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*complex64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsComplex128 interprets the data as []complex128. Panics on dtype mismatch.
func (r *Raw) AsComplex128() []complex128 {
	r.checkDType(Complex128)
	if r.NumElements() == 0 {
		return nil
	}
	return unsafe.Slice((*complex128)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// GetFloat64 returns the element at flat index i widened to float64.
// Panics for complex element types; use GetComplex128 instead.
func (r *Raw) GetFloat64(i int) float64 {
	switch r.dtype {
	case Bool:
		if r.AsBool()[i] {
			return 1
		}
		return 0
	case Int8:
		return float64(r.AsInt8()[i])
	case Int16:
		return float64(r.AsInt16()[i])
	case Int32:
		return float64(r.AsInt32()[i])
	case Int64:
		return float64(r.AsInt64()[i])
	case Uint8:
		return float64(r.AsUint8()[i])
	case Uint16:
		return float64(r.AsUint16()[i])
	case Uint32:
		return float64(r.AsUint32()[i])
	case Uint64:
		return float64(r.AsUint64()[i])
	case Float16:
		return float64(r.AsFloat16()[i].Float32())
	case BFloat16:
		return float64(bfloat16.ToFloat32(r.AsBFloat16()[i]))
	case Float32:
		return float64(r.AsFloat32()[i])
	case Float64:
		return r.AsFloat64()[i]
	default:
		panic(fmt.Sprintf("GetFloat64 on %s buffer", r.dtype))
	}
}

// SetFloat64 stores v at flat index i, narrowing to the buffer's element
// type. Panics for complex element types; use SetComplex128 instead.
func (r *Raw) SetFloat64(i int, v float64) {
	switch r.dtype {
	case Bool:
		r.AsBool()[i] = v != 0
	case Int8:
		r.AsInt8()[i] = int8(v)
	case Int16:
		r.AsInt16()[i] = int16(v)
	case Int32:
		r.AsInt32()[i] = int32(v)
	case Int64:
		r.AsInt64()[i] = int64(v)
	case Uint8:
		r.AsUint8()[i] = uint8(v)
	case Uint16:
		r.AsUint16()[i] = uint16(v)
	case Uint32:
		r.AsUint32()[i] = uint32(v)
	case Uint64:
		r.AsUint64()[i] = uint64(v)
	case Float16:
		r.AsFloat16()[i] = float16.Fromfloat32(float32(v))
	case BFloat16:
		r.AsBFloat16()[i] = bfloat16.FromFloat32(float32(v))
	case Float32:
		r.AsFloat32()[i] = float32(v)
	case Float64:
		r.AsFloat64()[i] = v
	default:
		panic(fmt.Sprintf("SetFloat64 on %s buffer", r.dtype))
	}
}

// GetComplex128 returns the element at flat index i widened to complex128.
func (r *Raw) GetComplex128(i int) complex128 {
	switch r.dtype {
	case Complex64:
		return complex128(r.AsComplex64()[i])
	case Complex128:
		return r.AsComplex128()[i]
	default:
		return complex(r.GetFloat64(i), 0)
	}
}

// SetComplex128 stores v at flat index i, narrowing to the buffer's element
// type. The imaginary part is discarded for non-complex buffers.
func (r *Raw) SetComplex128(i int, v complex128) {
	switch r.dtype {
	case Complex64:
		r.AsComplex64()[i] = complex64(v)
	case Complex128:
		r.AsComplex128()[i] = v
	default:
		r.SetFloat64(i, real(v))
	}
}

// Clone returns a deep copy of the buffer.
func (r *Raw) Clone() *Raw {
	out := &Raw{
		data:   append([]byte(nil), r.data...),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
	return out
}

// Contiguous returns the buffer itself; Raw data is always stored
// contiguously in row-major order.
func (r *Raw) Contiguous() *Raw { return r }

// WithShape returns a view of the same data under a different shape.
// The element counts must agree.
func (r *Raw) WithShape(shape Shape) (*Raw, error) {
	resolved, err := shape.ResolveDim(r.shape)
	if err != nil {
		return nil, err
	}
	if resolved.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v buffer to %v", []int(r.shape), []int(resolved))
	}
	return &Raw{
		data:   r.data,
		shape:  resolved,
		stride: resolved.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}, nil
}

// ViewAs reinterprets the underlying bytes as a different element type,
// adjusting the last axis. Fails with ErrIncompatibleView when the byte
// length of the last axis is not divisible by the new element size.
func (r *Raw) ViewAs(dtype DataType) (*Raw, error) {
	shape, err := viewShape(r.shape, r.dtype, dtype)
	if err != nil {
		return nil, err
	}
	return &Raw{
		data:   r.data,
		shape:  shape,
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: r.device,
	}, nil
}

// viewShape computes the shape of a byte reinterpretation from from to to.
func viewShape(shape Shape, from, to DataType) (Shape, error) {
	if len(shape) == 0 {
		if from.Size() != to.Size() {
			return nil, fmt.Errorf("%w: cannot view scalar %s as %s", ErrIncompatibleView, from, to)
		}
		return shape.Clone(), nil
	}
	lastBytes := shape[len(shape)-1] * from.Size()
	if lastBytes%to.Size() != 0 {
		return nil, fmt.Errorf(
			"%w: last axis of %d %s elements (%d bytes) is not divisible by %s element size %d",
			ErrIncompatibleView, shape[len(shape)-1], from, lastBytes, to, to.Size())
	}
	out := shape.Clone()
	out[len(out)-1] = lastBytes / to.Size()
	return out, nil
}

// SliceRange returns a zero-copy view of rows [start, stop) along the first
// axis. Bounds follow half-open clamping semantics: negative values count
// from the end and out-of-range values clamp to [0, length].
func (r *Raw) SliceRange(start, stop int) (*Raw, error) {
	if len(r.shape) == 0 {
		return nil, fmt.Errorf("cannot slice a scalar buffer")
	}
	length := r.shape[0]
	start, stop = clampRange(start, stop, length)

	rowBytes := r.dtype.Size()
	for _, dim := range r.shape[1:] {
		rowBytes *= dim
	}
	shape := r.shape.Clone()
	shape[0] = stop - start
	return &Raw{
		data:   r.data[start*rowBytes : stop*rowBytes],
		shape:  shape,
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}, nil
}

// clampRange normalizes half-open bounds against length.
func clampRange(start, stop, length int) (int, int) {
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	start = min(max(start, 0), length)
	stop = min(max(stop, 0), length)
	if stop < start {
		stop = start
	}
	return start, stop
}

// Transpose returns a copy of the buffer with its axes reversed.
func (r *Raw) Transpose() *Raw {
	ndim := len(r.shape)
	if ndim < 2 {
		return r.Clone()
	}

	outShape := make(Shape, ndim)
	for i, dim := range r.shape {
		outShape[ndim-1-i] = dim
	}
	out, err := NewRaw(outShape, r.dtype, r.device)
	if err != nil {
		panic(err) // reversed shape of a valid shape is valid
	}

	size := r.dtype.Size()
	inStrides := r.stride
	outStrides := out.stride
	idx := make([]int, ndim)
	for flat := 0; flat < r.NumElements(); flat++ {
		rem := flat
		for i := 0; i < ndim; i++ {
			idx[i] = rem / inStrides[i]
			rem %= inStrides[i]
		}
		dst := 0
		for i := 0; i < ndim; i++ {
			dst += idx[i] * outStrides[ndim-1-i]
		}
		copy(out.data[dst*size:(dst+1)*size], r.data[flat*size:(flat+1)*size])
	}
	return out
}

// Creation helpers used by kernels and tests.

// FromFloat64s builds a Float64 buffer from values under shape.
func FromFloat64s(values []float64, shape Shape) (*Raw, error) {
	return fill(values, shape, Float64, func(r *Raw, i int) { r.AsFloat64()[i] = values[i] })
}

// FromFloat32s builds a Float32 buffer from values under shape.
func FromFloat32s(values []float32, shape Shape) (*Raw, error) {
	return fill(values, shape, Float32, func(r *Raw, i int) { r.AsFloat32()[i] = values[i] })
}

// FromInt64s builds an Int64 buffer from values under shape.
func FromInt64s(values []int64, shape Shape) (*Raw, error) {
	return fill(values, shape, Int64, func(r *Raw, i int) { r.AsInt64()[i] = values[i] })
}

// FromInt32s builds an Int32 buffer from values under shape.
func FromInt32s(values []int32, shape Shape) (*Raw, error) {
	return fill(values, shape, Int32, func(r *Raw, i int) { r.AsInt32()[i] = values[i] })
}

// FromInt8s builds an Int8 buffer from values under shape.
func FromInt8s(values []int8, shape Shape) (*Raw, error) {
	return fill(values, shape, Int8, func(r *Raw, i int) { r.AsInt8()[i] = values[i] })
}

// FromUint8s builds a Uint8 buffer from values under shape.
func FromUint8s(values []uint8, shape Shape) (*Raw, error) {
	return fill(values, shape, Uint8, func(r *Raw, i int) { r.AsUint8()[i] = values[i] })
}

// FromBools builds a Bool buffer from values under shape.
func FromBools(values []bool, shape Shape) (*Raw, error) {
	return fill(values, shape, Bool, func(r *Raw, i int) { r.AsBool()[i] = values[i] })
}

func fill[T any](values []T, shape Shape, dtype DataType, set func(*Raw, int)) (*Raw, error) {
	r, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		return nil, err
	}
	if len(values) != r.NumElements() {
		return nil, fmt.Errorf("%d values do not fill shape %v", len(values), []int(shape))
	}
	for i := range values {
		set(r, i)
	}
	return r, nil
}
