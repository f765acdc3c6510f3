package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Producer computes the contents of a virtual array. It runs at most once.
type Producer func() (*Raw, error)

// Virtual is a lazy array: shape and element type are fixed at construction,
// contents are computed by a producer on first materialization and cached.
//
// The cache slot is guarded by a per-array mutex, giving the single-writer
// guarantee for concurrent first materialization. The mutex is private to one
// Virtual, so holding it across the producer never blocks readers of other
// virtual arrays. Metadata accessors and IsMaterialized do not take it at
// all; completion is tracked separately so state queries never wait on an
// in-flight producer.
type Virtual struct {
	shape    Shape
	dtype    DataType
	device   Device
	producer Producer

	mu     sync.Mutex
	done   atomic.Bool
	cached *Raw
	err    error
}

// NewVirtual creates an unmaterialized array with declared shape and element
// type. All dimensions must be concrete.
func NewVirtual(shape Shape, dtype DataType, device Device, producer Producer) (*Virtual, error) {
	if shape.HasUnknown() {
		return nil, fmt.Errorf("virtual arrays require concrete dimensions, got %v", []int(shape))
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if producer == nil {
		return nil, fmt.Errorf("virtual array requires a producer")
	}
	return &Virtual{
		shape:    shape.Clone(),
		dtype:    dtype,
		device:   device,
		producer: producer,
	}, nil
}

// Shape returns the declared shape. Never triggers the producer.
func (v *Virtual) Shape() Shape { return v.shape }

// DType returns the declared element type. Never triggers the producer.
func (v *Virtual) DType() DataType { return v.dtype }

// Device returns the declared device.
func (v *Virtual) Device() Device { return v.device }

// Len returns the length of the first axis (1 for scalars).
func (v *Virtual) Len() int {
	if len(v.shape) == 0 {
		return 1
	}
	return v.shape[0]
}

// IsMaterialized reports whether the producer has already run. It never
// blocks, even while a materialization is in flight on another goroutine.
func (v *Virtual) IsMaterialized() bool {
	return v.done.Load()
}

// Materialize runs the producer exactly once, caches and returns the result.
// A producer failure is cached too, so the producer still runs at most once.
// A shape or element-type disagreement between the declaration and the
// produced buffer is a producer contract breach and panics with
// *ConsistencyError; it must never be recovered into a retry.
func (v *Virtual) Materialize() (*Raw, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.done.Load() {
		return v.cached, v.err
	}

	out, err := v.producer()
	v.producer = nil
	if err != nil {
		v.err = fmt.Errorf("materialize: %w", err)
		v.done.Store(true)
		return nil, v.err
	}
	if !v.shape.Equal(out.Shape()) || v.dtype != out.DType() {
		panic(&ConsistencyError{
			DeclaredShape: v.shape,
			DeclaredDType: v.dtype,
			GotShape:      out.Shape(),
			GotDType:      out.DType(),
		})
	}
	v.cached = out
	v.done.Store(true)
	return v.cached, nil
}

// WithDType returns a new unmaterialized Virtual sharing this array's
// producer but declaring a different element type. It is the metadata
// override used by schema-driven dtype coercion and is only legal before the
// data has been read: a materialized array's element type is a property of
// its data, not its metadata.
func (v *Virtual) WithDType(dtype DataType) (*Virtual, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.done.Load() {
		return nil, fmt.Errorf("cannot override element type of a materialized array (have %s)", v.dtype)
	}
	producer := v.producer
	out := &Virtual{
		shape:  v.shape.Clone(),
		dtype:  dtype,
		device: v.device,
	}
	out.producer = func() (*Raw, error) {
		raw, err := producer()
		if err != nil {
			return nil, err
		}
		if raw.DType() == dtype {
			return raw, nil
		}
		if raw.DType().Size() != dtype.Size() {
			return nil, fmt.Errorf("produced %s buffer cannot satisfy declared element type %s", raw.DType(), dtype)
		}
		return raw.ViewAs(dtype)
	}
	return out, nil
}

// Contiguous returns an array with contiguously stored data. Unmaterialized
// arrays stay unmaterialized; the request composes onto the producer.
func (v *Virtual) Contiguous() Array {
	v.mu.Lock()
	if v.done.Load() && v.err == nil {
		defer v.mu.Unlock()
		return v.cached.Contiguous()
	}
	v.mu.Unlock()

	out, err := NewVirtual(v.shape, v.dtype, v.device, func() (*Raw, error) {
		raw, err := v.Materialize()
		if err != nil {
			return nil, err
		}
		return raw.Contiguous(), nil
	})
	if err != nil {
		panic(err) // declared metadata was validated at construction
	}
	return out
}

// Transpose returns the axes-reversed array. When unmaterialized the result
// is a new unmaterialized Virtual whose shape is computed analytically.
func (v *Virtual) Transpose() Array {
	v.mu.Lock()
	if v.done.Load() && v.err == nil {
		defer v.mu.Unlock()
		return v.cached.Transpose()
	}
	v.mu.Unlock()

	shape := make(Shape, len(v.shape))
	for i, dim := range v.shape {
		shape[len(shape)-1-i] = dim
	}
	out, err := NewVirtual(shape, v.dtype, v.device, func() (*Raw, error) {
		raw, err := v.Materialize()
		if err != nil {
			return nil, err
		}
		return raw.Transpose(), nil
	})
	if err != nil {
		panic(err)
	}
	return out
}

// ViewAs reinterprets the underlying bytes as a different element type.
// The result shape is computed from declared metadata alone; no data is read
// for an unmaterialized array. Fails with ErrIncompatibleView when the last
// axis is not byte-aligned with the new element size.
func (v *Virtual) ViewAs(dtype DataType) (Array, error) {
	v.mu.Lock()
	if v.done.Load() && v.err == nil {
		defer v.mu.Unlock()
		return v.cached.ViewAs(dtype)
	}
	v.mu.Unlock()

	shape, err := viewShape(v.shape, v.dtype, dtype)
	if err != nil {
		return nil, err
	}
	return NewVirtual(shape, dtype, v.device, func() (*Raw, error) {
		raw, err := v.Materialize()
		if err != nil {
			return nil, err
		}
		return raw.ViewAs(dtype)
	})
}

// SliceRange returns rows [start, stop) along the first axis. Both bounds
// must be concrete; an Unknown bound fails with ErrUnsupportedSlice (the
// caller has to materialize first). When unmaterialized, the result is a new
// unmaterialized Virtual of the derived length.
func (v *Virtual) SliceRange(start, stop int) (Array, error) {
	if start == Unknown || stop == Unknown {
		return nil, fmt.Errorf("%w: virtual arrays cannot be sliced with unresolved bounds [%d:%d]",
			ErrUnsupportedSlice, start, stop)
	}

	v.mu.Lock()
	if v.done.Load() && v.err == nil {
		defer v.mu.Unlock()
		return v.cached.SliceRange(start, stop)
	}
	v.mu.Unlock()

	if len(v.shape) == 0 {
		return nil, fmt.Errorf("cannot slice a scalar array")
	}
	lo, hi := clampRange(start, stop, v.shape[0])
	shape := v.shape.Clone()
	shape[0] = hi - lo
	return NewVirtual(shape, v.dtype, v.device, func() (*Raw, error) {
		raw, err := v.Materialize()
		if err != nil {
			return nil, err
		}
		return raw.SliceRange(start, stop)
	})
}

// Copy returns a materialized deep copy of the array.
func (v *Virtual) Copy() (*Virtual, error) {
	out, err := NewVirtual(v.shape, v.dtype, v.device, func() (*Raw, error) {
		raw, err := v.Materialize()
		if err != nil {
			return nil, err
		}
		return raw.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := out.Materialize(); err != nil {
		return nil, err
	}
	return out, nil
}

// MaterializeIfVirtual forces materialization of every Virtual among args,
// returning the concrete buffers in order. Non-virtual array values pass
// through unchanged.
func MaterializeIfVirtual(args ...Array) ([]Array, error) {
	out := make([]Array, len(args))
	for i, arg := range args {
		if v, ok := arg.(*Virtual); ok {
			raw, err := v.Materialize()
			if err != nil {
				return nil, err
			}
			out[i] = raw
			continue
		}
		out[i] = arg
	}
	return out, nil
}
