// Package backend defines the capability interface implemented once per
// array engine, the generic kernel-delegating implementation that routes
// placeholders and lazy arrays around the engine, and the registry that maps
// array values back to the backend that owns them.
package backend

import (
	"github.com/ragged-ml/ragged/internal/buffer"
)

// Side selects which insertion point SearchSorted returns for equal values.
type Side int

// SearchSorted sides.
const (
	Left Side = iota
	Right
)

// BitOrder selects the bit significance order for PackBits/UnpackBits.
type BitOrder int

// Bit orders.
const (
	BigOrder BitOrder = iota
	LittleOrder
)

// UniqueAllResult bundles the outputs of UniqueAll.
type UniqueAllResult struct {
	Values         *buffer.Raw
	Indices        *buffer.Raw
	InverseIndices *buffer.Raw
	Counts         *buffer.Raw
}

// Backend is the uniform operation surface over one array engine.
//
// Every array-typed parameter accepts an eager buffer, a placeholder, or a
// virtual array. Methods that inherently read element values reject
// placeholders with buffer.ErrInvalidOperand and materialize virtual
// operands first; shape/dtype-only methods pass placeholders and
// unmaterialized virtuals through without forcing materialization.
type Backend interface {
	// Creation.
	Asarray(x buffer.Array) (buffer.Array, error)
	Zeros(shape buffer.Shape, dtype buffer.DataType) (*buffer.Raw, error)
	Ones(shape buffer.Shape, dtype buffer.DataType) (*buffer.Raw, error)
	Full(shape buffer.Shape, dtype buffer.DataType, value complex128) (*buffer.Raw, error)
	ZerosLike(x buffer.Array) (buffer.Array, error)
	OnesLike(x buffer.Array) (buffer.Array, error)
	FullLike(x buffer.Array, value complex128) (buffer.Array, error)
	Arange(start, stop, step float64, dtype buffer.DataType) (*buffer.Raw, error)

	// Testing.
	ArrayEqual(x1, x2 buffer.Array, equalNaN bool) (bool, error)
	SearchSorted(x, values buffer.Array, side Side) (*buffer.Raw, error)

	// Elementwise function application.
	ApplyUfunc(uf *Ufunc, args []any) (buffer.Array, error)
	PrepareUfunc(uf *Ufunc) *Ufunc

	// Manipulation.
	BroadcastArrays(xs ...buffer.Array) ([]*buffer.Raw, error)
	BroadcastTo(x buffer.Array, shape buffer.Shape) (*buffer.Raw, error)
	Reshape(x buffer.Array, shape buffer.Shape) (buffer.Array, error)
	AsContiguous(x buffer.Array) (buffer.Array, error)
	Concat(xs []buffer.Array) (*buffer.Raw, error)
	Stack(xs []buffer.Array) (*buffer.Raw, error)
	Nonzero(x buffer.Array) ([]*buffer.Raw, error)
	Where(cond, x1, x2 buffer.Array) (*buffer.Raw, error)

	// Reduction.
	All(x buffer.Array) (bool, error)
	Any(x buffer.Array) (bool, error)
	Min(x buffer.Array) (float64, error)
	Max(x buffer.Array) (float64, error)
	CountNonzero(x buffer.Array) (int, error)
	CumSum(x buffer.Array) (*buffer.Raw, error)

	// Sort and unique.
	Sort(x buffer.Array, descending, stable bool) (*buffer.Raw, error)
	UniqueValues(x buffer.Array) (*buffer.Raw, error)
	UniqueAll(x buffer.Array) (UniqueAllResult, error)

	// Bit packing (bit-masked layouts).
	PackBits(x buffer.Array, order BitOrder) (*buffer.Raw, error)
	UnpackBits(x buffer.Array, count int, order BitOrder) (*buffer.Raw, error)

	// Pointer and contiguity queries.
	Strides(x buffer.Array) ([]int, error)
	IsCContiguous(x buffer.Array) (bool, error)
	MemoryPtr(x buffer.Array) (uintptr, error)

	// Index normalization.
	DeriveSliceForLength(start, stop, step, length int) (int, int, int, int, error)
	RegularizeIndexForLength(index, length int) (int, error)

	// Metadata.
	KnownData() bool
	Name() string
	Device() buffer.Device
}

// Kernels is the native operation set of one concrete engine, always over
// eager buffers. The generic Module implementation layers the
// placeholder/virtual routing of the Backend contract on top of it.
type Kernels interface {
	Zeros(shape buffer.Shape, dtype buffer.DataType) (*buffer.Raw, error)
	Full(shape buffer.Shape, dtype buffer.DataType, value complex128) (*buffer.Raw, error)
	Arange(start, stop, step float64, dtype buffer.DataType) (*buffer.Raw, error)

	ArrayEqual(x1, x2 *buffer.Raw, equalNaN bool) (bool, error)
	SearchSorted(x, values *buffer.Raw, side Side) (*buffer.Raw, error)

	// Apply runs an elementwise kernel over pre-broadcast operands, writing
	// an out-typed result. Engines may return a lazy result (e.g.
	// GPU-resident until read back).
	Apply(uf *Ufunc, args []*buffer.Raw, out buffer.DataType) (buffer.Array, error)
	PrepareUfunc(uf *Ufunc) *Ufunc

	// SupportsDTypeResolution selects the ufunc application algorithm:
	// value-independent element-type resolution when true, legacy
	// value-dependent coercion when false.
	SupportsDTypeResolution() bool

	BroadcastTo(x *buffer.Raw, shape buffer.Shape) (*buffer.Raw, error)
	Reshape(x *buffer.Raw, shape buffer.Shape) (*buffer.Raw, error)
	AsContiguous(x *buffer.Raw) (*buffer.Raw, error)
	Concat(xs []*buffer.Raw) (*buffer.Raw, error)
	Stack(xs []*buffer.Raw) (*buffer.Raw, error)
	Nonzero(x *buffer.Raw) ([]*buffer.Raw, error)
	Where(cond, x1, x2 *buffer.Raw) (*buffer.Raw, error)

	All(x *buffer.Raw) (bool, error)
	Any(x *buffer.Raw) (bool, error)
	Min(x *buffer.Raw) (float64, error)
	Max(x *buffer.Raw) (float64, error)
	CountNonzero(x *buffer.Raw) (int, error)
	CumSum(x *buffer.Raw) (*buffer.Raw, error)

	Sort(x *buffer.Raw, descending, stable bool) (*buffer.Raw, error)
	UniqueValues(x *buffer.Raw) (*buffer.Raw, error)
	UniqueAll(x *buffer.Raw) (UniqueAllResult, error)

	PackBits(x *buffer.Raw, order BitOrder) (*buffer.Raw, error)
	UnpackBits(x *buffer.Raw, count int, order BitOrder) (*buffer.Raw, error)

	IsCContiguous(x *buffer.Raw) (bool, error)
	MemoryPtr(x *buffer.Raw) (uintptr, error)

	KnownData() bool
	Name() string
	Device() buffer.Device
}
