// Package cpu implements the native CPU engine. Kernels operate on eager
// byte-backed buffers with elementwise widening to complex128, the widest
// element type, so one code path serves every dtype.
package cpu

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/buffer"
	"github.com/ragged-ml/ragged/internal/parallel"
)

type kernels struct{}

var par = parallel.DefaultConfig()

var (
	defaultOnce sync.Once
	defaultMod  *backend.Module
)

// Default returns the process-wide CPU backend, registering it for dispatch
// on first use. CPU owns every host-resident array value.
func Default() *backend.Module {
	defaultOnce.Do(func() {
		defaultMod = New()
		backend.Register(func(v any) bool {
			a, ok := v.(buffer.Array)
			return ok && a.Device() == buffer.CPU
		}, defaultMod)
	})
	return defaultMod
}

// New returns an unregistered CPU backend.
func New() *backend.Module {
	return backend.NewModule(kernels{})
}

// NewKernels returns the bare CPU kernel set, used by engines that fall back
// to host execution for operations they do not accelerate.
func NewKernels() backend.Kernels {
	return kernels{}
}

func (kernels) KnownData() bool       { return true }
func (kernels) Name() string          { return "cpu" }
func (kernels) Device() buffer.Device { return buffer.CPU }

// SupportsDTypeResolution is true: result element types are resolved from
// operand element types alone, never from values.
func (kernels) SupportsDTypeResolution() bool { return true }

// PrepareUfunc is the identity; the CPU engine runs the generic Eval.
func (kernels) PrepareUfunc(uf *backend.Ufunc) *backend.Ufunc { return uf }

func (kernels) Zeros(shape buffer.Shape, dtype buffer.DataType) (*buffer.Raw, error) {
	return buffer.NewRaw(shape, dtype, buffer.CPU)
}

func (kernels) Full(shape buffer.Shape, dtype buffer.DataType, value complex128) (*buffer.Raw, error) {
	r, err := buffer.NewRaw(shape, dtype, buffer.CPU)
	if err != nil {
		return nil, err
	}
	parallel.For(r.NumElements(), func(i int) {
		r.SetComplex128(i, value)
	}, par)
	return r, nil
}

func (kernels) Arange(start, stop, step float64, dtype buffer.DataType) (*buffer.Raw, error) {
	if step == 0 {
		return nil, fmt.Errorf("Arange: step cannot be zero")
	}
	n := int(math.Ceil((stop - start) / step))
	if n < 0 {
		n = 0
	}
	r, err := buffer.NewRaw(buffer.Shape{n}, dtype, buffer.CPU)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		r.SetFloat64(i, start+float64(i)*step)
	}
	return r, nil
}

// Apply evaluates the ufunc elementwise over pre-broadcast operands.
func (kernels) Apply(uf *backend.Ufunc, args []*buffer.Raw, out buffer.DataType) (buffer.Array, error) {
	if uf.Eval == nil {
		return nil, fmt.Errorf("Apply: ufunc %s has no evaluator", uf.Name)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("Apply: ufunc %s has no operands", uf.Name)
	}
	shape := args[0].Shape()
	for _, a := range args[1:] {
		if !a.Shape().Equal(shape) {
			return nil, fmt.Errorf("Apply: operands must be pre-broadcast, got %v vs %v",
				[]int(shape), []int(a.Shape()))
		}
	}
	result, err := buffer.NewRaw(shape, out, buffer.CPU)
	if err != nil {
		return nil, err
	}
	parallel.For(result.NumElements(), func(i int) {
		operands := make([]complex128, len(args))
		for j, a := range args {
			operands[j] = a.GetComplex128(i)
		}
		result.SetComplex128(i, uf.Eval(operands))
	}, par)
	return result, nil
}

func (kernels) ArrayEqual(x1, x2 *buffer.Raw, equalNaN bool) (bool, error) {
	if !x1.Shape().Equal(x2.Shape()) {
		return false, nil
	}
	for i := 0; i < x1.NumElements(); i++ {
		a, b := x1.GetComplex128(i), x2.GetComplex128(i)
		if a == b {
			continue
		}
		if equalNaN && isNaN(a) && isNaN(b) {
			continue
		}
		return false, nil
	}
	return true, nil
}

func isNaN(v complex128) bool {
	return math.IsNaN(real(v)) || math.IsNaN(imag(v))
}

func (kernels) SearchSorted(x, values *buffer.Raw, side backend.Side) (*buffer.Raw, error) {
	if len(x.Shape()) != 1 {
		return nil, fmt.Errorf("SearchSorted: haystack must be 1-dimensional, got shape %v", []int(x.Shape()))
	}
	out, err := buffer.NewRaw(values.Shape(), buffer.Int64, buffer.CPU)
	if err != nil {
		return nil, err
	}
	idx := out.AsInt64()
	n := x.NumElements()
	for i := 0; i < values.NumElements(); i++ {
		v := values.GetFloat64(i)
		lo, hi := 0, n
		for lo < hi {
			mid := (lo + hi) / 2
			at := x.GetFloat64(mid)
			if at < v || (side == backend.Right && at == v) {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		idx[i] = int64(lo)
	}
	return out, nil
}

func (kernels) IsCContiguous(x *buffer.Raw) (bool, error) { return true, nil }

func (kernels) MemoryPtr(x *buffer.Raw) (uintptr, error) {
	data := x.Data()
	if len(data) == 0 {
		return 0, nil
	}
	return uintptr(unsafe.Pointer(&data[0])), nil
}
