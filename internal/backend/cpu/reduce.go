package cpu

import (
	"fmt"
	"sort"

	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/buffer"
)

func (kernels) All(x *buffer.Raw) (bool, error) {
	for i := 0; i < x.NumElements(); i++ {
		if x.GetComplex128(i) == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (kernels) Any(x *buffer.Raw) (bool, error) {
	for i := 0; i < x.NumElements(); i++ {
		if x.GetComplex128(i) != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (kernels) Min(x *buffer.Raw) (float64, error) {
	if x.NumElements() == 0 {
		return 0, fmt.Errorf("Min: empty buffer has no minimum")
	}
	out := x.GetFloat64(0)
	for i := 1; i < x.NumElements(); i++ {
		if v := x.GetFloat64(i); v < out {
			out = v
		}
	}
	return out, nil
}

func (kernels) Max(x *buffer.Raw) (float64, error) {
	if x.NumElements() == 0 {
		return 0, fmt.Errorf("Max: empty buffer has no maximum")
	}
	out := x.GetFloat64(0)
	for i := 1; i < x.NumElements(); i++ {
		if v := x.GetFloat64(i); v > out {
			out = v
		}
	}
	return out, nil
}

func (kernels) CountNonzero(x *buffer.Raw) (int, error) {
	n := 0
	for i := 0; i < x.NumElements(); i++ {
		if x.GetComplex128(i) != 0 {
			n++
		}
	}
	return n, nil
}

// CumSum returns the running sum over the flattened elements. Bool inputs
// accumulate as int64 so the sums count rather than saturate.
func (kernels) CumSum(x *buffer.Raw) (*buffer.Raw, error) {
	dtype := x.DType()
	if dtype == buffer.Bool {
		dtype = buffer.Int64
	}
	out, err := buffer.NewRaw(buffer.Shape{x.NumElements()}, dtype, buffer.CPU)
	if err != nil {
		return nil, err
	}
	var sum complex128
	for i := 0; i < x.NumElements(); i++ {
		sum += x.GetComplex128(i)
		out.SetComplex128(i, sum)
	}
	return out, nil
}

// Sort returns the elements in ascending (or descending) order. Complex and
// structured elements do not order.
func (kernels) Sort(x *buffer.Raw, descending, stable bool) (*buffer.Raw, error) {
	if x.DType().IsComplex() || x.DType() == buffer.Structured {
		return nil, fmt.Errorf("Sort: %s elements have no order", x.DType())
	}
	values := make([]float64, x.NumElements())
	for i := range values {
		values[i] = x.GetFloat64(i)
	}
	less := func(i, j int) bool {
		if descending {
			return values[i] > values[j]
		}
		return values[i] < values[j]
	}
	if stable {
		sort.SliceStable(values, less)
	} else {
		sort.Slice(values, less)
	}
	out, err := buffer.NewRaw(buffer.Shape{len(values)}, x.DType(), buffer.CPU)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		out.SetFloat64(i, v)
	}
	return out, nil
}

// UniqueValues returns the sorted distinct elements.
func (k kernels) UniqueValues(x *buffer.Raw) (*buffer.Raw, error) {
	res, err := k.UniqueAll(x)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// UniqueAll returns the sorted distinct elements with the flat index of the
// first occurrence of each, the inverse mapping from every input element to
// its distinct value, and the occurrence counts.
func (kernels) UniqueAll(x *buffer.Raw) (backend.UniqueAllResult, error) {
	if x.DType().IsComplex() || x.DType() == buffer.Structured {
		return backend.UniqueAllResult{}, fmt.Errorf("UniqueAll: %s elements have no order", x.DType())
	}
	n := x.NumElements()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return x.GetFloat64(order[i]) < x.GetFloat64(order[j])
	})

	var uniq []float64
	var first []int64
	var counts []int64
	inverse := make([]int64, n)
	for _, at := range order {
		v := x.GetFloat64(at)
		if len(uniq) == 0 || uniq[len(uniq)-1] != v {
			uniq = append(uniq, v)
			first = append(first, int64(at))
			counts = append(counts, 0)
		}
		slot := len(uniq) - 1
		counts[slot]++
		inverse[at] = int64(slot)
	}

	values, err := buffer.NewRaw(buffer.Shape{len(uniq)}, x.DType(), buffer.CPU)
	if err != nil {
		return backend.UniqueAllResult{}, err
	}
	for i, v := range uniq {
		values.SetFloat64(i, v)
	}
	indices, err := buffer.FromInt64s(first, buffer.Shape{len(first)})
	if err != nil {
		return backend.UniqueAllResult{}, err
	}
	inv, err := buffer.FromInt64s(inverse, buffer.Shape{len(inverse)})
	if err != nil {
		return backend.UniqueAllResult{}, err
	}
	cnt, err := buffer.FromInt64s(counts, buffer.Shape{len(counts)})
	if err != nil {
		return backend.UniqueAllResult{}, err
	}
	return backend.UniqueAllResult{
		Values:         values,
		Indices:        indices,
		InverseIndices: inv,
		Counts:         cnt,
	}, nil
}

// PackBits packs truthiness into uint8 bits, eight per byte, padding the
// final byte with zeros.
func (kernels) PackBits(x *buffer.Raw, order backend.BitOrder) (*buffer.Raw, error) {
	n := x.NumElements()
	packed := make([]uint8, (n+7)/8)
	for i := 0; i < n; i++ {
		if x.GetComplex128(i) == 0 {
			continue
		}
		if order == backend.BigOrder {
			packed[i/8] |= 1 << (7 - i%8)
		} else {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return buffer.FromUint8s(packed, buffer.Shape{len(packed)})
}

// UnpackBits expands a uint8 buffer into count booleans.
func (kernels) UnpackBits(x *buffer.Raw, count int, order backend.BitOrder) (*buffer.Raw, error) {
	if x.DType() != buffer.Uint8 {
		return nil, fmt.Errorf("UnpackBits: requires uint8 input, got %s", x.DType())
	}
	if count > x.NumElements()*8 {
		return nil, fmt.Errorf("UnpackBits: %d bits requested from %d bytes", count, x.NumElements())
	}
	bytes := x.AsUint8()
	bits := make([]bool, count)
	for i := 0; i < count; i++ {
		if order == backend.BigOrder {
			bits[i] = bytes[i/8]&(1<<(7-i%8)) != 0
		} else {
			bits[i] = bytes[i/8]&(1<<(i%8)) != 0
		}
	}
	return buffer.FromBools(bits, buffer.Shape{count})
}
