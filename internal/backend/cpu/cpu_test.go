package cpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/backend/cpu"
	"github.com/ragged-ml/ragged/internal/buffer"
)

func TestZerosAndFull(t *testing.T) {
	b := cpu.New()

	z, err := b.Zeros(buffer.Shape{2, 2}, buffer.Int64)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0, 0}, z.AsInt64())

	f, err := b.Full(buffer.Shape{3}, buffer.Float32, 2.5)
	require.NoError(t, err)
	assert.Equal(t, []float32{2.5, 2.5, 2.5}, f.AsFloat32())
}

func TestFullHalfPrecision(t *testing.T) {
	b := cpu.New()

	f16, err := b.Full(buffer.Shape{2}, buffer.Float16, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, f16.GetFloat64(0))

	bf16, err := b.Full(buffer.Shape{2}, buffer.BFloat16, -2)
	require.NoError(t, err)
	assert.Equal(t, -2.0, bf16.GetFloat64(1))
}

func TestArange(t *testing.T) {
	b := cpu.New()

	r, err := b.Arange(0, 5, 1, buffer.Int64)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, r.AsInt64())

	r, err = b.Arange(1, 2, 0.25, buffer.Float64)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1.25, 1.5, 1.75}, r.AsFloat64())

	_, err = b.Arange(0, 5, 0, buffer.Int64)
	require.Error(t, err)
}

func TestArrayEqual(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromFloat64s([]float64{1, 2, 3}, buffer.Shape{3})
	y, _ := buffer.FromFloat64s([]float64{1, 2, 3}, buffer.Shape{3})
	z, _ := buffer.FromFloat64s([]float64{1, 2, 4}, buffer.Shape{3})

	eq, err := b.ArrayEqual(x, y, false)
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = b.ArrayEqual(x, z, false)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestSearchSorted(t *testing.T) {
	b := cpu.New()
	haystack, _ := buffer.FromFloat64s([]float64{1, 3, 3, 5}, buffer.Shape{4})
	needles, _ := buffer.FromFloat64s([]float64{0, 3, 6}, buffer.Shape{3})

	left, err := b.SearchSorted(haystack, needles, backend.Left)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 4}, left.AsInt64())

	right, err := b.SearchSorted(haystack, needles, backend.Right)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 4}, right.AsInt64())
}

func TestBroadcastToExpandsAxes(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromFloat64s([]float64{1, 2, 3}, buffer.Shape{1, 3})

	out, err := b.BroadcastTo(x, buffer.Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 1, 2, 3}, out.AsFloat64())

	scalar, _ := buffer.FromFloat64s([]float64{7}, buffer.Shape{})
	out, err = b.BroadcastTo(scalar, buffer.Shape{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7, 7, 7}, out.AsFloat64())

	_, err = b.BroadcastTo(x, buffer.Shape{3, 2})
	require.Error(t, err)
}

func TestConcatAndStack(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromInt64s([]int64{1, 2}, buffer.Shape{2})
	y, _ := buffer.FromInt64s([]int64{3}, buffer.Shape{1})

	cat, err := b.Concat([]buffer.Array{x, y})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, cat.AsInt64())

	z, _ := buffer.FromInt64s([]int64{3, 4}, buffer.Shape{2})
	st, err := b.Stack([]buffer.Array{x, z})
	require.NoError(t, err)
	assert.Equal(t, buffer.Shape{2, 2}, st.Shape())
	assert.Equal(t, []int64{1, 2, 3, 4}, st.AsInt64())

	_, err = b.Stack([]buffer.Array{x, y})
	require.Error(t, err, "stack needs equal shapes")
}

func TestNonzeroAndWhere(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromFloat64s([]float64{0, 1, 0, 2}, buffer.Shape{2, 2})

	idx, err := b.Nonzero(x)
	require.NoError(t, err)
	require.Len(t, idx, 2)
	assert.Equal(t, []int64{0, 1}, idx[0].AsInt64())
	assert.Equal(t, []int64{1, 1}, idx[1].AsInt64())

	cond, _ := buffer.FromBools([]bool{true, false, true}, buffer.Shape{3})
	a, _ := buffer.FromFloat64s([]float64{1, 2, 3}, buffer.Shape{3})
	c, _ := buffer.FromFloat64s([]float64{-1, -2, -3}, buffer.Shape{3})
	out, err := b.Where(cond, a, c)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2, 3}, out.AsFloat64())
}

func TestReductions(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromFloat64s([]float64{3, 1, 2}, buffer.Shape{3})

	all, _ := b.All(x)
	assert.True(t, all)
	withZero, _ := buffer.FromFloat64s([]float64{3, 0}, buffer.Shape{2})
	all, _ = b.All(withZero)
	assert.False(t, all)
	anyTrue, _ := b.Any(withZero)
	assert.True(t, anyTrue)

	lo, err := b.Min(x)
	require.NoError(t, err)
	assert.Equal(t, 1.0, lo)
	hi, err := b.Max(x)
	require.NoError(t, err)
	assert.Equal(t, 3.0, hi)

	n, _ := b.CountNonzero(withZero)
	assert.Equal(t, 1, n)

	empty, _ := buffer.NewRaw(buffer.Shape{0}, buffer.Float64, buffer.CPU)
	_, err = b.Min(empty)
	require.Error(t, err)
}

func TestCumSum(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromInt64s([]int64{1, 2, 3}, buffer.Shape{3})

	out, err := b.CumSum(x)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 6}, out.AsInt64())

	mask, _ := buffer.FromBools([]bool{true, false, true}, buffer.Shape{3})
	out, err = b.CumSum(mask)
	require.NoError(t, err)
	assert.Equal(t, buffer.Int64, out.DType(), "bool sums count as int64")
	assert.Equal(t, []int64{1, 1, 2}, out.AsInt64())
}

func TestSort(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromInt32s([]int32{3, 1, 2}, buffer.Shape{3})

	asc, err := b.Sort(x, false, false)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, asc.AsInt32())

	desc, err := b.Sort(x, true, true)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 2, 1}, desc.AsInt32())
}

func TestUniqueAll(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromInt64s([]int64{3, 1, 3, 2, 1}, buffer.Shape{5})

	res, err := b.UniqueAll(x)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, res.Values.AsInt64())
	assert.Equal(t, []int64{1, 3, 0}, res.Indices.AsInt64())
	assert.Equal(t, []int64{2, 0, 2, 1, 0}, res.InverseIndices.AsInt64())
	assert.Equal(t, []int64{2, 1, 2}, res.Counts.AsInt64())

	values, err := b.UniqueValues(x)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, values.AsInt64())
}

func TestPackUnpackBits(t *testing.T) {
	b := cpu.New()
	bits, _ := buffer.FromBools([]bool{true, false, false, true, true, false, false, false, true}, buffer.Shape{9})

	big, err := b.PackBits(bits, backend.BigOrder)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0b10011000, 0b10000000}, big.AsUint8())

	little, err := b.PackBits(bits, backend.LittleOrder)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0b00011001, 0b00000001}, little.AsUint8())

	back, err := b.UnpackBits(big, 9, backend.BigOrder)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true, true, false, false, false, true}, back.AsBool())

	back, err = b.UnpackBits(little, 9, backend.LittleOrder)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true, true, false, false, false, true}, back.AsBool())

	_, err = b.UnpackBits(big, 100, backend.BigOrder)
	require.Error(t, err)
}

func TestStridesAndContiguity(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromFloat64s([]float64{1, 2, 3, 4, 5, 6}, buffer.Shape{2, 3})

	strides, err := b.Strides(x)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, strides)

	contig, err := b.IsCContiguous(x)
	require.NoError(t, err)
	assert.True(t, contig)

	p := buffer.NewPlaceholder(buffer.Shape{2, 3}, buffer.Float64, buffer.CPU)
	strides, err = b.Strides(p)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, strides, "placeholders assume contiguous strides")

	ptr, err := b.MemoryPtr(x)
	require.NoError(t, err)
	assert.NotZero(t, ptr)
}
