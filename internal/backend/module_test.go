package backend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/backend/cpu"
	"github.com/ragged-ml/ragged/internal/buffer"
)

func lazyFloat64s(t *testing.T, values []float64, shape buffer.Shape) (*buffer.Virtual, *int) {
	t.Helper()
	calls := new(int)
	v, err := buffer.NewVirtual(shape, buffer.Float64, buffer.CPU, func() (*buffer.Raw, error) {
		*calls++
		return buffer.FromFloat64s(values, shape)
	})
	require.NoError(t, err)
	return v, calls
}

func TestZerosLikeKeepsVirtualUnmaterialized(t *testing.T) {
	b := cpu.New()
	v, calls := lazyFloat64s(t, []float64{1, 2, 3}, buffer.Shape{3})

	out, err := b.ZerosLike(v)
	require.NoError(t, err)

	lazy, ok := out.(*buffer.Virtual)
	require.True(t, ok, "zeros_like of an unmaterialized array should stay unmaterialized")
	assert.False(t, lazy.IsMaterialized())
	assert.Equal(t, 0, *calls, "zeros_like must not trigger the source producer")
	assert.Equal(t, buffer.Shape{3}, lazy.Shape())
	assert.Equal(t, buffer.Float64, lazy.DType())

	raw, err := lazy.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, raw.AsFloat64())
	assert.Equal(t, 0, *calls, "filling zeros never needs the source data")
}

func TestOnesLikePlaceholderPassesThrough(t *testing.T) {
	b := cpu.New()
	p := buffer.NewPlaceholder(buffer.Shape{2, 2}, buffer.Int32, buffer.CPU)

	out, err := b.OnesLike(p)
	require.NoError(t, err)

	got, ok := out.(*buffer.Placeholder)
	require.True(t, ok)
	assert.Equal(t, buffer.Shape{2, 2}, got.Shape())
	assert.Equal(t, buffer.Int32, got.DType())
}

func TestValueOperationsRejectPlaceholders(t *testing.T) {
	b := cpu.New()
	p := buffer.NewPlaceholder(buffer.Shape{3}, buffer.Float64, buffer.CPU)

	_, err := b.Sort(p, false, false)
	require.ErrorIs(t, err, buffer.ErrInvalidOperand)

	_, err = b.ArrayEqual(p, p, false)
	require.ErrorIs(t, err, buffer.ErrInvalidOperand)

	_, err = b.ApplyUfunc(backend.Add, []any{p, 1.0})
	require.ErrorIs(t, err, buffer.ErrInvalidOperand)
}

func TestReshapeVirtualResolvesUnknownLazily(t *testing.T) {
	b := cpu.New()
	v, calls := lazyFloat64s(t, []float64{1, 2, 3, 4, 5, 6}, buffer.Shape{6})

	out, err := b.Reshape(v, buffer.Shape{2, buffer.Unknown})
	require.NoError(t, err)
	assert.Equal(t, 0, *calls)
	assert.Equal(t, buffer.Shape{2, 3}, out.Shape())

	raw, err := out.(*buffer.Virtual).Materialize()
	require.NoError(t, err)
	assert.Equal(t, buffer.Shape{2, 3}, raw.Shape())
	assert.Equal(t, 1, *calls)
}

func TestAsContiguousPreservesDeferred(t *testing.T) {
	b := cpu.New()
	v, calls := lazyFloat64s(t, []float64{1, 2}, buffer.Shape{2})

	out, err := b.AsContiguous(v)
	require.NoError(t, err)
	_, ok := out.(*buffer.Virtual)
	assert.True(t, ok)
	assert.Equal(t, 0, *calls)

	p := buffer.NewPlaceholder(buffer.Shape{2}, buffer.Float64, buffer.CPU)
	out, err = b.AsContiguous(p)
	require.NoError(t, err)
	_, ok = out.(*buffer.Placeholder)
	assert.True(t, ok)
}

func TestApplyUfuncMaterializesVirtualOperands(t *testing.T) {
	b := cpu.New()
	v, calls := lazyFloat64s(t, []float64{1, 2, 3}, buffer.Shape{3})

	out, err := b.ApplyUfunc(backend.Add, []any{v, 10.0})
	require.NoError(t, err)
	assert.Equal(t, 1, *calls, "elementwise math breaks laziness")

	raw, ok := out.(*buffer.Raw)
	require.True(t, ok)
	assert.Equal(t, buffer.Float64, raw.DType())
	assert.Equal(t, []float64{11, 12, 13}, raw.AsFloat64())
}

func TestApplyUfuncResolvesDTypesFromTypesAlone(t *testing.T) {
	b := cpu.New()
	x, err := buffer.FromInt32s([]int32{1, 2}, buffer.Shape{2})
	require.NoError(t, err)

	// int32 / int32 promotes to float64 under true division.
	out, err := b.ApplyUfunc(backend.Divide, []any{x, x})
	require.NoError(t, err)
	assert.Equal(t, buffer.Float64, out.DType())

	// Comparisons always produce booleans.
	out, err = b.ApplyUfunc(backend.Less, []any{x, x})
	require.NoError(t, err)
	assert.Equal(t, buffer.Bool, out.DType())
}

func TestApplyUfuncBroadcasts(t *testing.T) {
	b := cpu.New()
	x, _ := buffer.FromFloat64s([]float64{1, 2, 3, 4, 5, 6}, buffer.Shape{2, 3})
	y, _ := buffer.FromFloat64s([]float64{10, 20, 30}, buffer.Shape{3})

	out, err := b.ApplyUfunc(backend.Add, []any{x, y})
	require.NoError(t, err)
	raw := out.(*buffer.Raw)
	assert.Equal(t, buffer.Shape{2, 3}, raw.Shape())
	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, raw.AsFloat64())
}

func TestApplyUfuncArityCheck(t *testing.T) {
	b := cpu.New()
	_, err := b.ApplyUfunc(backend.Add, []any{1.0})
	require.Error(t, err)
}

func TestDeriveSliceForLength(t *testing.T) {
	b := cpu.New()
	tests := []struct {
		name                    string
		start, stop, step, size int
		wantStart, wantStop     int
		wantLen                 int
	}{
		{"plain", 1, 3, 1, 5, 1, 3, 2},
		{"negative from end", -2, 5, 1, 5, 3, 5, 2},
		{"negative one start", -1, 5, 1, 5, 4, 5, 1},
		{"negative one stop", 0, -1, 1, 5, 0, 4, 4},
		{"clamped stop", 0, 100, 1, 4, 0, 4, 4},
		{"empty", 3, 1, 1, 5, 3, 1, 0},
		{"stepped", 0, 5, 2, 5, 0, 5, 3},
		{"reverse", 4, -6, -1, 5, 4, -1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, stop, step, length, err := b.DeriveSliceForLength(tt.start, tt.stop, tt.step, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantStop, stop)
			assert.Equal(t, tt.step, step)
			assert.Equal(t, tt.wantLen, length)
		})
	}

	_, _, _, _, err := b.DeriveSliceForLength(0, 5, 0, 5)
	require.Error(t, err, "zero step")

	// The unresolved-bound sentinel is distinct from any concrete index.
	start, stop, _, length, err := b.DeriveSliceForLength(buffer.Unknown, 5, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, start)
	assert.Equal(t, 5, stop)
	assert.Equal(t, 5, length)
}

func TestRegularizeIndexForLength(t *testing.T) {
	b := cpu.New()

	i, err := b.RegularizeIndexForLength(-1, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, i)

	i, err = b.RegularizeIndexForLength(2, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = b.RegularizeIndexForLength(5, 5)
	require.ErrorIs(t, err, buffer.ErrIndexOutOfRange)
	assert.Contains(t, err.Error(), "index 5")
	assert.Contains(t, err.Error(), "[-5, 5)")

	_, err = b.RegularizeIndexForLength(-6, 5)
	require.ErrorIs(t, err, buffer.ErrIndexOutOfRange)
}

func TestDispatchRegistry(t *testing.T) {
	b := cpu.Default()

	raw, err := buffer.FromFloat64s([]float64{1}, buffer.Shape{1})
	require.NoError(t, err)

	got, err := backend.Of(raw)
	require.NoError(t, err)
	assert.Equal(t, b.Name(), got.Name())

	byName, err := backend.ByName("cpu")
	require.NoError(t, err)
	assert.Equal(t, b.Name(), byName.Name())

	_, err = backend.Of(42)
	require.Error(t, err, "unowned values have no backend")
}
