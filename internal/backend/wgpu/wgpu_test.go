package wgpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/backend/wgpu"
	"github.com/ragged-ml/ragged/internal/buffer"
)

func newEngine(t *testing.T) *backend.Module {
	t.Helper()
	if !wgpu.IsAvailable() {
		t.Skip("no WebGPU adapter available")
	}
	b, err := wgpu.New()
	require.NoError(t, err)
	return b
}

func TestAddOnGPU(t *testing.T) {
	b := newEngine(t)

	x, err := buffer.FromFloat32s([]float32{1, 2, 3, 4}, buffer.Shape{4})
	require.NoError(t, err)
	y, err := buffer.FromFloat32s([]float32{10, 20, 30, 40}, buffer.Shape{4})
	require.NoError(t, err)

	out, err := b.ApplyUfunc(backend.Add, []any{x, y})
	require.NoError(t, err)

	// The sum stays GPU-resident until read.
	lazy, ok := out.(*buffer.Virtual)
	require.True(t, ok)
	assert.False(t, lazy.IsMaterialized())
	assert.Equal(t, buffer.Float32, lazy.DType())
	assert.Equal(t, buffer.Shape{4}, lazy.Shape())

	raw, err := lazy.Materialize()
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 44}, raw.AsFloat32())
}

func TestUnaryShaderOnGPU(t *testing.T) {
	b := newEngine(t)

	x, err := buffer.FromFloat32s([]float32{1, 4, 9}, buffer.Shape{3})
	require.NoError(t, err)

	out, err := b.ApplyUfunc(backend.Sqrt, []any{x})
	require.NoError(t, err)

	lazy, ok := out.(*buffer.Virtual)
	require.True(t, ok)
	raw, err := lazy.Materialize()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1, 2, 3}, raw.AsFloat32(), 1e-6)
}

func TestUnsupportedDTypeFallsBackToHost(t *testing.T) {
	b := newEngine(t)

	x, err := buffer.FromInt64s([]int64{1, 2, 3}, buffer.Shape{3})
	require.NoError(t, err)

	out, err := b.ApplyUfunc(backend.Add, []any{x, x})
	require.NoError(t, err)

	// Integer math has no shader; the host kernels produce an eager result.
	raw, ok := out.(*buffer.Raw)
	require.True(t, ok)
	assert.Equal(t, []int64{2, 4, 6}, raw.AsInt64())
}

func TestIsAvailableDoesNotRegister(t *testing.T) {
	// Probing must not leave a registered backend behind; only New does that.
	wgpu.IsAvailable()
	p := buffer.NewPlaceholder(buffer.Shape{1}, buffer.Float32, buffer.WebGPU)
	if _, err := backend.Of(p); err == nil {
		t.Skip("a GPU backend is already registered in this process")
	}
}
