// Package wgpu implements the WebGPU engine. Float32 elementwise kernels run
// as WGSL compute shaders through go-webgpu's zero-CGO bindings; results stay
// GPU-resident as unmaterialized arrays until read back. Everything else
// falls back to the host kernels.
package wgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/backend/cpu"
	"github.com/ragged-ml/ragged/internal/buffer"
)

// Engine owns the WebGPU device and the shader and pipeline caches.
type Engine struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex
}

type kernels struct {
	backend.Kernels
	engine *Engine
}

// New creates a WebGPU backend, registering it for dispatch over GPU-resident
// array values. Fails when no adapter or device is available; a missing
// native library panics inside the bindings and is reported as an error.
func New() (mod *backend.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			mod = nil
			err = fmt.Errorf("wgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("wgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("wgpu: failed to request adapter: %w", adapterErr)
	}
	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("wgpu: failed to request device: %w", deviceErr)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("wgpu: failed to get queue")
	}

	e := &Engine{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}
	m := backend.NewModule(kernels{Kernels: cpu.NewKernels(), engine: e})
	backend.Register(func(v any) bool {
		a, ok := v.(buffer.Array)
		return ok && a.Device() == buffer.WebGPU
	}, m)
	return m, nil
}

// IsAvailable reports whether a WebGPU adapter can be acquired, without
// constructing or registering a backend.
func IsAvailable() (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return false
	}
	defer instance.Release()
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

func (kernels) Name() string          { return "wgpu" }
func (kernels) Device() buffer.Device { return buffer.WebGPU }
func (kernels) KnownData() bool       { return true }

func (kernels) SupportsDTypeResolution() bool { return true }

// PrepareUfunc is the identity: kernel substitution happens inside Apply,
// where the operand element types are known.
func (k kernels) PrepareUfunc(uf *backend.Ufunc) *backend.Ufunc { return uf }

// Apply dispatches float32 operands of accelerated ufuncs to WGSL compute
// shaders. The result is an unmaterialized GPU-resident array; reading it
// triggers the staging-buffer readback. Everything else runs on the host.
func (k kernels) Apply(uf *backend.Ufunc, args []*buffer.Raw, out buffer.DataType) (buffer.Array, error) {
	if shader, ok := shaderFor[uf.Name]; ok && out == buffer.Float32 && allFloat32(args) {
		switch len(args) {
		case 1:
			return k.engine.runUnaryOp(args[0], uf.Name, shader)
		case 2:
			return k.engine.runBinaryOp(args[0], args[1], uf.Name, shader)
		}
	}
	return k.Kernels.Apply(uf, args, out)
}

func allFloat32(args []*buffer.Raw) bool {
	for _, a := range args {
		if a.DType() != buffer.Float32 {
			return false
		}
	}
	return true
}
