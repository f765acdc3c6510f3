package wgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/ragged-ml/ragged/internal/buffer"
)

// compileShader compiles WGSL shader code into a ShaderModule, cached by
// name.
func (e *Engine) compileShader(name, code string) *wgpu.ShaderModule {
	e.mu.RLock()
	if shader, exists := e.shaders[name]; exists {
		e.mu.RUnlock()
		return shader
	}
	e.mu.RUnlock()

	shader := e.device.CreateShaderModuleWGSL(code)

	e.mu.Lock()
	e.shaders[name] = shader
	e.mu.Unlock()
	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates one with
// auto layout.
func (e *Engine) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	e.mu.RLock()
	if pipeline, exists := e.pipelines[name]; exists {
		e.mu.RUnlock()
		return pipeline
	}
	e.mu.RUnlock()

	pipeline := e.device.CreateComputePipelineSimple(nil, shader, "main")

	e.mu.Lock()
	e.pipelines[name] = pipeline
	e.mu.Unlock()
	return pipeline
}

// createBuffer creates a GPU buffer and uploads data through the mapped
// range.
func (e *Engine) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buf := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buf.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buf.Unmap()
	return buf
}

// createUniformBuffer creates a uniform buffer padded to the required
// 16-byte alignment.
func (e *Engine) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15
	buf := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buf.GetMappedRange(0, alignedSize)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buf.Unmap()
	return buf
}

// readBuffer copies a storage buffer back to host memory through a staging
// buffer; storage buffers cannot be mapped directly.
func (e *Engine) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := e.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmdBuffer := encoder.Finish(nil)
	e.queue.Submit(cmdBuffer)

	if err := staging.MapAsync(e.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("wgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()
	return result, nil
}

// dispatch runs one compute pass over the bound buffers.
func (e *Engine) dispatch(pipeline *wgpu.ComputePipeline, entries []wgpu.BindGroupEntry, numElements int) {
	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := e.device.CreateBindGroupSimple(bindGroupLayout, entries)
	defer bindGroup.Release()

	encoder := e.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	workgroups := uint32((numElements + workgroupSize - 1) / workgroupSize)
	computePass.DispatchWorkgroups(workgroups, 1, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	e.queue.Submit(cmdBuffer)
}

// lazyResult wraps a submitted GPU result buffer as an unmaterialized array.
// The readback runs on first materialization and releases the GPU buffer.
func (e *Engine) lazyResult(gpuBuffer *wgpu.Buffer, shape buffer.Shape, size uint64) (buffer.Array, error) {
	return buffer.NewVirtual(shape, buffer.Float32, buffer.WebGPU, func() (*buffer.Raw, error) {
		defer gpuBuffer.Release()
		data, err := e.readBuffer(gpuBuffer, size)
		if err != nil {
			return nil, err
		}
		out, err := buffer.NewRaw(shape, buffer.Float32, buffer.WebGPU)
		if err != nil {
			return nil, err
		}
		copy(out.Data(), data)
		return out, nil
	})
}

// paramsUniform packs the element count into a 16-byte aligned uniform.
func paramsUniform(numElements int) []byte {
	params := make([]byte, 16)
	binary.LittleEndian.PutUint32(params[0:4], uint32(numElements))
	return params
}

// runBinaryOp executes a two-operand elementwise shader over pre-broadcast
// float32 buffers.
func (e *Engine) runBinaryOp(a, b *buffer.Raw, shaderName, shaderCode string) (buffer.Array, error) {
	if !a.Shape().Equal(b.Shape()) {
		return nil, fmt.Errorf("wgpu: shape mismatch: %v vs %v", []int(a.Shape()), []int(b.Shape()))
	}
	numElements := a.NumElements()
	shader := e.compileShader(shaderName, shaderCode)
	pipeline := e.getOrCreatePipeline(shaderName, shader)

	bufferA := e.createBuffer(a.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferA.Release()
	bufferB := e.createBuffer(b.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferB.Release()

	resultSize := uint64(a.ByteSize())
	bufferResult := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	bufferParams := e.createUniformBuffer(paramsUniform(numElements))
	defer bufferParams.Release()

	e.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, resultSize),
		wgpu.BufferBindingEntry(1, bufferB, 0, resultSize),
		wgpu.BufferBindingEntry(2, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufferParams, 0, 16),
	}, numElements)

	return e.lazyResult(bufferResult, a.Shape(), resultSize)
}

// runUnaryOp executes a one-operand elementwise shader over a float32
// buffer.
func (e *Engine) runUnaryOp(input *buffer.Raw, shaderName, shaderCode string) (buffer.Array, error) {
	numElements := input.NumElements()
	shader := e.compileShader(shaderName, shaderCode)
	pipeline := e.getOrCreatePipeline(shaderName, shader)

	bufferInput := e.createBuffer(input.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferInput.Release()

	resultSize := uint64(input.ByteSize())
	bufferResult := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	bufferParams := e.createUniformBuffer(paramsUniform(numElements))
	defer bufferParams.Release()

	e.dispatch(pipeline, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferInput, 0, resultSize),
		wgpu.BufferBindingEntry(1, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(2, bufferParams, 0, 16),
	}, numElements)

	return e.lazyResult(bufferResult, input.Shape(), resultSize)
}
