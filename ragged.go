// Package ragged provides the public API of the Ragged framework: lazy
// (virtual) arrays over pluggable array engines, schema trees describing
// nested array layouts, and reconstruction of live nested arrays from named
// buffer containers.
//
// Example:
//
//	form, _ := ragged.FormFromJSON(schemaJSON)
//	arr, _ := ragged.FromVirtual(form, container)
//	values, _ := arr.ToList() // materializes only the buffers it needs
package ragged

import (
	"github.com/ragged-ml/ragged/internal/backend"
	"github.com/ragged-ml/ragged/internal/buffer"
	"github.com/ragged-ml/ragged/internal/forms"
	"github.com/ragged-ml/ragged/internal/layout"
)

// Type aliases for public API

// DataType represents the element type of an array.
type DataType = buffer.DataType

// Element type constants.
const (
	Bool       DataType = buffer.Bool
	Int8       DataType = buffer.Int8
	Int16      DataType = buffer.Int16
	Int32      DataType = buffer.Int32
	Int64      DataType = buffer.Int64
	Uint8      DataType = buffer.Uint8
	Uint16     DataType = buffer.Uint16
	Uint32     DataType = buffer.Uint32
	Uint64     DataType = buffer.Uint64
	Float16    DataType = buffer.Float16
	BFloat16   DataType = buffer.BFloat16
	Float32    DataType = buffer.Float32
	Float64    DataType = buffer.Float64
	Complex64  DataType = buffer.Complex64
	Complex128 DataType = buffer.Complex128
)

// Device represents where array data resides.
type Device = buffer.Device

// Device constants.
const (
	CPU    Device = buffer.CPU
	WebGPU Device = buffer.WebGPU
)

// Shape represents array dimensions.
type Shape = buffer.Shape

// Array is any array value: eager, placeholder, or virtual.
type Array = buffer.Array

// Raw is the eager byte-backed array.
type Raw = buffer.Raw

// Virtual is the lazy array: declared shape and element type, contents
// computed by a producer on first materialization.
type Virtual = buffer.Virtual

// Placeholder has known shape and element type but permanently no data.
type Placeholder = buffer.Placeholder

// Producer computes the contents of a virtual array. It runs at most once.
type Producer = buffer.Producer

// NewVirtual creates an unmaterialized array with declared metadata.
func NewVirtual(shape Shape, dtype DataType, device Device, producer Producer) (*Virtual, error) {
	return buffer.NewVirtual(shape, dtype, device, producer)
}

// NewPlaceholder creates a dataless array value.
func NewPlaceholder(shape Shape, dtype DataType, device Device) *Placeholder {
	return buffer.NewPlaceholder(shape, dtype, device)
}

// Backend is the uniform operation surface over one array engine.
type Backend = backend.Backend

// BackendOf returns the backend owning an array value.
func BackendOf(v any) (Backend, error) { return backend.Of(v) }

// Form is one node of a schema tree.
type Form = forms.Form

// FormFromJSON decodes the JSON serialization of a schema tree.
func FormFromJSON(data []byte) (Form, error) { return forms.FromJSON(data) }

// FormToJSON encodes a schema tree to JSON.
func FormToJSON(f Form) ([]byte, error) { return forms.ToJSON(f) }

// Content is one node of a live array tree.
type Content = layout.Content
