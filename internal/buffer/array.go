package buffer

// Device represents where array data resides.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Array is the contract shared by every array value representation:
// the eager buffer (Raw), the dataless placeholder (Placeholder), and the
// lazy array (Virtual). Only metadata queries live here; whether element
// data can be read depends on the concrete representation.
type Array interface {
	Shape() Shape
	DType() DataType
	Device() Device

	// Len returns the length of the first axis (the element count for a
	// scalar-free 1D buffer).
	Len() int
}
