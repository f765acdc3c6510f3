package buffer

// Placeholder is an array value with known shape and element type but
// permanently no data. It is used for static shape/type checking; any
// operation that needs element values must reject it with ErrInvalidOperand.
type Placeholder struct {
	shape  Shape
	dtype  DataType
	device Device
}

// NewPlaceholder creates a dataless array value.
func NewPlaceholder(shape Shape, dtype DataType, device Device) *Placeholder {
	return &Placeholder{shape: shape.Clone(), dtype: dtype, device: device}
}

// Shape returns the declared shape.
func (p *Placeholder) Shape() Shape { return p.shape }

// DType returns the declared element type.
func (p *Placeholder) DType() DataType { return p.dtype }

// Device returns the declared device.
func (p *Placeholder) Device() Device { return p.device }

// Len returns the length of the first axis (1 for scalars).
func (p *Placeholder) Len() int {
	if len(p.shape) == 0 {
		return 1
	}
	return p.shape[0]
}

// WithDType returns a placeholder with the element type replaced.
// Placeholders carry no data, so the override is purely metadata.
func (p *Placeholder) WithDType(dtype DataType) *Placeholder {
	return NewPlaceholder(p.shape, dtype, p.device)
}
