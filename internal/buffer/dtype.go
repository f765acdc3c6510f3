// Package buffer provides the core array value types of the Ragged framework:
// element types, shapes, the eager byte-backed buffer, the dataless
// placeholder, and the lazy (virtual) array.
package buffer

import "fmt"

// DataType represents runtime type information for array elements.
type DataType int

// Supported element types.
const (
	Bool DataType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	BFloat16
	Float32
	Float64
	Complex64
	Complex128
	// Structured marks record-like element types that no backend in this
	// module supports natively. It exists so dispatch can reject it by name.
	Structured
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16, BFloat16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		panic(fmt.Sprintf("no element size for data type %d", int(dt)))
	}
}

// String returns the primitive name of the data type.
func (dt DataType) String() string {
	switch dt {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	case Structured:
		return "structured"
	default:
		return "unknown"
	}
}

var primitives = map[string]DataType{
	"bool":       Bool,
	"int8":       Int8,
	"int16":      Int16,
	"int32":      Int32,
	"int64":      Int64,
	"uint8":      Uint8,
	"uint16":     Uint16,
	"uint32":     Uint32,
	"uint64":     Uint64,
	"float16":    Float16,
	"bfloat16":   BFloat16,
	"float32":    Float32,
	"float64":    Float64,
	"complex64":  Complex64,
	"complex128": Complex128,
}

// FromPrimitive resolves a primitive type name (e.g. "float64") to its
// DataType. Names follow the schema-tree vocabulary.
func FromPrimitive(name string) (DataType, error) {
	dt, ok := primitives[name]
	if !ok {
		return 0, fmt.Errorf("unknown primitive type name %q", name)
	}
	return dt, nil
}

// IsPrimitive reports whether name is a recognized primitive type name.
func IsPrimitive(name string) bool {
	_, ok := primitives[name]
	return ok
}

// IsInteger reports whether the data type is a signed or unsigned integer.
func (dt DataType) IsInteger() bool {
	switch dt {
	case Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether the data type is a floating-point type.
func (dt DataType) IsFloat() bool {
	switch dt {
	case Float16, BFloat16, Float32, Float64:
		return true
	default:
		return false
	}
}

// IsComplex reports whether the data type is a complex type.
func (dt DataType) IsComplex() bool {
	return dt == Complex64 || dt == Complex128
}
