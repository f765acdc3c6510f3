package backend

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/ragged-ml/ragged/internal/buffer"
)

// Ufunc is an elementwise function with a fixed arity. Backends may
// substitute their own implementation for a requested ufunc through
// PrepareUfunc (matched by Name).
type Ufunc struct {
	Name string
	NIn  int

	// ResolveDTypes computes the result element type from the operand
	// element types alone. It is consulted only on the value-independent
	// application path.
	ResolveDTypes func(in []buffer.DataType) (buffer.DataType, error)

	// Eval computes one output element from widened operands. Engine
	// kernels may ignore it and run their own implementation.
	Eval func(args []complex128) complex128
}

var promotionRank = map[buffer.DataType]int{
	buffer.Bool: 0,
	buffer.Int8: 1, buffer.Uint8: 2,
	buffer.Int16: 3, buffer.Uint16: 4,
	buffer.Int32: 5, buffer.Uint32: 6,
	buffer.Int64: 7, buffer.Uint64: 8,
	buffer.Float16: 9, buffer.BFloat16: 10,
	buffer.Float32: 11, buffer.Float64: 12,
	buffer.Complex64: 13, buffer.Complex128: 14,
}

// Promote returns the common element type of a and b under the numeric
// promotion ladder. Structured elements do not promote.
func Promote(a, b buffer.DataType) (buffer.DataType, error) {
	ra, ok := promotionRank[a]
	if !ok {
		return 0, fmt.Errorf("element type %s does not participate in promotion", a)
	}
	rb, ok := promotionRank[b]
	if !ok {
		return 0, fmt.Errorf("element type %s does not participate in promotion", b)
	}
	if ra >= rb {
		return a, nil
	}
	return b, nil
}

func promoteAll(in []buffer.DataType) (buffer.DataType, error) {
	if len(in) == 0 {
		return 0, fmt.Errorf("ufunc requires at least one operand")
	}
	out := in[0]
	for _, dt := range in[1:] {
		var err error
		out, err = Promote(out, dt)
		if err != nil {
			return 0, err
		}
	}
	return out, nil
}

// resolveNumeric promotes operands; bools promote to int64 so arithmetic on
// masks yields counts rather than saturating.
func resolveNumeric(in []buffer.DataType) (buffer.DataType, error) {
	out, err := promoteAll(in)
	if err != nil {
		return 0, err
	}
	if out == buffer.Bool {
		return buffer.Int64, nil
	}
	return out, nil
}

// resolveFloating promotes like resolveNumeric but forces a floating (or
// complex) result, as true division and sqrt/exp do.
func resolveFloating(in []buffer.DataType) (buffer.DataType, error) {
	out, err := promoteAll(in)
	if err != nil {
		return 0, err
	}
	if out.IsComplex() || out == buffer.Float64 {
		return out, nil
	}
	if out.IsFloat() {
		return out, nil
	}
	return buffer.Float64, nil
}

func resolveBool(in []buffer.DataType) (buffer.DataType, error) {
	if _, err := promoteAll(in); err != nil {
		return 0, err
	}
	return buffer.Bool, nil
}

func cmp(ok bool) complex128 {
	if ok {
		return 1
	}
	return 0
}

// The standard elementwise vocabulary. Kernels match them by Name.
var (
	Add = &Ufunc{Name: "add", NIn: 2, ResolveDTypes: resolveNumeric,
		Eval: func(a []complex128) complex128 { return a[0] + a[1] }}
	Subtract = &Ufunc{Name: "subtract", NIn: 2, ResolveDTypes: resolveNumeric,
		Eval: func(a []complex128) complex128 { return a[0] - a[1] }}
	Multiply = &Ufunc{Name: "multiply", NIn: 2, ResolveDTypes: resolveNumeric,
		Eval: func(a []complex128) complex128 { return a[0] * a[1] }}
	Divide = &Ufunc{Name: "divide", NIn: 2, ResolveDTypes: resolveFloating,
		Eval: func(a []complex128) complex128 { return a[0] / a[1] }}
	Negative = &Ufunc{Name: "negative", NIn: 1, ResolveDTypes: resolveNumeric,
		Eval: func(a []complex128) complex128 { return -a[0] }}
	Sqrt = &Ufunc{Name: "sqrt", NIn: 1, ResolveDTypes: resolveFloating,
		Eval: func(a []complex128) complex128 {
			if imag(a[0]) == 0 {
				return complex(math.Sqrt(real(a[0])), 0)
			}
			return cmplx.Sqrt(a[0])
		}}
	Exp = &Ufunc{Name: "exp", NIn: 1, ResolveDTypes: resolveFloating,
		Eval: func(a []complex128) complex128 {
			if imag(a[0]) == 0 {
				return complex(math.Exp(real(a[0])), 0)
			}
			return cmplx.Exp(a[0])
		}}

	Equal = &Ufunc{Name: "equal", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(a[0] == a[1]) }}
	NotEqual = &Ufunc{Name: "not_equal", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(a[0] != a[1]) }}
	Less = &Ufunc{Name: "less", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(real(a[0]) < real(a[1])) }}
	LessEqual = &Ufunc{Name: "less_equal", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(real(a[0]) <= real(a[1])) }}
	Greater = &Ufunc{Name: "greater", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(real(a[0]) > real(a[1])) }}
	GreaterEqual = &Ufunc{Name: "greater_equal", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(real(a[0]) >= real(a[1])) }}

	LogicalAnd = &Ufunc{Name: "logical_and", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(a[0] != 0 && a[1] != 0) }}
	LogicalOr = &Ufunc{Name: "logical_or", NIn: 2, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(a[0] != 0 || a[1] != 0) }}
	LogicalNot = &Ufunc{Name: "logical_not", NIn: 1, ResolveDTypes: resolveBool,
		Eval: func(a []complex128) complex128 { return cmp(a[0] == 0) }}
)
