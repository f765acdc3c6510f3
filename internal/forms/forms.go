// Package forms defines the schema tree: an immutable, recursive description
// of a nested array's layout. A form carries no data, only the node kind,
// shape-describing metadata, named parameters, and child forms. Equality is
// structural.
package forms

import (
	"fmt"

	"github.com/ragged-ml/ragged/internal/buffer"
)

// Index names the integer width of an index, mask, offset or tag buffer.
type Index string

// Recognized index widths.
const (
	Index8   Index = "i8"
	IndexU8  Index = "u8"
	Index32  Index = "i32"
	IndexU32 Index = "u32"
	Index64  Index = "i64"
)

// DType returns the element type the index width implies.
func (ix Index) DType() (buffer.DataType, error) {
	switch ix {
	case Index8:
		return buffer.Int8, nil
	case IndexU8:
		return buffer.Uint8, nil
	case Index32:
		return buffer.Int32, nil
	case IndexU32:
		return buffer.Uint32, nil
	case Index64:
		return buffer.Int64, nil
	default:
		return 0, fmt.Errorf("unknown index width %q", string(ix))
	}
}

// IndexFor returns the index width naming an integer element type.
func IndexFor(dt buffer.DataType) (Index, error) {
	switch dt {
	case buffer.Int8:
		return Index8, nil
	case buffer.Uint8:
		return IndexU8, nil
	case buffer.Int32:
		return Index32, nil
	case buffer.Uint32:
		return IndexU32, nil
	case buffer.Int64:
		return Index64, nil
	default:
		return "", fmt.Errorf("no index width for element type %s", dt)
	}
}

// Form is one node of a schema tree.
type Form interface {
	// Class returns the node kind name used in the JSON serialization.
	Class() string

	// FormKey returns the node's buffer-naming key. Keys need not be unique
	// across a tree; buffer lookups pair them with an attribute name.
	FormKey() string

	// Parameters returns the node's named parameters. May be nil.
	Parameters() map[string]any

	// Children returns the child forms in declaration order.
	Children() []Form

	// ExpectedBuffers lists the attribute names of the buffers this node
	// fetches during reconstruction, not counting its children's.
	ExpectedBuffers() []string

	// Equal reports structural equality, parameters included.
	Equal(other Form) bool
}

type common struct {
	Key    string
	Params map[string]any
}

func (c common) FormKey() string            { return c.Key }
func (c common) Parameters() map[string]any { return c.Params }

// Empty describes an array with zero length and unknown element type.
type Empty struct {
	common
}

// Numpy describes a leaf of primitive elements, fetched from one "data"
// buffer.
type Numpy struct {
	common
	Primitive string
}

// Unmasked wraps a content in an option type where every element is valid.
type Unmasked struct {
	common
	Content Form
}

// ByteMasked describes option elements with a one-byte-per-element mask.
type ByteMasked struct {
	common
	Mask      Index
	Content   Form
	ValidWhen bool
}

// BitMasked describes option elements with a one-bit-per-element mask.
type BitMasked struct {
	common
	Mask      Index
	Content   Form
	ValidWhen bool
	LSBOrder  bool
}

// IndexedOption describes elements addressed through an index where negative
// entries mean missing.
type IndexedOption struct {
	common
	Index   Index
	Content Form
}

// Indexed describes elements addressed through a non-negative index.
type Indexed struct {
	common
	Index   Index
	Content Form
}

// List describes variable-length lists with independent starts and stops.
type List struct {
	common
	Starts  Index
	Stops   Index
	Content Form
}

// ListOffset describes variable-length lists with a shared offsets buffer of
// length+1 entries.
type ListOffset struct {
	common
	Offsets Index
	Content Form
}

// Regular describes fixed-size lists; no buffer is fetched.
type Regular struct {
	common
	Content Form
	Size    int
}

// Record describes named fields or positional tuple slots. Fields is nil for
// a tuple. A record with zero contents is legal (degenerate record).
type Record struct {
	common
	Fields   []string
	Contents []Form
}

// Union describes tagged alternatives selected by a tags buffer and
// addressed by an index buffer.
type Union struct {
	common
	Tags     Index
	Index    Index
	Contents []Form
}

// IsTuple reports whether the record has positional rather than named
// contents.
func (f *Record) IsTuple() bool { return f.Fields == nil }

func (f *Empty) Class() string         { return "EmptyArray" }
func (f *Numpy) Class() string         { return "NumpyArray" }
func (f *Unmasked) Class() string      { return "UnmaskedArray" }
func (f *ByteMasked) Class() string    { return "ByteMaskedArray" }
func (f *BitMasked) Class() string     { return "BitMaskedArray" }
func (f *IndexedOption) Class() string { return "IndexedOptionArray" }
func (f *Indexed) Class() string       { return "IndexedArray" }
func (f *List) Class() string          { return "ListArray" }
func (f *ListOffset) Class() string    { return "ListOffsetArray" }
func (f *Regular) Class() string       { return "RegularArray" }
func (f *Record) Class() string        { return "RecordArray" }
func (f *Union) Class() string         { return "UnionArray" }

func (f *Empty) Children() []Form         { return nil }
func (f *Numpy) Children() []Form         { return nil }
func (f *Unmasked) Children() []Form      { return []Form{f.Content} }
func (f *ByteMasked) Children() []Form    { return []Form{f.Content} }
func (f *BitMasked) Children() []Form     { return []Form{f.Content} }
func (f *IndexedOption) Children() []Form { return []Form{f.Content} }
func (f *Indexed) Children() []Form       { return []Form{f.Content} }
func (f *List) Children() []Form          { return []Form{f.Content} }
func (f *ListOffset) Children() []Form    { return []Form{f.Content} }
func (f *Regular) Children() []Form       { return []Form{f.Content} }
func (f *Record) Children() []Form        { return f.Contents }
func (f *Union) Children() []Form         { return f.Contents }

func (f *Empty) ExpectedBuffers() []string         { return nil }
func (f *Numpy) ExpectedBuffers() []string         { return []string{"data"} }
func (f *Unmasked) ExpectedBuffers() []string      { return nil }
func (f *ByteMasked) ExpectedBuffers() []string    { return []string{"mask"} }
func (f *BitMasked) ExpectedBuffers() []string     { return []string{"mask"} }
func (f *IndexedOption) ExpectedBuffers() []string { return []string{"index"} }
func (f *Indexed) ExpectedBuffers() []string       { return []string{"index"} }
func (f *List) ExpectedBuffers() []string          { return []string{"starts", "stops"} }
func (f *ListOffset) ExpectedBuffers() []string    { return []string{"offsets"} }
func (f *Regular) ExpectedBuffers() []string       { return nil }
func (f *Record) ExpectedBuffers() []string        { return nil }
func (f *Union) ExpectedBuffers() []string         { return []string{"tags", "index"} }

// DType resolves the leaf's primitive name.
func (f *Numpy) DType() (buffer.DataType, error) {
	return buffer.FromPrimitive(f.Primitive)
}

func (f *Empty) Equal(other Form) bool {
	o, ok := other.(*Empty)
	return ok && paramsEqual(f.Params, o.Params)
}

func (f *Numpy) Equal(other Form) bool {
	o, ok := other.(*Numpy)
	return ok && f.Primitive == o.Primitive && paramsEqual(f.Params, o.Params)
}

func (f *Unmasked) Equal(other Form) bool {
	o, ok := other.(*Unmasked)
	return ok && f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *ByteMasked) Equal(other Form) bool {
	o, ok := other.(*ByteMasked)
	return ok && f.Mask == o.Mask && f.ValidWhen == o.ValidWhen &&
		f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *BitMasked) Equal(other Form) bool {
	o, ok := other.(*BitMasked)
	return ok && f.Mask == o.Mask && f.ValidWhen == o.ValidWhen && f.LSBOrder == o.LSBOrder &&
		f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *IndexedOption) Equal(other Form) bool {
	o, ok := other.(*IndexedOption)
	return ok && f.Index == o.Index && f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *Indexed) Equal(other Form) bool {
	o, ok := other.(*Indexed)
	return ok && f.Index == o.Index && f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *List) Equal(other Form) bool {
	o, ok := other.(*List)
	return ok && f.Starts == o.Starts && f.Stops == o.Stops &&
		f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *ListOffset) Equal(other Form) bool {
	o, ok := other.(*ListOffset)
	return ok && f.Offsets == o.Offsets && f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *Regular) Equal(other Form) bool {
	o, ok := other.(*Regular)
	return ok && f.Size == o.Size && f.Content.Equal(o.Content) && paramsEqual(f.Params, o.Params)
}

func (f *Record) Equal(other Form) bool {
	o, ok := other.(*Record)
	if !ok || f.IsTuple() != o.IsTuple() || len(f.Contents) != len(o.Contents) {
		return false
	}
	for i := range f.Contents {
		if !f.IsTuple() && f.Fields[i] != o.Fields[i] {
			return false
		}
		if !f.Contents[i].Equal(o.Contents[i]) {
			return false
		}
	}
	return paramsEqual(f.Params, o.Params)
}

func (f *Union) Equal(other Form) bool {
	o, ok := other.(*Union)
	if !ok || f.Tags != o.Tags || f.Index != o.Index || len(f.Contents) != len(o.Contents) {
		return false
	}
	for i := range f.Contents {
		if !f.Contents[i].Equal(o.Contents[i]) {
			return false
		}
	}
	return paramsEqual(f.Params, o.Params)
}

func paramsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
