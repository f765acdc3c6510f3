package layout

import (
	"fmt"

	"github.com/ragged-ml/ragged/internal/buffer"
	"github.com/ragged-ml/ragged/internal/forms"
)

// EmptyArray has zero length and no element type.
type EmptyArray struct {
	params map[string]any
}

// NewEmpty creates the empty node.
func NewEmpty(params map[string]any) *EmptyArray {
	return &EmptyArray{params: params}
}

func (a *EmptyArray) Class() string { return "EmptyArray" }
func (a *EmptyArray) Length() int   { return 0 }

func (a *EmptyArray) Form() (forms.Form, error) {
	return &forms.Empty{}, nil
}

func (a *EmptyArray) ToList() ([]any, error) { return []any{}, nil }

// NumpyArray is the leaf node holding a primitive buffer, possibly still
// unmaterialized.
type NumpyArray struct {
	data   buffer.Array
	params map[string]any
}

// NewNumpy wraps a primitive buffer as a leaf node.
func NewNumpy(data buffer.Array, params map[string]any) (*NumpyArray, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: leaf buffer is nil", ErrInvalidLayout)
	}
	if len(data.Shape()) == 0 {
		return nil, fmt.Errorf("%w: leaf buffers must have at least one dimension", ErrInvalidLayout)
	}
	return &NumpyArray{data: data, params: params}, nil
}

func (a *NumpyArray) Class() string { return "NumpyArray" }
func (a *NumpyArray) Length() int   { return a.data.Len() }

// Data returns the leaf buffer without materializing it.
func (a *NumpyArray) Data() buffer.Array { return a.data }

func (a *NumpyArray) Form() (forms.Form, error) {
	f := &forms.Numpy{Primitive: a.data.DType().String()}
	f.Params = a.params
	inner := a.data.Shape()
	// Inner dimensions become Regular wrappers, innermost first.
	var out forms.Form = f
	for i := len(inner) - 1; i >= 1; i-- {
		out = &forms.Regular{Content: out, Size: inner[i]}
	}
	return out, nil
}

func (a *NumpyArray) ToList() ([]any, error) {
	raw, err := materialize(a.data)
	if err != nil {
		return nil, err
	}
	return rawToList(raw), nil
}

func rawToList(raw *buffer.Raw) []any {
	shape := raw.Shape()
	if len(shape) <= 1 {
		out := make([]any, raw.NumElements())
		for i := range out {
			out[i] = scalarValue(raw, i)
		}
		return out
	}
	out := make([]any, shape[0])
	for i := range out {
		row, err := raw.SliceRange(i, i+1)
		if err != nil {
			panic(err) // bounds derive from the shape itself
		}
		flat, err := row.WithShape(shape[1:])
		if err != nil {
			panic(err)
		}
		out[i] = rawToList(flat)
	}
	return out
}

func scalarValue(raw *buffer.Raw, i int) any {
	switch {
	case raw.DType() == buffer.Bool:
		return raw.GetFloat64(i) != 0
	case raw.DType().IsComplex():
		return raw.GetComplex128(i)
	case raw.DType().IsInteger():
		return int64(raw.GetFloat64(i))
	default:
		return raw.GetFloat64(i)
	}
}

// UnmaskedArray declares every element of its content valid.
type UnmaskedArray struct {
	content Content
	params  map[string]any
}

// NewUnmasked wraps content in a trivially-valid option. The literal
// constructor accepts non-canonical nesting such as option-of-option;
// collapsing it is the canonicalizing constructor's job.
func NewUnmasked(content Content, params map[string]any) (*UnmaskedArray, error) {
	if content == nil {
		return nil, fmt.Errorf("%w: UnmaskedArray requires a content", ErrInvalidLayout)
	}
	return &UnmaskedArray{content: content, params: params}, nil
}

func (a *UnmaskedArray) Class() string    { return "UnmaskedArray" }
func (a *UnmaskedArray) Length() int      { return a.content.Length() }
func (a *UnmaskedArray) Content() Content { return a.content }

func (a *UnmaskedArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	f := &forms.Unmasked{Content: content}
	f.Params = a.params
	return f, nil
}

func (a *UnmaskedArray) ToList() ([]any, error) { return a.content.ToList() }

// ByteMaskedArray masks option elements with one byte per element.
type ByteMaskedArray struct {
	mask      Index
	content   Content
	validWhen bool
	params    map[string]any
}

// NewByteMasked builds the literal byte-masked node. The mask cannot be
// longer than the content.
func NewByteMasked(mask Index, content Content, validWhen bool, params map[string]any) (*ByteMaskedArray, error) {
	if mask.Len() > content.Length() {
		return nil, fmt.Errorf("%w: mask length %d exceeds content length %d",
			ErrInvalidLayout, mask.Len(), content.Length())
	}
	return &ByteMaskedArray{mask: mask, content: content, validWhen: validWhen, params: params}, nil
}

func (a *ByteMaskedArray) Class() string    { return "ByteMaskedArray" }
func (a *ByteMaskedArray) Length() int      { return a.mask.Len() }
func (a *ByteMaskedArray) Content() Content { return a.content }
func (a *ByteMaskedArray) Mask() Index      { return a.mask }
func (a *ByteMaskedArray) ValidWhen() bool  { return a.validWhen }

func (a *ByteMaskedArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	width, err := a.mask.Width()
	if err != nil {
		return nil, err
	}
	f := &forms.ByteMasked{Mask: width, Content: content, ValidWhen: a.validWhen}
	f.Params = a.params
	return f, nil
}

func (a *ByteMaskedArray) ToList() ([]any, error) {
	mask, err := a.mask.Values()
	if err != nil {
		return nil, err
	}
	inner, err := a.content.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(mask))
	for i, m := range mask {
		if (m != 0) == a.validWhen {
			out[i] = inner[i]
		}
	}
	return out, nil
}

// BitMaskedArray masks option elements with one bit per element.
type BitMaskedArray struct {
	mask      Index
	content   Content
	validWhen bool
	lsbOrder  bool
	length    int
	params    map[string]any
}

// NewBitMasked builds the literal bit-masked node. The length is the number
// of elements covered by the mask bits; it cannot exceed eight bits per mask
// byte or the content length.
func NewBitMasked(mask Index, content Content, validWhen, lsbOrder bool, length int, params map[string]any) (*BitMaskedArray, error) {
	if mask.DType() != buffer.Uint8 {
		return nil, fmt.Errorf("%w: bit masks must be uint8, got %s", ErrInvalidLayout, mask.DType())
	}
	if length > mask.Len()*8 {
		return nil, fmt.Errorf("%w: length %d exceeds %d mask bits", ErrInvalidLayout, length, mask.Len()*8)
	}
	if length > content.Length() {
		return nil, fmt.Errorf("%w: length %d exceeds content length %d", ErrInvalidLayout, length, content.Length())
	}
	return &BitMaskedArray{
		mask: mask, content: content,
		validWhen: validWhen, lsbOrder: lsbOrder,
		length: length, params: params,
	}, nil
}

func (a *BitMaskedArray) Class() string    { return "BitMaskedArray" }
func (a *BitMaskedArray) Length() int      { return a.length }
func (a *BitMaskedArray) Content() Content { return a.content }
func (a *BitMaskedArray) Mask() Index      { return a.mask }
func (a *BitMaskedArray) ValidWhen() bool  { return a.validWhen }
func (a *BitMaskedArray) LSBOrder() bool   { return a.lsbOrder }

func (a *BitMaskedArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	f := &forms.BitMasked{Mask: forms.IndexU8, Content: content, ValidWhen: a.validWhen, LSBOrder: a.lsbOrder}
	f.Params = a.params
	return f, nil
}

// maskBits expands the packed mask into one bool per element.
func (a *BitMaskedArray) maskBits() ([]bool, error) {
	bytes, err := a.mask.Values()
	if err != nil {
		return nil, err
	}
	bits := make([]bool, a.length)
	for i := range bits {
		b := uint8(bytes[i/8])
		if a.lsbOrder {
			bits[i] = b&(1<<(i%8)) != 0
		} else {
			bits[i] = b&(1<<(7-i%8)) != 0
		}
	}
	return bits, nil
}

func (a *BitMaskedArray) ToList() ([]any, error) {
	bits, err := a.maskBits()
	if err != nil {
		return nil, err
	}
	inner, err := a.content.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]any, a.length)
	for i, bit := range bits {
		if bit == a.validWhen {
			out[i] = inner[i]
		}
	}
	return out, nil
}

// IndexedOptionArray addresses content through an index where negative
// entries mean missing.
type IndexedOptionArray struct {
	index   Index
	content Content
	params  map[string]any
}

// NewIndexedOption builds the literal indexed-option node.
func NewIndexedOption(index Index, content Content, params map[string]any) (*IndexedOptionArray, error) {
	if dt := index.DType(); dt != buffer.Int32 && dt != buffer.Int64 {
		return nil, fmt.Errorf("%w: indexed-option indexes must be signed 32 or 64 bit, got %s",
			ErrInvalidLayout, dt)
	}
	return &IndexedOptionArray{index: index, content: content, params: params}, nil
}

func (a *IndexedOptionArray) Class() string    { return "IndexedOptionArray" }
func (a *IndexedOptionArray) Length() int      { return a.index.Len() }
func (a *IndexedOptionArray) Content() Content { return a.content }
func (a *IndexedOptionArray) Index() Index     { return a.index }

func (a *IndexedOptionArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	width, err := a.index.Width()
	if err != nil {
		return nil, err
	}
	f := &forms.IndexedOption{Index: width, Content: content}
	f.Params = a.params
	return f, nil
}

func (a *IndexedOptionArray) ToList() ([]any, error) {
	index, err := a.index.Values()
	if err != nil {
		return nil, err
	}
	inner, err := a.content.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(index))
	for i, at := range index {
		if at < 0 {
			continue
		}
		if int(at) >= len(inner) {
			return nil, fmt.Errorf("%w: index entry %d exceeds content length %d",
				ErrInvalidLayout, at, len(inner))
		}
		out[i] = inner[at]
	}
	return out, nil
}

// IndexedArray addresses content through a non-negative index.
type IndexedArray struct {
	index   Index
	content Content
	params  map[string]any
}

// NewIndexed builds the literal indexed node.
func NewIndexed(index Index, content Content, params map[string]any) (*IndexedArray, error) {
	if index.Len() > 0 && content.Length() == 0 {
		return nil, fmt.Errorf("%w: non-empty index over empty content", ErrInvalidLayout)
	}
	return &IndexedArray{index: index, content: content, params: params}, nil
}

func (a *IndexedArray) Class() string    { return "IndexedArray" }
func (a *IndexedArray) Length() int      { return a.index.Len() }
func (a *IndexedArray) Content() Content { return a.content }
func (a *IndexedArray) Index() Index     { return a.index }

func (a *IndexedArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	width, err := a.index.Width()
	if err != nil {
		return nil, err
	}
	f := &forms.Indexed{Index: width, Content: content}
	f.Params = a.params
	return f, nil
}

func (a *IndexedArray) ToList() ([]any, error) {
	index, err := a.index.Values()
	if err != nil {
		return nil, err
	}
	inner, err := a.content.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(index))
	for i, at := range index {
		if at < 0 || int(at) >= len(inner) {
			return nil, fmt.Errorf("%w: index entry %d outside content length %d",
				ErrInvalidLayout, at, len(inner))
		}
		out[i] = inner[at]
	}
	return out, nil
}

// ListArray holds variable-length lists with independent starts and stops.
type ListArray struct {
	starts  Index
	stops   Index
	content Content
	params  map[string]any
}

// NewList builds the literal list node. Starts and stops must have equal
// length; a mismatch is never silently truncated.
func NewList(starts, stops Index, content Content, params map[string]any) (*ListArray, error) {
	if starts.Len() != stops.Len() {
		return nil, fmt.Errorf("%w: starts length %d != stops length %d",
			ErrInvalidLayout, starts.Len(), stops.Len())
	}
	return &ListArray{starts: starts, stops: stops, content: content, params: params}, nil
}

func (a *ListArray) Class() string    { return "ListArray" }
func (a *ListArray) Length() int      { return a.starts.Len() }
func (a *ListArray) Content() Content { return a.content }
func (a *ListArray) Starts() Index    { return a.starts }
func (a *ListArray) Stops() Index     { return a.stops }

func (a *ListArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	startsWidth, err := a.starts.Width()
	if err != nil {
		return nil, err
	}
	stopsWidth, err := a.stops.Width()
	if err != nil {
		return nil, err
	}
	f := &forms.List{Starts: startsWidth, Stops: stopsWidth, Content: content}
	f.Params = a.params
	return f, nil
}

func (a *ListArray) ToList() ([]any, error) {
	starts, err := a.starts.Values()
	if err != nil {
		return nil, err
	}
	stops, err := a.stops.Values()
	if err != nil {
		return nil, err
	}
	inner, err := a.content.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(starts))
	for i := range starts {
		lo, hi := starts[i], stops[i]
		if lo < 0 || hi < lo || int(hi) > len(inner) {
			return nil, fmt.Errorf("%w: list bounds [%d, %d) outside content length %d",
				ErrInvalidLayout, lo, hi, len(inner))
		}
		out[i] = append([]any(nil), inner[lo:hi]...)
	}
	return out, nil
}

// ListOffsetArray holds variable-length lists with a shared offsets buffer.
type ListOffsetArray struct {
	offsets Index
	content Content
	params  map[string]any
}

// NewListOffset builds the literal list-offset node. The offsets buffer
// needs length+1 monotone entries; monotonicity is checked lazily when the
// offsets are read.
func NewListOffset(offsets Index, content Content, params map[string]any) (*ListOffsetArray, error) {
	if offsets.Len() < 1 {
		return nil, fmt.Errorf("%w: offsets buffer cannot be empty", ErrInvalidLayout)
	}
	return &ListOffsetArray{offsets: offsets, content: content, params: params}, nil
}

func (a *ListOffsetArray) Class() string    { return "ListOffsetArray" }
func (a *ListOffsetArray) Length() int      { return a.offsets.Len() - 1 }
func (a *ListOffsetArray) Content() Content { return a.content }
func (a *ListOffsetArray) Offsets() Index   { return a.offsets }

func (a *ListOffsetArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	width, err := a.offsets.Width()
	if err != nil {
		return nil, err
	}
	f := &forms.ListOffset{Offsets: width, Content: content}
	f.Params = a.params
	return f, nil
}

func (a *ListOffsetArray) ToList() ([]any, error) {
	offsets, err := a.offsets.Values()
	if err != nil {
		return nil, err
	}
	inner, err := a.content.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(offsets)-1)
	for i := range out {
		lo, hi := offsets[i], offsets[i+1]
		if lo < 0 || hi < lo || int(hi) > len(inner) {
			return nil, fmt.Errorf("%w: offsets [%d, %d) outside content length %d",
				ErrInvalidLayout, lo, hi, len(inner))
		}
		out[i] = append([]any(nil), inner[lo:hi]...)
	}
	return out, nil
}

// RegularArray holds fixed-size lists; no buffer is fetched.
type RegularArray struct {
	content Content
	size    int
	params  map[string]any
}

// NewRegular builds the literal regular node. The length is derived from the
// content length and the fixed size.
func NewRegular(content Content, size int, params map[string]any) (*RegularArray, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: regular size cannot be negative, got %d", ErrInvalidLayout, size)
	}
	return &RegularArray{content: content, size: size, params: params}, nil
}

func (a *RegularArray) Class() string    { return "RegularArray" }
func (a *RegularArray) Content() Content { return a.content }
func (a *RegularArray) Size() int        { return a.size }

func (a *RegularArray) Length() int {
	if a.size == 0 {
		return 0
	}
	return a.content.Length() / a.size
}

func (a *RegularArray) Form() (forms.Form, error) {
	content, err := a.content.Form()
	if err != nil {
		return nil, err
	}
	f := &forms.Regular{Content: content, Size: a.size}
	f.Params = a.params
	return f, nil
}

func (a *RegularArray) ToList() ([]any, error) {
	inner, err := a.content.ToList()
	if err != nil {
		return nil, err
	}
	out := make([]any, a.Length())
	for i := range out {
		out[i] = append([]any(nil), inner[i*a.size:(i+1)*a.size]...)
	}
	return out, nil
}

// RecordArray holds named fields or positional tuple slots. A record with
// zero contents is legal and carries an explicit length.
type RecordArray struct {
	contents []Content
	fields   []string
	length   int
	params   map[string]any
}

// NewRecord builds the literal record node. Fields is nil for a tuple. All
// contents must be at least length long.
func NewRecord(contents []Content, fields []string, length int, params map[string]any) (*RecordArray, error) {
	if fields != nil && len(fields) != len(contents) {
		return nil, fmt.Errorf("%w: %d field names for %d contents", ErrInvalidLayout, len(fields), len(contents))
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: record length cannot be negative, got %d", ErrInvalidLayout, length)
	}
	for i, content := range contents {
		if content.Length() < length {
			return nil, fmt.Errorf("%w: record content %d has length %d, shorter than record length %d",
				ErrInvalidLayout, i, content.Length(), length)
		}
	}
	return &RecordArray{contents: contents, fields: fields, length: length, params: params}, nil
}

func (a *RecordArray) Class() string       { return "RecordArray" }
func (a *RecordArray) Length() int         { return a.length }
func (a *RecordArray) Contents() []Content { return a.contents }
func (a *RecordArray) Fields() []string    { return a.fields }
func (a *RecordArray) IsTuple() bool       { return a.fields == nil }

func (a *RecordArray) Form() (forms.Form, error) {
	contents := make([]forms.Form, len(a.contents))
	for i, content := range a.contents {
		f, err := content.Form()
		if err != nil {
			return nil, err
		}
		contents[i] = f
	}
	f := &forms.Record{Fields: a.fields, Contents: contents}
	f.Params = a.params
	return f, nil
}

func (a *RecordArray) ToList() ([]any, error) {
	inner := make([][]any, len(a.contents))
	for i, content := range a.contents {
		list, err := content.ToList()
		if err != nil {
			return nil, err
		}
		inner[i] = list
	}
	out := make([]any, a.length)
	for i := range out {
		if a.IsTuple() {
			row := make([]any, len(a.contents))
			for j := range a.contents {
				row[j] = inner[j][i]
			}
			out[i] = row
			continue
		}
		row := make(map[string]any, len(a.contents))
		for j, field := range a.fields {
			row[field] = inner[j][i]
		}
		out[i] = row
	}
	return out, nil
}

// UnionArray holds tagged alternatives selected per element.
type UnionArray struct {
	tags     Index
	index    Index
	contents []Content
	params   map[string]any
}

// NewUnion builds the literal union node. Tags and index must have equal
// length and there must be at least one alternative.
func NewUnion(tags, index Index, contents []Content, params map[string]any) (*UnionArray, error) {
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: union requires at least one alternative", ErrInvalidLayout)
	}
	if tags.Len() != index.Len() {
		return nil, fmt.Errorf("%w: tags length %d != index length %d", ErrInvalidLayout, tags.Len(), index.Len())
	}
	if dt := tags.DType(); dt != buffer.Int8 {
		return nil, fmt.Errorf("%w: union tags must be int8, got %s", ErrInvalidLayout, dt)
	}
	return &UnionArray{tags: tags, index: index, contents: contents, params: params}, nil
}

func (a *UnionArray) Class() string       { return "UnionArray" }
func (a *UnionArray) Length() int         { return a.tags.Len() }
func (a *UnionArray) Contents() []Content { return a.contents }
func (a *UnionArray) Tags() Index         { return a.tags }
func (a *UnionArray) Index() Index        { return a.index }

func (a *UnionArray) Form() (forms.Form, error) {
	contents := make([]forms.Form, len(a.contents))
	for i, content := range a.contents {
		f, err := content.Form()
		if err != nil {
			return nil, err
		}
		contents[i] = f
	}
	tagsWidth, err := a.tags.Width()
	if err != nil {
		return nil, err
	}
	indexWidth, err := a.index.Width()
	if err != nil {
		return nil, err
	}
	f := &forms.Union{Tags: tagsWidth, Index: indexWidth, Contents: contents}
	f.Params = a.params
	return f, nil
}

func (a *UnionArray) ToList() ([]any, error) {
	tags, err := a.tags.Values()
	if err != nil {
		return nil, err
	}
	index, err := a.index.Values()
	if err != nil {
		return nil, err
	}
	inner := make([][]any, len(a.contents))
	for i, content := range a.contents {
		list, err := content.ToList()
		if err != nil {
			return nil, err
		}
		inner[i] = list
	}
	out := make([]any, len(tags))
	for i := range tags {
		tag := int(tags[i])
		if tag < 0 || tag >= len(inner) {
			return nil, fmt.Errorf("%w: tag %d outside %d alternatives", ErrInvalidLayout, tag, len(inner))
		}
		at := index[i]
		if at < 0 || int(at) >= len(inner[tag]) {
			return nil, fmt.Errorf("%w: union index %d outside alternative %d length %d",
				ErrInvalidLayout, at, tag, len(inner[tag]))
		}
		out[i] = inner[tag][at]
	}
	return out, nil
}

// isOption reports whether a node is an option kind.
func isOption(c Content) bool {
	switch c.(type) {
	case *UnmaskedArray, *ByteMaskedArray, *BitMaskedArray, *IndexedOptionArray:
		return true
	default:
		return false
	}
}

// isIndexed reports whether a node addresses its content through an index.
func isIndexed(c Content) bool {
	_, ok := c.(*IndexedArray)
	return ok
}
