package layout

import (
	"fmt"

	"github.com/ragged-ml/ragged/internal/buffer"
)

// Canonicalizing constructors. Each may collapse redundant nesting into a
// different, simpler node kind: option-of-option and indexed-of-indexed
// patterns merge into one level, a fully-trivial index collapses away.
// Collapsing reads index and mask buffers; leaf data buffers stay
// unmaterialized.

// NewUnmaskedSimplified wraps content in a trivially-valid option unless the
// content already is an option node.
func NewUnmaskedSimplified(content Content, params map[string]any) (Content, error) {
	if isOption(content) {
		return content, nil
	}
	return NewUnmasked(content, params)
}

// NewIndexedSimplified builds an indexed node, merging through indexed or
// option content. An identity index over the whole content collapses away.
func NewIndexedSimplified(index Index, content Content, params map[string]any) (Content, error) {
	outer, err := index.Values()
	if err != nil {
		return nil, err
	}
	if isOption(content) || isIndexed(content) {
		inner, innerContent, err := projectionIndex(content)
		if err != nil {
			return nil, err
		}
		composed, hasMissing, err := composeIndexes(outer, inner)
		if err != nil {
			return nil, err
		}
		if hasMissing {
			return newIndexedOptionFromValues(composed, innerContent, params)
		}
		return newIndexedFromValues(composed, innerContent, params)
	}
	if isIdentity(outer, content.Length()) {
		return content, nil
	}
	return NewIndexed(index, content, params)
}

// NewIndexedOptionSimplified builds an indexed-option node, merging through
// indexed or option content.
func NewIndexedOptionSimplified(index Index, content Content, params map[string]any) (Content, error) {
	if !isOption(content) && !isIndexed(content) {
		return NewIndexedOption(index, content, params)
	}
	outer, err := index.Values()
	if err != nil {
		return nil, err
	}
	inner, innerContent, err := projectionIndex(content)
	if err != nil {
		return nil, err
	}
	composed, _, err := composeIndexes(outer, inner)
	if err != nil {
		return nil, err
	}
	return newIndexedOptionFromValues(composed, innerContent, params)
}

// NewByteMaskedSimplified builds a byte-masked node; option or indexed
// content converts the mask to an index and merges.
func NewByteMaskedSimplified(mask Index, content Content, validWhen bool, params map[string]any) (Content, error) {
	if !isOption(content) && !isIndexed(content) {
		return NewByteMasked(mask, content, validWhen, params)
	}
	values, err := mask.Values()
	if err != nil {
		return nil, err
	}
	outer := make([]int64, len(values))
	for i, m := range values {
		if (m != 0) == validWhen {
			outer[i] = int64(i)
		} else {
			outer[i] = -1
		}
	}
	inner, innerContent, err := projectionIndex(content)
	if err != nil {
		return nil, err
	}
	composed, _, err := composeIndexes(outer, inner)
	if err != nil {
		return nil, err
	}
	return newIndexedOptionFromValues(composed, innerContent, params)
}

// NewBitMaskedSimplified builds a bit-masked node; option or indexed content
// unpacks the mask bits and merges as an indexed-option.
func NewBitMaskedSimplified(mask Index, content Content, validWhen, lsbOrder bool, length int, params map[string]any) (Content, error) {
	if !isOption(content) && !isIndexed(content) {
		return NewBitMasked(mask, content, validWhen, lsbOrder, length, params)
	}
	literal, err := NewBitMasked(mask, content, validWhen, lsbOrder, length, params)
	if err != nil {
		return nil, err
	}
	bits, err := literal.maskBits()
	if err != nil {
		return nil, err
	}
	outer := make([]int64, length)
	for i, bit := range bits {
		if bit == validWhen {
			outer[i] = int64(i)
		} else {
			outer[i] = -1
		}
	}
	inner, innerContent, err := projectionIndex(content)
	if err != nil {
		return nil, err
	}
	composed, _, err := composeIndexes(outer, inner)
	if err != nil {
		return nil, err
	}
	return newIndexedOptionFromValues(composed, innerContent, params)
}

// projectionIndex flattens one indexed or option node into an int64
// projection (missing entries negative) over its content. Unmasked nodes
// project as the identity.
func projectionIndex(c Content) ([]int64, Content, error) {
	switch v := c.(type) {
	case *IndexedArray:
		values, err := v.index.Values()
		if err != nil {
			return nil, nil, err
		}
		return values, v.content, nil
	case *IndexedOptionArray:
		values, err := v.index.Values()
		if err != nil {
			return nil, nil, err
		}
		return values, v.content, nil
	case *UnmaskedArray:
		out := make([]int64, v.Length())
		for i := range out {
			out[i] = int64(i)
		}
		return out, v.content, nil
	case *ByteMaskedArray:
		values, err := v.mask.Values()
		if err != nil {
			return nil, nil, err
		}
		out := make([]int64, len(values))
		for i, m := range values {
			if (m != 0) == v.validWhen {
				out[i] = int64(i)
			} else {
				out[i] = -1
			}
		}
		return out, v.content, nil
	case *BitMaskedArray:
		bits, err := v.maskBits()
		if err != nil {
			return nil, nil, err
		}
		out := make([]int64, len(bits))
		for i, bit := range bits {
			if bit == v.validWhen {
				out[i] = int64(i)
			} else {
				out[i] = -1
			}
		}
		return out, v.content, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s is not an indexed or option node", ErrInvalidLayout, c.Class())
	}
}

// composeIndexes resolves outer through inner; negative entries on either
// side stay missing.
func composeIndexes(outer, inner []int64) ([]int64, bool, error) {
	out := make([]int64, len(outer))
	hasMissing := false
	for i, at := range outer {
		if at < 0 {
			out[i] = -1
			hasMissing = true
			continue
		}
		if int(at) >= len(inner) {
			return nil, false, fmt.Errorf("%w: index entry %d exceeds inner length %d",
				ErrInvalidLayout, at, len(inner))
		}
		out[i] = inner[at]
		if out[i] < 0 {
			out[i] = -1
			hasMissing = true
		}
	}
	return out, hasMissing, nil
}

func isIdentity(index []int64, length int) bool {
	if len(index) != length {
		return false
	}
	for i, at := range index {
		if at != int64(i) {
			return false
		}
	}
	return true
}

func newIndexedFromValues(values []int64, content Content, params map[string]any) (Content, error) {
	if isIdentity(values, content.Length()) {
		return content, nil
	}
	raw, err := buffer.FromInt64s(values, buffer.Shape{len(values)})
	if err != nil {
		return nil, err
	}
	index, err := NewIndex(raw)
	if err != nil {
		return nil, err
	}
	return NewIndexed(index, content, params)
}

func newIndexedOptionFromValues(values []int64, content Content, params map[string]any) (Content, error) {
	raw, err := buffer.FromInt64s(values, buffer.Shape{len(values)})
	if err != nil {
		return nil, err
	}
	index, err := NewIndex(raw)
	if err != nil {
		return nil, err
	}
	return NewIndexedOption(index, content, params)
}

// NewUnionSimplified builds a union node. Nested-union merging is not
// implemented; the literal constructor's validation applies.
func NewUnionSimplified(tags, index Index, contents []Content, params map[string]any) (Content, error) {
	return NewUnion(tags, index, contents, params)
}
