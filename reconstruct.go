package ragged

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ragged-ml/ragged/internal/buffer"
	"github.com/ragged-ml/ragged/internal/forms"
	"github.com/ragged-ml/ragged/internal/layout"
)

// Reconstruction errors.
var (
	// ErrMissingBuffer reports a container lookup that found nothing.
	ErrMissingBuffer = errors.New("missing buffer")

	// ErrDTypeMismatch reports a fetched buffer whose element type disagrees
	// with the schema.
	ErrDTypeMismatch = errors.New("dtype mismatch")
)

// DefaultBufferKey is the default key-naming template.
const DefaultBufferKey = "{form_key}-{attribute}"

// KeyFunc computes the container key for one (schema node, attribute) pair.
type KeyFunc func(f Form, attribute string) string

type reconstructOptions struct {
	keyFn        KeyFunc
	coerceDTypes bool
	canonicalize bool
}

// Option configures FromVirtual.
type Option func(*reconstructOptions)

// WithBufferKeyTemplate sets the key-naming template. The placeholders
// {form_key} and {attribute} are substituted per lookup.
func WithBufferKeyTemplate(template string) Option {
	return func(o *reconstructOptions) {
		o.keyFn = templateKeyFunc(template)
	}
}

// WithBufferKeyFunc sets an arbitrary key-naming function.
func WithBufferKeyFunc(fn KeyFunc) Option {
	return func(o *reconstructOptions) { o.keyFn = fn }
}

// WithDTypesFromForm controls whether fetched buffers have their declared
// element types overwritten from the schema before consistency checks.
// Default true.
func WithDTypesFromForm(enabled bool) Option {
	return func(o *reconstructOptions) { o.coerceDTypes = enabled }
}

// WithCanonicalize controls whether construction goes through the
// canonicalizing constructors, which may collapse redundant nesting into
// simpler node kinds. Default false: construction is literal and fails on
// structurally invalid combinations.
func WithCanonicalize(enabled bool) Option {
	return func(o *reconstructOptions) { o.canonicalize = enabled }
}

func templateKeyFunc(template string) KeyFunc {
	return func(f Form, attribute string) string {
		out := strings.ReplaceAll(template, "{form_key}", f.FormKey())
		return strings.ReplaceAll(out, "{attribute}", attribute)
	}
}

// FromVirtual reconstructs a live nested array from a schema tree and a
// container of named buffers. The schema may be a Form, its JSON
// serialization (string or []byte), or a single primitive type name as
// shorthand for a leaf.
//
// Buffers are fetched but not read: a tree built entirely from virtual
// arrays stays unmaterialized until its values are needed. A failed
// reconstruction returns no partial tree.
func FromVirtual(form any, container Container, opts ...Option) (Content, error) {
	o := reconstructOptions{
		keyFn:        templateKeyFunc(DefaultBufferKey),
		coerceDTypes: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := regularizeForm(form)
	if err != nil {
		return nil, err
	}
	return reconstitute(f, container, &o)
}

func regularizeForm(form any) (Form, error) {
	switch v := form.(type) {
	case forms.Form:
		return v, nil
	case string:
		if buffer.IsPrimitive(v) {
			return &forms.Numpy{Primitive: v}, nil
		}
		return forms.FromJSON([]byte(v))
	case []byte:
		return forms.FromJSON(v)
	default:
		return nil, fmt.Errorf("form argument must be a Form, its JSON serialization, or a primitive name, got %T", form)
	}
}

// fetch pulls one named buffer and aligns its element type with the schema.
// With dtype coercion on, unmaterialized virtual buffers and placeholders
// get the schema's element type as a metadata override; everything else must
// already match.
func fetch(f Form, attribute string, dtype buffer.DataType, container Container, o *reconstructOptions) (buffer.Array, error) {
	key := o.keyFn(f, attribute)
	data, ok := container.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: key %q (node %s, attribute %s)", ErrMissingBuffer, key, f.Class(), attribute)
	}

	if data.DType() == dtype {
		return data, nil
	}
	if o.coerceDTypes {
		switch v := data.(type) {
		case *buffer.Virtual:
			if !v.IsMaterialized() {
				return v.WithDType(dtype)
			}
		case *buffer.Placeholder:
			return v.WithDType(dtype), nil
		}
	}
	return nil, fmt.Errorf("%w: key %q holds %s, schema requires %s", ErrDTypeMismatch, key, data.DType(), dtype)
}

func fetchIndex(f Form, attribute string, width forms.Index, container Container, o *reconstructOptions) (layout.Index, error) {
	dtype, err := width.DType()
	if err != nil {
		return layout.Index{}, err
	}
	data, err := fetch(f, attribute, dtype, container, o)
	if err != nil {
		return layout.Index{}, err
	}
	return layout.NewIndex(data)
}

// reconstitute builds the live node for one schema node, children first.
// Attribute names come from each node's ExpectedBuffers declaration.
func reconstitute(f Form, container Container, o *reconstructOptions) (Content, error) {
	switch v := f.(type) {
	case *forms.Empty:
		return layout.NewEmpty(v.Parameters()), nil

	case *forms.Numpy:
		dtype, err := v.DType()
		if err != nil {
			return nil, err
		}
		data, err := fetch(v, v.ExpectedBuffers()[0], dtype, container, o)
		if err != nil {
			return nil, err
		}
		return layout.NewNumpy(data, v.Parameters())

	case *forms.Unmasked:
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		if o.canonicalize {
			return layout.NewUnmaskedSimplified(content, v.Parameters())
		}
		return layout.NewUnmasked(content, v.Parameters())

	case *forms.ByteMasked:
		mask, err := fetchIndex(v, v.ExpectedBuffers()[0], v.Mask, container, o)
		if err != nil {
			return nil, err
		}
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		if o.canonicalize {
			return layout.NewByteMaskedSimplified(mask, content, v.ValidWhen, v.Parameters())
		}
		return layout.NewByteMasked(mask, content, v.ValidWhen, v.Parameters())

	case *forms.BitMasked:
		mask, err := fetchIndex(v, v.ExpectedBuffers()[0], v.Mask, container, o)
		if err != nil {
			return nil, err
		}
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		length := min(content.Length(), mask.Len()*8)
		if o.canonicalize {
			return layout.NewBitMaskedSimplified(mask, content, v.ValidWhen, v.LSBOrder, length, v.Parameters())
		}
		return layout.NewBitMasked(mask, content, v.ValidWhen, v.LSBOrder, length, v.Parameters())

	case *forms.IndexedOption:
		index, err := fetchIndex(v, v.ExpectedBuffers()[0], v.Index, container, o)
		if err != nil {
			return nil, err
		}
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		if o.canonicalize {
			return layout.NewIndexedOptionSimplified(index, content, v.Parameters())
		}
		return layout.NewIndexedOption(index, content, v.Parameters())

	case *forms.Indexed:
		index, err := fetchIndex(v, v.ExpectedBuffers()[0], v.Index, container, o)
		if err != nil {
			return nil, err
		}
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		if o.canonicalize {
			return layout.NewIndexedSimplified(index, content, v.Parameters())
		}
		return layout.NewIndexed(index, content, v.Parameters())

	case *forms.List:
		attrs := v.ExpectedBuffers()
		starts, err := fetchIndex(v, attrs[0], v.Starts, container, o)
		if err != nil {
			return nil, err
		}
		stops, err := fetchIndex(v, attrs[1], v.Stops, container, o)
		if err != nil {
			return nil, err
		}
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		return layout.NewList(starts, stops, content, v.Parameters())

	case *forms.ListOffset:
		offsets, err := fetchIndex(v, v.ExpectedBuffers()[0], v.Offsets, container, o)
		if err != nil {
			return nil, err
		}
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		return layout.NewListOffset(offsets, content, v.Parameters())

	case *forms.Regular:
		content, err := reconstitute(v.Content, container, o)
		if err != nil {
			return nil, err
		}
		return layout.NewRegular(content, v.Size, v.Parameters())

	case *forms.Record:
		contents := make([]layout.Content, len(v.Contents))
		length := 0
		for i, child := range v.Contents {
			content, err := reconstitute(child, container, o)
			if err != nil {
				return nil, err
			}
			contents[i] = content
			if i == 0 || content.Length() < length {
				length = content.Length()
			}
		}
		return layout.NewRecord(contents, v.Fields, length, v.Parameters())

	case *forms.Union:
		attrs := v.ExpectedBuffers()
		tags, err := fetchIndex(v, attrs[0], v.Tags, container, o)
		if err != nil {
			return nil, err
		}
		index, err := fetchIndex(v, attrs[1], v.Index, container, o)
		if err != nil {
			return nil, err
		}
		contents := make([]layout.Content, len(v.Contents))
		for i, child := range v.Contents {
			content, err := reconstitute(child, container, o)
			if err != nil {
				return nil, err
			}
			contents[i] = content
		}
		if o.canonicalize {
			return layout.NewUnionSimplified(tags, index, contents, v.Parameters())
		}
		return layout.NewUnion(tags, index, contents, v.Parameters())

	default:
		return nil, fmt.Errorf("unexpected schema node type %T", f)
	}
}
