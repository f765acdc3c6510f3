package forms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragged-ml/ragged/internal/buffer"
	"github.com/ragged-ml/ragged/internal/forms"
)

const listOffsetJSON = `{
	"class": "ListOffsetArray",
	"offsets": "i64",
	"content": {
		"class": "NumpyArray",
		"primitive": "float64",
		"form_key": "node1"
	},
	"form_key": "node0"
}`

func TestFromJSONListOffset(t *testing.T) {
	f, err := forms.FromJSON([]byte(listOffsetJSON))
	require.NoError(t, err)

	lo, ok := f.(*forms.ListOffset)
	require.True(t, ok)
	assert.Equal(t, "node0", lo.FormKey())
	assert.Equal(t, forms.Index64, lo.Offsets)
	assert.Equal(t, []string{"offsets"}, lo.ExpectedBuffers())

	leaf, ok := lo.Content.(*forms.Numpy)
	require.True(t, ok)
	assert.Equal(t, "float64", leaf.Primitive)
	assert.Equal(t, "node1", leaf.FormKey())
}

func TestJSONRoundTrip(t *testing.T) {
	src := &forms.Record{
		Fields: []string{"x", "y"},
		Contents: []forms.Form{
			&forms.Numpy{Primitive: "int64"},
			&forms.List{
				Starts: forms.Index32,
				Stops:  forms.Index32,
				Content: &forms.ByteMasked{
					Mask:      forms.Index8,
					ValidWhen: true,
					Content:   &forms.Numpy{Primitive: "float32"},
				},
			},
		},
	}

	data, err := forms.ToJSON(src)
	require.NoError(t, err)
	back, err := forms.FromJSON(data)
	require.NoError(t, err)
	assert.True(t, src.Equal(back), "round-tripped form should be structurally equal")
}

func TestFromJSONUnknownClass(t *testing.T) {
	_, err := forms.FromJSON([]byte(`{"class": "NoSuchArray"}`))
	require.Error(t, err)
}

func TestFromJSONBadIndexWidth(t *testing.T) {
	_, err := forms.FromJSON([]byte(`{
		"class": "ListOffsetArray",
		"offsets": "i16",
		"content": {"class": "EmptyArray"}
	}`))
	require.Error(t, err)
}

func TestStructuralEquality(t *testing.T) {
	a := &forms.Unmasked{Content: &forms.Numpy{Primitive: "bool"}}
	b := &forms.Unmasked{Content: &forms.Numpy{Primitive: "bool"}}
	c := &forms.Unmasked{Content: &forms.Numpy{Primitive: "int8"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(&forms.Empty{}))

	withParams := &forms.Numpy{Primitive: "bool"}
	withParams.Params = map[string]any{"__array__": "char"}
	assert.False(t, (&forms.Numpy{Primitive: "bool"}).Equal(withParams))
}

func TestIndexDTypeMapping(t *testing.T) {
	cases := map[forms.Index]buffer.DataType{
		forms.Index8:   buffer.Int8,
		forms.IndexU8:  buffer.Uint8,
		forms.Index32:  buffer.Int32,
		forms.IndexU32: buffer.Uint32,
		forms.Index64:  buffer.Int64,
	}
	for width, want := range cases {
		dt, err := width.DType()
		require.NoError(t, err)
		assert.Equal(t, want, dt)

		back, err := forms.IndexFor(dt)
		require.NoError(t, err)
		assert.Equal(t, width, back)
	}

	_, err := forms.Index("i16").DType()
	require.Error(t, err)
	_, err = forms.IndexFor(buffer.Float64)
	require.Error(t, err)
}

func TestExpectedBuffers(t *testing.T) {
	assert.Equal(t, []string{"data"}, (&forms.Numpy{}).ExpectedBuffers())
	assert.Equal(t, []string{"starts", "stops"}, (&forms.List{}).ExpectedBuffers())
	assert.Equal(t, []string{"mask"}, (&forms.BitMasked{}).ExpectedBuffers())
	assert.Equal(t, []string{"index"}, (&forms.IndexedOption{}).ExpectedBuffers())
	assert.Equal(t, []string{"tags", "index"}, (&forms.Union{}).ExpectedBuffers())
	assert.Nil(t, (&forms.Regular{}).ExpectedBuffers())
	assert.Nil(t, (&forms.Record{}).ExpectedBuffers())
}
