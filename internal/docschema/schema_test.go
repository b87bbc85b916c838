package docschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_IndexOf(t *testing.T) {
	s := New([]Field{{Name: "id", Kind: Int64}, {Name: "name", Kind: String}})
	assert.Equal(t, 0, s.IndexOf("id"))
	assert.Equal(t, 1, s.IndexOf("name"))
	assert.Equal(t, -1, s.IndexOf("missing"))
}

func TestSchema_ResolveTopLevel(t *testing.T) {
	s := New([]Field{{Name: "score", Kind: Float64}})
	field, slots, err := s.Resolve("score")
	require.NoError(t, err)
	assert.Equal(t, Float64, field.Kind)
	assert.Equal(t, []int{0}, slots)
}

func TestSchema_ResolveNestedPath(t *testing.T) {
	nested := New([]Field{{Name: "id", Kind: Int64}})
	s := New([]Field{{Name: "user", Kind: Subdocument, Nested: nested}})
	field, slots, err := s.Resolve("user.id")
	require.NoError(t, err)
	assert.Equal(t, Int64, field.Kind)
	assert.Equal(t, []int{0, 0}, slots)
}

func TestSchema_ResolveMissingFieldErrors(t *testing.T) {
	s := New([]Field{{Name: "id", Kind: Int64}})
	_, _, err := s.Resolve("nope")
	assert.Error(t, err)
}

func TestSchema_ResolveThroughNonSubdocumentErrors(t *testing.T) {
	s := New([]Field{{Name: "id", Kind: Int64}})
	_, _, err := s.Resolve("id.sub")
	assert.Error(t, err)
}

func TestSchema_ResolveEmptyPathErrors(t *testing.T) {
	s := New([]Field{{Name: "id", Kind: Int64}})
	_, _, err := s.Resolve("")
	assert.Error(t, err)
}

func TestParse_RoundTripsFieldKinds(t *testing.T) {
	src := []byte(`{"fields":[
		{"name":"id","kind":"INT64","required":true},
		{"name":"score","kind":"DOUBLE","required":false},
		{"name":"tags","kind":"STRING","required":false},
		{"name":"user","kind":"SUBDOCUMENT","required":true,"nested":{"fields":[
			{"name":"age","kind":"INT32","required":true}
		]}}
	]}`)
	schema, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, schema.Fields, 4)
	assert.Equal(t, Int64, schema.Fields[0].Kind)
	assert.Equal(t, Float64, schema.Fields[1].Kind)
	assert.Equal(t, String, schema.Fields[2].Kind)
	require.NotNil(t, schema.Fields[3].Nested)
	assert.Equal(t, Int32, schema.Fields[3].Nested.Fields[0].Kind)
}

func TestParse_UnknownKindErrors(t *testing.T) {
	_, err := Parse([]byte(`{"fields":[{"name":"x","kind":"NOPE"}]}`))
	assert.Error(t, err)
}

func TestParse_SubdocumentWithoutNestedErrors(t *testing.T) {
	_, err := Parse([]byte(`{"fields":[{"name":"x","kind":"SUBDOCUMENT"}]}`))
	assert.Error(t, err)
}

func TestFieldKind_String(t *testing.T) {
	assert.Equal(t, "DOUBLE", Float64.String())
	assert.Equal(t, "UNKNOWN", FieldKind(99).String())
}

func TestFieldKind_IsIntegerIsFloat(t *testing.T) {
	assert.True(t, Int32.IsInteger())
	assert.False(t, Int32.IsFloat())
	assert.True(t, Float32.IsFloat())
	assert.False(t, String.IsInteger())
}
