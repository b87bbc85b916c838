package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
)

func textSchema() *docschema.Schema {
	return docschema.New([]docschema.Field{{Name: "handle", Kind: docschema.String, Required: true}})
}

func buildTextDoc(t *testing.T, schema *docschema.Schema, value string) *document.Document {
	t.Helper()
	b := document.NewBuilder(schema)
	require.NoError(t, b.SetString("handle", []byte(value)))
	buf, err := b.Build()
	require.NoError(t, err)
	doc := document.Allocate(schema)
	require.NoError(t, doc.Reset(buf))
	return doc
}

func TestEqualityIndexer_StringInsertAndFilter(t *testing.T) {
	schema := textSchema()
	idx, err := NewEqualityIndexer("by_handle", "handle", docschema.String)
	require.NoError(t, err)

	for i, v := range []string{"alice", "bob", "alice"} {
		doc := buildTextDoc(t, schema, v)
		require.NoError(t, idx.Insert(uint64(i), doc))
	}

	bm, err := idx.Filter(Constraint{Column: "handle", Op: OpEQ, OperandType: OperandString, StrVal: []byte("alice")})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, bm.ToSlice())
}

func TestEqualityIndexer_UnsupportedOperatorErrors(t *testing.T) {
	idx, err := NewEqualityIndexer("by_handle", "handle", docschema.String)
	require.NoError(t, err)
	_, err = idx.Filter(Constraint{Column: "handle", Op: OpGT})
	assert.Error(t, err)
}

func TestEqualityIndexer_TryGetValueRoundTrips(t *testing.T) {
	schema := textSchema()
	idx, err := NewEqualityIndexer("by_handle", "handle", docschema.String)
	require.NoError(t, err)
	doc := buildTextDoc(t, schema, "carol")
	require.NoError(t, idx.Insert(3, doc))

	v, ok := idx.TryGetValue(3)
	require.True(t, ok)
	assert.Equal(t, "carol", string(v.Str))

	_, ok = idx.TryGetValue(999)
	assert.False(t, ok)
}

func TestEqualityIndexer_IntegerColumn(t *testing.T) {
	schema := docschema.New([]docschema.Field{{Name: "id", Kind: docschema.Int64, Required: true}})
	idx, err := NewEqualityIndexer("by_id", "id", docschema.Int64)
	require.NoError(t, err)

	b := document.NewBuilder(schema)
	require.NoError(t, b.SetInt64("id", 42))
	buf, err := b.Build()
	require.NoError(t, err)
	doc := document.Allocate(schema)
	require.NoError(t, doc.Reset(buf))
	require.NoError(t, idx.Insert(0, doc))

	bm, err := idx.Filter(EQInt("id", 42))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, bm.ToSlice())
}

func TestNewEqualityIndexer_RejectsEmptyName(t *testing.T) {
	_, err := NewEqualityIndexer("", "handle", docschema.String)
	assert.Error(t, err)
}

func TestNewEqualityIndexer_RejectsInvalidFieldKind(t *testing.T) {
	_, err := NewEqualityIndexer("by_x", "x", docschema.Subdocument)
	assert.Error(t, err)
}
