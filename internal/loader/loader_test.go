package loader

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddb/embeddb/internal/collection"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/index"
)

func flatSchema() *docschema.Schema {
	return docschema.New([]docschema.Field{
		{Name: "name", Kind: docschema.String, Required: true},
		{Name: "age", Kind: docschema.Int64, Required: true},
		{Name: "score", Kind: docschema.Float64, Required: false},
		{Name: "avatar", Kind: docschema.Blob, Required: false},
	})
}

func openUsers(t *testing.T, schema *docschema.Schema) *collection.Collection {
	t.Helper()
	decls := []collection.IndexDeclaration{
		{Name: "by_name", Kind: index.Equality, ColumnPath: "name"},
	}
	c, err := collection.Open(t.TempDir(), "users", schema, decls, 8, 0, 0)
	require.NoError(t, err)
	return c
}

func TestLoad_InsertsSelectedRecords(t *testing.T) {
	schema := flatSchema()
	c := openUsers(t, schema)
	defer func() { _ = c.Close() }()

	data := []byte(`{
		"users": [
			{"name": "alice", "age": 30, "score": 1.5},
			{"name": "bob", "age": 40, "score": 2.5}
		]
	}`)

	n, err := Load(c, schema, data, "$.users[*]", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), c.Len())

	v, err := c.GetFieldAsInt(0, "no_such_index", "age")
	require.NoError(t, err)
	assert.Equal(t, int64(30), v)
}

func TestLoad_MissingRequiredFieldErrors(t *testing.T) {
	schema := flatSchema()
	c := openUsers(t, schema)
	defer func() { _ = c.Close() }()

	data := []byte(`[{"age": 10}]`)
	_, err := Load(c, schema, data, "$[*]", 0)
	require.Error(t, err)
	assert.Equal(t, dberr.SchemaMismatch, dberr.GetKind(err))
}

func TestLoad_NonObjectNodeErrors(t *testing.T) {
	schema := flatSchema()
	c := openUsers(t, schema)
	defer func() { _ = c.Close() }()

	data := []byte(`["a", "b"]`)
	_, err := Load(c, schema, data, "$[*]", 0)
	require.Error(t, err)
}

func TestLoad_BlobFieldDecodesBase64(t *testing.T) {
	schema := flatSchema()
	c := openUsers(t, schema)
	defer func() { _ = c.Close() }()

	payload := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03})
	data := []byte(`[{"name": "x", "age": 1, "avatar": "` + payload + `"}]`)

	n, err := Load(c, schema, data, "$[*]", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := c.GetFieldAsString(0, "no_such_index", "avatar")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, v)
}

func TestLoad_BatchesAcrossMultipleFlushes(t *testing.T) {
	schema := flatSchema()
	c := openUsers(t, schema)
	defer func() { _ = c.Close() }()

	data := []byte(`[
		{"name": "a", "age": 1},
		{"name": "b", "age": 2},
		{"name": "c", "age": 3},
		{"name": "d", "age": 4},
		{"name": "e", "age": 5}
	]`)

	n, err := Load(c, schema, data, "$[*]", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(5), c.Len())
}

func TestLoad_NestedSubdocument(t *testing.T) {
	nested := docschema.New([]docschema.Field{
		{Name: "city", Kind: docschema.String, Required: true},
	})
	schema := docschema.New([]docschema.Field{
		{Name: "name", Kind: docschema.String, Required: true},
		{Name: "address", Kind: docschema.Subdocument, Required: true, Nested: nested},
	})
	c := openUsers(t, schema)
	defer func() { _ = c.Close() }()

	data := []byte(`[{"name": "alice", "address": {"city": "nyc"}}]`)
	n, err := Load(c, schema, data, "$[*]", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
