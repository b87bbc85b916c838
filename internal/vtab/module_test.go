package vtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite/vtab"

	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/index"
)

func exampleSchema() *docschema.Schema {
	return docschema.New([]docschema.Field{
		{Name: "author", Kind: docschema.String, Required: true},
		{Name: "likes", Kind: docschema.Int64, Required: true},
		{Name: "score", Kind: docschema.Float64, Required: true},
		{Name: "meta", Kind: docschema.Subdocument, Nested: docschema.New(nil)},
	})
}

func TestTopLevelColumns_SkipsSubdocuments(t *testing.T) {
	cols := topLevelColumns(exampleSchema())
	require.Len(t, cols, 3)
	assert.Equal(t, "author", cols[0].name)
	assert.Equal(t, "likes", cols[1].name)
	assert.Equal(t, "score", cols[2].name)
}

func TestSQLType_MapsFieldKinds(t *testing.T) {
	assert.Equal(t, "INTEGER", sqlType(docschema.Int64))
	assert.Equal(t, "DOUBLE", sqlType(docschema.Float64))
	assert.Equal(t, "BLOB", sqlType(docschema.Blob))
	assert.Equal(t, "TEXT", sqlType(docschema.String))
}

func TestDeclareSQL_JoinsColumnsWithTypes(t *testing.T) {
	cols := []column{{name: "author", kind: docschema.String}, {name: "likes", kind: docschema.Int64}}
	got := declareSQL(cols)
	assert.Equal(t, "CREATE TABLE x(author TEXT, likes INTEGER)", got)
}

func TestVtabOpToOperator_MapsKnownOps(t *testing.T) {
	op, ok := vtabOpToOperator(vtab.OpEQ)
	require.True(t, ok)
	assert.Equal(t, index.OpEQ, op)

	op, ok = vtabOpToOperator(vtab.OpGE)
	require.True(t, ok)
	assert.Equal(t, index.OpGE, op)
}

func TestDecodePlan_RoundTripsEncodedSegments(t *testing.T) {
	plan, err := decodePlan("author:0|likes:2")
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "author", plan[0].column)
	assert.Equal(t, index.OpEQ, plan[0].op)
	assert.Equal(t, "likes", plan[1].column)
	assert.Equal(t, index.OpLE, plan[1].op)
}

func TestDecodePlan_EmptyStringYieldsNilPlan(t *testing.T) {
	plan, err := decodePlan("")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestDecodePlan_MalformedSegmentErrors(t *testing.T) {
	_, err := decodePlan("author")
	assert.Error(t, err)
}
