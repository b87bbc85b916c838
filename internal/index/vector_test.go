package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
)

func TestVectorIndexer_InsertAndTryGetValue(t *testing.T) {
	schema := docschema.New([]docschema.Field{{Name: "v", Kind: docschema.Int64, Required: true}})
	idx, err := NewVectorIndexer("by_v", "v", docschema.Int64)
	require.NoError(t, err)

	b := document.NewBuilder(schema)
	require.NoError(t, b.SetInt64("v", 7))
	buf, err := b.Build()
	require.NoError(t, err)
	doc := document.Allocate(schema)
	require.NoError(t, doc.Reset(buf))
	require.NoError(t, idx.Insert(3, doc))

	val, ok := idx.TryGetValue(3)
	require.True(t, ok)
	assert.Equal(t, int64(7), val.Int)

	_, ok = idx.TryGetValue(0)
	assert.False(t, ok, "unfilled slots must report absent, not a zero value")
}

func TestVectorIndexer_TryGetVectorFailsOnAnyMiss(t *testing.T) {
	idx, err := NewVectorIndexer("by_v", "v", docschema.Int64)
	require.NoError(t, err)
	_, ok := idx.TryGetVector([]uint64{0, 1})
	assert.False(t, ok)
}

func TestVectorIndexer_FilterUnsupported(t *testing.T) {
	idx, err := NewVectorIndexer("by_v", "v", docschema.Int64)
	require.NoError(t, err)
	_, err = idx.Filter(Constraint{})
	assert.Error(t, err)
	_, err = idx.FilterRange(Constraint{}, Constraint{})
	assert.Error(t, err)
}
