package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
	"github.com/embeddb/embeddb/internal/index"
)

func tweetSchema() *docschema.Schema {
	return docschema.New([]docschema.Field{
		{Name: "author", Kind: docschema.String, Required: true},
		{Name: "likes", Kind: docschema.Int64, Required: true},
	})
}

func buildTweet(t *testing.T, schema *docschema.Schema, author string, likes int64) []byte {
	t.Helper()
	b := document.NewBuilder(schema)
	require.NoError(t, b.SetString("author", []byte(author)))
	require.NoError(t, b.SetInt64("likes", likes))
	buf, err := b.Build()
	require.NoError(t, err)
	return buf
}

func openTweets(t *testing.T) *Collection {
	t.Helper()
	dir := t.TempDir()
	decls := []IndexDeclaration{
		{Name: "by_author", Kind: index.Equality, ColumnPath: "author"},
		{Name: "by_likes", Kind: index.Ordered, ColumnPath: "likes", Ascending: true},
	}
	c, err := Open(dir, "tweets", tweetSchema(), decls, 8, 0, 0)
	require.NoError(t, err)
	return c
}

func TestOpen_RejectsEmptyName(t *testing.T) {
	_, err := Open(t.TempDir(), "", tweetSchema(), nil, 8, 0, 0)
	require.Error(t, err)
	assert.Equal(t, dberr.InvalidArgument, dberr.GetKind(err))
}

func TestCollection_InsertAndFilter(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	id0, err := c.Insert(buildTweet(t, c.Schema(), "alice", 10))
	require.NoError(t, err)
	id1, err := c.Insert(buildTweet(t, c.Schema(), "bob", 20))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id0)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), c.Len())

	bm, err := c.Filter([]index.Constraint{{Column: "author", Op: index.OpEQ, OperandType: index.OperandString, StrVal: []byte("bob")}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, bm.ToSlice())
}

func TestCollection_FilterWithNoConstraintsReturnsFullRange(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	_, err := c.Insert(buildTweet(t, c.Schema(), "alice", 10))
	require.NoError(t, err)
	_, err = c.Insert(buildTweet(t, c.Schema(), "bob", 20))
	require.NoError(t, err)

	bm, err := c.Filter(nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1}, bm.ToSlice())
}

func TestCollection_MultiInsertAssignsContiguousIDs(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	bufs := [][]byte{
		buildTweet(t, c.Schema(), "a", 1),
		buildTweet(t, c.Schema(), "b", 2),
		buildTweet(t, c.Schema(), "c", 3),
	}
	start, err := c.MultiInsert(bufs)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, uint64(3), c.Len())
}

func TestCollection_GetFieldAsIntUsesIndexFastPath(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	_, err := c.Insert(buildTweet(t, c.Schema(), "alice", 42))
	require.NoError(t, err)

	v, err := c.GetFieldAsInt(0, "likes", "likes")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestCollection_GetFieldAsStringFallsBackToBlobDecode(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	_, err := c.Insert(buildTweet(t, c.Schema(), "alice", 42))
	require.NoError(t, err)

	// "author" is indexed (by_author), but request the column under a name
	// the manager doesn't recognize to force the blob-decode fallback path.
	v, err := c.GetFieldAsString(0, "no_such_index", "author")
	require.NoError(t, err)
	assert.Equal(t, "alice", string(v))
}

func TestCollection_GetFieldMissingDocumentErrors(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	_, err := c.Insert(buildTweet(t, c.Schema(), "alice", 42))
	require.NoError(t, err)

	_, err = c.GetFieldAsInt(99, "by_likes", "likes")
	require.Error(t, err)
	assert.Equal(t, dberr.MissingDocument, dberr.GetKind(err))
}

func TestCollection_GetFieldsAsIntVectorFastPath(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	for i := 0; i < 5; i++ {
		_, err := c.Insert(buildTweet(t, c.Schema(), "x", int64(i*10)))
		require.NoError(t, err)
	}

	vals, err := c.GetFieldsAsIntVector([]uint64{0, 1, 2, 3, 4}, "likes", "likes")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 10, 20, 30, 40}, vals)
}

func TestCollection_ReopenReplaysDocumentsAndIndexes(t *testing.T) {
	dir := t.TempDir()
	decls := []IndexDeclaration{
		{Name: "by_author", Kind: index.Equality, ColumnPath: "author"},
		{Name: "by_likes", Kind: index.Ordered, ColumnPath: "likes", Ascending: true},
	}
	schema := tweetSchema()

	c1, err := Open(dir, "tweets", schema, decls, 8, 0, 0)
	require.NoError(t, err)
	_, err = c1.Insert(buildTweet(t, schema, "alice", 10))
	require.NoError(t, err)
	_, err = c1.Insert(buildTweet(t, schema, "bob", 20))
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := Open(dir, "tweets", schema, decls, 8, 0, 0)
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()

	assert.Equal(t, uint64(2), c2.Len())
	bm, err := c2.Filter([]index.Constraint{{Column: "author", Op: index.OpEQ, OperandType: index.OperandString, StrVal: []byte("alice")}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, bm.ToSlice())

	v, err := c2.GetFieldAsInt(1, "by_likes", "likes")
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)
}

func TestCollection_NameSchemaAccessors(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()
	assert.Equal(t, "tweets", c.Name())
	assert.Same(t, c.schema, c.Schema())
}

func TestCollection_TryGetBestIndexPrefersEquality(t *testing.T) {
	c := openTweets(t)
	defer func() { _ = c.Close() }()

	stat, ok := c.TryGetBestIndex("author", index.OpEQ)
	require.True(t, ok)
	assert.Equal(t, index.Equality, stat.Kind)
}
