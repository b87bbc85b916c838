package queryengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddb/embeddb/internal/collection"
	"github.com/embeddb/embeddb/internal/dbconfig"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
	"github.com/embeddb/embeddb/internal/index"
)

func openTweetsCollection(t *testing.T) *collection.Collection {
	t.Helper()
	schema := docschema.New([]docschema.Field{
		{Name: "author", Kind: docschema.String, Required: true},
		{Name: "likes", Kind: docschema.Int64, Required: true},
	})
	decls := []collection.IndexDeclaration{
		{Name: "by_author", Kind: index.Equality, ColumnPath: "author"},
		{Name: "by_likes", Kind: index.Ordered, ColumnPath: "likes", Ascending: true},
	}
	c, err := collection.Open(t.TempDir(), "tweets", schema, decls, 8, 0, 0)
	require.NoError(t, err)

	for _, row := range []struct {
		author string
		likes  int64
	}{{"alice", 10}, {"bob", 20}, {"carol", 30}} {
		b := document.NewBuilder(schema)
		require.NoError(t, b.SetString("author", []byte(row.author)))
		require.NoError(t, b.SetInt64("likes", row.likes))
		buf, err := b.Build()
		require.NoError(t, err)
		_, err = c.Insert(buf)
		require.NoError(t, err)
	}
	return c
}

func TestEngine_AttachAndSelectAll(t *testing.T) {
	e, err := Open(dbconfig.Default())
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	c := openTweetsCollection(t)
	defer func() { _ = c.Close() }()

	require.NoError(t, e.AttachCollection("ignored", "tweets", c))

	rs, err := e.ExecuteSelect("SELECT author, likes FROM tweets ORDER BY likes")
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	assert.Equal(t, []string{"author", "likes"}, rs.ColumnNames())

	var authors []string
	for {
		ok, err := rs.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		author, err := rs.GetString(rs.ColumnIndex("author"))
		require.NoError(t, err)
		authors = append(authors, author)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, authors)
}

func TestEngine_SelectWithEqualityPushdown(t *testing.T) {
	e, err := Open(dbconfig.Default())
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	c := openTweetsCollection(t)
	defer func() { _ = c.Close() }()

	require.NoError(t, e.AttachCollection("ignored", "tweets2", c))

	rs, err := e.ExecuteSelect("SELECT likes FROM tweets2 WHERE author = ?", "bob")
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	ok, err := rs.Next()
	require.NoError(t, err)
	require.True(t, ok)
	likes, err := rs.GetInt64(0)
	require.NoError(t, err)
	assert.Equal(t, int64(20), likes)

	ok, err = rs.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_AttachSameCollectionUnderTwoNamesDoesNotCollide(t *testing.T) {
	e, err := Open(dbconfig.Default())
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	c := openTweetsCollection(t)
	defer func() { _ = c.Close() }()

	require.NoError(t, e.AttachCollection("x", "view_one", c))
	require.NoError(t, e.AttachCollection("x", "view_two", c))

	rs, err := e.ExecuteSelect("SELECT COUNT(*) FROM view_one")
	require.NoError(t, err)
	ok, err := rs.Next()
	require.NoError(t, err)
	require.True(t, ok)
	n, err := rs.GetInt64(0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	_ = rs.Close()
}
