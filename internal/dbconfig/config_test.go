package dbconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ReturnsBaselineValues(t *testing.T) {
	d := Default()
	assert.Equal(t, 64, d.MaxMappedRegions)
	assert.Equal(t, int64(64<<20), d.DatafileMaxBytes)
	assert.Equal(t, 256, d.BlobBatchSize)
	assert.Equal(t, 5, d.SQLiteBusyRetries)
	assert.Equal(t, 50, d.SQLiteBusyBackoffMs)
}

func TestParse_FillsUnsetFieldsWithDefaults(t *testing.T) {
	src := []byte(`blob_batch_size = 512`)
	c, err := Parse(src, "test.hcl")
	require.NoError(t, err)
	assert.Equal(t, 512, c.BlobBatchSize)
	assert.Equal(t, 64, c.MaxMappedRegions)
	assert.Equal(t, int64(64<<20), c.DatafileMaxBytes)
}

func TestParse_AllFieldsOverridden(t *testing.T) {
	src := []byte(`
max_mapped_regions     = 128
datafile_max_bytes     = 1048576
blob_batch_size        = 100
sqlite_busy_retries    = 10
sqlite_busy_backoff_ms = 20
`)
	c, err := Parse(src, "test.hcl")
	require.NoError(t, err)
	assert.Equal(t, 128, c.MaxMappedRegions)
	assert.Equal(t, int64(1048576), c.DatafileMaxBytes)
	assert.Equal(t, 100, c.BlobBatchSize)
	assert.Equal(t, 10, c.SQLiteBusyRetries)
	assert.Equal(t, 20, c.SQLiteBusyBackoffMs)
}

func TestParse_InvalidHCLErrors(t *testing.T) {
	_, err := Parse([]byte(`this is not valid hcl {{{`), "bad.hcl")
	assert.Error(t, err)
}

func TestLoad_ReadsFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddb.hcl")
	require.NoError(t, os.WriteFile(path, []byte("blob_batch_size = 77\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 77, c.BlobBatchSize)
	assert.Equal(t, 64, c.MaxMappedRegions)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
