package fsck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddb/embeddb/internal/blobstore"
)

func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	s, err := blobstore.Open(dir, "docs", 8, 0)
	require.NoError(t, err)
	_, err = s.PutMany([][]byte{[]byte("one"), []byte("two"), []byte("three")})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return dir
}

func TestFastVerify_CountsEveryRecordAndReportsNoFaults(t *testing.T) {
	dir := seedStore(t)

	report, err := FastVerify(dir, "docs", 8)
	require.NoError(t, err)
	assert.Equal(t, 3, report.RecordsScanned)
	assert.True(t, report.OK())
}

func TestDigestAllThenDeepVerify_NoFaultsOnUnchangedData(t *testing.T) {
	dir := seedStore(t)

	digests, err := DigestAll(dir, "docs", 8)
	require.NoError(t, err)
	assert.Len(t, digests, 3)

	report, err := DeepVerify(dir, "docs", digests, 8)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 3, report.RecordsScanned)
}

func TestDeepVerify_DetectsDigestMismatch(t *testing.T) {
	dir := seedStore(t)

	digests, err := DigestAll(dir, "docs", 8)
	require.NoError(t, err)

	for h := range digests {
		digests[h][0] ^= 0xFF
		break
	}

	report, err := DeepVerify(dir, "docs", digests, 8)
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Faults, 1)
	assert.Equal(t, "blake2b digest mismatch", report.Faults[0].Reason)
}

func TestReport_OKReflectsEmptyFaultList(t *testing.T) {
	assert.True(t, Report{RecordsScanned: 5}.OK())
	assert.False(t, Report{Faults: []RecordFault{{Reason: "x"}}}.OK())
}
