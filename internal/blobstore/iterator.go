package blobstore

import (
	"os"
	"sort"

	"github.com/embeddb/embeddb/internal/dberr"
)

// Iterator replays every record of a collection's data files in file and
// offset order, the mechanism spec.md's lifecycle section uses to rebuild
// identifiers and indexers on open ("replaying blobs in file order"). It
// reads sequentially with os.ReadFile rather than through the mmap LRU: a
// full replay touches every byte exactly once, so caching mapped regions for
// it would only evict pages a running server still wants hot.
type Iterator struct {
	dir        string
	collection string
	seqs       []uint32
	seqIdx     int

	buf    []byte
	offset int

	done bool
}

// NewIterator opens a replay cursor positioned before the first record of
// the collection's oldest data file.
func NewIterator(dir, collection string) (*Iterator, error) {
	seqs, err := existingSequences(dir, collection)
	if err != nil {
		return nil, err
	}
	it := &Iterator{dir: dir, collection: collection, seqs: seqs}
	if len(seqs) == 0 {
		it.done = true
		return it, nil
	}
	if err := it.loadFile(0); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *Iterator) loadFile(seqIdx int) error {
	path := filePath(it.dir, it.collection, it.seqs[seqIdx])
	data, err := os.ReadFile(path)
	if err != nil {
		return dberr.Wrap(dberr.IOError, "read data file for replay", err)
	}
	it.seqIdx = seqIdx
	it.buf = data
	it.offset = 0
	return nil
}

// Record is one replayed (payload, handle) pair. Payload aliases the
// iterator's currently loaded file buffer — it stays valid only until the
// iterator is advanced past that file, so callers that need to retain it
// past the surrounding NextBatch call must copy it themselves.
type Record struct {
	Payload []byte
	Handle  Handle
}

// NextBatch fills batch (caller-owned, sized to the configured blob batch
// size) with up to len(batch) replayed records in file order, amortizing the
// per-call overhead across a whole batch instead of one record at a time
// (spec.md §4.2/§9). It returns the number of records filled; 0 means the
// replay is complete. Unlike a fresh per-record allocation, Payload slices
// are sub-slices of the file buffer already read for this batch, so filling
// a batch allocates nothing per record.
func (it *Iterator) NextBatch(batch []Record) (int, error) {
	n := 0
	for n < len(batch) {
		if it.done {
			break
		}
		if it.offset >= len(it.buf) {
			if it.seqIdx+1 >= len(it.seqs) {
				it.done = true
				break
			}
			if err := it.loadFile(it.seqIdx + 1); err != nil {
				return n, err
			}
			continue
		}

		magic, length, crc, ok := decodeRecordHeader(it.buf[it.offset:])
		if !ok {
			return n, dberr.Newf(dberr.CorruptBlob, "truncated record header at file_id %d offset %d", it.seqs[it.seqIdx], it.offset)
		}
		if magic != recordMagic {
			return n, dberr.Newf(dberr.CorruptBlob, "bad magic at file_id %d offset %d", it.seqs[it.seqIdx], it.offset)
		}
		payloadStart := it.offset + recordHeader
		payloadEnd := payloadStart + int(length)
		if payloadEnd > len(it.buf) {
			return n, dberr.Newf(dberr.CorruptBlob, "truncated payload at file_id %d offset %d", it.seqs[it.seqIdx], it.offset)
		}
		payload := it.buf[payloadStart:payloadEnd]
		if crc32Of(payload) != crc {
			return n, dberr.Newf(dberr.CorruptBlob, "crc mismatch at file_id %d offset %d", it.seqs[it.seqIdx], it.offset)
		}

		batch[n] = Record{
			Payload: payload,
			Handle: Handle{
				FileID: it.seqs[it.seqIdx],
				Offset: uint64(payloadStart),
				Length: length,
				CRC:    crc,
			},
		}
		it.offset = payloadEnd
		n++
	}
	return n, nil
}

// FileIDs returns every data file sequence number for collection, ascending.
func FileIDs(dir, collection string) ([]uint32, error) {
	seqs, err := existingSequences(dir, collection)
	if err != nil {
		return nil, err
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}
