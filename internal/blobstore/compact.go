package blobstore

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/embeddb/embeddb/internal/dberr"
)

// archiveRegistry tracks which closed data files have an accompanying
// zstd-compressed archive. Compaction is additive: the original .dat file is
// never deleted or rewritten, only reads of a compacted file are redirected
// through its archive to avoid keeping cold regions mmapped.
type archiveRegistry struct {
	mu       sync.Mutex
	archived map[uint32]bool
}

func newArchiveRegistry() *archiveRegistry {
	return &archiveRegistry{archived: make(map[uint32]bool)}
}

func archivePath(dir, collection string, seq uint32) string {
	return filePath(dir, collection, seq) + ".zst"
}

// digestPath holds an xxh3-64 checksum of the decompressed archive content,
// a cheap whole-file tripwire checked on every decompress. It's a second,
// non-cryptographic layer below each record's own CRC32 and above fsck's
// optional BLAKE2b deep verify: fast enough to run on every cold read,
// unlike a full replay.
func digestPath(dir, collection string, seq uint32) string {
	return archivePath(dir, collection, seq) + ".xxh3"
}

// resolve returns the path a read of fileID should open, and whether that
// path is a zstd archive. It lazily discovers archives created by an earlier
// process (or an earlier Compact call) that this registry hasn't seen yet.
func (r *archiveRegistry) resolve(dir, collection string, fileID uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.archived[fileID] {
		return archivePath(dir, collection, fileID), true
	}
	if _, err := os.Stat(archivePath(dir, collection, fileID)); err == nil {
		r.archived[fileID] = true
		return archivePath(dir, collection, fileID), true
	}
	return filePath(dir, collection, fileID), false
}

func (r *archiveRegistry) markArchived(fileID uint32) {
	r.mu.Lock()
	r.archived[fileID] = true
	r.mu.Unlock()
}

// Compact writes a zstd-compressed archive of a closed (non-active) data
// file and registers it for future reads. The source file is left in place:
// compaction only relieves memory pressure from mmapped cold regions, it is
// not a space-reclamation pass.
func (s *Store) Compact(fileID uint32) error {
	if fileID == s.ActiveFileID() {
		return dberr.Newf(dberr.InvalidArgument, "cannot compact active file_id %d", fileID)
	}

	src := filePath(s.dir, s.collection, fileID)
	in, err := os.Open(src)
	if err != nil {
		return dberr.Wrap(dberr.IOError, "open data file for compaction", err)
	}
	defer in.Close()

	dst := archivePath(s.dir, s.collection, fileID)
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dberr.Wrap(dberr.IOError, "create archive file", err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return dberr.Wrap(dberr.IOError, "create zstd encoder", err)
	}
	hasher := xxh3.New()
	if _, err := io.Copy(enc, io.TeeReader(in, hasher)); err != nil {
		_ = enc.Close()
		return dberr.Wrap(dberr.IOError, "compress data file", err)
	}
	if err := enc.Close(); err != nil {
		return dberr.Wrap(dberr.IOError, "finalize archive", err)
	}

	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], hasher.Sum64())
	if err := os.WriteFile(digestPath(s.dir, s.collection, fileID), sum[:], 0o644); err != nil {
		return dberr.Wrap(dberr.IOError, "write archive digest", err)
	}

	// Evict any currently-mapped region for this file so the next Get
	// reopens through the archive path.
	s.mapMu.Lock()
	s.lru.Remove(fileID)
	s.mapMu.Unlock()

	s.archive.markArchived(fileID)
	return nil
}

func decompressArchive(path, digest string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, "open archive file", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, "create zstd decoder", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, "decompress archive file", err)
	}

	if want, err := os.ReadFile(digest); err == nil && len(want) == 8 {
		got := xxh3.Hash(data)
		if got != binary.LittleEndian.Uint64(want) {
			return nil, dberr.Newf(dberr.CorruptBlob, "xxh3 mismatch decompressing %s", path)
		}
	}

	return data, nil
}
