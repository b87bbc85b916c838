package blobstore

import (
	"fmt"
	"os"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sys/unix"

	"github.com/embeddb/embeddb/internal/control"
	"github.com/embeddb/embeddb/internal/dberr"
)

// mappedRegion is one memory-mapped data file, kept open for the lifetime of
// its LRU entry.
type mappedRegion struct {
	file   *os.File
	data   []byte
	mapped bool // true if data is backed by unix.Mmap and must be Munmap'd
}

func (r *mappedRegion) close() error {
	var err error
	if r.mapped && r.data != nil {
		err = unix.Munmap(r.data)
	}
	r.data = nil
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}

// Store is the append-only blob store of spec.md §4.2: sequential writes to
// numbered data files, an LRU of memory-mapped regions for reads. put_many
// is serialized per store; get is reentrant for handles whose target file is
// already mapped, otherwise takes the short mapping lock (mapMu) described
// in spec.md §5.
type Store struct {
	dir        string
	collection string

	maxMappedRegions int
	datafileMaxBytes int64

	writeMu    sync.Mutex
	activeSeq  uint32
	activeFile *os.File
	activeSize int64

	mapMu sync.Mutex
	lru   *lru.Cache[uint32, *mappedRegion]

	archive  *archiveRegistry
	manifest *control.Manifest
}

// Open opens or creates a blob store rooted at dir for the named collection.
// Existing data files are discovered (but not read) so appends continue from
// the correct sequence number; callers that need to rebuild in-memory state
// use NewIterator to replay file contents separately.
func Open(dir, collection string, maxMappedRegions int, datafileMaxBytes int64) (*Store, error) {
	if maxMappedRegions <= 0 {
		maxMappedRegions = 64
	}
	if datafileMaxBytes <= 0 {
		datafileMaxBytes = 64 << 20
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.IOError, "create blob store directory", err)
	}

	s := &Store{
		dir:              dir,
		collection:       collection,
		maxMappedRegions: maxMappedRegions,
		datafileMaxBytes: datafileMaxBytes,
		archive:          newArchiveRegistry(),
	}

	cache, err := lru.NewWithEvict(maxMappedRegions, func(_ uint32, region *mappedRegion) {
		_ = region.close()
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, "create mmap LRU", err)
	}
	s.lru = cache

	manifest, err := control.Open(dir, collection)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, "open blob store manifest", err)
	}
	s.manifest = manifest

	seqs, err := existingSequences(dir, collection)
	if err != nil {
		_ = manifest.Close()
		return nil, err
	}
	if len(seqs) == 0 {
		if err := s.rollover(0); err != nil {
			_ = manifest.Close()
			return nil, err
		}
	} else {
		last := seqs[len(seqs)-1]
		f, err := os.OpenFile(filePath(dir, collection, last), os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			_ = manifest.Close()
			return nil, dberr.Wrap(dberr.IOError, "open active data file", err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			_ = manifest.Close()
			return nil, dberr.Wrap(dberr.IOError, "stat active data file", err)
		}
		s.activeSeq = last
		s.activeFile = f
		s.activeSize = info.Size()
		// The manifest is a cache, not a source of truth: it's reconciled
		// against what the directory scan actually found every Open, so a
		// manifest that predates a crash mid-write still converges.
		s.manifest.SetActive(last, uint64(info.Size()))
	}
	return s, nil
}

func existingSequences(dir, collection string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dberr.Wrap(dberr.IOError, "list blob store directory", err)
	}
	var seqs []uint32
	prefix := collection + "."
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		var seq uint32
		if _, err := fmt.Sscanf(name[len(prefix):], "%05d.dat", &seq); err == nil && name == fileName(collection, seq) {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func (s *Store) rollover(seq uint32) error {
	if s.activeFile != nil {
		_ = s.activeFile.Close()
	}
	f, err := os.OpenFile(filePath(s.dir, s.collection, seq), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dberr.Wrap(dberr.IOError, "create data file", err)
	}
	s.activeSeq = seq
	s.activeFile = f
	s.activeSize = 0
	if s.manifest != nil {
		s.manifest.SetActive(seq, 0)
	}
	return nil
}

// PutMany appends every buffer to the current write file, rolling over to a
// new file when the size threshold is exceeded, and returns one handle per
// buffer in input order. Writes are sequential and only ever append past the
// last record, so bytes already covered by a returned handle are never
// rewritten. Get may map the active file as well; a mapping taken before
// later appends is too short for their handles, and Get maps the file again
// when a handle reaches past the end of its cached region.
func (s *Store) PutMany(buffers [][]byte) ([]Handle, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	handles := make([]Handle, len(buffers))
	for i, payload := range buffers {
		recordLen := recordHeader + len(payload)
		if s.activeSize > 0 && s.activeSize+int64(recordLen) > s.datafileMaxBytes {
			if err := s.rollover(s.activeSeq + 1); err != nil {
				return nil, err
			}
		}

		rec := make([]byte, recordLen)
		crc := encodeRecord(rec, payload)

		n, err := s.activeFile.Write(rec)
		if err != nil {
			return nil, dberr.Wrap(dberr.IOError, "append blob record", err)
		}
		if n != recordLen {
			return nil, dberr.New(dberr.IOError, "short write appending blob record")
		}

		handles[i] = Handle{
			FileID: s.activeSeq,
			Offset: uint64(s.activeSize) + recordHeader,
			Length: uint32(len(payload)),
			CRC:    crc,
		}
		s.activeSize += int64(recordLen)
	}

	if s.manifest != nil {
		s.manifest.SetActive(s.activeSeq, uint64(s.activeSize))
	}

	return handles, nil
}

// Flush syncs the active file to durable storage. Policy-driven (spec.md
// §4.2 says flushes are "batched"): callers decide when to call this rather
// than syncing on every PutMany.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.activeFile == nil {
		return nil
	}
	if err := s.activeFile.Sync(); err != nil {
		return dberr.Wrap(dberr.IOError, "sync active data file", err)
	}
	return nil
}

// getRegion returns the mapped region for fileID, reentrant for the common
// case where it's already in the LRU (the cache itself is internally
// synchronized, so a hit never touches mapMu at all). Only a miss takes the
// short mapping lock, and re-checks the cache once inside it in case another
// goroutine mapped the same file while this one was waiting.
func (s *Store) getRegion(fileID uint32) (*mappedRegion, error) {
	if r, ok := s.lru.Get(fileID); ok {
		return r, nil
	}
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	if r, ok := s.lru.Get(fileID); ok {
		return r, nil
	}
	return s.regionLocked(fileID)
}

// regionLocked maps fileID and inserts it into the LRU. Callers must hold
// mapMu.
func (s *Store) regionLocked(fileID uint32) (*mappedRegion, error) {
	path, archived := s.archive.resolve(s.dir, s.collection, fileID)

	if archived {
		data, err := decompressArchive(path, digestPath(s.dir, s.collection, fileID))
		if err != nil {
			return nil, err
		}
		region := &mappedRegion{data: data, mapped: false}
		s.lru.Add(fileID, region)
		return region, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.IOError, fmt.Sprintf("open data file for file_id %d", fileID), err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, dberr.Wrap(dberr.IOError, "stat data file", err)
	}
	size := info.Size()
	if size == 0 {
		_ = f.Close()
		return &mappedRegion{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, dberr.Wrap(dberr.IOError, "mmap data file", err)
	}

	region := &mappedRegion{file: f, data: data, mapped: true}
	s.lru.Add(fileID, region)
	return region, nil
}

// Get fetches the bytes at handle into a freshly returned slice, verifying
// CRC32 over Length bytes. Reentrant for handles whose target file is
// already mapped; otherwise takes the store's short mapping lock.
func (s *Store) Get(handle Handle) ([]byte, error) {
	region, err := s.getRegion(handle.FileID)
	if err != nil {
		return nil, err
	}

	end := handle.Offset + uint64(handle.Length)
	if region.data == nil || end > uint64(len(region.data)) {
		// The cached region may predate appends that grew the file since it
		// was mapped: drop it and map the file once more before giving up.
		s.mapMu.Lock()
		s.lru.Remove(handle.FileID)
		s.mapMu.Unlock()
		if region, err = s.getRegion(handle.FileID); err != nil {
			return nil, err
		}
		if region.data == nil || end > uint64(len(region.data)) {
			return nil, dberr.Newf(dberr.CorruptBlob, "handle out of range for file_id %d", handle.FileID)
		}
	}

	payload := region.data[handle.Offset:end]
	if crc32Of(payload) != handle.CRC {
		return nil, dberr.Newf(dberr.CorruptBlob, "crc mismatch for file_id %d offset %d", handle.FileID, handle.Offset)
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// UnmapLRU evicts up to n least-recently-used mapped regions, an explicit
// hint used by upper layers under memory pressure.
func (s *Store) UnmapLRU(n int) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	for i := 0; i < n; i++ {
		if _, _, ok := s.lru.RemoveOldest(); !ok {
			return
		}
	}
}

// Close releases every mapped region and the active write file handle.
func (s *Store) Close() error {
	s.mapMu.Lock()
	s.lru.Purge()
	s.mapMu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var err error
	if s.activeFile != nil {
		err = s.activeFile.Close()
		s.activeFile = nil
	}
	if s.manifest != nil {
		if cerr := s.manifest.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ActiveFileID returns the file_id new writes are currently landing in.
func (s *Store) ActiveFileID() uint32 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.activeSeq
}
