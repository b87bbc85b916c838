// Package control implements a small memory-mapped manifest recording a
// blob store's current write position: the active file's sequence number
// and byte size. It is a pure optimization over internal/blobstore's
// directory scan on Open — losing or corrupting it never loses data, since
// internal/blobstore can always rediscover the active file by listing
// <collection>.*.dat and re-deriving its size from the filesystem. Adapted
// from the upstream overlay's hot-swap control block (same fixed-size,
// magic-tagged mmap layout), repurposed from "which arena generation is
// live" to "where is the active data file's write cursor".
package control

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	blockSize = 4096       // 1 page
	magic     = 0x45444243 // "EDBC"
)

// block mirrors the on-disk/mmap layout exactly; field order and sizes must
// not change without bumping the version.
type block struct {
	Magic      uint32
	Version    uint32
	ActiveSeq  uint32 // atomic
	_          uint32 // padding to keep ActiveSize 8-byte aligned
	ActiveSize uint64 // atomic
	padding    [blockSize - 24]byte
}

// Manifest manages the memory-mapped control file for one collection's blob
// store.
type Manifest struct {
	file *os.File
	data []byte
	ptr  *block
}

// path returns the manifest path for a collection directory.
func path(dir, collection string) string {
	return filepath.Join(dir, collection+".control")
}

// Open opens or creates the manifest for collection under dir. A freshly
// created manifest starts with ActiveSeq=0, ActiveSize=0 — the caller is
// responsible for reconciling that against the filesystem on first open.
func Open(dir, collection string) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("control: mkdir: %w", err)
	}

	f, err := os.OpenFile(path(dir, collection), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("control: open manifest: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("control: stat manifest: %w", err)
	}
	if info.Size() < blockSize {
		if err := f.Truncate(blockSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("control: truncate manifest: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, blockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("control: mmap manifest: %w", err)
	}

	ptr := (*block)(unsafe.Pointer(&data[0]))
	if ptr.Magic == 0 {
		ptr.Magic = magic
		ptr.Version = 1
	} else if ptr.Magic != magic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("control: bad magic %x in manifest", ptr.Magic)
	}

	return &Manifest{file: f, data: data, ptr: ptr}, nil
}

// Active returns the sequence number and byte size the manifest last
// recorded.
func (m *Manifest) Active() (seq uint32, size uint64) {
	return atomic.LoadUint32(&m.ptr.ActiveSeq), atomic.LoadUint64(&m.ptr.ActiveSize)
}

// SetActive atomically records the active file's sequence and size. Called
// after every append and every rollover.
func (m *Manifest) SetActive(seq uint32, size uint64) {
	atomic.StoreUint32(&m.ptr.ActiveSeq, seq)
	atomic.StoreUint64(&m.ptr.ActiveSize, size)
}

// Close unmaps and closes the manifest file.
func (m *Manifest) Close() error {
	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	return m.file.Close()
}
