package blobstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"path/filepath"
)

// Record layout (spec.md §6): magic(4) | length(4) | crc32(4) | payload.
const (
	recordMagic   uint32 = 0x45444231 // "EDB1"
	recordHeader         = 4 + 4 + 4
)

// fileName returns the <collection>.<seq>.dat name for a data file, with seq
// zero-padded to a fixed width so lexical and numeric file order agree.
func fileName(collection string, seq uint32) string {
	return fmt.Sprintf("%s.%05d.dat", collection, seq)
}

func filePath(dir, collection string, seq uint32) string {
	return filepath.Join(dir, fileName(collection, seq))
}

// encodeRecord writes the record header + payload into dst, which must have
// length >= recordHeader+len(payload). Returns the crc32 written.
func encodeRecord(dst []byte, payload []byte) uint32 {
	crc := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(dst[0:4], recordMagic)
	binary.LittleEndian.PutUint32(dst[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(dst[8:12], crc)
	copy(dst[recordHeader:], payload)
	return crc
}

// decodeRecordHeader parses the fixed header at the start of buf.
func decodeRecordHeader(buf []byte) (magic, length, crc uint32, ok bool) {
	if len(buf) < recordHeader {
		return 0, 0, 0, false
	}
	return binary.LittleEndian.Uint32(buf[0:4]),
		binary.LittleEndian.Uint32(buf[4:8]),
		binary.LittleEndian.Uint32(buf[8:12]),
		true
}

func crc32Of(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}
