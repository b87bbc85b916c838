// Package document implements the document adapter of spec.md §4.1: decoding
// a byte buffer against a docschema.Schema and exposing typed, path-addressed
// field reads without per-field allocation in the hot path.
//
// Wire format (see SPEC_FULL.md §4.1): a null bitmap (ceil(numFields/8)
// bytes), then one 8-byte slot per top-level field in schema order — the
// value itself for fixed-width kinds, widened to 8 bytes, or an
// (offset uint32, length uint32) pair into the trailing variable-length data
// section for STRING/BLOB/SUBDOCUMENT.
package document

import (
	"encoding/binary"
	"math"

	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
)

const slotSize = 8

func nullBitmapLen(numFields int) int {
	return (numFields + 7) / 8
}

func headerSize(schema *docschema.Schema) int {
	return nullBitmapLen(len(schema.Fields)) + slotSize*len(schema.Fields)
}

// Document is a scratch decoder bound to one schema. Create it once per
// goroutine with Allocate and reuse it across reads via Reset to avoid
// allocating on every field access.
type Document struct {
	schema *docschema.Schema
	buf    []byte
	nbLen  int
}

// Allocate returns a reusable scratch Document bound to schema. It holds no
// buffer until Reset is called — this is the allocate_subdocument() contract.
func Allocate(schema *docschema.Schema) *Document {
	return &Document{schema: schema, nbLen: nullBitmapLen(len(schema.Fields))}
}

// Schema returns the schema d was allocated against.
func (d *Document) Schema() *docschema.Schema { return d.schema }

// Validate checks that buf is a structurally sound encoding of schema:
// long enough for the header, and every variable-length slot's
// (offset, length) stays within the buffer.
func Validate(buf []byte, schema *docschema.Schema) error {
	hs := headerSize(schema)
	if len(buf) < hs {
		return dberr.Newf(dberr.SchemaMismatch, "buffer too short: %d bytes, header needs %d", len(buf), hs)
	}
	nbLen := nullBitmapLen(len(schema.Fields))
	for i, f := range schema.Fields {
		if isNull(buf, i) {
			if f.Required {
				return dberr.Newf(dberr.SchemaMismatch, "required field %q is null", f.Name)
			}
			continue
		}
		if f.Kind == docschema.String || f.Kind == docschema.Blob || f.Kind == docschema.Subdocument {
			off, length := readSlotPair(buf, nbLen, i)
			end := uint64(off) + uint64(length)
			if end > uint64(len(buf)) {
				return dberr.Newf(dberr.SchemaMismatch, "field %q variable slot out of bounds", f.Name)
			}
			if f.Kind == docschema.Subdocument && f.Nested != nil {
				if err := Validate(buf[off:off+length], f.Nested); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Reset rebinds the scratch document to a new buffer, validating it first.
func (d *Document) Reset(buf []byte) error {
	if err := Validate(buf, d.schema); err != nil {
		return err
	}
	d.buf = buf
	return nil
}

func isNull(buf []byte, slot int) bool {
	byteIdx := slot / 8
	bit := uint(slot % 8)
	return buf[byteIdx]&(1<<bit) == 0
}

func setNullBit(buf []byte, slot int, present bool) {
	byteIdx := slot / 8
	bit := uint(slot % 8)
	if present {
		buf[byteIdx] |= 1 << bit
	} else {
		buf[byteIdx] &^= 1 << bit
	}
}

func slotOffset(nbLen, slot int) int {
	return nbLen + slot*slotSize
}

func readSlotPair(buf []byte, nbLen, slot int) (uint32, uint32) {
	o := slotOffset(nbLen, slot)
	return binary.LittleEndian.Uint32(buf[o : o+4]), binary.LittleEndian.Uint32(buf[o+4 : o+8])
}

func (d *Document) fieldSlot(name string) (docschema.Field, int, error) {
	idx := d.schema.IndexOf(name)
	if idx < 0 {
		return docschema.Field{}, 0, dberr.Newf(dberr.FieldMissing, "field %q not in schema", name)
	}
	return d.schema.Fields[idx], idx, nil
}

// GetInt64 reads a top-level integer field, widening per its declared width.
func (d *Document) GetInt64(name string) (int64, error) {
	f, slot, err := d.fieldSlot(name)
	if err != nil {
		return 0, err
	}
	if !f.Kind.IsInteger() {
		return 0, dberr.Newf(dberr.TypeMismatch, "field %q is %s, not an integer kind", name, f.Kind)
	}
	if isNull(d.buf, slot) {
		return 0, dberr.Newf(dberr.FieldMissing, "field %q is null", name)
	}
	o := slotOffset(d.nbLen, slot)
	raw := int64(binary.LittleEndian.Uint64(d.buf[o : o+8]))
	switch f.Kind {
	case docschema.Int8:
		return int64(int8(raw)), nil
	case docschema.Int16:
		return int64(int16(raw)), nil
	case docschema.Int32:
		return int64(int32(raw)), nil
	default:
		return raw, nil
	}
}

// GetF64 reads a top-level floating field, widening FLOAT32 to float64.
func (d *Document) GetF64(name string) (float64, error) {
	f, slot, err := d.fieldSlot(name)
	if err != nil {
		return 0, err
	}
	if !f.Kind.IsFloat() {
		return 0, dberr.Newf(dberr.TypeMismatch, "field %q is %s, not a floating kind", name, f.Kind)
	}
	if isNull(d.buf, slot) {
		return 0, dberr.Newf(dberr.FieldMissing, "field %q is null", name)
	}
	o := slotOffset(d.nbLen, slot)
	bits := binary.LittleEndian.Uint64(d.buf[o : o+8])
	if f.Kind == docschema.Float32 {
		return float64(math.Float32frombits(uint32(bits))), nil
	}
	return math.Float64frombits(bits), nil
}

// GetString reads a top-level STRING or BLOB field's raw bytes. The returned
// slice aliases the document's buffer and must not be retained past the next
// Reset call on this scratch Document.
func (d *Document) GetString(name string) ([]byte, error) {
	f, slot, err := d.fieldSlot(name)
	if err != nil {
		return nil, err
	}
	if f.Kind != docschema.String && f.Kind != docschema.Blob {
		return nil, dberr.Newf(dberr.TypeMismatch, "field %q is %s, not STRING/BLOB", name, f.Kind)
	}
	if isNull(d.buf, slot) {
		return nil, dberr.Newf(dberr.FieldMissing, "field %q is null", name)
	}
	off, length := readSlotPair(d.buf, d.nbLen, slot)
	return d.buf[off : off+length], nil
}

// GetSubdocument decodes a nested SUBDOCUMENT field into scratch, which the
// caller should obtain via AllocateSubdocument and reuse across calls.
func (d *Document) GetSubdocument(name string, scratch *Document) error {
	f, slot, err := d.fieldSlot(name)
	if err != nil {
		return err
	}
	if f.Kind != docschema.Subdocument || f.Nested == nil {
		return dberr.Newf(dberr.TypeMismatch, "field %q is not a subdocument", name)
	}
	if isNull(d.buf, slot) {
		return dberr.Newf(dberr.FieldMissing, "field %q is null", name)
	}
	off, length := readSlotPair(d.buf, d.nbLen, slot)
	return scratch.Reset(d.buf[off : off+length])
}

// AllocateSubdocument returns a reusable scratch Document for reading a
// nested field named name, bound to that field's nested schema.
func (d *Document) AllocateSubdocument(name string) (*Document, error) {
	f, _, err := d.fieldSlot(name)
	if err != nil {
		return nil, err
	}
	if f.Kind != docschema.Subdocument || f.Nested == nil {
		return nil, dberr.Newf(dberr.TypeMismatch, "field %q is not a subdocument", name)
	}
	return Allocate(f.Nested), nil
}

// pathReader is the result of resolving a dotted path: the leaf field and
// the document that directly owns the leaf slot.
type pathReader struct {
	doc  *Document
	leaf docschema.Field
}

// Resolve walks tokens of a dotted path starting at d, allocating scratch
// subdocuments as needed (cheap: at most path-depth allocations, only on the
// blob-decode fallback path — never on the indexer fast path).
func (d *Document) resolve(path string) (*pathReader, error) {
	leaf, slots, err := d.schema.Resolve(path)
	if err != nil {
		return nil, err
	}
	cur := d
	for i := 0; i < len(slots)-1; i++ {
		name := cur.schema.Fields[slots[i]].Name
		next, err := cur.AllocateSubdocument(name)
		if err != nil {
			return nil, err
		}
		if err := cur.GetSubdocument(name, next); err != nil {
			return nil, err
		}
		cur = next
	}
	return &pathReader{doc: cur, leaf: leaf}, nil
}

// GetInt64Path resolves a dotted path and reads it as int64.
func (d *Document) GetInt64Path(path string) (int64, error) {
	r, err := d.resolve(path)
	if err != nil {
		return 0, err
	}
	return r.doc.GetInt64(r.leaf.Name)
}

// GetF64Path resolves a dotted path and reads it as float64.
func (d *Document) GetF64Path(path string) (float64, error) {
	r, err := d.resolve(path)
	if err != nil {
		return 0, err
	}
	return r.doc.GetF64(r.leaf.Name)
}

// GetStringPath resolves a dotted path and reads it as raw bytes.
func (d *Document) GetStringPath(path string) ([]byte, error) {
	r, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	return r.doc.GetString(r.leaf.Name)
}

// PathResolver resolves one fixed dotted path against many documents sharing
// a schema, reusing its per-level scratch Document chain across calls
// instead of allocating one per resolve — the indexer ingestion hot path's
// counterpart of resolve's blob-decode-fallback allocation (spec.md:65). Not
// safe for concurrent use: callers driving concurrent inserts keep one
// PathResolver per goroutine, e.g. via a sync.Pool.
type PathResolver struct {
	names   []string
	nested  []*docschema.Schema
	scratch []*Document
	leaf    docschema.Field
}

// NewPathResolver resolves path once against schema and preallocates the
// scratch subdocument chain path's intermediate levels will be read into.
func NewPathResolver(schema *docschema.Schema, path string) (*PathResolver, error) {
	leaf, slots, err := schema.Resolve(path)
	if err != nil {
		return nil, err
	}
	pr := &PathResolver{leaf: leaf}
	cur := schema
	for i := 0; i < len(slots)-1; i++ {
		f := cur.Fields[slots[i]]
		pr.names = append(pr.names, f.Name)
		pr.nested = append(pr.nested, f.Nested)
		pr.scratch = append(pr.scratch, Allocate(f.Nested))
		cur = f.Nested
	}
	return pr, nil
}

// resolve descends d through the cached scratch chain, returning a reader
// bound to the document that directly owns the leaf slot. It allocates
// nothing: every intermediate Document was allocated once, in
// NewPathResolver.
func (pr *PathResolver) resolve(d *Document) (*pathReader, error) {
	cur := d
	for i, name := range pr.names {
		next := pr.scratch[i]
		if err := cur.GetSubdocument(name, next); err != nil {
			return nil, err
		}
		cur = next
	}
	return &pathReader{doc: cur, leaf: pr.leaf}, nil
}

// GetInt64 reads the resolved path from d as int64.
func (pr *PathResolver) GetInt64(d *Document) (int64, error) {
	r, err := pr.resolve(d)
	if err != nil {
		return 0, err
	}
	return r.doc.GetInt64(r.leaf.Name)
}

// GetF64 reads the resolved path from d as float64.
func (pr *PathResolver) GetF64(d *Document) (float64, error) {
	r, err := pr.resolve(d)
	if err != nil {
		return 0, err
	}
	return r.doc.GetF64(r.leaf.Name)
}

// GetString reads the resolved path from d as raw bytes.
func (pr *PathResolver) GetString(d *Document) ([]byte, error) {
	r, err := pr.resolve(d)
	if err != nil {
		return nil, err
	}
	return r.doc.GetString(r.leaf.Name)
}

// LeafKind returns the declared kind at the end of a dotted path, without
// requiring a decoded buffer — used by the index manager to pick indexer
// variants at registration time.
func LeafKind(schema *docschema.Schema, path string) (docschema.FieldKind, error) {
	f, _, err := schema.Resolve(path)
	if err != nil {
		return 0, err
	}
	return f.Kind, nil
}
