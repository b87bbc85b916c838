package document

import (
	"encoding/binary"
	"math"

	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
)

// Builder constructs a schema-encoded document buffer field by field. It is
// the encode-side counterpart of Document; used by the bulk JSON loader and
// by tests that need to synthesize documents.
type Builder struct {
	schema *docschema.Schema
	header []byte
	data   []byte
	set    []bool
}

// NewBuilder returns a builder for schema with an empty (all-null) header.
func NewBuilder(schema *docschema.Schema) *Builder {
	hs := headerSize(schema)
	return &Builder{
		schema: schema,
		header: make([]byte, hs),
		set:    make([]bool, len(schema.Fields)),
	}
}

func (b *Builder) slot(name string, want docschema.FieldKind) (int, error) {
	idx := b.schema.IndexOf(name)
	if idx < 0 {
		return 0, dberr.Newf(dberr.FieldMissing, "field %q not in schema", name)
	}
	f := b.schema.Fields[idx]
	if f.Kind != want {
		return 0, dberr.Newf(dberr.TypeMismatch, "field %q is %s, not %s", name, f.Kind, want)
	}
	return idx, nil
}

func (b *Builder) writeFixed(slot int, bits uint64) {
	nbLen := nullBitmapLen(len(b.schema.Fields))
	o := slotOffset(nbLen, slot)
	binary.LittleEndian.PutUint64(b.header[o:o+8], bits)
	setNullBit(b.header, slot, true)
	b.set[slot] = true
}

// SetInt64 encodes an integer field, storing v unchanged in its 8-byte slot;
// Document.GetInt64 narrows the stored value to the declared width on read,
// so an out-of-range v reads back truncated (callers are expected to pass
// values already in range; this mirrors the original format's trust boundary
// at the document-adapter layer, not the wire-validation layer).
func (b *Builder) SetInt64(name string, v int64) error {
	idx := b.schema.IndexOf(name)
	if idx < 0 {
		return dberr.Newf(dberr.FieldMissing, "field %q not in schema", name)
	}
	if !b.schema.Fields[idx].Kind.IsInteger() {
		return dberr.Newf(dberr.TypeMismatch, "field %q is %s, not an integer kind", name, b.schema.Fields[idx].Kind)
	}
	b.writeFixed(idx, uint64(v))
	return nil
}

// SetFloat64 encodes a floating field. FLOAT32 fields store the value
// rounded to float32 precision, as float32 bits in the low 4 bytes of the
// slot; Document.GetF64 widens it back to float64 on read.
func (b *Builder) SetFloat64(name string, v float64) error {
	idx := b.schema.IndexOf(name)
	if idx < 0 {
		return dberr.Newf(dberr.FieldMissing, "field %q not in schema", name)
	}
	kind := b.schema.Fields[idx].Kind
	if !kind.IsFloat() {
		return dberr.Newf(dberr.TypeMismatch, "field %q is %s, not a floating kind", name, kind)
	}
	if math.IsNaN(v) {
		return dberr.Newf(dberr.InvalidArgument, "field %q: NaN is not a valid value", name)
	}
	var bits uint64
	if kind == docschema.Float32 {
		bits = uint64(math.Float32bits(float32(v)))
	} else {
		bits = math.Float64bits(v)
	}
	b.writeFixed(idx, bits)
	return nil
}

func (b *Builder) writeVariable(slot int, payload []byte) {
	nbLen := nullBitmapLen(len(b.schema.Fields))
	off := uint32(len(b.header) + len(b.data))
	length := uint32(len(payload))
	b.data = append(b.data, payload...)

	o := slotOffset(nbLen, slot)
	binary.LittleEndian.PutUint32(b.header[o:o+4], off)
	binary.LittleEndian.PutUint32(b.header[o+4:o+8], length)
	setNullBit(b.header, slot, true)
	b.set[slot] = true
}

// SetString encodes a STRING or BLOB field's raw bytes into the variable
// section.
func (b *Builder) SetString(name string, v []byte) error {
	idx := b.schema.IndexOf(name)
	if idx < 0 {
		return dberr.Newf(dberr.FieldMissing, "field %q not in schema", name)
	}
	kind := b.schema.Fields[idx].Kind
	if kind != docschema.String && kind != docschema.Blob {
		return dberr.Newf(dberr.TypeMismatch, "field %q is %s, not STRING/BLOB", name, kind)
	}
	b.writeVariable(idx, v)
	return nil
}

// SetSubdocument encodes a pre-built nested buffer into a SUBDOCUMENT field.
func (b *Builder) SetSubdocument(name string, nested []byte) error {
	idx := b.schema.IndexOf(name)
	if idx < 0 {
		return dberr.Newf(dberr.FieldMissing, "field %q not in schema", name)
	}
	if b.schema.Fields[idx].Kind != docschema.Subdocument {
		return dberr.Newf(dberr.TypeMismatch, "field %q is not SUBDOCUMENT", name)
	}
	b.writeVariable(idx, nested)
	return nil
}

// Build finalizes the buffer, failing if any required field was left unset.
func (b *Builder) Build() ([]byte, error) {
	for i, f := range b.schema.Fields {
		if f.Required && !b.set[i] {
			return nil, dberr.Newf(dberr.SchemaMismatch, "required field %q was never set", f.Name)
		}
	}
	out := make([]byte, 0, len(b.header)+len(b.data))
	out = append(out, b.header...)
	out = append(out, b.data...)
	return out, nil
}
