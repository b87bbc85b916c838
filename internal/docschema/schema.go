// Package docschema defines the already-parsed schema value a document
// collection is constructed with. Per spec.md §6, the registry that durably
// stores "collection X has schema Y" is an external collaborator; this
// package only defines the shape of the parsed value and a convenience
// loader for the JSON form the CLI reads from disk.
package docschema

import (
	json "github.com/goccy/go-json"
	"os"
	"strings"

	"github.com/embeddb/embeddb/internal/dberr"
)

// FieldKind is the declared scalar or structural kind of a schema field.
type FieldKind int8

const (
	Int8 FieldKind = iota
	Int16
	Int32
	Int64
	Float32
	Float64
	String
	Blob
	Subdocument
)

func (k FieldKind) String() string {
	switch k {
	case Int8:
		return "INT8"
	case Int16:
		return "INT16"
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case Float32:
		return "FLOAT32"
	case Float64:
		return "DOUBLE"
	case String:
		return "STRING"
	case Blob:
		return "BLOB"
	case Subdocument:
		return "SUBDOCUMENT"
	default:
		return "UNKNOWN"
	}
}

// IsInteger reports whether k is one of the widening integer kinds.
func (k FieldKind) IsInteger() bool {
	switch k {
	case Int8, Int16, Int32, Int64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether k is one of the widening floating kinds.
func (k FieldKind) IsFloat() bool {
	return k == Float32 || k == Float64
}

// Field is one schema-declared field. Nested fields of kind Subdocument carry
// a non-nil Nested schema describing the embedded document's own fields.
type Field struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Nested   *Schema   `json:"nested,omitempty"`
}

// Schema is an ordered, immutable list of fields. Field order is the wire
// order used by internal/document's fixed-offset encoding, so a Schema must
// never reorder fields once documents have been written against it.
type Schema struct {
	Fields []Field

	byName map[string]int
}

// New builds a Schema from an ordered field list, precomputing the name
// index used by path resolution.
func New(fields []Field) *Schema {
	s := &Schema{Fields: fields, byName: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.byName[f.Name] = i
	}
	return s
}

// IndexOf returns the slot of the named top-level field, or -1 if absent.
func (s *Schema) IndexOf(name string) int {
	if i, ok := s.byName[name]; ok {
		return i
	}
	return -1
}

// Resolve descends a dotted path one token at a time, returning the final
// field's kind and the chain of (schema, slot) pairs walked to reach it.
// Paths are dotted sequences (e.g. "user.id"); every token but the last must
// name a Subdocument field.
func (s *Schema) Resolve(path string) (Field, []int, error) {
	tokens := strings.Split(path, ".")
	if len(tokens) == 0 || (len(tokens) == 1 && tokens[0] == "") {
		return Field{}, nil, dberr.New(dberr.InvalidArgument, "empty field path")
	}

	cur := s
	slots := make([]int, 0, len(tokens))
	var field Field
	for i, tok := range tokens {
		idx := cur.IndexOf(tok)
		if idx < 0 {
			return Field{}, nil, dberr.Newf(dberr.FieldMissing, "field %q not in schema", strings.Join(tokens[:i+1], "."))
		}
		field = cur.Fields[idx]
		slots = append(slots, idx)
		if i < len(tokens)-1 {
			if field.Kind != Subdocument || field.Nested == nil {
				return Field{}, nil, dberr.Newf(dberr.TypeMismatch, "field %q is not a subdocument", strings.Join(tokens[:i+1], "."))
			}
			cur = field.Nested
		}
	}
	return field, slots, nil
}

// jsonField/jsonSchema mirror Field/Schema for goccy/go-json decoding, since
// Schema carries an unexported index that must not round-trip through JSON.
type jsonField struct {
	Name     string      `json:"name"`
	Kind     string      `json:"kind"`
	Required bool        `json:"required"`
	Nested   *jsonSchema `json:"nested,omitempty"`
}

type jsonSchema struct {
	Fields []jsonField `json:"fields"`
}

func kindFromString(s string) (FieldKind, error) {
	switch strings.ToUpper(s) {
	case "INT8":
		return Int8, nil
	case "INT16":
		return Int16, nil
	case "INT32":
		return Int32, nil
	case "INT64":
		return Int64, nil
	case "FLOAT32":
		return Float32, nil
	case "DOUBLE", "FLOAT64":
		return Float64, nil
	case "STRING":
		return String, nil
	case "BLOB":
		return Blob, nil
	case "SUBDOCUMENT":
		return Subdocument, nil
	default:
		return 0, dberr.Newf(dberr.SchemaMismatch, "unknown field kind %q", s)
	}
}

func fromJSONSchema(js *jsonSchema) (*Schema, error) {
	fields := make([]Field, len(js.Fields))
	for i, jf := range js.Fields {
		kind, err := kindFromString(jf.Kind)
		if err != nil {
			return nil, err
		}
		f := Field{Name: jf.Name, Kind: kind, Required: jf.Required}
		if kind == Subdocument {
			if jf.Nested == nil {
				return nil, dberr.Newf(dberr.SchemaMismatch, "field %q is SUBDOCUMENT but has no nested schema", jf.Name)
			}
			nested, err := fromJSONSchema(jf.Nested)
			if err != nil {
				return nil, err
			}
			f.Nested = nested
		}
		fields[i] = f
	}
	return New(fields), nil
}

// Parse decodes a schema from its JSON representation.
func Parse(data []byte) (*Schema, error) {
	var js jsonSchema
	if err := json.Unmarshal(data, &js); err != nil {
		return nil, dberr.Wrap(dberr.SchemaMismatch, "parse schema JSON", err)
	}
	return fromJSONSchema(&js)
}

// Load reads and parses a schema file from path.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.MissingDatabaseFile, "read schema file "+path, err)
	}
	return Parse(data)
}
