package index

import "github.com/embeddb/embeddb/internal/docschema"

// Value is a tagged scalar returned by an indexer's fast path, avoiding an
// interface{} boxing allocation for the common integer/double cases.
type Value struct {
	Kind docschema.FieldKind
	Int  int64
	F64  float64
	Str  []byte
}
