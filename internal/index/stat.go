// Package index implements the per-column bitmap indexers of spec.md §4.4
// and the index manager of spec.md §4.5: equality and ordered bitmap
// indexers, a positional vector indexer, predicate routing, and range-fold
// combination.
package index

import "github.com/embeddb/embeddb/internal/docschema"

// Kind is the index variant registered for a column.
type Kind int8

const (
	// Equality is a hash-map indexer supporting EQ only; MATCH is not
	// supported (see Supports). Unordered keys.
	Equality Kind = iota
	// Ordered is a sorted-map indexer supporting EQ and all range operators.
	Ordered
	// Vector is a positional array supporting no Filter, only fast-path
	// value reads.
	Vector
)

func (k Kind) String() string {
	switch k {
	case Equality:
		return "EQUALITY"
	case Ordered:
		return "ORDERED"
	case Vector:
		return "VECTOR"
	default:
		return "UNKNOWN"
	}
}

// Stat is the static metadata the index manager uses to match columns and
// operators to indexers, mirroring jonoondb's IndexStat.
type Stat struct {
	Name       string
	Kind       Kind
	ColumnPath string
	FieldKind  docschema.FieldKind
	Ascending  bool
}

// Supports reports whether an indexer with this Stat can evaluate op.
//
// MATCH is deliberately excluded here even though spec.md §4.4.1 lists it as
// an equality-indexer operator "if configured": whether MATCH means
// substring, full-text, or something else is an open question with no
// settled front-end contract, so it is treated as unsupported everywhere
// until one exists (see DESIGN.md).
func (s Stat) Supports(op Operator) bool {
	switch s.Kind {
	case Equality:
		return op == OpEQ
	case Ordered:
		switch op {
		case OpEQ, OpLT, OpLE, OpGT, OpGE:
			return true
		default:
			return false
		}
	case Vector:
		return false
	default:
		return false
	}
}
