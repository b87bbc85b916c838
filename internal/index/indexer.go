package index

import (
	"github.com/embeddb/embeddb/internal/bitmap"
	"github.com/embeddb/embeddb/internal/document"
)

// Indexer is the contract every column indexer variant implements (spec.md
// §4.4). ValidateForInsert is the ingestion two-phase guarantee: if it
// returns nil, Insert on the same document must succeed.
type Indexer interface {
	ValidateForInsert(doc *document.Document) error
	Insert(id uint64, doc *document.Document) error
	Stats() Stat
	Filter(c Constraint) (*bitmap.Bitmap, error)
	// FilterRange evaluates an inclusive/exclusive range; only ordered
	// indexers implement it meaningfully. Others return UnsupportedOperator.
	FilterRange(lower, upper Constraint) (*bitmap.Bitmap, error)
	TryGetValue(id uint64) (Value, bool)
	TryGetVector(ids []uint64) ([]Value, bool)
}
