package index

import (
	"sync"

	"github.com/embeddb/embeddb/internal/bitmap"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
)

// EqualityIndexer is a hash-map indexer over integer, string, or blob
// columns (spec.md §4.4.1). Keys are unique; order is irrelevant. A single
// RWMutex guards the map, matching spec.md §5: filter acquires a read lock,
// insert acquires a write lock.
type EqualityIndexer struct {
	stat Stat

	mu    sync.RWMutex
	byInt map[int64]*bitmap.Bitmap
	byStr map[string]*bitmap.Bitmap

	// Reverse indexes keyed by document id, maintained alongside the
	// forward maps so TryGetValue is O(1) instead of a bitmap scan.
	idToInt map[uint64]int64
	idToStr map[uint64]string

	resolvers sync.Pool // of *document.PathResolver, built against the first doc's schema
}

// NewEqualityIndexer constructs an equality indexer for the given column and
// declared field kind. fieldKind must be an integer kind, STRING, or BLOB.
func NewEqualityIndexer(name, columnPath string, fieldKind docschema.FieldKind) (*EqualityIndexer, error) {
	if name == "" {
		return nil, dberr.New(dberr.InvalidArgument, "index name must not be empty")
	}
	if columnPath == "" {
		return nil, dberr.New(dberr.InvalidArgument, "index column path must not be empty")
	}
	if !fieldKind.IsInteger() && fieldKind != docschema.String && fieldKind != docschema.Blob {
		return nil, dberr.Newf(dberr.InvalidArgument, "field kind %s is not valid for an equality indexer", fieldKind)
	}
	idx := &EqualityIndexer{
		stat: Stat{Name: name, Kind: Equality, ColumnPath: columnPath, FieldKind: fieldKind},
	}
	if fieldKind.IsInteger() {
		idx.byInt = make(map[int64]*bitmap.Bitmap)
		idx.idToInt = make(map[uint64]int64)
	} else {
		idx.byStr = make(map[string]*bitmap.Bitmap)
		idx.idToStr = make(map[uint64]string)
	}
	return idx, nil
}

// resolverFor returns a scratch path resolver bound to doc's schema, reusing
// one from the pool when available instead of rebuilding the subdocument
// chain on every insert.
func (idx *EqualityIndexer) resolverFor(doc *document.Document) (*document.PathResolver, error) {
	if v := idx.resolvers.Get(); v != nil {
		return v.(*document.PathResolver), nil
	}
	return document.NewPathResolver(doc.Schema(), idx.stat.ColumnPath)
}

func (idx *EqualityIndexer) readValue(doc *document.Document) (int64, string, error) {
	pr, err := idx.resolverFor(doc)
	if err != nil {
		return 0, "", err
	}
	defer idx.resolvers.Put(pr)

	if idx.stat.FieldKind.IsInteger() {
		v, err := pr.GetInt64(doc)
		return v, "", err
	}
	b, err := pr.GetString(doc)
	if err != nil {
		return 0, "", err
	}
	return 0, string(b), nil
}

func (idx *EqualityIndexer) ValidateForInsert(doc *document.Document) error {
	_, _, err := idx.readValue(doc)
	return err
}

func (idx *EqualityIndexer) Insert(id uint64, doc *document.Document) error {
	iv, sv, err := idx.readValue(doc)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.stat.FieldKind.IsInteger() {
		bm, ok := idx.byInt[iv]
		if !ok {
			bm = bitmap.New()
			idx.byInt[iv] = bm
		}
		bm.Add(id)
		idx.idToInt[id] = iv
	} else {
		bm, ok := idx.byStr[sv]
		if !ok {
			bm = bitmap.New()
			idx.byStr[sv] = bm
		}
		bm.Add(id)
		idx.idToStr[id] = sv
	}
	return nil
}

func (idx *EqualityIndexer) Stats() Stat { return idx.stat }

func (idx *EqualityIndexer) Filter(c Constraint) (*bitmap.Bitmap, error) {
	if c.Op != OpEQ {
		return nil, dberr.Newf(dberr.UnsupportedOperator, "equality indexer on %s does not support %s", idx.stat.ColumnPath, c.Op)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.stat.FieldKind.IsInteger() {
		v, ok := coerceToInt64(c)
		if !ok {
			if c.OperandType == OperandString || c.OperandType == OperandBlob {
				return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is integer, string/blob operand rejected", idx.stat.ColumnPath)
			}
			return bitmap.New(), nil
		}
		if bm, ok := idx.byInt[v]; ok {
			return bm, nil
		}
		return bitmap.New(), nil
	}

	if c.OperandType != OperandString && c.OperandType != OperandBlob {
		return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is string/blob, numeric operand rejected", idx.stat.ColumnPath)
	}
	if bm, ok := idx.byStr[string(c.StrVal)]; ok {
		return bm, nil
	}
	return bitmap.New(), nil
}

func (idx *EqualityIndexer) FilterRange(lower, upper Constraint) (*bitmap.Bitmap, error) {
	return nil, dberr.Newf(dberr.UnsupportedOperator, "equality indexer on %s does not support range queries", idx.stat.ColumnPath)
}

func (idx *EqualityIndexer) TryGetValue(id uint64) (Value, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.stat.FieldKind.IsInteger() {
		v, ok := idx.idToInt[id]
		if !ok {
			return Value{}, false
		}
		return Value{Kind: idx.stat.FieldKind, Int: v}, true
	}
	v, ok := idx.idToStr[id]
	if !ok {
		return Value{}, false
	}
	return Value{Kind: idx.stat.FieldKind, Str: []byte(v)}, true
}

func (idx *EqualityIndexer) TryGetVector(ids []uint64) ([]Value, bool) {
	out := make([]Value, len(ids))
	for i, id := range ids {
		v, ok := idx.TryGetValue(id)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
