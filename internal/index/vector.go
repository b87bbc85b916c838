package index

import (
	"sync"

	"github.com/embeddb/embeddb/internal/bitmap"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
)

// VectorIndexer is a positional id→value array (spec.md §4.4.3). It offers
// no Filter — it exists purely to satisfy column projections without
// decoding the blob, in O(1)/O(k).
type VectorIndexer struct {
	stat Stat

	mu     sync.RWMutex
	ints   []int64
	f64s   []float64
	strs   [][]byte
	filled []bool

	resolvers sync.Pool // of *document.PathResolver, built against the first doc's schema
}

// NewVectorIndexer constructs a vector indexer for the given column.
func NewVectorIndexer(name, columnPath string, fieldKind docschema.FieldKind) (*VectorIndexer, error) {
	if name == "" {
		return nil, dberr.New(dberr.InvalidArgument, "index name must not be empty")
	}
	if columnPath == "" {
		return nil, dberr.New(dberr.InvalidArgument, "index column path must not be empty")
	}
	return &VectorIndexer{stat: Stat{Name: name, Kind: Vector, ColumnPath: columnPath, FieldKind: fieldKind}}, nil
}

func (idx *VectorIndexer) Stats() Stat { return idx.stat }

// resolverFor returns a scratch path resolver bound to doc's schema, reusing
// one from the pool when available instead of rebuilding the subdocument
// chain on every insert.
func (idx *VectorIndexer) resolverFor(doc *document.Document) (*document.PathResolver, error) {
	if v := idx.resolvers.Get(); v != nil {
		return v.(*document.PathResolver), nil
	}
	return document.NewPathResolver(doc.Schema(), idx.stat.ColumnPath)
}

func (idx *VectorIndexer) readValue(doc *document.Document) (int64, float64, []byte, error) {
	pr, err := idx.resolverFor(doc)
	if err != nil {
		return 0, 0, nil, err
	}
	defer idx.resolvers.Put(pr)

	switch {
	case idx.stat.FieldKind.IsInteger():
		v, err := pr.GetInt64(doc)
		return v, 0, nil, err
	case idx.stat.FieldKind.IsFloat():
		v, err := pr.GetF64(doc)
		return 0, v, nil, err
	default:
		v, err := pr.GetString(doc)
		return 0, 0, v, err
	}
}

func (idx *VectorIndexer) ValidateForInsert(doc *document.Document) error {
	_, _, _, err := idx.readValue(doc)
	return err
}

func (idx *VectorIndexer) growLocked(n int) {
	for len(idx.filled) <= n {
		idx.filled = append(idx.filled, false)
		switch {
		case idx.stat.FieldKind.IsInteger():
			idx.ints = append(idx.ints, 0)
		case idx.stat.FieldKind.IsFloat():
			idx.f64s = append(idx.f64s, 0)
		default:
			idx.strs = append(idx.strs, nil)
		}
	}
}

func (idx *VectorIndexer) Insert(id uint64, doc *document.Document) error {
	iv, fv, sv, err := idx.readValue(doc)
	if err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	i := int(id)
	idx.growLocked(i)
	idx.filled[i] = true
	switch {
	case idx.stat.FieldKind.IsInteger():
		idx.ints[i] = iv
	case idx.stat.FieldKind.IsFloat():
		idx.f64s[i] = fv
	default:
		cp := make([]byte, len(sv))
		copy(cp, sv)
		idx.strs[i] = cp
	}
	return nil
}

func (idx *VectorIndexer) Filter(c Constraint) (*bitmap.Bitmap, error) {
	return nil, dberr.Newf(dberr.UnsupportedOperator, "vector indexer on %s does not support filtering", idx.stat.ColumnPath)
}

func (idx *VectorIndexer) FilterRange(lower, upper Constraint) (*bitmap.Bitmap, error) {
	return nil, dberr.Newf(dberr.UnsupportedOperator, "vector indexer on %s does not support filtering", idx.stat.ColumnPath)
}

func (idx *VectorIndexer) TryGetValue(id uint64) (Value, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i := int(id)
	if i < 0 || i >= len(idx.filled) || !idx.filled[i] {
		return Value{}, false
	}
	switch {
	case idx.stat.FieldKind.IsInteger():
		return Value{Kind: idx.stat.FieldKind, Int: idx.ints[i]}, true
	case idx.stat.FieldKind.IsFloat():
		return Value{Kind: idx.stat.FieldKind, F64: idx.f64s[i]}, true
	default:
		return Value{Kind: idx.stat.FieldKind, Str: idx.strs[i]}, true
	}
}

func (idx *VectorIndexer) TryGetVector(ids []uint64) ([]Value, bool) {
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
