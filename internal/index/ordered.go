package index

import (
	"sort"
	"sync"

	"github.com/embeddb/embeddb/internal/bitmap"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
)

// OrderedIndexer is a sorted-map indexer over a numeric or string column
// (spec.md §4.4.2), supporting EQ plus the four range operators. Keys are
// kept in ascending order; this ordering is the precondition for the
// O(log N + k) range-query discipline spec.md requires, so every mutation
// keeps the active key slice (intKeys, f64Keys or strKeys) sorted rather
// than re-sorting per query.
type OrderedIndexer struct {
	stat Stat

	mu sync.RWMutex

	// Exactly one of the three key spaces is active, selected by
	// stat.FieldKind at construction.
	intMap  map[int64]*bitmap.Bitmap
	intKeys []int64

	f64Map  map[float64]*bitmap.Bitmap
	f64Keys []float64

	strMap  map[string]*bitmap.Bitmap
	strKeys []string

	idToInt map[uint64]int64
	idToF64 map[uint64]float64
	idToStr map[uint64]string

	resolvers sync.Pool // of *document.PathResolver, built against the first doc's schema
}

// NewOrderedIndexer constructs an ordered indexer for the given column.
// fieldKind must be numeric or STRING; ascending records the index's
// declared sort preference (used only as a best-index tie-break).
func NewOrderedIndexer(name, columnPath string, fieldKind docschema.FieldKind, ascending bool) (*OrderedIndexer, error) {
	if name == "" {
		return nil, dberr.New(dberr.InvalidArgument, "index name must not be empty")
	}
	if columnPath == "" {
		return nil, dberr.New(dberr.InvalidArgument, "index column path must not be empty")
	}
	if !isNumeric(fieldKind) && fieldKind != docschema.String {
		return nil, dberr.Newf(dberr.InvalidArgument, "field kind %s is not valid for an ordered indexer", fieldKind)
	}
	idx := &OrderedIndexer{
		stat: Stat{Name: name, Kind: Ordered, ColumnPath: columnPath, FieldKind: fieldKind, Ascending: ascending},
	}
	switch {
	case fieldKind.IsInteger():
		idx.intMap = make(map[int64]*bitmap.Bitmap)
		idx.idToInt = make(map[uint64]int64)
	case fieldKind.IsFloat():
		idx.f64Map = make(map[float64]*bitmap.Bitmap)
		idx.idToF64 = make(map[uint64]float64)
	default:
		idx.strMap = make(map[string]*bitmap.Bitmap)
		idx.idToStr = make(map[uint64]string)
	}
	return idx, nil
}

func (idx *OrderedIndexer) Stats() Stat { return idx.stat }

// --- ingestion -------------------------------------------------------------

// resolverFor returns a scratch path resolver bound to doc's schema, reusing
// one from the pool when available instead of rebuilding the subdocument
// chain on every insert.
func (idx *OrderedIndexer) resolverFor(doc *document.Document) (*document.PathResolver, error) {
	if v := idx.resolvers.Get(); v != nil {
		return v.(*document.PathResolver), nil
	}
	return document.NewPathResolver(doc.Schema(), idx.stat.ColumnPath)
}

func (idx *OrderedIndexer) readInt(doc *document.Document) (int64, error) {
	pr, err := idx.resolverFor(doc)
	if err != nil {
		return 0, err
	}
	defer idx.resolvers.Put(pr)
	return pr.GetInt64(doc)
}

func (idx *OrderedIndexer) readF64(doc *document.Document) (float64, error) {
	pr, err := idx.resolverFor(doc)
	if err != nil {
		return 0, err
	}
	defer idx.resolvers.Put(pr)
	v, err := pr.GetF64(doc)
	if err != nil {
		return 0, err
	}
	if v != v { // NaN
		return 0, dberr.Newf(dberr.InvalidArgument, "column %s: NaN is not a valid indexed value", idx.stat.ColumnPath)
	}
	return v, nil
}

func (idx *OrderedIndexer) readStr(doc *document.Document) (string, error) {
	pr, err := idx.resolverFor(doc)
	if err != nil {
		return "", err
	}
	defer idx.resolvers.Put(pr)
	b, err := pr.GetString(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (idx *OrderedIndexer) ValidateForInsert(doc *document.Document) error {
	switch {
	case idx.stat.FieldKind.IsInteger():
		_, err := idx.readInt(doc)
		return err
	case idx.stat.FieldKind.IsFloat():
		_, err := idx.readF64(doc)
		return err
	default:
		_, err := idx.readStr(doc)
		return err
	}
}

// bitmapForInt inserts k into intKeys (sorted ascending) if absent,
// returning the existing or new bitmap for k.
func (idx *OrderedIndexer) bitmapForInt(k int64) *bitmap.Bitmap {
	if bm, ok := idx.intMap[k]; ok {
		return bm
	}
	bm := bitmap.New()
	idx.intMap[k] = bm
	i := sort.Search(len(idx.intKeys), func(i int) bool { return idx.intKeys[i] >= k })
	idx.intKeys = append(idx.intKeys, 0)
	copy(idx.intKeys[i+1:], idx.intKeys[i:])
	idx.intKeys[i] = k
	return bm
}

func (idx *OrderedIndexer) bitmapForF64(k float64) *bitmap.Bitmap {
	if bm, ok := idx.f64Map[k]; ok {
		return bm
	}
	bm := bitmap.New()
	idx.f64Map[k] = bm
	i := sort.Search(len(idx.f64Keys), func(i int) bool { return idx.f64Keys[i] >= k })
	idx.f64Keys = append(idx.f64Keys, 0)
	copy(idx.f64Keys[i+1:], idx.f64Keys[i:])
	idx.f64Keys[i] = k
	return bm
}

func (idx *OrderedIndexer) bitmapForStr(k string) *bitmap.Bitmap {
	if bm, ok := idx.strMap[k]; ok {
		return bm
	}
	bm := bitmap.New()
	idx.strMap[k] = bm
	i := sort.Search(len(idx.strKeys), func(i int) bool { return idx.strKeys[i] >= k })
	idx.strKeys = append(idx.strKeys, "")
	copy(idx.strKeys[i+1:], idx.strKeys[i:])
	idx.strKeys[i] = k
	return bm
}

func (idx *OrderedIndexer) Insert(id uint64, doc *document.Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	switch {
	case idx.stat.FieldKind.IsInteger():
		v, err := idx.readInt(doc)
		if err != nil {
			return err
		}
		idx.bitmapForInt(v).Add(id)
		idx.idToInt[id] = v
	case idx.stat.FieldKind.IsFloat():
		v, err := idx.readF64(doc)
		if err != nil {
			return err
		}
		idx.bitmapForF64(v).Add(id)
		idx.idToF64[id] = v
	default:
		v, err := idx.readStr(doc)
		if err != nil {
			return err
		}
		idx.bitmapForStr(v).Add(id)
		idx.idToStr[id] = v
	}
	return nil
}

// --- query -------------------------------------------------------------

func (idx *OrderedIndexer) Filter(c Constraint) (*bitmap.Bitmap, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	switch c.Op {
	case OpEQ:
		return idx.filterEQLocked(c)
	case OpLT, OpLE:
		return idx.filterBoundLocked(c, false)
	case OpGT, OpGE:
		return idx.filterBoundLocked(c, true)
	default:
		return nil, dberr.Newf(dberr.UnsupportedOperator, "ordered indexer on %s does not support %s", idx.stat.ColumnPath, c.Op)
	}
}

func (idx *OrderedIndexer) filterEQLocked(c Constraint) (*bitmap.Bitmap, error) {
	switch {
	case idx.stat.FieldKind.IsInteger():
		v, ok := coerceToInt64(c)
		if !ok {
			if c.OperandType == OperandString || c.OperandType == OperandBlob {
				return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is integer, string operand rejected", idx.stat.ColumnPath)
			}
			return bitmap.New(), nil
		}
		if bm, ok := idx.intMap[v]; ok {
			return bm, nil
		}
		return bitmap.New(), nil
	case idx.stat.FieldKind.IsFloat():
		v, ok := coerceToFloat64(c)
		if !ok {
			return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is double, string operand rejected", idx.stat.ColumnPath)
		}
		if bm, ok := idx.f64Map[v]; ok {
			return bm, nil
		}
		return bitmap.New(), nil
	default:
		if c.OperandType != OperandString && c.OperandType != OperandBlob {
			return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is string, numeric operand rejected", idx.stat.ColumnPath)
		}
		if bm, ok := idx.strMap[string(c.StrVal)]; ok {
			return bm, nil
		}
		return bitmap.New(), nil
	}
}

// filterBoundLocked evaluates a single-sided bound (LT/LE/GT/GE) by walking
// the sorted key slice from the appropriate end, per the procedure table in spec.md
// §4.4.2.
func (idx *OrderedIndexer) filterBoundLocked(c Constraint, lower bool) (*bitmap.Bitmap, error) {
	switch {
	case idx.stat.FieldKind.IsInteger():
		v, ok := coerceToInt64(c)
		if !ok {
			if c.OperandType == OperandString || c.OperandType == OperandBlob {
				return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is integer, string operand rejected", idx.stat.ColumnPath)
			}
			return bitmap.New(), nil
		}
		var bms []*bitmap.Bitmap
		if lower {
			start := sort.Search(len(idx.intKeys), func(i int) bool { return idx.intKeys[i] > v })
			if c.Op == OpGE {
				start = sort.Search(len(idx.intKeys), func(i int) bool { return idx.intKeys[i] >= v })
			}
			for _, k := range idx.intKeys[start:] {
				bms = append(bms, idx.intMap[k])
			}
		} else {
			for _, k := range idx.intKeys {
				if k < v {
					bms = append(bms, idx.intMap[k])
				} else if c.Op == OpLE && k == v {
					bms = append(bms, idx.intMap[k])
					break
				} else {
					break
				}
			}
		}
		return bitmap.Or(bms), nil
	case idx.stat.FieldKind.IsFloat():
		v, ok := coerceToFloat64(c)
		if !ok {
			return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is double, string operand rejected", idx.stat.ColumnPath)
		}
		var bms []*bitmap.Bitmap
		if lower {
			start := sort.Search(len(idx.f64Keys), func(i int) bool { return idx.f64Keys[i] > v })
			if c.Op == OpGE {
				start = sort.Search(len(idx.f64Keys), func(i int) bool { return idx.f64Keys[i] >= v })
			}
			for _, k := range idx.f64Keys[start:] {
				bms = append(bms, idx.f64Map[k])
			}
		} else {
			for _, k := range idx.f64Keys {
				if k < v {
					bms = append(bms, idx.f64Map[k])
				} else if c.Op == OpLE && k == v {
					bms = append(bms, idx.f64Map[k])
					break
				} else {
					break
				}
			}
		}
		return bitmap.Or(bms), nil
	default:
		if c.OperandType != OperandString && c.OperandType != OperandBlob {
			return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is string, numeric operand rejected", idx.stat.ColumnPath)
		}
		v := string(c.StrVal)
		var bms []*bitmap.Bitmap
		if lower {
			start := sort.Search(len(idx.strKeys), func(i int) bool { return idx.strKeys[i] > v })
			if c.Op == OpGE {
				start = sort.Search(len(idx.strKeys), func(i int) bool { return idx.strKeys[i] >= v })
			}
			for _, k := range idx.strKeys[start:] {
				bms = append(bms, idx.strMap[k])
			}
		} else {
			for _, k := range idx.strKeys {
				if k < v {
					bms = append(bms, idx.strMap[k])
				} else if c.Op == OpLE && k == v {
					bms = append(bms, idx.strMap[k])
					break
				} else {
					break
				}
			}
		}
		return bitmap.Or(bms), nil
	}
}

// FilterRange evaluates [lower, upper] with inclusivity determined by the
// originating operators (spec.md §4.4.2: "range: [lower, upper] with
// inclusivity determined by the originating ops").
func (idx *OrderedIndexer) FilterRange(lower, upper Constraint) (*bitmap.Bitmap, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	switch {
	case idx.stat.FieldKind.IsInteger():
		lo, ok := coerceToInt64(lower)
		if !ok {
			if lower.OperandType == OperandString || lower.OperandType == OperandBlob {
				return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is integer, string operand rejected", idx.stat.ColumnPath)
			}
			return bitmap.New(), nil
		}
		hi, ok := coerceToInt64(upper)
		if !ok {
			if upper.OperandType == OperandString || upper.OperandType == OperandBlob {
				return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is integer, string operand rejected", idx.stat.ColumnPath)
			}
			return bitmap.New(), nil
		}
		start := sort.Search(len(idx.intKeys), func(i int) bool { return idx.intKeys[i] > lo })
		if lower.Op == OpGE {
			start = sort.Search(len(idx.intKeys), func(i int) bool { return idx.intKeys[i] >= lo })
		}
		var bms []*bitmap.Bitmap
		for _, k := range idx.intKeys[start:] {
			if k < hi || (upper.Op == OpLE && k == hi) {
				bms = append(bms, idx.intMap[k])
			} else {
				break
			}
		}
		return bitmap.Or(bms), nil
	case idx.stat.FieldKind.IsFloat():
		lo, ok := coerceToFloat64(lower)
		if !ok {
			return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is double, string operand rejected", idx.stat.ColumnPath)
		}
		hi, ok := coerceToFloat64(upper)
		if !ok {
			return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is double, string operand rejected", idx.stat.ColumnPath)
		}
		start := sort.Search(len(idx.f64Keys), func(i int) bool { return idx.f64Keys[i] > lo })
		if lower.Op == OpGE {
			start = sort.Search(len(idx.f64Keys), func(i int) bool { return idx.f64Keys[i] >= lo })
		}
		var bms []*bitmap.Bitmap
		for _, k := range idx.f64Keys[start:] {
			if k < hi || (upper.Op == OpLE && k == hi) {
				bms = append(bms, idx.f64Map[k])
			} else {
				break
			}
		}
		return bitmap.Or(bms), nil
	default:
		if lower.OperandType != OperandString && lower.OperandType != OperandBlob {
			return nil, dberr.Newf(dberr.UnsupportedOperand, "column %s is string, numeric operand rejected", idx.stat.ColumnPath)
		}
		lo := string(lower.StrVal)
		hi := string(upper.StrVal)
		start := sort.Search(len(idx.strKeys), func(i int) bool { return idx.strKeys[i] > lo })
		if lower.Op == OpGE {
			start = sort.Search(len(idx.strKeys), func(i int) bool { return idx.strKeys[i] >= lo })
		}
		var bms []*bitmap.Bitmap
		for _, k := range idx.strKeys[start:] {
			if k < hi || (upper.Op == OpLE && k == hi) {
				bms = append(bms, idx.strMap[k])
			} else {
				break
			}
		}
		return bitmap.Or(bms), nil
	}
}

func (idx *OrderedIndexer) TryGetValue(id uint64) (Value, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	switch {
	case idx.stat.FieldKind.IsInteger():
		v, ok := idx.idToInt[id]
		if !ok {
			return Value{}, false
		}
		return Value{Kind: idx.stat.FieldKind, Int: v}, true
	case idx.stat.FieldKind.IsFloat():
		v, ok := idx.idToF64[id]
		if !ok {
			return Value{}, false
		}
		return Value{Kind: idx.stat.FieldKind, F64: v}, true
	default:
		v, ok := idx.idToStr[id]
		if !ok {
			return Value{}, false
		}
		return Value{Kind: idx.stat.FieldKind, Str: []byte(v)}, true
	}
}

func (idx *OrderedIndexer) TryGetVector(ids []uint64) ([]Value, bool) {
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
