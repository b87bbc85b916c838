package index

import (
	"github.com/embeddb/embeddb/internal/bitmap"
	"github.com/embeddb/embeddb/internal/dberr"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/document"
)

// Info describes an index to register: its name, the variant to construct,
// the column it covers, and (for ordered indexes) its declared sort
// preference — used only as a best-index tie-break, never to reorder an
// existing indexer's keys.
type Info struct {
	Name       string
	Kind       Kind
	ColumnPath string
	Ascending  bool
}

// IDAllocator hands out contiguous blocks of the collection's monotonic
// document identifier space. The concrete generator is owned by
// internal/collection; the manager only consumes it, per spec.md §4.5
// ("index_documents(id_generator, docs) → start_id").
type IDAllocator interface {
	Allocate(n int) uint64
}

// Manager owns every indexer for a collection and routes ingestion and
// queries to them (spec.md §4.5).
type Manager struct {
	// byColumn preserves registration order per column — best-index
	// selection is a deterministic first-match scan over this order.
	byColumn map[string][]Indexer
	order    []string
}

// NewManager returns an empty index manager.
func NewManager() *Manager {
	return &Manager{byColumn: make(map[string][]Indexer)}
}

// Register constructs the concrete indexer variant for (info.Kind,
// fieldKind) and stores it under info.ColumnPath.
func (m *Manager) Register(info Info, fieldKind docschema.FieldKind) error {
	var idx Indexer
	var err error
	switch info.Kind {
	case Equality:
		idx, err = NewEqualityIndexer(info.Name, info.ColumnPath, fieldKind)
	case Ordered:
		idx, err = NewOrderedIndexer(info.Name, info.ColumnPath, fieldKind, info.Ascending)
	case Vector:
		idx, err = NewVectorIndexer(info.Name, info.ColumnPath, fieldKind)
	default:
		return dberr.Newf(dberr.InvalidArgument, "unknown index kind %d", info.Kind)
	}
	if err != nil {
		return err
	}
	if _, ok := m.byColumn[info.ColumnPath]; !ok {
		m.order = append(m.order, info.ColumnPath)
	}
	m.byColumn[info.ColumnPath] = append(m.byColumn[info.ColumnPath], idx)
	return nil
}

// Indexed reports whether column has at least one registered indexer.
func (m *Manager) Indexed(column string) bool {
	return len(m.byColumn[column]) > 0
}

// ValidateForIndexing is the ingestion pre-commit check: every indexer
// validates every document. If it returns nil, IndexDocuments on the same
// batch must succeed (spec.md P8).
func (m *Manager) ValidateForIndexing(docs []*document.Document) error {
	for _, column := range m.order {
		for _, idx := range m.byColumn[column] {
			for _, doc := range docs {
				if err := idx.ValidateForInsert(doc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// IndexDocuments allocates a contiguous identifier block from gen and inserts
// every document into every applicable indexer, returning the first
// allocated identifier.
func (m *Manager) IndexDocuments(gen IDAllocator, docs []*document.Document) (uint64, error) {
	start := gen.Allocate(len(docs))
	for _, column := range m.order {
		for _, idx := range m.byColumn[column] {
			for i, doc := range docs {
				if err := idx.Insert(start+uint64(i), doc); err != nil {
					// Per spec.md §5/§7 this should be unreachable if
					// ValidateForIndexing just returned nil for the same
					// batch; treat it as a fatal index-corruption signal
					// rather than silently leaving a partial insert.
					return start, dberr.Wrap(dberr.IndexCorrupted, "insert failed after successful validation", err)
				}
			}
		}
	}
	return start, nil
}

// TryGetBestIndex selects the lowest-cost indexer supporting op on column:
// equality-hash preferred for EQ, ordered for range ops, ties broken by
// ascending sort preference, deterministically in registration order.
func (m *Manager) TryGetBestIndex(column string, op Operator) (Stat, bool) {
	best := m.pickIndexer(column, op)
	if best == nil {
		return Stat{}, false
	}
	return best.Stats(), true
}

func (m *Manager) pickIndexer(column string, op Operator) Indexer {
	indexers := m.byColumn[column]
	var best Indexer
	for _, idx := range indexers {
		stat := idx.Stats()
		if !stat.Supports(op) {
			continue
		}
		if best == nil {
			best = idx
			continue
		}
		bestStat := best.Stats()
		if op == OpEQ && bestStat.Kind != Equality && stat.Kind == Equality {
			best = idx
			continue
		}
		if bestStat.Kind == stat.Kind && !bestStat.Ascending && stat.Ascending {
			best = idx
		}
	}
	return best
}

// Filter evaluates constraints and combines them: adjacent constraints on
// the same column with compatible opposite-direction bounds fold into a
// single FilterRange call (spec.md P5); everything else is evaluated
// independently and the results are ANDed together. Per spec.md's resolved
// Open Question, bitmaps returned for a *single* constraint are already
// disjoint-partitioned and combined with OR internally by the indexer; this
// function only ever ANDs across *distinct* constraints.
func (m *Manager) Filter(constraints []Constraint) (*bitmap.Bitmap, error) {
	if len(constraints) == 0 {
		return bitmap.New(), nil
	}

	groups := foldRanges(constraints)

	var results []*bitmap.Bitmap
	for _, g := range groups {
		var bm *bitmap.Bitmap
		var err error
		if g.isRange {
			idx := m.pickIndexer(g.lower.Column, OpGE)
			if idx == nil {
				return nil, dberr.Newf(dberr.UnsupportedOperator, "no indexer for column %s supports range queries", g.lower.Column)
			}
			bm, err = idx.FilterRange(g.lower, g.upper)
		} else {
			idx := m.pickIndexer(g.single.Column, g.single.Op)
			if idx == nil {
				return nil, dberr.Newf(dberr.UnsupportedOperator, "no indexer for column %s supports %s", g.single.Column, g.single.Op)
			}
			bm, err = idx.Filter(g.single)
		}
		if err != nil {
			return nil, err
		}
		if bm.IsEmpty() {
			return bitmap.New(), nil
		}
		results = append(results, bm)
	}

	out := results[0]
	if len(results) > 1 {
		out = out.And(results[1:]...)
	}
	return out, nil
}

type constraintGroup struct {
	isRange bool
	lower   Constraint
	upper   Constraint
	single  Constraint
}

// foldRanges scans constraints for adjacent pairs on the same column whose
// operators form a compatible lower/upper bound pair (spec.md P5: "col > a
// AND col < b" folds into one filter_range call), leaving everything else as
// single-constraint groups.
func foldRanges(constraints []Constraint) []constraintGroup {
	used := make([]bool, len(constraints))
	var groups []constraintGroup

	for i := range constraints {
		if used[i] {
			continue
		}
		ci := constraints[i]
		if ci.Op.IsLowerBound() || ci.Op.IsUpperBound() {
			for j := i + 1; j < len(constraints); j++ {
				if used[j] || constraints[j].Column != ci.Column {
					continue
				}
				cj := constraints[j]
				if ci.Op.IsLowerBound() && cj.Op.IsUpperBound() {
					groups = append(groups, constraintGroup{isRange: true, lower: ci, upper: cj})
					used[i], used[j] = true, true
					break
				}
				if ci.Op.IsUpperBound() && cj.Op.IsLowerBound() {
					groups = append(groups, constraintGroup{isRange: true, lower: cj, upper: ci})
					used[i], used[j] = true, true
					break
				}
			}
		}
		if !used[i] {
			groups = append(groups, constraintGroup{single: ci})
			used[i] = true
		}
	}
	return groups
}

// TryGetIntegerValue is the O(1) fast path for reading an integer field
// without blob decode, if any indexer on column offers TryGetValue.
func (m *Manager) TryGetIntegerValue(id uint64, column string) (int64, bool) {
	for _, idx := range m.byColumn[column] {
		if v, ok := idx.TryGetValue(id); ok {
			return v.Int, true
		}
	}
	return 0, false
}

// TryGetDoubleValue is the double-valued counterpart of TryGetIntegerValue.
func (m *Manager) TryGetDoubleValue(id uint64, column string) (float64, bool) {
	for _, idx := range m.byColumn[column] {
		if v, ok := idx.TryGetValue(id); ok {
			return v.F64, true
		}
	}
	return 0, false
}

// TryGetStringValue is the string-valued counterpart of TryGetIntegerValue.
func (m *Manager) TryGetStringValue(id uint64, column string) ([]byte, bool) {
	for _, idx := range m.byColumn[column] {
		if v, ok := idx.TryGetValue(id); ok {
			return v.Str, true
		}
	}
	return nil, false
}

// TryGetIntegerVector is the batched counterpart of TryGetIntegerValue.
func (m *Manager) TryGetIntegerVector(ids []uint64, column string) ([]int64, bool) {
	for _, idx := range m.byColumn[column] {
		vals, ok := idx.TryGetVector(ids)
		if !ok {
			continue
		}
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = v.Int
		}
		return out, true
	}
	return nil, false
}

// TryGetDoubleVector is the batched counterpart of TryGetDoubleValue.
func (m *Manager) TryGetDoubleVector(ids []uint64, column string) ([]float64, bool) {
	for _, idx := range m.byColumn[column] {
		vals, ok := idx.TryGetVector(ids)
		if !ok {
			continue
		}
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i] = v.F64
		}
		return out, true
	}
	return nil, false
}
