// Package vtab implements the query adapter of spec.md §4.7 as a
// modernc.org/sqlite/vtab.Module: best_index maps to BestIndex, filter to
// Filter/cursor advance, column to the collection's field-materialization
// fast path. Adapted from the upstream overlay's refsvtab module, generalized
// from a fixed two-column schema to an arbitrary collection schema.
package vtab

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"modernc.org/sqlite/vtab"

	"github.com/embeddb/embeddb/internal/bitmap"
	"github.com/embeddb/embeddb/internal/collection"
	"github.com/embeddb/embeddb/internal/docschema"
	"github.com/embeddb/embeddb/internal/index"
)

const moduleName = "embeddb"

var (
	once      sync.Once
	singleton *Module
	initErr   error
)

// Module is the process-wide vtab.Module singleton (modernc.org/sqlite
// registers modules at the driver level, not per-DB), fanning out to
// whichever collection a virtual table's USING clause names.
type Module struct {
	mu          sync.RWMutex
	collections map[string]*collection.Collection
}

// Register registers the embeddb module with the global SQLite driver. Safe
// to call multiple times; only the first call registers.
func Register() (*Module, error) {
	once.Do(func() {
		singleton = &Module{collections: make(map[string]*collection.Collection)}
		if err := vtab.RegisterModule(nil, moduleName, singleton); err != nil {
			initErr = fmt.Errorf("vtab: register module: %w", err)
			singleton = nil
		}
	})
	return singleton, initErr
}

// RegisterCollection makes c reachable as CREATE VIRTUAL TABLE t USING
// embeddb(id) for the given id.
func (m *Module) RegisterCollection(id string, c *collection.Collection) {
	m.mu.Lock()
	m.collections[id] = c
	m.mu.Unlock()
}

// UnregisterCollection removes a collection from the registry.
func (m *Module) UnregisterCollection(id string) {
	m.mu.Lock()
	delete(m.collections, id)
	m.mu.Unlock()
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("embeddb: missing collection ID argument (expected USING embeddb(id))")
	}
	id := args[3]

	m.mu.RLock()
	c, ok := m.collections[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("embeddb: unknown collection ID %q", id)
	}

	cols := topLevelColumns(c.Schema())
	if err := ctx.Declare(declareSQL(cols)); err != nil {
		return nil, err
	}
	return &table{collection: c, cols: cols}, nil
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

// column describes one SQL-visible column, mirroring one top-level,
// non-subdocument schema field.
type column struct {
	name string
	kind docschema.FieldKind
}

// topLevelColumns flattens the schema's top-level scalar fields into SQL
// columns. Subdocument fields are not exposed as virtual-table columns — the
// query boundary operates on flat rows, per spec.md §6.
func topLevelColumns(schema *docschema.Schema) []column {
	var cols []column
	for _, f := range schema.Fields {
		if f.Kind == docschema.Subdocument {
			continue
		}
		cols = append(cols, column{name: f.Name, kind: f.Kind})
	}
	return cols
}

func sqlType(k docschema.FieldKind) string {
	switch {
	case k.IsInteger():
		return "INTEGER"
	case k.IsFloat():
		return "DOUBLE"
	case k == docschema.Blob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func declareSQL(cols []column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s %s", c.name, sqlType(c.kind))
	}
	return "CREATE TABLE x(" + strings.Join(parts, ", ") + ")"
}

// ---------------------------------------------------------------------------
// vtab.Table
// ---------------------------------------------------------------------------

type table struct {
	collection *collection.Collection
	cols       []column
}

// planConstraint is one (column, operator) pair resolved at BestIndex time,
// serialized into idxStr so Filter can reconstruct the exact Constraint list
// without re-deriving which arguments map to which column.
type planConstraint struct {
	column string
	op     index.Operator
}

func vtabOpToOperator(op vtab.Op) (index.Operator, bool) {
	switch op {
	case vtab.OpEQ:
		return index.OpEQ, true
	case vtab.OpLT:
		return index.OpLT, true
	case vtab.OpLE:
		return index.OpLE, true
	case vtab.OpGT:
		return index.OpGT, true
	case vtab.OpGE:
		return index.OpGE, true
	default:
		return 0, false
	}
}

// BestIndex pushes down every constraint on an indexed column down to the
// collection's index manager (try_get_best_index), leaving everything else
// for SQLite to recheck. The plan is encoded as "col:op|col:op|..." matching
// ArgIndex order, so Filter can rebuild the Constraint list directly from
// vals without re-scanning info.
func (t *table) BestIndex(info *vtab.IndexInfo) error {
	var plan []planConstraint
	argIdx := 0

	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Column < 0 || c.Column >= len(t.cols) {
			continue
		}
		op, ok := vtabOpToOperator(c.Op)
		if !ok {
			continue
		}
		colName := t.cols[c.Column].name
		if _, found := t.collection.TryGetBestIndex(colName, op); !found {
			continue
		}
		c.ArgIndex = argIdx + 1
		c.Omit = true
		plan = append(plan, planConstraint{column: colName, op: op})
		argIdx++
	}

	if len(plan) == 0 {
		info.IdxNum = 0
		info.EstimatedCost = 1e6
		info.EstimatedRows = 1e6
		return nil
	}

	parts := make([]string, len(plan))
	for i, p := range plan {
		parts[i] = p.column + ":" + strconv.Itoa(int(p.op))
	}
	info.IdxStr = strings.Join(parts, "|")
	info.IdxNum = 1
	info.EstimatedCost = float64(len(plan))
	info.EstimatedRows = 10
	return nil
}

func (t *table) Open() (vtab.Cursor, error) {
	return &cursor{table: t}, nil
}

func (t *table) Disconnect() error { return nil }
func (t *table) Destroy() error    { return nil }

func decodePlan(idxStr string) ([]planConstraint, error) {
	if idxStr == "" {
		return nil, nil
	}
	segments := strings.Split(idxStr, "|")
	plan := make([]planConstraint, len(segments))
	for i, seg := range segments {
		parts := strings.SplitN(seg, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("embeddb: malformed plan segment %q", seg)
		}
		opVal, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("embeddb: malformed plan operator %q: %w", parts[1], err)
		}
		plan[i] = planConstraint{column: parts[0], op: index.Operator(opVal)}
	}
	return plan, nil
}

func valueToConstraint(colName string, op index.Operator, kind docschema.FieldKind, v vtab.Value) (index.Constraint, error) {
	switch val := v.(type) {
	case int64:
		return index.Constraint{Column: colName, Op: op, OperandType: index.OperandInteger, IntVal: val}, nil
	case float64:
		return index.Constraint{Column: colName, Op: op, OperandType: index.OperandDouble, DoubleVal: val}, nil
	case string:
		return index.Constraint{Column: colName, Op: op, OperandType: index.OperandString, StrVal: []byte(val)}, nil
	case []byte:
		return index.Constraint{Column: colName, Op: op, OperandType: index.OperandBlob, StrVal: val}, nil
	default:
		return index.Constraint{}, fmt.Errorf("embeddb: unsupported operand type %T for column %q", v, colName)
	}
}

// ---------------------------------------------------------------------------
// vtab.Cursor
// ---------------------------------------------------------------------------

type cursor struct {
	table *table

	ids []uint64
	pos int
}

func (c *cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	if idxNum == 0 {
		bm, err := c.table.collection.Filter(nil)
		if err != nil {
			return err
		}
		c.loadFrom(bm)
		return nil
	}

	plan, err := decodePlan(idxStr)
	if err != nil {
		return err
	}
	if len(plan) != len(vals) {
		return fmt.Errorf("embeddb: plan/argument count mismatch (%d vs %d)", len(plan), len(vals))
	}

	constraints := make([]index.Constraint, len(plan))
	for i, p := range plan {
		var kind docschema.FieldKind
		for _, col := range c.table.cols {
			if col.name == p.column {
				kind = col.kind
			}
		}
		cons, err := valueToConstraint(p.column, p.op, kind, vals[i])
		if err != nil {
			return err
		}
		constraints[i] = cons
	}

	bm, err := c.table.collection.Filter(constraints)
	if err != nil {
		return err
	}
	c.loadFrom(bm)
	return nil
}

func (c *cursor) loadFrom(bm *bitmap.Bitmap) {
	c.ids = bm.ToSlice()
	c.pos = 0
}

func (c *cursor) Next() error {
	c.pos++
	return nil
}

func (c *cursor) Eof() bool {
	return c.pos >= len(c.ids)
}

func (c *cursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.ids) {
		return nil, nil
	}
	if col < 0 || col >= len(c.table.cols) {
		return nil, nil
	}
	id := c.ids[c.pos]
	colDef := c.table.cols[col]
	switch {
	case colDef.kind.IsInteger():
		return c.table.collection.GetFieldAsInt(id, colDef.name, colDef.name)
	case colDef.kind.IsFloat():
		return c.table.collection.GetFieldAsDouble(id, colDef.name, colDef.name)
	default:
		v, err := c.table.collection.GetFieldAsString(id, colDef.name, colDef.name)
		if err != nil {
			return nil, err
		}
		if colDef.kind == docschema.Blob {
			return v, nil
		}
		return string(v), nil
	}
}

func (c *cursor) Rowid() (int64, error) {
	if c.pos >= len(c.ids) {
		return 0, nil
	}
	return int64(c.ids[c.pos]), nil
}

func (c *cursor) Close() error {
	c.ids = nil
	return nil
}
