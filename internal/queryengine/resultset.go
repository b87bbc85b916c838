// Package queryengine implements spec.md §6's query boundary: a single
// execute_select(sql) → ResultSet call, backed by database/sql against a
// modernc.org/sqlite connection with the embeddb vtab module registered.
package queryengine

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/embeddb/embeddb/internal/collection"
	"github.com/embeddb/embeddb/internal/dbconfig"
	"github.com/embeddb/embeddb/internal/vtab"
)

// Engine owns one in-memory SQLite connection and the vtab module every
// registered collection is reachable through.
type Engine struct {
	db     *sql.DB
	module *vtab.Module
}

// Open starts a fresh in-memory SQLite connection with the embeddb module
// registered. cfg.SQLiteBusyRetries and cfg.SQLiteBusyBackoffMs set the
// connection's busy_timeout: modernc.org/sqlite retries SQLITE_BUSY
// internally up to that total wait before surfacing the error, so callers
// never see spurious busy errors from the vtab layer's own locking.
func Open(cfg dbconfig.Config) (*Engine, error) {
	module, err := vtab.Register()
	if err != nil {
		return nil, fmt.Errorf("queryengine: %w", err)
	}
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("queryengine: open sqlite: %w", err)
	}
	busyTimeoutMs := cfg.SQLiteBusyRetries * cfg.SQLiteBusyBackoffMs
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queryengine: set busy_timeout: %w", err)
	}
	return &Engine{db: db, module: module}, nil
}

// AttachCollection creates a virtual table named tableName backed by c, so
// SQL against tableName drives c's index manager. The module registration
// key is a fresh UUID rather than tableName or the collection's own name, so
// attaching the same collection under several table names within one
// Engine never collides in the module's registry.
func (e *Engine) AttachCollection(_, tableName string, c *collection.Collection) error {
	regID := uuid.NewString()
	e.module.RegisterCollection(regID, c)
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE %s USING embeddb(%s)", tableName, regID)
	if _, err := e.db.Exec(stmt); err != nil {
		e.module.UnregisterCollection(regID)
		return fmt.Errorf("queryengine: create virtual table %s: %w", tableName, err)
	}
	return nil
}

// ExecuteSelect runs sql and returns a cursor over its rows.
func (e *Engine) ExecuteSelect(sqlText string, args ...any) (*ResultSet, error) {
	rows, err := e.db.Query(sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("queryengine: execute_select: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("queryengine: columns: %w", err)
	}
	idx := make(map[string]int, len(cols))
	for i, name := range cols {
		idx[name] = i
	}
	return &ResultSet{rows: rows, colNames: cols, colIndex: idx, scratch: make([]any, len(cols))}, nil
}

// Close releases the underlying SQLite connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// ResultSet is the cursor spec.md §6 exposes to the query caller:
// next/get_int64/get_double/get_string/column_index over *sql.Rows.
type ResultSet struct {
	rows     *sql.Rows
	colNames []string
	colIndex map[string]int
	scratch  []any
	current  []any
}

// ColumnNames returns the result set's column names in positional order.
func (r *ResultSet) ColumnNames() []string { return r.colNames }

// GetValue returns the current row's raw driver value at col, for callers
// that just want to display or re-marshal a row without knowing its type in
// advance.
func (r *ResultSet) GetValue(col int) any { return r.current[col] }

// Next advances to the next row, returning false when exhausted.
func (r *ResultSet) Next() (bool, error) {
	if !r.rows.Next() {
		return false, r.rows.Err()
	}
	ptrs := make([]any, len(r.scratch))
	for i := range ptrs {
		ptrs[i] = &r.scratch[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return false, fmt.Errorf("queryengine: scan row: %w", err)
	}
	r.current = r.scratch
	return true, nil
}

// ColumnIndex returns the zero-based index of a column by name, or -1.
func (r *ResultSet) ColumnIndex(name string) int {
	if i, ok := r.colIndex[name]; ok {
		return i
	}
	return -1
}

// GetInt64 reads column col of the current row as int64.
func (r *ResultSet) GetInt64(col int) (int64, error) {
	v := r.current[col]
	switch t := v.(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("queryengine: column %d is not numeric (%T)", col, v)
	}
}

// GetDouble reads column col of the current row as float64.
func (r *ResultSet) GetDouble(col int) (float64, error) {
	v := r.current[col]
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("queryengine: column %d is not numeric (%T)", col, v)
	}
}

// GetString reads column col of the current row as a string.
func (r *ResultSet) GetString(col int) (string, error) {
	v := r.current[col]
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	default:
		return "", fmt.Errorf("queryengine: column %d is not text (%T)", col, v)
	}
}

// Close releases the underlying rows.
func (r *ResultSet) Close() error {
	return r.rows.Close()
}
