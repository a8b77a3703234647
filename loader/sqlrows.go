package loader

import (
	"database/sql"
	"fmt"
)

// SQLRows adapts database/sql rows. Values are scanned into driver values
// and converted by the typed accessors.
type SQLRows struct {
	rows *sql.Rows
	vals []any
	ptrs []any
	err  error
}

// NewSQLRows wraps rows. The caller must not use rows afterwards.
func NewSQLRows(rows *sql.Rows) (*SQLRows, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("loader: columns: %w", err)
	}
	r := &SQLRows{rows: rows, vals: make([]any, len(cols)), ptrs: make([]any, len(cols))}
	for i := range r.vals {
		r.ptrs[i] = &r.vals[i]
	}
	return r, nil
}

func (r *SQLRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	if err := r.rows.Scan(r.ptrs...); err != nil {
		r.err = fmt.Errorf("loader: scan: %w", err)
		return false
	}
	return true
}

func (r *SQLRows) Int(i int) (int64, bool)      { return asInt(r.vals[i]) }
func (r *SQLRows) Double(i int) (float64, bool) { return asDouble(r.vals[i]) }
func (r *SQLRows) Object(i int) (any, bool)     { return asObject(r.vals[i]) }

func (r *SQLRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *SQLRows) Close() error { return r.rows.Close() }
