package sqlfold

import "database/sql"

// sqlRows adapts *sql.Rows to the Rows contract.
type sqlRows struct {
	rs    *sql.Rows
	cols  []string
	index map[string]int
	cur   *memRow
	err   error
}

// FromSQL wraps a *sql.Rows result set as a Rows source. The caller keeps
// ownership of rs and closes it; mapping stops at the first scan error,
// reported through Err.
func FromSQL(rs *sql.Rows) Rows {
	return &sqlRows{rs: rs}
}

func (r *sqlRows) Next() bool {
	if r.err != nil {
		return false
	}
	if r.cols == nil {
		cols, err := r.rs.Columns()
		if err != nil {
			r.err = err
			return false
		}
		r.cols = cols
		r.index = columnIndex(cols)
	}
	if !r.rs.Next() {
		r.err = r.rs.Err()
		return false
	}
	vals := make([]any, len(r.cols))
	targets := make([]any, len(r.cols))
	for i := range vals {
		targets[i] = &vals[i]
	}
	if err := r.rs.Scan(targets...); err != nil {
		r.err = err
		return false
	}
	r.cur = newMemRow(r.cols, r.index, vals)
	return true
}

func (r *sqlRows) Row() Row { return r.cur }

func (r *sqlRows) Err() error { return r.err }
