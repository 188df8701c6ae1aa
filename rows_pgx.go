package sqlfold

import "github.com/jackc/pgx/v5"

// pgxRows adapts pgx.Rows to the Rows contract.
type pgxRows struct {
	rs    pgx.Rows
	cols  []string
	index map[string]int
	cur   *memRow
	err   error
}

// FromPgx wraps a pgx.Rows result set as a Rows source, for callers on the
// native pgx interface instead of database/sql. The caller keeps ownership
// of rs and closes it.
func FromPgx(rs pgx.Rows) Rows {
	return &pgxRows{rs: rs}
}

func (r *pgxRows) Next() bool {
	if r.err != nil {
		return false
	}
	if r.cols == nil {
		fds := r.rs.FieldDescriptions()
		r.cols = make([]string, len(fds))
		for i, fd := range fds {
			r.cols[i] = fd.Name
		}
		r.index = columnIndex(r.cols)
	}
	if !r.rs.Next() {
		r.err = r.rs.Err()
		return false
	}
	vals, err := r.rs.Values()
	if err != nil {
		r.err = err
		return false
	}
	r.cur = newMemRow(r.cols, r.index, vals)
	return true
}

func (r *pgxRows) Row() Row { return r.cur }

func (r *pgxRows) Err() error { return r.err }
