package sqlfold

import "fmt"

// Row is one result row, addressable by column name and by position.
// It replaces duck-typed row access with an explicit capability contract:
// lookup by name, lookup by position, and a presence check.
type Row interface {
	// Columns returns the column names in result order.
	Columns() []string
	// Has reports whether the named column is present in the row.
	Has(name string) bool
	// Get returns the value of the named column, or nil if absent.
	Get(name string) any
	// At returns the value at position pos, or nil if out of range.
	At(pos int) any
}

// Rows is the minimal cursor contract the mappers consume: a finite,
// single-pass sequence of Row. Mappers walk it forward exactly once and
// never re-read a row. Err reports any error the source hit while
// producing rows and is checked after iteration.
type Rows interface {
	Next() bool
	Row() Row
	Err() error
}

// memRow is the in-memory Row used by RowsOf and the cursor adapters.
type memRow struct {
	cols  []string
	index map[string]int
	vals  []any
}

func newMemRow(cols []string, index map[string]int, vals []any) *memRow {
	return &memRow{cols: cols, index: index, vals: vals}
}

func columnIndex(cols []string) map[string]int {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	return index
}

func (r *memRow) Columns() []string { return r.cols }

func (r *memRow) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

func (r *memRow) Get(name string) any {
	i, ok := r.index[name]
	if !ok {
		return nil
	}
	return r.vals[i]
}

func (r *memRow) At(pos int) any {
	if pos < 0 || pos >= len(r.vals) {
		return nil
	}
	return r.vals[pos]
}

// sliceRows is a static in-memory Rows source.
type sliceRows struct {
	cols    []string
	index   map[string]int
	records [][]any
	pos     int
}

// RowsOf returns a static Rows source over the given records, mainly useful
// in tests and for mapping rows that were already fetched elsewhere.
func RowsOf(cols []string, records ...[]any) Rows {
	return &sliceRows{cols: cols, index: columnIndex(cols), records: records, pos: -1}
}

func (s *sliceRows) Next() bool {
	if s.pos+1 >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceRows) Row() Row {
	return newMemRow(s.cols, s.index, s.records[s.pos])
}

func (s *sliceRows) Err() error { return nil }

// --------------------------------
// Mapper strategies
// --------------------------------

// RecordCombiningMapper folds rows into one or more combined records. Rows
// carrying the schema's identity are grouped in first-seen identity order
// and merged per the schema's field roles; rows without an identity each
// become an independent singleton record in arrival order. A nil schema
// combines with the default schema: identity column "id", every field plain.
type RecordCombiningMapper struct {
	schema *Schema
}

// NewRecordCombiningMapper returns a combining mapper for the given schema;
// schema may be nil for the default plain schema.
func NewRecordCombiningMapper(schema *Schema) *RecordCombiningMapper {
	return &RecordCombiningMapper{schema: schema}
}

// Map consumes rows and returns the ordered combined records.
func (m *RecordCombiningMapper) Map(rows Rows) ([]Record, error) {
	c, err := newCombiner(m.schema)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		if err := c.add(rows.Row()); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c.results(), nil
}

// SingleRowMapper maps only the first row into one record and returns
// immediately. It deliberately does NOT consume later rows, even when they
// share the first row's identity, so aggregate fields hold the first row's
// contribution only; use RecordCombiningMapper when later rows must merge.
// Returns nil when the row sequence is empty.
type SingleRowMapper struct {
	schema *Schema
}

// NewSingleRowMapper returns a single-record mapper for the given schema;
// schema may be nil for the default plain schema.
func NewSingleRowMapper(schema *Schema) *SingleRowMapper {
	return &SingleRowMapper{schema: schema}
}

// Map returns the first row mapped through the schema, or nil on no rows.
func (m *SingleRowMapper) Map(rows Rows) (Record, error) {
	c, err := newCombiner(m.schema)
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	if err := c.add(rows.Row()); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c.results()[0], nil
}

// SingleColumnMapper collects the first column of every row, in row order.
type SingleColumnMapper struct{}

// Map returns the list of first-column values.
func (SingleColumnMapper) Map(rows Rows) ([]any, error) {
	var out []any
	for rows.Next() {
		out = append(out, rows.Row().At(0))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SingleRowAndColumnMapper returns the first column of the first row, or nil
// when there are no rows. It stops after the first row.
type SingleRowAndColumnMapper struct{}

// Map returns the single scalar result.
func (SingleRowAndColumnMapper) Map(rows Rows) (any, error) {
	if !rows.Next() {
		return nil, rows.Err()
	}
	return rows.Row().At(0), rows.Err()
}

// CountMapper is an alias for SingleRowAndColumnMapper, handy for reading
// the result of a COUNT query.
type CountMapper = SingleRowAndColumnMapper

// KeyValueMapper builds a map from a designated key column to a designated
// value column. Columns are designated by name or, via NewKeyValueMapperAt,
// by position. With multiplePerKey the values for one key accumulate into
// an ordered []any in row order; otherwise the last row for a key wins.
type KeyValueMapper struct {
	keyColumn   string
	valueColumn string
	keyPos      int
	valuePos    int
	byPosition  bool
	multiple    bool
}

// NewKeyValueMapper returns a key/value mapper. Configuring the same column
// as both key and value is ErrMapperConfig.
func NewKeyValueMapper(keyColumn, valueColumn string, multiplePerKey bool) (*KeyValueMapper, error) {
	if keyColumn == valueColumn {
		return nil, fmt.Errorf("%w: key and value columns cannot be the same (%q)", ErrMapperConfig, keyColumn)
	}
	return &KeyValueMapper{keyColumn: keyColumn, valueColumn: valueColumn, multiple: multiplePerKey}, nil
}

// NewKeyValueMapperAt returns a key/value mapper addressing its columns by
// result position, for queries whose column names are not known up front.
// Positions must be non-negative and distinct.
func NewKeyValueMapperAt(keyPos, valuePos int, multiplePerKey bool) (*KeyValueMapper, error) {
	if keyPos < 0 || valuePos < 0 {
		return nil, fmt.Errorf("%w: column positions cannot be negative (%d, %d)", ErrMapperConfig, keyPos, valuePos)
	}
	if keyPos == valuePos {
		return nil, fmt.Errorf("%w: key and value positions cannot be the same (%d)", ErrMapperConfig, keyPos)
	}
	return &KeyValueMapper{keyPos: keyPos, valuePos: valuePos, byPosition: true, multiple: multiplePerKey}, nil
}

// Map consumes rows and returns the key/value map. In multiple-values mode
// every value is an ordered []any.
func (m *KeyValueMapper) Map(rows Rows) (map[any]any, error) {
	out := make(map[any]any)
	for rows.Next() {
		row := rows.Row()
		var key, value any
		if m.byPosition {
			key, value = row.At(m.keyPos), row.At(m.valuePos)
		} else {
			key, value = row.Get(m.keyColumn), row.Get(m.valueColumn)
		}
		if m.multiple {
			list, _ := out[key].([]any)
			out[key] = append(list, value)
		} else {
			out[key] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
