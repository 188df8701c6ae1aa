package sqlfold

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Record is a combined result record: field name to aggregated value.
// List, set and csv fields hold []any (sets are deduplicated, both keep
// arrival order), dict fields hold map[any]any, json fields hold the parsed
// structure, and everything else holds the raw column value. The caller owns
// the record once a mapper returns it.
type Record map[string]any

// Schema statically declares the field roles the combiner applies. Each
// field carries exactly one role; every column not named here is plain.
// Identity names the column (or ordered column tuple) whose values decide
// which rows merge into the same record; it defaults to "id".
//
// Dict fields are declared in two halves, mirroring the flat row layout
// they fold: DictKeys maps a key column to the dict field it fills, and
// DictValues maps that dict field to the column supplying the values. The
// value column never appears in the combined record; it is folded into the
// dict. Set members and dict keys should be comparable values.
type Schema struct {
	Identity   []string
	Lists      []string
	Sets       []string
	CSVLists   []string
	JSONFields []string
	DictKeys   map[string]string
	DictValues map[string]string
}

// fieldRole tags the combining strategy for one column.
type fieldRole uint8

const (
	rolePlain fieldRole = iota
	roleList
	roleSet
	roleCSV
	roleJSON
	roleDictKey
	roleDictValue
)

// schemaPlan is the compiled, immutable form of a Schema.
type schemaPlan struct {
	identity   []string
	roles      map[string]fieldRole
	dictKeys   map[string]string // key column -> dict field
	dictValues map[string]string // dict field -> value column
	listSeeds  []string          // list/set/csv fields, seeded empty
	dictSeeds  []string          // dict fields, seeded empty
}

// compile validates the schema and produces its plan. A nil schema compiles
// to the default: identity "id", every column plain.
func (s *Schema) compile() (*schemaPlan, error) {
	p := &schemaPlan{
		identity: []string{"id"},
		roles:    make(map[string]fieldRole),
	}
	if s == nil {
		return p, nil
	}
	if len(s.Identity) > 0 {
		p.identity = s.Identity
	}

	assign := func(field string, role fieldRole) error {
		if prev, dup := p.roles[field]; dup && prev != role {
			return fmt.Errorf("%w: field %q declared with more than one role", ErrSchemaConfig, field)
		}
		p.roles[field] = role
		return nil
	}
	for _, f := range s.Lists {
		if err := assign(f, roleList); err != nil {
			return nil, err
		}
		p.listSeeds = append(p.listSeeds, f)
	}
	for _, f := range s.Sets {
		if err := assign(f, roleSet); err != nil {
			return nil, err
		}
		p.listSeeds = append(p.listSeeds, f)
	}
	for _, f := range s.CSVLists {
		if err := assign(f, roleCSV); err != nil {
			return nil, err
		}
		p.listSeeds = append(p.listSeeds, f)
	}
	for _, f := range s.JSONFields {
		if err := assign(f, roleJSON); err != nil {
			return nil, err
		}
	}
	for col, field := range s.DictKeys {
		if _, ok := s.DictValues[field]; !ok {
			return nil, fmt.Errorf("%w: dict field %q has no value-column mapping", ErrSchemaConfig, field)
		}
		if err := assign(col, roleDictKey); err != nil {
			return nil, err
		}
	}
	for field, col := range s.DictValues {
		if err := assign(col, roleDictValue); err != nil {
			return nil, err
		}
		p.dictSeeds = append(p.dictSeeds, field)
	}
	p.dictKeys = s.DictKeys
	p.dictValues = s.DictValues
	return p, nil
}

// combiner is the per-call merge table: an ordered map from identity to the
// in-progress record. It is owned by a single Map call and never shared.
type combiner struct {
	plan    *schemaPlan
	order   []string
	records map[string]Record
	anon    int
}

func newCombiner(s *Schema) (*combiner, error) {
	plan, err := s.compile()
	if err != nil {
		return nil, err
	}
	return &combiner{plan: plan, records: make(map[string]Record)}, nil
}

// add folds one row into the merge table.
func (c *combiner) add(row Row) error {
	key, hasIdentity := c.identityKey(row)
	if !hasIdentity {
		// Identity-less rows never merge; each one is its own record.
		key = "\x00anon:" + strconv.Itoa(c.anon)
		c.anon++
	}
	rec, exists := c.records[key]
	if !exists {
		rec = c.seedRecord()
		c.records[key] = rec
		c.order = append(c.order, key)
	}
	return c.merge(rec, row, !exists)
}

// results returns the combined records in first-seen identity order.
func (c *combiner) results() []Record {
	out := make([]Record, len(c.order))
	for i, key := range c.order {
		out[i] = c.records[key]
	}
	return out
}

// identityKey derives the merge key from the row's identity columns. A row
// missing any identity column has no identity. Each component is encoded
// with its dynamic type and length, so int 1 and "1" get distinct keys and
// a component value cannot bleed into its neighbor.
func (c *combiner) identityKey(row Row) (string, bool) {
	var b strings.Builder
	for _, col := range c.plan.identity {
		if !row.Has(col) {
			return "", false
		}
		v := row.Get(col)
		s := fmt.Sprintf("%v", v)
		fmt.Fprintf(&b, "%T:%d:%s\x1f", v, len(s), s)
	}
	return b.String(), true
}

// seedRecord starts a record with every declared aggregate field holding its
// empty container, so combined records have a stable shape.
func (c *combiner) seedRecord() Record {
	rec := make(Record)
	for _, f := range c.plan.listSeeds {
		rec[f] = []any{}
	}
	for _, f := range c.plan.dictSeeds {
		rec[f] = make(map[any]any)
	}
	return rec
}

// merge applies one row to rec. Aggregate fields accumulate on every row,
// csv fields included; json fields decode on the record's first row only; a
// plain field is fixed by the first row that carries its column and never
// overwritten.
func (c *combiner) merge(rec Record, row Row, first bool) error {
	for _, col := range row.Columns() {
		switch c.plan.roles[col] {
		case roleList:
			if v := row.Get(col); v != nil {
				rec[col] = append(rec[col].([]any), v)
			}

		case roleSet:
			if v := row.Get(col); v != nil {
				rec[col] = addToSet(rec[col].([]any), v)
			}

		case roleCSV:
			v := row.Get(col)
			if v == nil {
				continue
			}
			s, ok := stringValue(v)
			if !ok {
				return fmt.Errorf("%w: csv field %q holds %T, not a string", ErrFieldDecode, col, v)
			}
			if s == "" {
				continue
			}
			list := rec[col].([]any)
			for _, part := range strings.Split(s, ",") {
				list = append(list, part)
			}
			rec[col] = list

		case roleJSON:
			if !first {
				continue
			}
			v := row.Get(col)
			if v == nil {
				continue
			}
			raw, ok := bytesValue(v)
			if !ok {
				return fmt.Errorf("%w: json field %q holds %T, not JSON text", ErrFieldDecode, col, v)
			}
			var parsed any
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return fmt.Errorf("%w: json field %q: %v", ErrFieldDecode, col, err)
			}
			rec[col] = parsed

		case roleDictKey:
			field := c.plan.dictKeys[col]
			value := row.Get(c.plan.dictValues[field])
			if value == nil {
				continue
			}
			rec[field].(map[any]any)[row.Get(col)] = value

		case roleDictValue:
			// Folded into its dict by the roleDictKey branch; never
			// exposed as a standalone field.

		default:
			if _, fixed := rec[col]; !fixed {
				rec[col] = row.Get(col)
			}
		}
	}
	return nil
}

// addToSet appends v unless an equal member is already present, preserving
// arrival order.
func addToSet(set []any, v any) []any {
	for _, m := range set {
		if reflect.DeepEqual(m, v) {
			return set
		}
	}
	return append(set, v)
}

// stringValue widens string-like column values.
func stringValue(v any) (string, bool) {
	switch vv := v.(type) {
	case string:
		return vv, true
	case []byte:
		return string(vv), true
	default:
		return "", false
	}
}

// bytesValue widens values a JSON column can arrive as.
func bytesValue(v any) ([]byte, bool) {
	switch vv := v.(type) {
	case []byte:
		return vv, true
	case string:
		return []byte(vv), true
	case json.RawMessage:
		return vv, true
	default:
		return nil, false
	}
}
