package sqlfold

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakePgxRows implements pgx.Rows over in-memory values.
type fakePgxRows struct {
	fields []pgconn.FieldDescription
	values [][]any
	pos    int
	err    error
}

func (f *fakePgxRows) Close()                        {}
func (f *fakePgxRows) Err() error                    { return f.err }
func (f *fakePgxRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (f *fakePgxRows) Scan(dest ...any) error        { return nil }
func (f *fakePgxRows) RawValues() [][]byte           { return nil }
func (f *fakePgxRows) Conn() *pgx.Conn               { return nil }

func (f *fakePgxRows) FieldDescriptions() []pgconn.FieldDescription { return f.fields }

func (f *fakePgxRows) Next() bool {
	if f.pos >= len(f.values) {
		return false
	}
	f.pos++
	return true
}

func (f *fakePgxRows) Values() ([]any, error) {
	return f.values[f.pos-1], nil
}

func TestFromPgxCombinesRows(t *testing.T) {
	src := &fakePgxRows{
		fields: []pgconn.FieldDescription{{Name: "id"}, {Name: "tag"}},
		values: [][]any{
			{int64(1), "a"},
			{int64(1), "b"},
			{int64(2), "c"},
		},
	}
	schema := &Schema{Lists: []string{"tag"}}
	got, err := NewRecordCombiningMapper(schema).Map(FromPgx(src))
	require.NoError(t, err)
	require.Equal(t, []Record{
		{"id": int64(1), "tag": []any{"a", "b"}},
		{"id": int64(2), "tag": []any{"c"}},
	}, got)
}

func TestFromPgxKeyValue(t *testing.T) {
	src := &fakePgxRows{
		fields: []pgconn.FieldDescription{{Name: "name"}, {Name: "port"}},
		values: [][]any{
			{"db", int64(5432)},
			{"cache", int64(6379)},
		},
	}
	mapper, err := NewKeyValueMapper("name", "port", false)
	require.NoError(t, err)
	got, err := mapper.Map(FromPgx(src))
	require.NoError(t, err)
	require.Equal(t, map[any]any{"db": int64(5432), "cache": int64(6379)}, got)
}
