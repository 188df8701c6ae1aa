package sqlfold

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowOf builds an in-memory Row for tests.
func rowOf(cols []string, vals ...any) Row {
	return newMemRow(cols, columnIndex(cols), vals)
}

// stubRows serves pre-built rows, which lets tests mix rows with different
// column sets in one sequence.
type stubRows struct {
	rows []Row
	pos  int
	err  error
}

func (s *stubRows) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *stubRows) Row() Row   { return s.rows[s.pos-1] }
func (s *stubRows) Err() error { return s.err }

// countingRows records how many rows were pulled from the source.
type countingRows struct {
	Rows
	nextCalls int
}

func (c *countingRows) Next() bool {
	c.nextCalls++
	return c.Rows.Next()
}

func TestRecordCombiningMapperMergesByIdentity(t *testing.T) {
	mapper := NewRecordCombiningMapper(nil)
	got, err := mapper.Map(&stubRows{rows: []Row{
		rowOf([]string{"id", "a"}, 1, 1),
		rowOf([]string{"id", "a"}, 2, 1),
		rowOf([]string{"id", "c"}, 1, 3),
	}})
	require.NoError(t, err)
	require.Equal(t, []Record{
		{"id": 1, "a": 1, "c": 3},
		{"id": 2, "a": 1},
	}, got)
}

func TestRecordCombiningMapperFirstRowWins(t *testing.T) {
	mapper := NewRecordCombiningMapper(nil)
	got, err := mapper.Map(&stubRows{rows: []Row{
		rowOf([]string{"id", "a"}, 1, "first"),
		rowOf([]string{"id", "a"}, 1, "second"),
	}})
	require.NoError(t, err)
	require.Equal(t, []Record{{"id": 1, "a": "first"}}, got)
}

func TestRecordCombiningMapperIdentitylessRows(t *testing.T) {
	mapper := NewRecordCombiningMapper(nil)
	got, err := mapper.Map(&stubRows{rows: []Row{
		rowOf([]string{"a"}, 1),
		rowOf([]string{"a"}, 1),
		rowOf([]string{"id", "a"}, 5, 2),
	}})
	require.NoError(t, err)
	// Identity-less rows never merge, even when equal.
	require.Equal(t, []Record{{"a": 1}, {"a": 1}, {"id": 5, "a": 2}}, got)
}

func TestRecordCombiningMapperEmpty(t *testing.T) {
	mapper := NewRecordCombiningMapper(nil)
	got, err := mapper.Map(RowsOf([]string{"id"}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSingleRowMapperFirstRowOnly(t *testing.T) {
	src := &countingRows{Rows: &stubRows{rows: []Row{
		rowOf([]string{"id", "a"}, 1, 1),
		rowOf([]string{"id", "a"}, 1, 2),
	}}}
	got, err := NewSingleRowMapper(nil).Map(src)
	require.NoError(t, err)
	require.Equal(t, Record{"id": 1, "a": 1}, got)
	// The second row is never consulted, even with the same identity.
	assert.Equal(t, 1, src.nextCalls)
}

func TestSingleRowMapperEmpty(t *testing.T) {
	got, err := NewSingleRowMapper(nil).Map(RowsOf([]string{"id"}))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSingleColumnMapper(t *testing.T) {
	got, err := SingleColumnMapper{}.Map(RowsOf([]string{"name", "age"},
		[]any{"alice", 30},
		[]any{"bob", 40},
	))
	require.NoError(t, err)
	require.Equal(t, []any{"alice", "bob"}, got)
}

func TestSingleRowAndColumnMapper(t *testing.T) {
	got, err := SingleRowAndColumnMapper{}.Map(RowsOf([]string{"n", "x"},
		[]any{42, "ignored"},
		[]any{43, "ignored"},
	))
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = CountMapper{}.Map(RowsOf([]string{"n"}))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeyValueMapperLastWins(t *testing.T) {
	mapper, err := NewKeyValueMapper("k", "v", false)
	require.NoError(t, err)
	got, err := mapper.Map(RowsOf([]string{"k", "v"},
		[]any{"a", 1},
		[]any{"a", 2},
		[]any{"b", 3},
	))
	require.NoError(t, err)
	require.Equal(t, map[any]any{"a": 2, "b": 3}, got)
}

func TestKeyValueMapperMultipleValuesPerKey(t *testing.T) {
	mapper, err := NewKeyValueMapper("k", "v", true)
	require.NoError(t, err)
	got, err := mapper.Map(RowsOf([]string{"k", "v"},
		[]any{"a", 1},
		[]any{"a", 2},
		[]any{"b", 3},
	))
	require.NoError(t, err)
	require.Equal(t, map[any]any{"a": []any{1, 2}, "b": []any{3}}, got)
}

func TestKeyValueMapperSameColumn(t *testing.T) {
	_, err := NewKeyValueMapper("k", "k", false)
	require.ErrorIs(t, err, ErrMapperConfig)
}

func TestKeyValueMapperByPosition(t *testing.T) {
	mapper, err := NewKeyValueMapperAt(0, 1, false)
	require.NoError(t, err)
	got, err := mapper.Map(RowsOf([]string{"name", "port"},
		[]any{"db", 5432},
		[]any{"cache", 6379},
	))
	require.NoError(t, err)
	require.Equal(t, map[any]any{"db": 5432, "cache": 6379}, got)

	// Reversed positions swap key and value.
	mapper, err = NewKeyValueMapperAt(1, 0, false)
	require.NoError(t, err)
	got, err = mapper.Map(RowsOf([]string{"name", "port"}, []any{"db", 5432}))
	require.NoError(t, err)
	require.Equal(t, map[any]any{5432: "db"}, got)
}

func TestKeyValueMapperByPositionConfigErrors(t *testing.T) {
	_, err := NewKeyValueMapperAt(1, 1, false)
	require.ErrorIs(t, err, ErrMapperConfig)

	_, err = NewKeyValueMapperAt(-1, 0, false)
	require.ErrorIs(t, err, ErrMapperConfig)
}

func TestMappersPropagateSourceError(t *testing.T) {
	srcErr := errors.New("source broke")
	src := &stubRows{rows: []Row{rowOf([]string{"id"}, 1)}, err: srcErr}

	_, err := NewRecordCombiningMapper(nil).Map(src)
	require.ErrorIs(t, err, srcErr)

	_, err = SingleColumnMapper{}.Map(&stubRows{err: srcErr})
	require.ErrorIs(t, err, srcErr)
}
