// Package sqlfold expands list-valued template tokens embedded in SQL text
// into safe, parameterized fragments and folds flat, joined result rows back
// into structured records.
//
// The template side rewrites {in__col}, {not_in__col} and {values__col}
// tokens into IN, NOT IN and VALUES clauses with deterministic bind names.
// The mapping side is a small family of row mappers that turn one forward
// pass over a cursor into a list of combined records, a single record, a
// scalar list, one scalar, or a key/value map. There is no ORM, no query
// DSL, and no connection handling.
package sqlfold
