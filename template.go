package sqlfold

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// kind identifies the template token family.
type kind uint8

const (
	kindIn kind = iota
	kindNotIn
	kindValues
)

// String returns the token keyword for the kind.
func (k kind) String() string {
	switch k {
	case kindIn:
		return "in"
	case kindNotIn:
		return "not_in"
	case kindValues:
		return "values"
	default:
		return "unknown"
	}
}

// kindOf maps a token keyword back to its kind.
func kindOf(s string) kind {
	switch s {
	case "not_in":
		return kindNotIn
	case "values":
		return kindValues
	default:
		return kindIn
	}
}

// tokenPattern matches one template token with its optional padding:
// group 1 captures up to the run of spaces before the token, group 2 the
// keyword, group 3 the optional table qualifier, group 4 the column, and
// group 5 the run of spaces after. Padding is captured so Build can strip
// it before the expander adds its own spacing.
var tokenPattern = regexp.MustCompile(`( +)?\{(in|not_in|values)__(?:([A-Za-z_]+)\.)?([A-Za-z_]+)\}( +)?`)

// token is one placeholder occurrence found in SQL text.
type token struct {
	raw       string // full match, padding included
	kind      kind
	qualifier string
	column    string
}

// key returns the canonical template-parameter key, e.g. "in__actor.name".
func (t token) key() string {
	return t.kind.String() + "__" + t.columnRef()
}

// columnRef returns the column with its qualifier, e.g. "actor.name".
func (t token) columnRef() string {
	if t.qualifier != "" {
		return t.qualifier + "." + t.column
	}
	return t.column
}

// Queries are static strings in application code, so the scan result is
// cached by query text.
var tokenCache, _ = lru.New[string, []token](512)

// scanTokens finds every template token in query, in text order.
func scanTokens(query string) []token {
	if cached, ok := tokenCache.Get(query); ok {
		return cached
	}
	matches := tokenPattern.FindAllStringSubmatch(query, -1)
	tokens := make([]token, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, token{
			raw:       m[0],
			kind:      kindOf(m[2]),
			qualifier: m[3],
			column:    m[4],
		})
	}
	tokenCache.Add(query, tokens)
	return tokens
}

// --------------------------------
// Expanders
// --------------------------------

// InColumn renders an IN fragment for column over values and returns it with
// its bind-parameter map. An empty value list yields the always-false
// fragment "1 <> 1" with no parameters, a safe no-op filter.
//
// Bind names are derived from column ("actor.name" binds as :actor_name_0,
// :actor_name_1, ...). An optional bindKey replaces the derived base; Build
// uses this to keep names unique when the same column appears under two
// different qualifiers in one query.
func InColumn(column string, values []any, bindKey ...string) (string, Params) {
	return expandIn(column, values, false, false, optKey(bindKey))
}

// NotInColumn is the NOT IN counterpart of InColumn. An empty value list
// yields the always-true fragment "1 = 1" with no parameters.
func NotInColumn(column string, values []any, bindKey ...string) (string, Params) {
	return expandIn(column, values, true, false, optKey(bindKey))
}

// InMultiColumn renders an IN fragment comparing a parenthesized column
// group, e.g. "(a, b) IN (( :ab_0_0, :ab_0_1 ), ( :ab_1_0, :ab_1_1 ))".
// Every row must be a tuple aligned with the column group. The bind base is
// the columns string with commas, parentheses and spaces removed.
func InMultiColumn(columns string, rows [][]any, bindKey ...string) (string, Params) {
	return expandIn(columns, tupleRows(rows), false, true, optKey(bindKey))
}

// NotInMultiColumn is the NOT IN counterpart of InMultiColumn.
func NotInMultiColumn(columns string, rows [][]any, bindKey ...string) (string, Params) {
	return expandIn(columns, tupleRows(rows), true, true, optKey(bindKey))
}

// Values renders a VALUES clause for an INSERT. Each row is one
// parenthesized group: scalars become single-value groups
// ("VALUES ( :k_0 ), ( :k_1 )") and tuples become multi-value groups
// ("VALUES ( :k_0_0, :k_0_1 ), ( :k_1_0, :k_1_1 )"). An empty or nil row
// list is an error: an INSERT has no safe no-op form.
func Values(column string, rows []any, bindKey ...string) (string, Params, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrEmptyValues, column)
	}
	key := bindBase(column, optKey(bindKey), false)
	frag, params := expandList(key, rows, true)
	return "VALUES " + frag, params, nil
}

// expandIn is the shared body of the four IN/NOT IN expanders.
func expandIn(column string, values []any, negate, multi bool, bindKey string) (string, Params) {
	if len(values) == 0 {
		if negate {
			return "1 = 1", nil
		}
		return "1 <> 1", nil
	}
	key := bindBase(column, bindKey, multi)
	frag, params := expandList(key, values, false)
	if multi {
		frag = "(" + frag + ")"
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return column + " " + op + " " + frag, params
}

// --------------------------------
// Parameter naming
// --------------------------------

// multiKeyCleaner strips the characters of a parenthesized column group so
// "(a, b)" becomes the bind base "ab".
var multiKeyCleaner = strings.NewReplacer(",", "", " ", "", "(", "", ")", "")

// bindBase picks the base for generated bind names: the column itself unless
// the caller supplied an alternate key, cleaned for multi-column groups.
func bindBase(column, bindKey string, multi bool) string {
	key := column
	if bindKey != "" {
		key = bindKey
	}
	if multi {
		key = multiKeyCleaner.Replace(key)
	}
	return key
}

// optKey unwraps the optional-variadic bind key argument.
func optKey(bindKey []string) string {
	if len(bindKey) > 0 {
		return bindKey[0]
	}
	return ""
}

// expandList renders the parameterized text for values under key. Tuples
// always render as their own parenthesized group with (row, col) indexed
// names; scalars join into one flat group unless grouped forces one group
// per value (the VALUES shape).
func expandList(key string, values []any, grouped bool) (string, Params) {
	params := make(Params, len(values))
	groups := make([]string, 0, len(values))
	for i, v := range values {
		tup, isTuple := tupleOf(v)
		if !isTuple && !grouped {
			flat := make(Params, len(values))
			return expandGroup(key, values, flat), flat
		}
		indexed := key + "_" + strconv.Itoa(i)
		if isTuple {
			groups = append(groups, expandGroup(indexed, tup, params))
		} else {
			groups = append(groups, expandSingle(indexed, v, params))
		}
	}
	return strings.Join(groups, ", "), params
}

// expandGroup emits "( :base_0, :base_1, ... )" for one group of values,
// recording each generated name in params. Dots in the key map to
// underscores so qualified columns stay legal bind names.
func expandGroup(key string, values []any, params Params) string {
	base := strings.ReplaceAll(key, ".", "_")
	names := make([]string, len(values))
	for i, v := range values {
		name := base + "_" + strconv.Itoa(i)
		params[name] = v
		names[i] = name
	}
	return "( :" + strings.Join(names, ", :") + " )"
}

// expandSingle emits "( :base )" for one scalar VALUES row; the key already
// carries its row index.
func expandSingle(key string, v any, params Params) string {
	name := strings.ReplaceAll(key, ".", "_")
	params[name] = v
	return "( :" + name + " )"
}

// --------------------------------
// Value coercion
// --------------------------------

// valueList coerces a template-parameter value into a flat []any. Slices and
// arrays of any element type expand; strings and byte slices stay scalar
// (an empty string counts as no values); anything else wraps as a single
// value.
func valueList(v any) []any {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		return vv
	case string:
		if vv == "" {
			return nil
		}
		return []any{vv}
	case []byte:
		return []any{vv}
	}
	rv := deIndirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// tupleOf reports whether v is a multi-value row (a slice or array that is
// not byte-like) and returns its cells.
func tupleOf(v any) ([]any, bool) {
	if tup, ok := v.([]any); ok {
		return tup, true
	}
	rv := deIndirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, false
	}
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

// tupleRows widens [][]any to []any for the shared expansion path.
func tupleRows(rows [][]any) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

// deIndirect unwraps interface and pointers until a concrete value (or nil).
func deIndirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
