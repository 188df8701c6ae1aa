package sqlfold

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Params is a convenient alias for map[string]any, used both for literal
// query parameters and for generated bind-parameter sets.
type Params = map[string]any

// QueryData describes one query: the SQL text, literal named parameters, and
// template parameters consumed by the {kind__column} tokens embedded in the
// text. A QueryData is built once per call and consumed exactly once by
// Build; it is never mutated.
//
// Literal parameters pass through Build untouched. Template parameters feed
// the token expanders: a value may be a scalar, a slice of scalars, or a
// slice of slices (multi-value rows for {values__...} tokens).
type QueryData struct {
	Query          string
	Params         Params
	TemplateParams Params
}

var (
	ErrEmptyQuery          = errors.New("sqlfold: empty query text")
	ErrMissingTemplateKeys = errors.New("sqlfold: missing template keys")
	ErrEmptyValues         = errors.New("sqlfold: values template requires at least one row")
	ErrParamConflict       = errors.New("sqlfold: literal parameter collides with generated bind name")
	ErrMapperConfig        = errors.New("sqlfold: invalid mapper configuration")
	ErrSchemaConfig        = errors.New("sqlfold: invalid combiner schema")
	ErrFieldDecode         = errors.New("sqlfold: field decode failed")
)

// Build validates a QueryData, expands every template token found in its
// text, and returns the final SQL together with the merged parameter map.
//
// Validation is batched: every token must resolve to a present, non-nil
// template parameter (and a non-empty one for values tokens) before the
// first fragment is emitted; a single ErrMissingTemplateKeys names all
// offending keys. Each token's span, including up to one captured padding
// space per side, is replaced by the fragment with exactly one leading and
// one trailing space. Guarantee: no unresolved token remains in the output.
//
// A name collision between a literal parameter and a generated bind
// parameter is reported as ErrParamConflict instead of being silently
// resolved by merge order.
func Build(data QueryData) (string, Params, error) {
	if strings.TrimSpace(data.Query) == "" {
		return "", nil, ErrEmptyQuery
	}

	tokens := scanTokens(data.Query)
	query := data.Query

	// Strip captured padding first; the expanders control spacing around
	// their own output.
	for _, tk := range tokens {
		if trimmed := strings.TrimSpace(tk.raw); trimmed != tk.raw {
			query = strings.ReplaceAll(query, tk.raw, trimmed)
		}
	}

	// Batch validation over the distinct token set, in first-seen order.
	var (
		missing  []string
		resolved []resolvedToken
		seen     = make(map[string]bool, len(tokens))
	)
	for _, tk := range tokens {
		key := tk.key()
		if seen[key] {
			continue
		}
		seen[key] = true

		raw, ok := data.TemplateParams[key]
		if !ok || raw == nil {
			missing = append(missing, key)
			continue
		}
		values := valueList(raw)
		if tk.kind == kindValues && len(values) == 0 {
			missing = append(missing, key)
			continue
		}
		resolved = append(resolved, resolvedToken{token: tk, values: values})
	}
	if len(missing) > 0 {
		return "", nil, fmt.Errorf("%w: [%s]", ErrMissingTemplateKeys, strings.Join(missing, ", "))
	}

	out := make(Params, len(data.Params)+len(resolved)*4)
	for k, v := range data.Params {
		out[k] = v
	}

	var conflicts []string
	for _, rt := range resolved {
		key := rt.key()
		column := rt.columnRef()

		var (
			frag   string
			params Params
			err    error
		)
		switch rt.kind {
		case kindIn:
			frag, params = InColumn(column, rt.values, key)
		case kindNotIn:
			frag, params = NotInColumn(column, rt.values, key)
		case kindValues:
			frag, params, err = Values(column, rt.values, key)
		}
		if err != nil {
			return "", nil, err
		}

		query = strings.ReplaceAll(query, "{"+key+"}", " "+frag+" ")

		for name, value := range params {
			if _, dup := out[name]; dup {
				conflicts = append(conflicts, name)
				continue
			}
			out[name] = value
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return "", nil, fmt.Errorf("%w: [%s]", ErrParamConflict, strings.Join(conflicts, ", "))
	}

	return query, out, nil
}

// resolvedToken pairs a validated token with its coerced value list.
type resolvedToken struct {
	token
	values []any
}
