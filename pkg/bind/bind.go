// Package bind maps named :param placeholders onto a driver's native
// positional parameters. Values never become part of the SQL text.
package bind

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/leapstack-labs/retailsql/pkg/sqlguard"
)

// Placeholders returns the named placeholders in text in order of first
// appearance, without duplicates. Placeholders inside string literals,
// quoted identifiers and comments are not placeholders.
func Placeholders(text string) []string {
	tokens, _ := sqlguard.Tokenize(text)

	var names []string
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if tok.Type != sqlguard.TOKEN_PARAM || seen[tok.Literal] {
			continue
		}
		seen[tok.Literal] = true
		names = append(names, tok.Literal)
	}
	return names
}

// Bind rewrites every :name placeholder in text into the given placeholder
// style and collects the matching values from params. Every placeholder must
// have an entry in params; entries that no placeholder references are ignored.
//
// For PlaceholderDollar a name used more than once reuses its ordinal. For
// PlaceholderQuestion the value is repeated for each occurrence.
func Bind(text string, params map[string]any, style core.PlaceholderStyle) (core.BoundStatement, error) {
	return BindDialect(text, params, style, sqlguard.Dialect{})
}

// BindDialect is Bind with placeholders located under the lexing rules of d.
func BindDialect(text string, params map[string]any, style core.PlaceholderStyle, d sqlguard.Dialect) (core.BoundStatement, error) {
	tokens, _ := sqlguard.TokenizeDialect(text, d)

	var (
		out      strings.Builder
		args     []any
		names    []string
		last     int
		ordinals = make(map[string]int)
	)
	out.Grow(len(text))

	for _, tok := range tokens {
		if tok.Type != sqlguard.TOKEN_PARAM {
			continue
		}
		name := tok.Literal

		raw, ok := params[name]
		if !ok {
			return core.BoundStatement{}, &core.MissingParameterError{Name: name}
		}
		val, err := Scalar(name, raw)
		if err != nil {
			return core.BoundStatement{}, err
		}

		out.WriteString(text[last:tok.Pos.Offset])
		last = tok.End

		if _, seen := ordinals[name]; !seen {
			names = append(names, name)
		}

		switch style {
		case core.PlaceholderQuestion:
			args = append(args, val)
			ordinals[name] = len(args)
			out.WriteByte('?')
		default:
			n, seen := ordinals[name]
			if !seen {
				args = append(args, val)
				n = len(args)
				ordinals[name] = n
			}
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
		}
	}
	out.WriteString(text[last:])

	return core.BoundStatement{SQL: out.String(), Args: args, Names: names}, nil
}

// Missing returns the placeholders in text that have no entry in params.
// Callers use it to validate a parameter mapping before binding.
func Missing(text string, params map[string]any) []string {
	var missing []string
	for _, name := range Placeholders(text) {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
