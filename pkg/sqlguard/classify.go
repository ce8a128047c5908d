// Package sqlguard is the conservative lexical guard in front of the store.
// It classifies statement text as a single read-only retrieval statement or
// rejects it with a reason, and computes stable statement fingerprints.
package sqlguard

import (
	"strings"

	"github.com/leapstack-labs/retailsql/pkg/core"
)

// Verdict is the outcome of classifying one statement.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Err converts a rejection into a *core.ValidationError. It returns nil for
// an allowed statement.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return &core.ValidationError{Reason: v.Reason}
}

func allow() Verdict { return Verdict{Allowed: true} }

func reject(reason string) Verdict { return Verdict{Reason: reason} }

// readForms are the leading keywords of a retrieval statement.
var readForms = map[TokenType]bool{
	TOKEN_SELECT: true,
	TOKEN_WITH:   true,
	TOKEN_VALUES: true,
}

// nestedVerbs are rejected when they open a parenthesised statement, as in a
// data-modifying CTE body.
var nestedVerbs = map[TokenType]bool{
	TOKEN_INSERT:   true,
	TOKEN_UPDATE:   true,
	TOKEN_DELETE:   true,
	TOKEN_MERGE:    true,
	TOKEN_UPSERT:   true,
	TOKEN_REPLACE:  true,
	TOKEN_TRUNCATE: true,
	TOKEN_ALTER:    true,
	TOKEN_DROP:     true,
	TOKEN_CREATE:   true,
	TOKEN_GRANT:    true,
	TOKEN_REVOKE:   true,
	TOKEN_COPY:     true,
	TOKEN_CALL:     true,
}

// cteBodyVerbs may follow a WITH list at the top level.
var cteBodyVerbs = map[TokenType]bool{
	TOKEN_INSERT: true,
	TOKEN_UPDATE: true,
	TOKEN_DELETE: true,
	TOKEN_MERGE:  true,
}

// sideEffectRoutines are functions that mutate state, sleep, signal other
// sessions or touch the server filesystem even inside a SELECT.
var sideEffectRoutines = map[string]bool{
	"nextval":                   true,
	"setval":                    true,
	"set_config":                true,
	"pg_sleep":                  true,
	"pg_sleep_for":              true,
	"pg_sleep_until":            true,
	"pg_terminate_backend":      true,
	"pg_cancel_backend":         true,
	"pg_reload_conf":            true,
	"pg_rotate_logfile":         true,
	"pg_switch_wal":             true,
	"pg_promote":                true,
	"pg_create_restore_point":   true,
	"pg_notify":                 true,
	"pg_logical_emit_message":   true,
	"pg_advisory_lock":          true,
	"pg_advisory_xact_lock":     true,
	"pg_try_advisory_lock":      true,
	"pg_try_advisory_xact_lock": true,
	"pg_read_file":              true,
	"pg_read_binary_file":       true,
	"pg_ls_dir":                 true,
	"pg_stat_file":              true,
	"lo_import":                 true,
	"lo_export":                 true,
	"lo_unlink":                 true,
	"lo_create":                 true,
	"lo_from_bytea":             true,
	"lo_put":                    true,
	"dblink":                    true,
	"dblink_exec":               true,
	"query_to_xml":              true,
	"txid_current":              true,
	"pg_current_xact_id":        true,
	"load_extension":            true,
	"sleep":                     true,
	"benchmark":                 true,
	"get_lock":                  true,
	"release_lock":              true,
	"load_file":                 true,
}

// Classify inspects raw SQL text and reports whether it is exactly one
// read-only retrieval statement. It never executes anything.
func Classify(sql string) Verdict {
	return ClassifyDialect(sql, Dialect{})
}

// ClassifyDialect is Classify under the lexing rules of d, so comments,
// strings and separators are found where the engine will find them.
func ClassifyDialect(sql string, d Dialect) Verdict {
	tokens, lexErr := TokenizeDialect(sql, d)

	// Drop EOF and a single trailing statement terminator.
	tokens = tokens[:len(tokens)-1]
	if n := len(tokens); n > 0 && tokens[n-1].Type == TOKEN_SEMICOLON {
		tokens = tokens[:n-1]
	}
	if len(tokens) == 0 {
		if lexErr != nil {
			return reject(lexErr.Error())
		}
		return reject("empty statement")
	}
	if lexErr != nil {
		return reject(lexErr.Error())
	}

	for _, tok := range tokens {
		switch tok.Type {
		case TOKEN_SEMICOLON:
			return reject("multiple statements are not allowed")
		case TOKEN_ILLEGAL:
			return reject("unexpected character " + quoteChar(tok.Literal))
		case TOKEN_HINT:
			return reject("executable comments and optimizer hints are not allowed")
		}
	}

	lead := 0
	for lead < len(tokens) && tokens[lead].Type == TOKEN_LPAREN {
		lead++
	}
	if lead == len(tokens) {
		return reject("statement must begin with SELECT or WITH")
	}
	first := tokens[lead].Type
	if !readForms[first] {
		if first.IsKeyword() {
			return reject("statement begins with " + first.String() + "; only SELECT or WITH statements are allowed")
		}
		return reject("statement must begin with SELECT or WITH")
	}

	return scan(tokens, first == TOKEN_WITH)
}

// Validate is Classify expressed as an error: nil when allowed, otherwise a
// *core.ValidationError carrying the reason.
func Validate(sql string) error {
	return Classify(sql).Err()
}

func scan(tokens []Token, leadingWith bool) Verdict {
	at := func(i int) TokenType {
		if i < 0 || i >= len(tokens) {
			return TOKEN_EOF
		}
		return tokens[i].Type
	}
	// A keyword after a dot is a qualified column name; a keyword before an
	// opening parenthesis is a function call such as replace(...).
	asWord := func(i int) TokenType {
		t := at(i)
		if t.IsKeyword() && (at(i-1) == TOKEN_DOT || at(i+1) == TOKEN_LPAREN) {
			return TOKEN_IDENT
		}
		return t
	}

	depth := 0
	for i, tok := range tokens {
		switch tok.Type {
		case TOKEN_LPAREN:
			depth++
			if next := asWord(i + 1); nestedVerbs[next] {
				return reject("data-modifying statement " + next.String() + " is not allowed")
			}
		case TOKEN_RPAREN:
			depth--
			if depth == 0 && leadingWith {
				if next := asWord(i + 1); cteBodyVerbs[next] {
					return reject("data-modifying statement " + next.String() + " is not allowed")
				}
			}
		case TOKEN_INTO:
			if asWord(i) == TOKEN_INTO {
				return reject("SELECT ... INTO is not allowed")
			}
		case TOKEN_FOR:
			if asWord(i) != TOKEN_FOR {
				continue
			}
			switch at(i + 1) {
			case TOKEN_UPDATE, TOKEN_SHARE, TOKEN_NO, TOKEN_KEY:
				return reject("row-locking clause FOR " + at(i+1).String() + " is not allowed")
			}
		case TOKEN_IDENT:
			if at(i+1) != TOKEN_LPAREN {
				continue
			}
			name := strings.ToLower(tok.Literal)
			if sideEffectRoutines[name] {
				return reject("call to side-effecting function " + name + " is not allowed")
			}
		}
	}
	if depth != 0 {
		return reject("unbalanced parentheses")
	}
	return allow()
}

func quoteChar(s string) string {
	if s == "" || s[0] < 0x20 || s[0] == 0x7f {
		return "(control character)"
	}
	return "'" + s + "'"
}
