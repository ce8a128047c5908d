package sqlguard

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

//nolint:revive // TOKEN_* names are intentionally ALL_CAPS for SQL token conventions
const (
	TOKEN_EOF TokenType = iota
	TOKEN_ILLEGAL

	TOKEN_IDENT        // orders, "Quoted", `quoted`
	TOKEN_NUMBER       // 123, 45.67, 1e10
	TOKEN_STRING       // 'hello', $$hello$$
	TOKEN_PARAM        // :name
	TOKEN_POSITIONAL   // $1, ?
	TOKEN_CAST         // ::
	TOKEN_OPERATOR     // + - * / = <> || and friends
	TOKEN_DOT          // .
	TOKEN_COMMA        // ,
	TOKEN_SEMICOLON    // ;
	TOKEN_LPAREN       // (
	TOKEN_RPAREN       // )
	TOKEN_LBRACKET     // [
	TOKEN_RBRACKET     // ]
	TOKEN_COLON        // : not followed by an identifier
	TOKEN_HINT         // /*! ... */, /*+ ... */

	keywordStart
	// Read forms
	TOKEN_SELECT
	TOKEN_WITH
	TOKEN_VALUES

	// Clauses the classifier inspects
	TOKEN_INTO
	TOKEN_FOR
	TOKEN_SHARE
	TOKEN_KEY
	TOKEN_NO

	// Statement verbs that mutate data, schema, privileges or session state
	TOKEN_INSERT
	TOKEN_UPDATE
	TOKEN_DELETE
	TOKEN_MERGE
	TOKEN_UPSERT
	TOKEN_REPLACE
	TOKEN_TRUNCATE
	TOKEN_ALTER
	TOKEN_DROP
	TOKEN_CREATE
	TOKEN_GRANT
	TOKEN_REVOKE
	TOKEN_COMMENT
	TOKEN_VACUUM
	TOKEN_ANALYZE
	TOKEN_COPY
	TOKEN_CALL
	TOKEN_DO
	TOKEN_EXECUTE
	TOKEN_PREPARE
	TOKEN_LOCK
	TOKEN_SET
	TOKEN_RESET
	TOKEN_REINDEX
	TOKEN_CLUSTER
	TOKEN_REFRESH
	TOKEN_ATTACH
	TOKEN_DETACH
	TOKEN_PRAGMA
	TOKEN_INSTALL
	TOKEN_LOAD
	TOKEN_CHECKPOINT
	TOKEN_BEGIN
	TOKEN_START
	TOKEN_COMMIT
	TOKEN_ROLLBACK
	TOKEN_SAVEPOINT
	TOKEN_DISCARD
	TOKEN_LISTEN
	TOKEN_NOTIFY
	TOKEN_EXPLAIN
	keywordEnd
)

// Token represents a lexical token with position information.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     int // 0-based byte offset just past the token
}

// Position represents a location in the source text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

// IsKeyword reports whether the token type is a recognised keyword.
func (t TokenType) IsKeyword() bool {
	return t > keywordStart && t < keywordEnd
}

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	if name, ok := keywordNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

var tokenNames = map[TokenType]string{
	TOKEN_EOF:        "EOF",
	TOKEN_ILLEGAL:    "ILLEGAL",
	TOKEN_IDENT:      "IDENT",
	TOKEN_NUMBER:     "NUMBER",
	TOKEN_STRING:     "STRING",
	TOKEN_PARAM:      "PARAM",
	TOKEN_POSITIONAL: "POSITIONAL",
	TOKEN_CAST:       "::",
	TOKEN_OPERATOR:   "OPERATOR",
	TOKEN_DOT:        ".",
	TOKEN_COMMA:      ",",
	TOKEN_SEMICOLON:  ";",
	TOKEN_LPAREN:     "(",
	TOKEN_RPAREN:     ")",
	TOKEN_LBRACKET:   "[",
	TOKEN_RBRACKET:   "]",
	TOKEN_COLON:      ":",
	TOKEN_HINT:       "HINT",
}

// keywords maps lowercase words to their token types.
var keywords = map[string]TokenType{
	"select":     TOKEN_SELECT,
	"with":       TOKEN_WITH,
	"values":     TOKEN_VALUES,
	"into":       TOKEN_INTO,
	"for":        TOKEN_FOR,
	"share":      TOKEN_SHARE,
	"key":        TOKEN_KEY,
	"no":         TOKEN_NO,
	"insert":     TOKEN_INSERT,
	"update":     TOKEN_UPDATE,
	"delete":     TOKEN_DELETE,
	"merge":      TOKEN_MERGE,
	"upsert":     TOKEN_UPSERT,
	"replace":    TOKEN_REPLACE,
	"truncate":   TOKEN_TRUNCATE,
	"alter":      TOKEN_ALTER,
	"drop":       TOKEN_DROP,
	"create":     TOKEN_CREATE,
	"grant":      TOKEN_GRANT,
	"revoke":     TOKEN_REVOKE,
	"comment":    TOKEN_COMMENT,
	"vacuum":     TOKEN_VACUUM,
	"analyze":    TOKEN_ANALYZE,
	"copy":       TOKEN_COPY,
	"call":       TOKEN_CALL,
	"do":         TOKEN_DO,
	"execute":    TOKEN_EXECUTE,
	"prepare":    TOKEN_PREPARE,
	"lock":       TOKEN_LOCK,
	"set":        TOKEN_SET,
	"reset":      TOKEN_RESET,
	"reindex":    TOKEN_REINDEX,
	"cluster":    TOKEN_CLUSTER,
	"refresh":    TOKEN_REFRESH,
	"attach":     TOKEN_ATTACH,
	"detach":     TOKEN_DETACH,
	"pragma":     TOKEN_PRAGMA,
	"install":    TOKEN_INSTALL,
	"load":       TOKEN_LOAD,
	"checkpoint": TOKEN_CHECKPOINT,
	"begin":      TOKEN_BEGIN,
	"start":      TOKEN_START,
	"commit":     TOKEN_COMMIT,
	"rollback":   TOKEN_ROLLBACK,
	"savepoint":  TOKEN_SAVEPOINT,
	"discard":    TOKEN_DISCARD,
	"listen":     TOKEN_LISTEN,
	"notify":     TOKEN_NOTIFY,
	"explain":    TOKEN_EXPLAIN,
}

// keywordAliases are alternate spellings that lex to an existing keyword.
var keywordAliases = map[string]TokenType{
	"analyse": TOKEN_ANALYZE,
	"exec":    TOKEN_EXECUTE,
}

var keywordNames = func() map[TokenType]string {
	m := make(map[TokenType]string, len(keywords))
	for kw, tt := range keywords {
		m[tt] = upper(kw)
	}
	return m
}()

// LookupIdent returns the keyword token type for a lowercase word, or TOKEN_IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	if tok, ok := keywordAliases[ident]; ok {
		return tok
	}
	return TOKEN_IDENT
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
