package sqlguard

// Dialect holds the lexing rules that differ between engines. The zero value
// lexes standard SQL as PostgreSQL and DuckDB read it.
type Dialect struct {
	// HashComments makes # start a line comment.
	HashComments bool

	// DashCommentNeedsSpace makes -- a comment only when followed by
	// whitespace or end of input. Otherwise the dashes are two minus signs.
	DashCommentNeedsSpace bool

	// FlatComments ends a block comment at the first */. The zero value
	// nests /* */ pairs the way PostgreSQL does.
	FlatComments bool

	// DoubleQuotedStrings lexes "..." as a string instead of an identifier.
	DoubleQuotedStrings bool

	// RejectBackslashInStrings reports a backslash inside a string literal
	// as a lexical error. The engine treats it as an escape or as a plain
	// character depending on session settings, so no single reading of the
	// literal is safe.
	RejectBackslashInStrings bool

	// NoDollarQuotes disables $tag$ strings.
	NoDollarQuotes bool

	// BracketIdentifiers lexes [name] as a quoted identifier instead of
	// array or list brackets.
	BracketIdentifiers bool
}

// DialectFor returns the lexing rules of the named engine. Unknown names get
// the zero Dialect.
func DialectFor(name string) Dialect {
	switch name {
	case "mysql":
		return Dialect{
			HashComments:             true,
			DashCommentNeedsSpace:    true,
			FlatComments:             true,
			DoubleQuotedStrings:      true,
			RejectBackslashInStrings: true,
			NoDollarQuotes:           true,
		}
	case "sqlite":
		return Dialect{FlatComments: true, NoDollarQuotes: true, BracketIdentifiers: true}
	}
	return Dialect{}
}
