package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
)

// LexError represents a lexical analysis error.
type LexError struct {
	Pos     Position
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexer error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
	err     *LexError
	dialect Dialect
}

// NewLexer creates a new Lexer for the given input using standard rules.
func NewLexer(input string) *Lexer {
	return NewDialectLexer(input, Dialect{})
}

// NewDialectLexer creates a new Lexer that follows the rules of d.
func NewDialectLexer(input string, d Dialect) *Lexer {
	l := &Lexer{
		input:   input,
		line:    1,
		col:     0,
		dialect: d,
	}
	l.readChar()
	return l
}

// Err returns the first lexical error encountered, if any.
func (l *Lexer) Err() error {
	if l.err == nil {
		return nil
	}
	return l.err
}

func (l *Lexer) fail(pos Position, msg string) {
	if l.err == nil {
		l.err = &LexError{Pos: pos, Message: msg}
	}
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// currentPos returns the current position.
func (l *Lexer) currentPos() Position {
	return Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.currentPos()
	tok := Token{Pos: pos}

	if l.atEOF() {
		tok.Type = TOKEN_EOF
		tok.Pos.Offset = len(l.input)
		tok.End = len(l.input)
		return tok
	}

	switch l.ch {
	case ';':
		tok = l.single(TOKEN_SEMICOLON, pos)
	case ',':
		tok = l.single(TOKEN_COMMA, pos)
	case '.':
		if isDigit(l.peekChar()) {
			tok.Type = TOKEN_NUMBER
			tok.Literal = l.readNumber()
		} else {
			tok = l.single(TOKEN_DOT, pos)
		}
	case '(':
		tok = l.single(TOKEN_LPAREN, pos)
	case ')':
		tok = l.single(TOKEN_RPAREN, pos)
	case '[':
		if l.dialect.BracketIdentifiers {
			tok.Type = TOKEN_IDENT
			tok.Literal = l.readBracketed()
		} else {
			tok = l.single(TOKEN_LBRACKET, pos)
		}
	case ']':
		tok = l.single(TOKEN_RBRACKET, pos)
	case '?':
		tok = l.single(TOKEN_POSITIONAL, pos)
	case ':':
		switch {
		case l.peekChar() == ':':
			l.readChar()
			l.readChar()
			tok.Type = TOKEN_CAST
			tok.Literal = "::"
		case isIdentStart(l.peekChar()):
			l.readChar() // skip ':'
			tok.Type = TOKEN_PARAM
			tok.Literal = l.readIdentifier()
		default:
			tok = l.single(TOKEN_COLON, pos)
		}
	case '<':
		switch l.peekChar() {
		case '=', '>':
			tok = l.double(TOKEN_OPERATOR, pos)
		default:
			tok = l.single(TOKEN_OPERATOR, pos)
		}
	case '>', '!':
		if l.peekChar() == '=' {
			tok = l.double(TOKEN_OPERATOR, pos)
		} else {
			tok = l.single(TOKEN_OPERATOR, pos)
		}
	case '|':
		if l.peekChar() == '|' {
			tok = l.double(TOKEN_OPERATOR, pos)
		} else {
			tok = l.single(TOKEN_OPERATOR, pos)
		}
	case '/':
		if l.peekChar() == '*' {
			// Only executable comments and hints reach here.
			start := l.pos
			l.skipBlockComment()
			tok.Type = TOKEN_HINT
			tok.Literal = l.input[start:l.pos]
		} else {
			tok = l.single(TOKEN_OPERATOR, pos)
		}
	case '+', '-', '*', '%', '=', '&', '^', '~', '@', '#':
		tok = l.single(TOKEN_OPERATOR, pos)
	case '\'':
		tok.Type = TOKEN_STRING
		tok.Literal = l.readString('\'', false)
	case '"':
		if l.dialect.DoubleQuotedStrings {
			tok.Type = TOKEN_STRING
			tok.Literal = l.readString('"', false)
		} else {
			tok.Type = TOKEN_IDENT
			tok.Literal = l.readQuoted('"')
		}
	case '`':
		tok.Type = TOKEN_IDENT
		tok.Literal = l.readQuoted('`')
	case '$':
		switch {
		case isDigit(l.peekChar()):
			l.readChar() // skip '$'
			tok.Type = TOKEN_POSITIONAL
			tok.Literal = "$" + l.readDigits()
		case l.dialect.NoDollarQuotes:
			tok = l.single(TOKEN_ILLEGAL, pos)
		default:
			if body, ok := l.readDollarString(); ok {
				tok.Type = TOKEN_STRING
				tok.Literal = body
			} else {
				tok = l.single(TOKEN_ILLEGAL, pos)
			}
		}
	default:
		switch {
		case (l.ch == 'e' || l.ch == 'E') && l.peekChar() == '\'':
			l.readChar() // skip prefix
			tok.Type = TOKEN_STRING
			tok.Literal = l.readString('\'', true)
		case isIdentStart(l.ch):
			tok.Literal = l.readIdentifier()
			tok.Type = LookupIdent(strings.ToLower(tok.Literal))
		case isDigit(l.ch):
			tok.Type = TOKEN_NUMBER
			tok.Literal = l.readNumber()
		default:
			tok = l.single(TOKEN_ILLEGAL, pos)
		}
	}

	tok.End = l.pos
	return tok
}

func (l *Lexer) single(tt TokenType, pos Position) Token {
	tok := Token{Type: tt, Literal: string(l.ch), Pos: pos}
	l.readChar()
	return tok
}

func (l *Lexer) double(tt TokenType, pos Position) Token {
	lit := string([]byte{l.ch, l.peekChar()})
	l.readChar()
	l.readChar()
	return Token{Type: tt, Literal: lit, Pos: pos}
}

// skipWhitespaceAndComments skips whitespace and comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' || l.ch == '\v' {
			l.readChar()
		}

		if l.ch == '-' && l.peekChar() == '-' && l.dashComment() {
			l.skipLineComment()
			continue
		}

		if l.ch == '#' && l.dialect.HashComments {
			l.skipLineComment()
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' && !l.atHint() {
			l.skipBlockComment()
			continue
		}

		break
	}
}

// dashComment reports whether the -- at the cursor opens a comment.
func (l *Lexer) dashComment() bool {
	if !l.dialect.DashCommentNeedsSpace {
		return true
	}
	next := l.readPos + 1
	if next >= len(l.input) {
		return true
	}
	c := l.input[next]
	return c <= ' ' || c == 0x7f
}

// atHint reports whether the /* at the cursor opens an executable comment
// (/*! and MariaDB's /*M!) or an optimizer hint (/*+). Engines run or honour
// their contents, so they are tokens rather than comments.
func (l *Lexer) atHint() bool {
	rest := l.input[l.pos:]
	return strings.HasPrefix(rest, "/*!") || strings.HasPrefix(rest, "/*+") || strings.HasPrefix(rest, "/*M!")
}

func (l *Lexer) skipLineComment() {
	for l.ch != '\n' && !l.atEOF() {
		l.readChar()
	}
}

// skipBlockComment skips a block comment. Nested comments are honoured the
// way PostgreSQL does unless the dialect has flat comments.
func (l *Lexer) skipBlockComment() {
	start := l.currentPos()
	l.readChar() // skip '/'
	l.readChar() // skip '*'

	depth := 1
	for {
		if l.atEOF() {
			l.fail(start, "unterminated block comment")
			return
		}
		switch {
		case l.ch == '*' && l.peekChar() == '/':
			l.readChar()
			l.readChar()
			depth--
			if depth == 0 {
				return
			}
		case l.ch == '/' && l.peekChar() == '*' && !l.dialect.FlatComments:
			l.readChar()
			l.readChar()
			depth++
		default:
			l.readChar()
		}
	}
}

// readString reads a string literal quoted with q.
// Doubled quotes are an escape: 'it''s' -> it's. When backslash is true
// (E'...' strings) a backslash escapes the next byte.
func (l *Lexer) readString(q byte, backslash bool) string {
	start := l.currentPos()
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.atEOF() {
			l.fail(start, "unterminated string literal")
			break
		}
		if l.ch == '\\' && l.dialect.RejectBackslashInStrings {
			l.fail(l.currentPos(), "backslash in string literal")
		}
		if backslash && l.ch == '\\' {
			l.readChar()
			if l.atEOF() {
				continue
			}
			result.WriteByte(l.ch)
			l.readChar()
			continue
		}
		if l.ch == q {
			if l.peekChar() == q {
				result.WriteByte(q)
				l.readChar()
				l.readChar()
			} else {
				l.readChar() // skip closing quote
				break
			}
		} else {
			result.WriteByte(l.ch)
			l.readChar()
		}
	}
	return result.String()
}

// readQuoted reads an identifier quoted with q. A doubled quote is an escape.
func (l *Lexer) readQuoted(q byte) string {
	start := l.currentPos()
	l.readChar() // skip opening quote

	var result strings.Builder
	for {
		if l.atEOF() {
			l.fail(start, "unterminated quoted identifier")
			break
		}
		if l.ch == q {
			if l.peekChar() == q {
				result.WriteByte(q)
				l.readChar()
				l.readChar()
			} else {
				l.readChar()
				break
			}
		} else {
			result.WriteByte(l.ch)
			l.readChar()
		}
	}
	return result.String()
}

// readBracketed reads a [bracketed] identifier. There is no escape for ].
func (l *Lexer) readBracketed() string {
	start := l.currentPos()
	l.readChar() // skip '['

	from := l.pos
	for l.ch != ']' {
		if l.atEOF() {
			l.fail(start, "unterminated bracketed identifier")
			return l.input[from:]
		}
		l.readChar()
	}
	name := l.input[from:l.pos]
	l.readChar() // skip ']'
	return name
}

// readDollarString reads a PostgreSQL dollar-quoted string ($$...$$ or
// $tag$...$tag$). It reports false without consuming input when the text at
// the cursor is not an opening delimiter.
func (l *Lexer) readDollarString() (string, bool) {
	start := l.currentPos()
	rest := l.input[l.pos:]
	end := strings.IndexByte(rest[1:], '$')
	if end < 0 {
		return "", false
	}
	tag := rest[:end+2]
	for i := 1; i < len(tag)-1; i++ {
		if !isIdentPart(tag[i]) {
			return "", false
		}
	}

	bodyStart := l.pos + len(tag)
	closing := strings.Index(l.input[bodyStart:], tag)
	stop := len(l.input)
	if closing >= 0 {
		stop = bodyStart + closing + len(tag)
	} else {
		l.fail(start, "unterminated dollar-quoted string")
	}
	for l.pos < stop && !l.atEOF() {
		l.readChar()
	}
	if closing < 0 {
		return l.input[bodyStart:], true
	}
	return l.input[bodyStart : bodyStart+closing], true
}

// readIdentifier reads an unquoted identifier.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isIdentPart(l.ch) && !l.atEOF() {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readDigits() string {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (integer, decimal, or scientific).
func (l *Lexer) readNumber() string {
	start := l.pos

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	} else if l.ch == '.' && l.pos > start {
		// trailing dot as in "1."
		l.readChar()
	}

	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	return l.input[start:l.pos]
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 0x80 || unicode.IsLetter(rune(ch))
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns all tokens from the input, ending with TOKEN_EOF, and the
// first lexical error if the input contains an unterminated literal or comment.
func Tokenize(input string) ([]Token, error) {
	return TokenizeDialect(input, Dialect{})
}

// TokenizeDialect is Tokenize under the rules of d.
func TokenizeDialect(input string, d Dialect) ([]Token, error) {
	l := NewDialectLexer(input, d)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF {
			break
		}
	}
	return tokens, l.Err()
}
