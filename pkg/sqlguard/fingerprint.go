package sqlguard

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// fingerprintDomain separates statement fingerprints from any other hash
// computed over the same bytes.
const fingerprintDomain = "retailsql/statement/v1"

// FingerprintLength is the number of hex characters in a fingerprint.
const FingerprintLength = 16

// Normalize renders statement text in a canonical form: comments and
// redundant whitespace removed, keywords and unquoted identifiers lowercased,
// literals and quoted identifiers kept verbatim, a trailing terminator dropped.
// Input is NFC-normalized first so visually identical text hashes identically.
func Normalize(sql string) string {
	src := norm.NFC.String(sql)
	tokens, _ := Tokenize(src)

	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Type == TOKEN_EOF {
			break
		}
		raw := src[tok.Pos.Offset:tok.End]
		switch {
		case tok.Type.IsKeyword():
			parts = append(parts, strings.ToLower(raw))
		case tok.Type == TOKEN_IDENT && !isQuote(raw[0]):
			parts = append(parts, strings.ToLower(raw))
		default:
			parts = append(parts, raw)
		}
	}
	if n := len(parts); n > 0 && parts[n-1] == ";" {
		parts = parts[:n-1]
	}
	return strings.Join(parts, " ")
}

// Fingerprint returns a stable identifier for statement text. Parameter
// values never contribute: callers pass the text before binding, so the same
// template yields the same fingerprint whatever values are supplied.
func Fingerprint(sql string) string {
	return hashWithDomain(fingerprintDomain, []byte(Normalize(sql)))[:FingerprintLength]
}

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func isQuote(c byte) bool {
	return c == '"' || c == '`'
}
