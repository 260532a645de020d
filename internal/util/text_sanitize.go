package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeText removes bytes and control characters that Postgres text columns reject
// (especially NUL / 0x00 from some PDF extractors).
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 || ch == unicode.ReplacementChar {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

// Canonicalize applies NFKC, drops control characters and collapses all
// whitespace runs to a single space. Chunk ids are computed over its output,
// so any change here changes every id.
func Canonicalize(s string) string {
	s = norm.NFKC.String(SanitizeText(s))
	return strings.Join(strings.Fields(s), " ")
}

// DedupeKey is the comparison key for near-duplicate detection.
func DedupeKey(s string) string {
	return SHA256Hex([]byte(strings.ToLower(Canonicalize(s))))
}
