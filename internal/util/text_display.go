package util

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// DisplaySnippet shortens s to at most maxRunes runes for logs and previews.
func DisplaySnippet(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 420
	}
	s = strings.Join(strings.Fields(SanitizeText(s)), " ")
	runes := []rune(s)
	if len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "..."
	}
	return s
}

// TruncateAtWord cuts s so the result, including a trailing ellipsis when a cut
// happens, is at most maxRunes runes. It cuts at the last word boundary that
// fits and falls back to a rune cut when a single word is longer than the
// budget. The bool reports whether anything was removed.
func TruncateAtWord(s string, maxRunes int) (string, bool) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxRunes {
		return s, false
	}
	budget := maxRunes - utf8.RuneCountInString(ellipsis)
	if budget <= 0 {
		return "", true
	}
	runes := []rune(s)
	cut := -1
	for i := budget; i > 0; i-- {
		if runes[i] == ' ' {
			cut = i
			break
		}
	}
	if cut <= 0 {
		cut = budget
	}
	out := strings.TrimRight(string(runes[:cut]), " ,;:")
	if out == "" {
		return "", true
	}
	return out + ellipsis, true
}

// TruncateAtSentence returns the longest prefix of s, ending at a sentence
// end, that fits in maxRunes. ok is false when no sentence end fits.
func TruncateAtSentence(s string, maxRunes int) (string, bool) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxRunes {
		return s, true
	}
	words := strings.Fields(s)
	best := ""
	var b strings.Builder
	for _, w := range words {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		if utf8.RuneCountInString(b.String()) > maxRunes {
			break
		}
		if IsSentenceEnd(w) {
			best = b.String()
		}
	}
	return best, best != ""
}

// IsSentenceEnd reports whether a whitespace token closes a sentence. Closing
// quotes and brackets after the terminal mark are allowed.
func IsSentenceEnd(token string) bool {
	token = strings.TrimRight(token, "\"'”’)]»")
	if token == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(token)
	switch r {
	case '.', '?', '!', '।', '॥':
		return true
	}
	return false
}
