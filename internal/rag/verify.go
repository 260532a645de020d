package rag

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"civiccite/internal/models"
	"civiccite/internal/providers"
	"civiccite/internal/util"
)

// ErrModelDeclined means the model replied that the passages do not answer
// the question.
var ErrModelDeclined = errors.New("model reported not enough information")

// Grounded is a generated answer reduced to the lines that cite retrieved
// passages, with citations renumbered from 1.
type Grounded struct {
	Lines     []string
	Citations []models.Citation
}

var bulletPrefix = regexp.MustCompile(`^(?:[-*•‣·]+|\d{1,2}[.)])\s+`)

type marker struct {
	start, end int
	refs       []int
}

// VerifyCitations keeps the lines of text that cite at least one passage of
// res. It returns util.ErrUngroundedAnswer when no line survives and
// ErrModelDeclined when the model declined to answer.
func VerifyCitations(text string, res models.RetrievalResult) (Grounded, error) {
	if strings.TrimSpace(text) == providers.NotEnoughInformation {
		return Grounded{}, ErrModelDeclined
	}

	renumber := map[int]int{}
	var g Grounded
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		markers, ok := parseMarkers(line)
		if !ok || len(markers) == 0 || !hasWords(line, markers) {
			continue
		}
		resolved := 0
		for _, m := range markers {
			for _, ref := range m.refs {
				if _, ok := res.ByPassage(ref); ok {
					resolved++
				}
			}
		}
		if resolved == 0 {
			continue
		}

		var b strings.Builder
		prev := 0
		for _, m := range markers {
			b.WriteString(line[prev:m.start])
			prev = m.end
			nums := make([]int, 0, len(m.refs))
			seen := map[int]bool{}
			for _, ref := range m.refs {
				sc, ok := res.ByPassage(ref)
				if !ok {
					continue
				}
				n, ok := renumber[ref]
				if !ok {
					n = len(renumber) + 1
					renumber[ref] = n
					g.Citations = append(g.Citations, models.Citation{
						Index:     n,
						ChunkID:   sc.Chunk.ChunkID,
						SourceURL: sc.Chunk.URL,
					})
				}
				if !seen[n] {
					seen[n] = true
					nums = append(nums, n)
				}
			}
			if len(nums) > 0 {
				b.WriteString(formatMarker(nums))
			}
		}
		b.WriteString(line[prev:])
		g.Lines = append(g.Lines, tidy(b.String()))
	}

	if len(g.Lines) == 0 {
		return Grounded{}, fmt.Errorf("%w: no line cites a retrieved passage", util.ErrUngroundedAnswer)
	}
	return g, nil
}

// hasWords reports whether line carries a letter or digit outside its
// markers.
func hasWords(line string, markers []marker) bool {
	prev := 0
	for _, m := range markers {
		if strings.IndexFunc(line[prev:m.start], isWordRune) >= 0 {
			return true
		}
		prev = m.end
	}
	return strings.IndexFunc(line[prev:], isWordRune) >= 0
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

// parseMarkers finds citation markers in line. ok is false when a bracket
// that looks like a marker does not follow the grammar
// '[' ['C'] digits (',' ' '* ['C'] digits)* ']'.
func parseMarkers(line string) ([]marker, bool) {
	var out []marker
	for i := 0; i < len(line); i++ {
		if line[i] != '[' || !markerStart(line, i+1) {
			continue
		}
		m, ok := parseMarker(line, i)
		if !ok {
			return nil, false
		}
		out = append(out, m)
		i = m.end - 1
	}
	return out, true
}

func markerStart(s string, i int) bool {
	if i < len(s) && isDigit(s[i]) {
		return true
	}
	return i+1 < len(s) && s[i] == 'C' && isDigit(s[i+1])
}

func parseMarker(s string, open int) (marker, bool) {
	m := marker{start: open}
	i := open + 1
	for {
		if i < len(s) && s[i] == 'C' {
			i++
		}
		j := i
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j == i {
			return marker{}, false
		}
		n, err := strconv.Atoi(s[i:j])
		if err != nil {
			return marker{}, false
		}
		m.refs = append(m.refs, n)
		i = j
		if i >= len(s) {
			return marker{}, false
		}
		switch s[i] {
		case ']':
			m.end = i + 1
			return m, true
		case ',':
			i++
			for i < len(s) && s[i] == ' ' {
				i++
			}
		default:
			return marker{}, false
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func formatMarker(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

var spaceBeforePunct = regexp.MustCompile(`\s+([.,;:!?।])`)

func tidy(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return spaceBeforePunct.ReplaceAllString(s, "$1")
}

// StripMarkers removes every well-formed citation marker from s.
func StripMarkers(s string) string {
	markers, ok := parseMarkers(s)
	if !ok || len(markers) == 0 {
		return tidy(s)
	}
	var b strings.Builder
	prev := 0
	for _, m := range markers {
		b.WriteString(s[prev:m.start])
		prev = m.end
	}
	b.WriteString(s[prev:])
	return tidy(b.String())
}
