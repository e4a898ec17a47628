package query

import (
	"iter"
	"slices"
	"strings"
	"unicode"
)

// Scan splits a query into tokens. Quoted source literals come first in order
// of appearance, followed by the remaining whitespace-separated terms with
// duplicates removed. With stripMetatags a single leading '-' or '~' is
// removed from every token.
//
// The returned sequence recomputes the tokens on every iteration.
func Scan(query string, stripMetatags bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		quoted, rest := splitSourceLiterals(normalizeSpace(query))

		emit := func(tok string) bool {
			if stripMetatags {
				tok = stripOperator(tok)
			}
			return yield(tok)
		}

		for _, tok := range quoted {
			if !emit(tok) {
				return
			}
		}

		seen := make(map[string]struct{})
		for _, tok := range strings.FieldsFunc(rest, unicode.IsSpace) {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			if !emit(tok) {
				return
			}
		}
	}
}

// ScanSlice collects Scan into a slice.
func ScanSlice(query string, stripMetatags bool) []string {
	return slices.Collect(Scan(query, stripMetatags))
}

func normalizeSpace(query string) string {
	return strings.TrimSpace(strings.ReplaceAll(query, "\u3000", " "))
}

func stripOperator(tok string) string {
	if strings.HasPrefix(tok, "-") || strings.HasPrefix(tok, "~") {
		return tok[1:]
	}
	return tok
}

// splitSourceLiterals pulls every [-]source:"..." occurrence out of s. The
// quoted part ends at the next double quote; an unterminated literal is left
// in place as ordinary text.
func splitSourceLiterals(s string) ([]string, string) {
	const marker = `source:"`

	var quoted []string
	var rest strings.Builder

	i := 0
	for i < len(s) {
		j := strings.Index(s[i:], marker)
		if j < 0 {
			break
		}
		start := i + j
		open := start + len(marker)
		closing := strings.IndexByte(s[open:], '"')
		if closing < 0 {
			break
		}
		end := open + closing + 1

		if start > i && s[start-1] == '-' {
			start--
		}
		rest.WriteString(s[i:start])
		quoted = append(quoted, s[start:end])
		i = end
	}
	rest.WriteString(s[i:])

	return quoted, rest.String()
}
