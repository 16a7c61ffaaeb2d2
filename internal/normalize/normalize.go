// Package normalize derives stable sort keys from display metadata.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// articles are leading words ignored when filing titles, per common
// library shelving rules. English only; narration metadata in the wild
// rarely carries sortable titles in other languages.
//
//nolint:gochecknoglobals // Static lookup table
var articles = map[string]bool{
	"the": true,
	"a":   true,
	"an":  true,
}

// SortTitle converts a display title to its filing form: NUL padding and
// extra whitespace stripped, diacritics folded, and a leading article
// moved to the end.
// "The Éclair Affair" -> "Eclair Affair, The".
func SortTitle(title string) string {
	t := foldMarks(Clean(title))
	if t == "" {
		return ""
	}

	first, rest, found := strings.Cut(t, " ")
	if found && articles[strings.ToLower(first)] && rest != "" {
		return rest + ", " + first
	}
	return t
}

// Clean strips NUL bytes and collapses runs of whitespace. Some audio
// tag parsers hand back strings with embedded null terminators.
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// foldMarks decomposes the string and drops combining marks so accented
// characters sort next to their base letters. Scripts without
// decompositions pass through untouched.
func foldMarks(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFKD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
