package library

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/storylineapp/storyline-core/internal/normalize"
)

// descriptionMarkdown converts a server-supplied description to
// markdown. Plain text passes through untouched; conversion failures
// fall back to the raw string.
func descriptionMarkdown(s string) string {
	if !containsHTML(s) {
		return s
	}
	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}

// containsHTML is a cheap heuristic: any angle-bracket tag pair.
func containsHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	return open >= 0 && strings.IndexByte(s[open:], '>') > 0
}

// sortTitle delegates to the normalizer so mirror and scanner records
// sort the same way.
func sortTitle(title string) string {
	return normalize.SortTitle(title)
}
