// Package textutil normalises user supplied text before it is persisted.
package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// Clean strips markup, converts to NFC and collapses runs of whitespace.
// Vietnamese input often arrives decomposed, so NFC keeps equal strings byte-equal.
func Clean(value string) string {
	stripped := strictPolicy.Sanitize(value)
	stripped = html.UnescapeString(stripped)
	return strings.Join(strings.Fields(norm.NFC.String(stripped)), " ")
}

// Digits keeps only the characters of value that are decimal digits, preserving a leading '+'.
func Digits(value string) string {
	trimmed := strings.TrimSpace(value)
	var b strings.Builder
	for i, r := range trimmed {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate shortens value to at most limit runes.
func Truncate(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
