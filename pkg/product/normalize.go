package product

import (
	"strings"
	"unicode"
)

// textReplacer maps typographic characters that commonly leak in from
// catalog exports to their ASCII equivalents.
var textReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "❝", `"`, "❞", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "❛", "'", "❜", "'",
	"\u2013", "-", "\u2014", "-", "\u2015", "-",
	"…", "...",
	"•", "*",
	"\u00a0", " ",
	"\u200b", "",
	"\ufeff", "",
)

// NormalizeText replaces typographic punctuation, removes control and
// zero-width characters and collapses whitespace.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = textReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
