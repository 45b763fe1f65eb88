package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares s for comparison:
//
//  1. Canonical composition (NFC), so "e" + U+0301 and "é" compare equal.
//  2. Full Unicode case folding ("Straße" becomes "strasse").
//  3. Every rune that is not a letter, digit, combining mark or whitespace is
//     dropped. Letters of every script keep their diacritics; combining marks
//     are kept because Indic and Arabic scripts spell vowels with them.
//  4. Whitespace runs collapse to a single space and the result is trimmed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// A Caser carries state, so each call gets its own.
	folded := cases.Fold().String(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokenize splits a normalised string into its words. Empty tokens are never
// returned.
func Tokenize(s string) []string {
	return strings.Fields(s)
}
