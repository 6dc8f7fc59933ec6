// Package normalize canonicalizes free text so that surface variants of the
// same name compare equal.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/rangetable"
	"golang.org/x/text/width"
)

// punctuation is the fixed set of half-width and full-width marks removed
// before comparison.
var punctuation = rangetable.New(
	'。', '、', '.', ',', '!', '?', '！', '？',
	'-', '(', ')', '（', '）', '[', ']', '「', '」',
	'・', '_', '/', '〜', '~', '\'', '"',
)

const (
	hiraganaFirst = 'ぁ' // U+3041
	hiraganaLast  = 'ゖ' // U+3096
	kanaOffset    = 'ァ' - 'ぁ'
)

// Text canonicalizes s for matching by:
//  1. Folding width (full-width ASCII to half-width, half-width kana to full-width)
//  2. Lower-casing
//  3. Removing all whitespace
//  4. Stripping the fixed punctuation set
//  5. Mapping hiragana to katakana rune by rune
//
// Runes outside the mapped ranges pass through unchanged.
func Text(s string) string {
	if s == "" {
		return ""
	}

	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(
		width.Fold,
		cases.Lower(language.Und),
		runes.Remove(runes.Predicate(unicode.IsSpace)),
		runes.Remove(runes.In(punctuation)),
		runes.Map(toKatakana),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return fallback(s)
	}
	return out
}

// toKatakana shifts a hiragana rune into the katakana block.
func toKatakana(r rune) rune {
	if r >= hiraganaFirst && r <= hiraganaLast {
		return r + kanaOffset
	}
	return r
}

// fallback applies the same steps without x/text transformers.
func fallback(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) || unicode.Is(punctuation, r) {
			continue
		}
		b.WriteRune(toKatakana(r))
	}
	return b.String()
}
