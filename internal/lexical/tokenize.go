package lexical

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase word tokens, dropping punctuation.
//
// The same scheme is applied to chunk texts at build time and to queries at
// search time, so term matching is exact after normalization. Digits are kept
// because study material is full of meaningful numbers (dates, formulas).
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
