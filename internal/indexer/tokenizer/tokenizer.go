// Package tokenizer splits document text into lower-cased word tokens.
// A word is a maximal run of ASCII letters, digits and underscores; every
// other byte separates words. There is no stemming and no Unicode
// normalization beyond case folding.
package tokenizer

import (
	"iter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tokens returns a lazy sequence over the words of text in their original
// order. The sequence can be ranged over any number of times; each range
// starts again from the beginning of text.
func Tokens(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		caser := cases.Lower(language.Und)
		start := -1
		for i := 0; i < len(text); i++ {
			if isWordByte(text[i]) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(caser.String(text[start:i])) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(caser.String(text[start:]))
		}
	}
}

// Normalize folds a query term the same way Tokens folds document words.
func Normalize(term string) string {
	return cases.Lower(language.Und).String(term)
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
