package util

import "unicode"

// cjkSymbols covers the CJK Symbols and Punctuation block and the whole
// Halfwidth and Fullwidth Forms block.
var cjkSymbols = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3000, Hi: 0x303F, Stride: 1},
		{Lo: 0xFF00, Hi: 0xFFEF, Stride: 1},
	},
}

// IsPunct reports whether r separates pre-tokens: Unicode punctuation,
// symbols, and the CJK symbol blocks.
func IsPunct(r rune) bool {
	return unicode.In(r, unicode.P, unicode.S, cjkSymbols)
}

// IsPunctuation reports whether s is made only of punctuation runes. The
// empty string counts as punctuation.
func IsPunctuation(s string) bool {
	for _, r := range s {
		if !IsPunct(r) {
			return false
		}
	}
	return true
}

// ContainsPunctuation reports whether any rune of s is punctuation.
func ContainsPunctuation(s string) bool {
	for _, r := range s {
		if IsPunct(r) {
			return true
		}
	}
	return false
}
