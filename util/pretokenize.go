package util

import "unicode"

// PreTokenize splits text on whitespace and separates runs of punctuation
// from the surrounding letters, so "don't stop." gives
// ["don", "'", "t", "stop", "."].
func PreTokenize(text string) []string {
	var tokens []string
	var current []rune
	inPunct := false

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}

	for _, r := range text {
		if unicode.IsSpace(r) {
			flush()
			continue
		}
		p := IsPunct(r)
		if len(current) > 0 && p != inPunct {
			flush()
		}
		inPunct = p
		current = append(current, r)
	}
	flush()
	return tokens
}
