package optimizer

import (
	"sort"
	"strings"

	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/util"
)

// word is a candidate under the form it is compared by: the continuation
// prefix is split off so prefixed and word-initial units never mix.
type word struct {
	cont bool
	body string
	freq int
}

func (w word) key() string {
	if w.cont {
		return "\x00" + w.body
	}
	return w.body
}

// Clean filters discovered candidates before training. Multi-character
// candidates containing punctuation are dropped, as is a candidate that is
// nearly always seen inside a longer one (its extension is at least ratio
// times as frequent from the front or the back), and a candidate that is a
// rare one-character extension of a much more frequent unit. Single
// characters always survive.
func Clean(counts []dictionary.Count, ratio float64, prefix string) []dictionary.Count {
	var words, singles []word
	for _, c := range counts {
		if c.Freq <= 0 {
			continue
		}
		w := word{body: c.Unit, freq: c.Freq}
		if prefix != "" && len(c.Unit) > len(prefix) && strings.HasPrefix(c.Unit, prefix) {
			w.cont, w.body = true, c.Unit[len(prefix):]
		}
		if len([]rune(w.body)) <= 1 {
			singles = append(singles, w)
			continue
		}
		if util.ContainsPunctuation(w.body) {
			continue
		}
		words = append(words, w)
	}

	words = prunePrefixes(words, ratio)
	words = pruneSuffixes(words, ratio)
	words = pruneNoisyExtensions(words, prefix != "")

	out := make([]dictionary.Count, 0, len(singles)+len(words))
	for _, w := range append(singles, words...) {
		unit := w.body
		if w.cont {
			unit = prefix + unit
		}
		out = append(out, dictionary.Count{Unit: unit, Freq: w.freq})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Freq != out[j].Freq {
			return out[i].Freq > out[j].Freq
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}

// pruneNoisyExtensions drops "x + unit" and "unit + x" when unit is more
// than five times as frequent, e.g. a location character glued to a brand.
// With continuation units the front-stripped form is looked up prefixed.
func pruneNoisyExtensions(words []word, continuation bool) []word {
	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[w.key()] = w.freq
	}

	keep := make([]bool, len(words))
	for i, w := range words {
		keep[i] = true
		runes := []rune(w.body)
		if len(runes) <= 2 {
			continue
		}

		front := word{cont: continuation, body: string(runes[1:])}
		if f, ok := freq[front.key()]; ok && float64(f)/float64(w.freq) > 5.0 {
			keep[i] = false
			continue
		}

		if isProtectedSuffix(runes[len(runes)-1]) {
			continue
		}
		tail := word{cont: w.cont, body: string(runes[:len(runes)-1])}
		if f, ok := freq[tail.key()]; ok && float64(f)/float64(w.freq) > 5.0 {
			keep[i] = false
		}
	}
	return filterWords(words, keep)
}

func isProtectedSuffix(r rune) bool {
	return strings.ContainsRune("市省区县店站路里院校园", r)
}

// prunePrefixes drops a candidate when the next candidate in sorted order
// extends it and is at least ratio times as frequent.
func prunePrefixes(words []word, ratio float64) []word {
	sort.Slice(words, func(i, j int) bool {
		return words[i].key() < words[j].key()
	})

	keep := make([]bool, len(words))
	for i := range keep {
		keep[i] = true
	}
	for i := 0; i < len(words)-1; i++ {
		curr, next := words[i], words[i+1]
		if curr.cont == next.cont && strings.HasPrefix(next.body, curr.body) {
			if float64(next.freq)/float64(curr.freq) >= ratio {
				keep[i] = false
			}
		}
	}
	return filterWords(words, keep)
}

func pruneSuffixes(words []word, ratio float64) []word {
	for i := range words {
		words[i].body = reverse(words[i].body)
	}
	cleaned := prunePrefixes(words, ratio)
	for i := range cleaned {
		cleaned[i].body = reverse(cleaned[i].body)
	}
	return cleaned
}

func filterWords(words []word, keep []bool) []word {
	var res []word
	for i, w := range words {
		if keep[i] {
			res = append(res, w)
		}
	}
	return res
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
