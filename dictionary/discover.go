package dictionary

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/pkg/errors"

	"github.com/teatak/latseg/util"
)

// Count is a candidate unit with its corpus frequency.
type Count struct {
	Unit string
	Freq int
}

// DiscoverOptions controls candidate extraction from raw text.
type DiscoverOptions struct {
	Threshold          int // minimum frequency for units longer than one character
	MaxGram            int
	DummyPrefix        string
	ContinuationPrefix string
}

// Discover counts every substring of up to MaxGram characters inside each
// pre-token. Single characters are always kept so the resulting vocabulary
// can segment the corpus it was built from.
func Discover(r io.Reader, opts DiscoverOptions) ([]Count, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	counts := make(map[string]int)
	for scanner.Scan() {
		for _, word := range util.PreTokenize(scanner.Text()) {
			runes := []rune(opts.DummyPrefix + word)
			n := len(runes)
			for i := 0; i < n; i++ {
				for k := 1; k <= opts.MaxGram && i+k <= n; k++ {
					w := string(runes[i : i+k])
					if i > 0 {
						w = opts.ContinuationPrefix + w
					}
					counts[w]++
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "discover: reading corpus")
	}

	var out []Count
	for w, c := range counts {
		if c >= opts.Threshold || len([]rune(w)) == 1 || isSingle(w, opts.ContinuationPrefix) {
			out = append(out, Count{Unit: w, Freq: c})
		}
	}
	sortCounts(out)
	return out, nil
}

func isSingle(w, prefix string) bool {
	if prefix == "" || len(w) <= len(prefix) || w[:len(prefix)] != prefix {
		return false
	}
	return len([]rune(w[len(prefix):])) == 1
}

// FromSentencePiece encodes the corpus with an existing SentencePiece model
// and counts the pieces it produces, giving a seed vocabulary whose units
// follow that model's conventions (e.g. the "▁" word marker).
func FromSentencePiece(modelPath string, corpus io.Reader) ([]Count, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece processor from %q", modelPath)
	}

	counts := make(map[string]int)
	scanner := bufio.NewScanner(corpus)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		for _, tok := range proc.Encode(scanner.Text()) {
			if tok.Text != "" {
				counts[tok.Text]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "sentencepiece: reading corpus")
	}

	out := make([]Count, 0, len(counts))
	for w, c := range counts {
		out = append(out, Count{Unit: w, Freq: c})
	}
	sortCounts(out)
	return out, nil
}

func sortCounts(cs []Count) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Freq != cs[j].Freq {
			return cs[i].Freq > cs[j].Freq
		}
		return cs[i].Unit < cs[j].Unit
	})
}

// WriteCounts writes counts as a vocabulary file whose single weight column
// is the unigram log-probability log(freq/total).
func WriteCounts(w io.Writer, counts []Count) error {
	total := 0
	for _, c := range counts {
		total += c.Freq
	}
	bw := bufio.NewWriter(w)
	for _, c := range counts {
		lp := math.Log(float64(c.Freq) / float64(total))
		if _, err := fmt.Fprintf(bw, "%s\t%.6f\n", c.Unit, lp); err != nil {
			return errors.Wrap(err, "writing vocabulary")
		}
	}
	return bw.Flush()
}
