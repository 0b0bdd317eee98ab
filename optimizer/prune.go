package optimizer

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/weights"
)

// Prune drops learnable units whose expected count is below threshold and
// returns a table over the reduced vocabulary that carries the surviving
// weights, together with the dropped units. Designated units and single
// characters are never dropped, so every text stays segmentable.
func Prune(table *weights.Table, counts []float64, threshold float64) (*weights.Table, []string, error) {
	dict := table.Dictionary()
	if len(counts) != dict.Len() {
		return nil, nil, errors.WithMessagef(weights.ErrShape, "%d counts for %d units", len(counts), dict.Len())
	}
	var units, dropped []string
	var rows [][]float64
	for id := 0; id < dict.Len(); id++ {
		u := dict.Unit(id)
		if dict.Learnable(id) && id != dict.UnkID && dict.UnitLen(u) > 1 && counts[id] < threshold {
			dropped = append(dropped, u)
			continue
		}
		row := make([]float64, table.Components())
		for k := range row {
			row[k] = table.LogWeight(id, k)
		}
		units = append(units, u)
		rows = append(rows, row)
	}
	if len(dropped) == 0 {
		return table, nil, nil
	}

	reduced, err := dictionary.New(units, dict.Options())
	if err != nil {
		return nil, nil, errors.WithMessage(err, "prune")
	}
	next, err := weights.FromRows(reduced, rows, table.Options())
	if err != nil {
		return nil, nil, errors.WithMessage(err, "prune")
	}
	klog.V(1).Infof("[prune] dropped %d of %d units below expected count %g", len(dropped), dict.Len(), threshold)
	return next, dropped, nil
}

// PruneStraddling removes candidates that cross a word boundary of some
// feedback line. A feedback line is a gold segmentation with words
// separated by spaces; a candidate covering the end of one word and the
// start of the next contradicts it.
func PruneStraddling(counts []dictionary.Count, feedback []string, prefix string) []dictionary.Count {
	toRemove := make(map[string]bool)
	for _, line := range feedback {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		runesFull := []rune(strings.Join(parts, ""))
		boundaries := make([]int, 0, len(parts)-1)
		currentLen := 0
		for i := 0; i < len(parts)-1; i++ {
			currentLen += len([]rune(parts[i]))
			boundaries = append(boundaries, currentLen)
		}

		n := len(runesFull)
		for start := 0; start < n; start++ {
			for end := start + 2; end <= n; end++ {
				for _, b := range boundaries {
					if start < b && b < end {
						sub := string(runesFull[start:end])
						toRemove[sub] = true
						toRemove[prefix+sub] = true
						break
					}
				}
			}
		}
	}
	if len(toRemove) == 0 {
		return counts
	}

	out := counts[:0:0]
	for _, c := range counts {
		if toRemove[c.Unit] {
			klog.V(2).Infof("[prune] %q straddles a feedback boundary", c.Unit)
			continue
		}
		out = append(out, c)
	}
	return out
}
