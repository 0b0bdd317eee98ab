package segmenter

import (
	"strings"

	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/dp"
	"github.com/teatak/latseg/lattice"
)

// Segment is one decoded unit.
type Segment struct {
	ID    int
	Block int
	Start int // first column
	End   int // last column
	Text  string
}

// Decode walks the backpointers of every block from its final column back
// to column 0 and returns the unit ids left to right, blocks in order.
// Blocks without a path contribute nothing.
func Decode(lat *lattice.Lattice, path dp.Path) []int {
	segs := DecodeSegments(lat, path)
	ids := make([]int, len(segs))
	for i, s := range segs {
		ids[i] = s.ID
	}
	return ids
}

// DecodeSegments is Decode keeping each unit's position and covered text.
// The text of the BOS edge is empty.
func DecodeSegments(lat *lattice.Lattice, path dp.Path) []Segment {
	var out []Segment
	for b := 0; b < lat.NumBlocks && b < len(path.Back); b++ {
		back := path.Back[b]
		var rev []Segment
		for pos := lat.Lengths[b]; pos > 0; {
			m := back[pos]
			if m < 0 {
				rev = nil
				break
			}
			l := pos - 1
			start := lattice.Start(m, l)
			rev = append(rev, Segment{
				ID:    lat.IDs[b][m][l],
				Block: b,
				Start: start,
				End:   l,
				Text:  textOf(lat, b, start, l),
			})
			pos = start
		}
		for i := len(rev) - 1; i >= 0; i-- {
			out = append(out, rev[i])
		}
	}
	return out
}

func textOf(lat *lattice.Lattice, b, start, end int) string {
	var sb strings.Builder
	for _, r := range lat.Chars[b][start : end+1] {
		if r != 0 {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// FilterPadding drops every occurrence of the padding id.
func FilterPadding(ids []int, padID int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != padID {
			out = append(out, id)
		}
	}
	return out
}

// Render maps ids to unit strings, skipping padding and specials. With
// merge set, a unit carrying the continuation prefix is stripped of it and
// glued to the previous string.
func Render(dict *dictionary.Dictionary, ids []int, merge bool) []string {
	prefix := dict.ContinuationPrefix()
	var out []string
	for _, id := range ids {
		if dict.IsPadding(id) || dict.IsSpecial(id) {
			continue
		}
		unit := dict.Unit(id)
		if merge && prefix != "" && len(unit) > len(prefix) && strings.HasPrefix(unit, prefix) {
			piece := unit[len(prefix):]
			if n := len(out); n > 0 {
				out[n-1] += piece
				continue
			}
			unit = piece
		}
		out = append(out, unit)
	}
	return out
}
