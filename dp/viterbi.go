package dp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/teatak/latseg/lattice"
)

// Path is the best segmentation of one example under one component.
type Path struct {
	Score float64
	Edges int
	// Back[b][t] is the length index m of the best edge ending at position
	// t of block b, i.e. cell (m, t-1); -1 at position 0 and where
	// unreachable.
	Back [][]int
}

// ViterbiResult is the best path over all mixture components.
type ViterbiResult struct {
	Path
	Component int
	Scores    []float64 // [K] best score per component
}

func viterbiComponent(lat *lattice.Lattice, w []*mat.Dense) Path {
	s := MaxPlus{}
	p := Path{Back: make([][]int, lat.Blocks)}
	prev := s.Zero()
	for b, blk := range blocks(lat, w) {
		if !blk.Chained {
			continue
		}
		if b == 0 {
			prev = s.One()
		}
		// the connector column starts from the previous block's final value
		chart := Viterbi(blk, Best{Score: prev.Score, Edges: prev.Edges, Last: -1})
		back := make([]int, len(chart))
		for t, v := range chart {
			back[t] = v.Last
		}
		back[0] = -1
		p.Back[b] = back
		prev = chart[blk.Length]
	}
	p.Score, p.Edges = prev.Score, prev.Edges
	return p
}

// pickComponent returns the component with the best score, the lowest
// index on ties.
func pickComponent(paths []Path) int {
	best := 0
	for k := 1; k < len(paths); k++ {
		if paths[k].Score > paths[best].Score {
			best = k
		}
	}
	return best
}
