// Package lattice turns text into the bounded-width segmentation lattice
// consumed by the DP engine.
//
// A lattice has N blocks of L columns. Cell [b][m][l] describes the
// candidate edge of length m+1 that ends at column l of block b, i.e. the
// unit covering columns l-m..l. Every block is an independent DAG; the
// connector column (column 0) is where a block picks up the final state of
// the block before it.
package lattice

import "gonum.org/v1/gonum/mat"

// Lattice is the edge structure of one example.
type Lattice struct {
	Blocks    int // N
	MaxUnit   int // M
	BlockSize int // L

	IDs       [][][]int  // [N][M][L] vocabulary id, padding id where invalid
	EdgeMask  [][][]bool // [N][M][L] legal candidate edge
	Emission  [][]bool   // [N][L] real character column
	Connector [][]bool   // [N][L] column that links to the previous block
	Lengths   []int      // [N] number of real columns per block
	NumBlocks int        // blocks holding text; the rest are padding

	// BOS is set when column 0 of block 0 holds the synthetic BOS edge.
	BOS bool
	// Truncated is set when text did not fit into N blocks.
	Truncated bool

	// Causal is the shared edge-level mask a contextual scorer must honor.
	Causal *CausalMask

	Chars [][]rune // [N][L] column characters, 0 for BOS and padding
}

// Weights holds edge log-weights per mixture component and block,
// each an M x L matrix aligned with Lattice.IDs.
type Weights [][]*mat.Dense

// Components returns the mixture size K.
func (w Weights) Components() int { return len(w) }

// Clone deep-copies the weights.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, blocks := range w {
		out[k] = make([]*mat.Dense, len(blocks))
		for b, m := range blocks {
			out[k][b] = mat.DenseCopyOf(m)
		}
	}
	return out
}

// NewWeights allocates K x N matrices filled with value.
func NewWeights(k, n, m, l int, value float64) Weights {
	w := make(Weights, k)
	for c := range w {
		w[c] = make([]*mat.Dense, n)
		for b := range w[c] {
			data := make([]float64, m*l)
			for i := range data {
				data[i] = value
			}
			w[c][b] = mat.NewDense(m, l, data)
		}
	}
	return w
}

// Start returns the first column covered by the edge at (m, l).
func Start(m, l int) int { return l - m }

// IsBOS reports whether cell (b, m, l) is the synthetic BOS edge.
func (lat *Lattice) IsBOS(b, m, l int) bool {
	return lat.BOS && b == 0 && m == 0 && l == 0
}

// Valid reports whether cell (b, m, l) is a legal edge.
func (lat *Lattice) Valid(b, m, l int) bool {
	return lat.EdgeMask[b][m][l]
}

// NumChars returns the number of real text characters, BOS excluded.
func (lat *Lattice) NumChars() int {
	n := 0
	for b := 0; b < lat.NumBlocks; b++ {
		n += lat.Lengths[b]
	}
	if lat.BOS && lat.NumBlocks > 0 {
		n--
	}
	return n
}

// NumEdges counts the valid edges, BOS included.
func (lat *Lattice) NumEdges() int {
	n := 0
	for b := range lat.EdgeMask {
		for m := range lat.EdgeMask[b] {
			for _, v := range lat.EdgeMask[b][m] {
				if v {
					n++
				}
			}
		}
	}
	return n
}

// Text returns the characters of block b.
func (lat *Lattice) Text(b int) string {
	var rs []rune
	for l := 0; l < lat.Lengths[b]; l++ {
		if c := lat.Chars[b][l]; c != 0 {
			rs = append(rs, c)
		}
	}
	return string(rs)
}
