// Package dp runs the chart dynamic programs over segmentation lattices.
//
// Every algorithm is one recurrence over a block's positions 0..Length:
//
//	chart[t] = Sum over valid (m, t-1) of Times(chart[t-m-1], Lift(edge))
//
// parametrized by a Semiring. The log semiring gives the partition
// function (and, right to left, the suffix masses used for marginals), the
// max-plus semiring gives Viterbi scores with backpointers, and the
// expectation semiring gives expected counts such as path length.
//
// Blocks of one example are processed in order and chained through a
// single value handed from the final position of block b-1 to position 0
// of block b. Examples are independent; Engine runs batches in parallel.
package dp

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/teatak/latseg/lattice"
)

// Direction selects the order a chart is filled in.
type Direction int

const (
	// LeftToRight fills prefixes: chart[t] covers positions 0..t.
	LeftToRight Direction = iota
	// RightToLeft fills suffixes: chart[s] covers positions s..Length.
	RightToLeft
)

// Block is the view of one lattice block the recurrence runs on.
type Block struct {
	Index   int
	Weights *mat.Dense // M x L log-weights
	Mask    [][]bool   // M x L edge validity
	Length  int        // real columns
	Chained bool       // position 0 takes the previous block's final value
}

// MaxUnit returns M.
func (blk Block) MaxUnit() int { return len(blk.Mask) }

func (blk Block) edge(m, l int) Edge {
	return Edge{Block: blk.Index, M: m, L: l, Weight: blk.Weights.At(m, l)}
}

// Run fills the chart of blk under s. For LeftToRight, init is the value
// at position 0; for RightToLeft, it is the value at position Length.
// Unreachable positions hold s.Zero().
func Run[V any](s Semiring[V], blk Block, init V, dir Direction) []V {
	n := blk.Length
	chart := make([]V, n+1)
	vals := make([]V, 0, blk.MaxUnit())

	if dir == LeftToRight {
		chart[0] = init
		for t := 1; t <= n; t++ {
			l := t - 1
			vals = vals[:0]
			for m := 0; m < blk.MaxUnit() && m <= l; m++ {
				if !blk.Mask[m][l] {
					continue
				}
				vals = append(vals, s.Times(chart[lattice.Start(m, l)], s.Lift(blk.edge(m, l))))
			}
			chart[t] = s.Sum(vals)
		}
		return chart
	}

	chart[n] = init
	for start := n - 1; start >= 0; start-- {
		vals = vals[:0]
		for m := 0; m < blk.MaxUnit() && start+m < n; m++ {
			l := start + m
			if !blk.Mask[m][l] {
				continue
			}
			vals = append(vals, s.Times(s.Lift(blk.edge(m, l)), chart[l+1]))
		}
		chart[start] = s.Sum(vals)
	}
	return chart
}

// Forward returns the log prefix masses of blk starting from init.
func Forward(blk Block, init float64) []float64 {
	return Run[float64](LogSemiring{}, blk, init, LeftToRight)
}

// Backward returns the log suffix masses of blk.
func Backward(blk Block) []float64 {
	s := LogSemiring{}
	return Run[float64](s, blk, s.One(), RightToLeft)
}

// Viterbi returns the best prefix values of blk. chart[t].Last is the
// backpointer of position t.
func Viterbi(blk Block, init Best) []Best {
	return Run[Best](MaxPlus{}, blk, init, LeftToRight)
}

// Expectation returns the prefix (mass, count) pairs of blk.
func Expectation(blk Block, init Pair, count CountFunc) []Pair {
	return Run[Pair](ExpectationSemiring{Count: count}, blk, init, LeftToRight)
}

// blocks returns the views of every block of lat under one component's
// weights. Length is the run of emission columns and Chained is the
// connector column; padding blocks have neither.
func blocks(lat *lattice.Lattice, w []*mat.Dense) []Block {
	out := make([]Block, lat.Blocks)
	for b := range out {
		out[b] = Block{
			Index:   b,
			Weights: w[b],
			Mask:    lat.EdgeMask[b],
			Length:  emitted(lat.Emission[b]),
			Chained: lat.Connector[b][0],
		}
	}
	return out
}

func emitted(cols []bool) int {
	n := 0
	for n < len(cols) && cols[n] {
		n++
	}
	return n
}

// checkMasks verifies that the column masks of lat agree with its block
// lengths: emission covers exactly the first Lengths[b] columns, and the
// connector column is set on text blocks only, at column 0.
func checkMasks(lat *lattice.Lattice) error {
	if len(lat.Emission) != lat.Blocks || len(lat.Connector) != lat.Blocks || len(lat.Lengths) != lat.Blocks {
		return errors.WithMessagef(ErrShape, "column masks cover %d/%d blocks, lengths %d, lattice has %d",
			len(lat.Emission), len(lat.Connector), len(lat.Lengths), lat.Blocks)
	}
	for b := 0; b < lat.Blocks; b++ {
		if len(lat.Emission[b]) != lat.BlockSize || len(lat.Connector[b]) != lat.BlockSize {
			return errors.WithMessagef(ErrShape, "block %d column masks are not %d wide", b, lat.BlockSize)
		}
		n := emitted(lat.Emission[b])
		if n != lat.Lengths[b] {
			return errors.WithMessagef(ErrShape, "block %d emits %d columns, length is %d", b, n, lat.Lengths[b])
		}
		for l := n; l < lat.BlockSize; l++ {
			if lat.Emission[b][l] {
				return errors.WithMessagef(ErrShape, "block %d emission has a gap before column %d", b, l)
			}
		}
		text := b < lat.NumBlocks
		if lat.Connector[b][0] != text || (!text && n > 0) {
			return errors.WithMessagef(ErrShape, "block %d connector %v, text block %v, length %d", b, lat.Connector[b][0], text, n)
		}
		for l := 1; l < lat.BlockSize; l++ {
			if lat.Connector[b][l] {
				return errors.WithMessagef(ErrShape, "block %d connector set at column %d", b, l)
			}
		}
	}
	return nil
}
