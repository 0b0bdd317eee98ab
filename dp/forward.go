package dp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/teatak/latseg/lattice"
)

// Component is the forward-backward output of one mixture component.
type Component struct {
	LogZ      float64
	BlockLogZ []float64    // [N] local log-partition, -Inf for padding blocks
	Marginals []*mat.Dense // [N] M x L edge log-marginals, -Inf where invalid
}

// ForwardResult is the forward-backward output of one example.
type ForwardResult struct {
	Mixture
	Components []Component
	Marginals  []*mat.Dense // [N] M x L posterior-weighted log-marginals
}

func forwardComponent(lat *lattice.Lattice, w []*mat.Dense, temperature float64) Component {
	s := LogSemiring{}
	c := Component{
		BlockLogZ: make([]float64, lat.Blocks),
		Marginals: make([]*mat.Dense, lat.Blocks),
	}
	bs := blocks(lat, w)
	// each block starts from One; the previous block's final mass is
	// handed over the connector column as a scalar
	c.LogZ = s.Zero()
	for b, blk := range bs {
		c.BlockLogZ[b] = negInf
		if !blk.Chained {
			continue
		}
		c.BlockLogZ[b] = Forward(blk, s.One())[blk.Length]
		if b == 0 {
			c.LogZ = s.One()
		}
		c.LogZ = s.Times(c.LogZ, c.BlockLogZ[b])
	}

	if temperature != 1 {
		bs = blocks(lat, scale(w, 1/temperature))
	}
	for b, blk := range bs {
		marg := mat.NewDense(lat.MaxUnit, lat.BlockSize, nil)
		fill(marg, negInf)
		c.Marginals[b] = marg
		if !blk.Chained || blk.Length == 0 || math.IsInf(c.LogZ, -1) {
			continue
		}
		alpha := Forward(blk, s.One())
		beta := Backward(blk)
		z := alpha[blk.Length]
		if math.IsInf(z, -1) {
			continue
		}
		for m := 0; m < lat.MaxUnit; m++ {
			for l := m; l < blk.Length; l++ {
				if !blk.Mask[m][l] {
					continue
				}
				v := alpha[lattice.Start(m, l)] + blk.Weights.At(m, l) + beta[l+1] - z
				marg.Set(m, l, math.Min(v, 0))
			}
		}
	}
	return c
}

func scale(w []*mat.Dense, f float64) []*mat.Dense {
	out := make([]*mat.Dense, len(w))
	for b, m := range w {
		var d mat.Dense
		d.Scale(f, m)
		out[b] = &d
	}
	return out
}

func fill(d *mat.Dense, v float64) {
	r, c := d.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Set(i, j, v)
		}
	}
}

// UnitCounts sums exp(log-posterior + marginal) per unit id and component,
// i.e. the expected number of times each unit is used. The BOS edge is not
// counted. The result is vocab x K.
func (r *ForwardResult) UnitCounts(lat *lattice.Lattice, vocab int) (*mat.Dense, error) {
	K := len(r.Components)
	counts := mat.NewDense(vocab, K, nil)
	for k, c := range r.Components {
		if len(c.Marginals) != len(lat.IDs) {
			return nil, &InvariantError{Tensor: "marginals", Values: []float64{float64(len(c.Marginals)), float64(len(lat.IDs))},
				Reason: "block count differs from unit-id tensor"}
		}
		if math.IsInf(r.LogPosterior[k], -1) {
			continue
		}
		for b, marg := range c.Marginals {
			if rows, cols := marg.Dims(); rows != len(lat.IDs[b]) || cols != len(lat.IDs[b][0]) {
				return nil, &InvariantError{Tensor: "marginals", Values: []float64{float64(rows), float64(cols)},
					Reason: "block shape differs from unit-id tensor"}
			}
			for m := range lat.IDs[b] {
				for l, id := range lat.IDs[b][m] {
					if !lat.Valid(b, m, l) || lat.IsBOS(b, m, l) {
						continue
					}
					v := marg.At(m, l)
					if math.IsInf(v, -1) {
						continue
					}
					if id < 0 || id >= vocab {
						return nil, &InvariantError{Tensor: "unit ids", Values: []float64{float64(id)}, Reason: "id outside vocabulary"}
					}
					counts.Set(id, k, counts.At(id, k)+math.Exp(r.LogPosterior[k]+v))
				}
			}
		}
	}
	return counts, nil
}
