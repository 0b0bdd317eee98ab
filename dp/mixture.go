package dp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Mixture combines per-component log-partitions. A single component is
// the trivial mixture with posterior 1.
type Mixture struct {
	LogZ         float64
	LogPosterior []float64 // [K] component log-partition minus LogZ
	Entropy      float64   // of the component posterior, in nats
}

func mix(logZ []float64) Mixture {
	mx := Mixture{LogZ: negInf, LogPosterior: make([]float64, len(logZ))}
	if len(logZ) > 0 {
		mx.LogZ = floats.LogSumExp(logZ)
	}
	for k, z := range logZ {
		if math.IsInf(mx.LogZ, -1) {
			mx.LogPosterior[k] = negInf
			continue
		}
		lp := z - mx.LogZ
		mx.LogPosterior[k] = lp
		if !math.IsInf(lp, -1) {
			mx.Entropy -= math.Exp(lp) * lp
		}
	}
	return mx
}

// Posterior returns the component posterior in probability space.
func (mx Mixture) Posterior() []float64 {
	p := make([]float64, len(mx.LogPosterior))
	for k, lp := range mx.LogPosterior {
		p[k] = math.Exp(lp)
	}
	return p
}

// mixMarginals weights per-component marginals by the posterior:
// log sum_k exp(logpost_k + marg_k) for every cell.
func mixMarginals(mx Mixture, comps []Component) []*mat.Dense {
	if len(comps) == 0 {
		return nil
	}
	out := make([]*mat.Dense, len(comps[0].Marginals))
	terms := make([]float64, len(comps))
	for b := range out {
		rows, cols := comps[0].Marginals[b].Dims()
		out[b] = mat.NewDense(rows, cols, nil)
		for m := 0; m < rows; m++ {
			for l := 0; l < cols; l++ {
				for k, c := range comps {
					terms[k] = mx.LogPosterior[k] + c.Marginals[b].At(m, l)
				}
				out[b].Set(m, l, floats.LogSumExp(terms))
			}
		}
	}
	return out
}
