package dp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/teatak/latseg/lattice"
)

// ExpectationResult holds the expected count of an example, e.g. its
// expected number of units.
type ExpectationResult struct {
	Mixture
	Expected   float64   // posterior-weighted over components
	Components []float64 // [K] expected count per component
}

// LengthCount counts every edge of lat except BOS, so the expectation is
// the expected number of units.
func LengthCount(lat *lattice.Lattice) CountFunc {
	return func(b, m, l int) float64 {
		if lat.IsBOS(b, m, l) {
			return 0
		}
		return 1
	}
}

func expectationComponent(lat *lattice.Lattice, w []*mat.Dense, count CountFunc) Pair {
	s := ExpectationSemiring{Count: count}
	prev := s.Zero()
	for b, blk := range blocks(lat, w) {
		if !blk.Chained {
			break
		}
		if b == 0 {
			prev = s.One()
		}
		prev = Expectation(blk, prev, count)[blk.Length]
	}
	return prev
}
