package dp

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Edge is one valid lattice cell as seen by a semiring.
type Edge struct {
	Block, M, L int
	Weight      float64
}

// Semiring supplies the combine (Sum) and extend (Times) operators of the
// chart recurrence. Lift turns an edge into a value of the semiring.
type Semiring[V any] interface {
	Zero() V
	One() V
	Lift(e Edge) V
	Times(a, b V) V
	Sum(vs []V) V
}

var negInf = math.Inf(-1)

// logAddExp is log(exp(a) + exp(b)) computed from the larger argument.
func logAddExp(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// LogSemiring is the sum-product semiring in log space.
type LogSemiring struct{}

func (LogSemiring) Zero() float64              { return negInf }
func (LogSemiring) One() float64               { return 0 }
func (LogSemiring) Lift(e Edge) float64        { return e.Weight }
func (LogSemiring) Times(a, b float64) float64 { return a + b }

func (s LogSemiring) Sum(vs []float64) float64 {
	if len(vs) == 0 {
		return s.Zero()
	}
	return floats.LogSumExp(vs)
}

// Best is a Viterbi value: the best score, the number of edges on the best
// path, and the length index of its last edge (-1 for none).
type Best struct {
	Score float64
	Edges int
	Last  int
}

// MaxPlus is the max-product semiring with backpointers. Ties on score are
// broken towards fewer edges, then towards the longer last edge.
type MaxPlus struct{}

func (MaxPlus) Zero() Best { return Best{Score: negInf, Last: -1} }
func (MaxPlus) One() Best  { return Best{Last: -1} }

func (MaxPlus) Lift(e Edge) Best { return Best{Score: e.Weight, Edges: 1, Last: e.M} }

func (MaxPlus) Times(a, b Best) Best {
	return Best{Score: a.Score + b.Score, Edges: a.Edges + b.Edges, Last: b.Last}
}

func (s MaxPlus) Sum(vs []Best) Best {
	best := s.Zero()
	for _, v := range vs {
		if better(v, best) {
			best = v
		}
	}
	return best
}

func better(a, b Best) bool {
	switch {
	case math.IsInf(a.Score, -1):
		return false
	case a.Score != b.Score:
		return a.Score > b.Score
	case a.Edges != b.Edges:
		return a.Edges < b.Edges
	default:
		return a.Last > b.Last
	}
}

// Pair is an expectation value in log space: P is the log path mass and R
// the log of the mass-weighted count.
type Pair struct {
	P, R float64
}

// CountFunc gives the non-negative count an edge contributes, e.g. 1 for
// path length.
type CountFunc func(b, m, l int) float64

// UnitCount counts every edge once.
func UnitCount(b, m, l int) float64 { return 1 }

// ExpectationSemiring is the first-order expectation semiring over
// (mass, mass * count) pairs, kept in log space.
type ExpectationSemiring struct {
	Count CountFunc
}

func (ExpectationSemiring) Zero() Pair { return Pair{P: negInf, R: negInf} }
func (ExpectationSemiring) One() Pair  { return Pair{P: 0, R: negInf} }

func (s ExpectationSemiring) Lift(e Edge) Pair {
	c := 1.0
	if s.Count != nil {
		c = s.Count(e.Block, e.M, e.L)
	}
	return Pair{P: e.Weight, R: e.Weight + math.Log(c)}
}

func (ExpectationSemiring) Times(a, b Pair) Pair {
	return Pair{P: a.P + b.P, R: logAddExp(a.P+b.R, a.R+b.P)}
}

func (s ExpectationSemiring) Sum(vs []Pair) Pair {
	if len(vs) == 0 {
		return s.Zero()
	}
	ps := make([]float64, len(vs))
	rs := make([]float64, len(vs))
	for i, v := range vs {
		ps[i], rs[i] = v.P, v.R
	}
	return Pair{P: floats.LogSumExp(ps), R: floats.LogSumExp(rs)}
}

// Expected returns R/P in probability space, or 0 when the mass is zero.
func (p Pair) Expected() float64 {
	if math.IsInf(p.P, -1) || math.IsInf(p.R, -1) {
		return 0
	}
	return math.Exp(p.R - p.P)
}
