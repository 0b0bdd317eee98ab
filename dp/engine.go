package dp

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/lattice"
)

// Engine runs the DP passes over whole examples and batches. It holds no
// state between calls.
type Engine struct {
	// Temperature divides edge weights before marginals are computed.
	// Zero means 1.
	Temperature float64
	// Workers bounds batch parallelism. Zero means GOMAXPROCS.
	Workers int
}

// NewEngine returns an engine configured from cfg.
func NewEngine(cfg config.Config) *Engine {
	return &Engine{Temperature: cfg.MarginalTemperature, Workers: cfg.Workers}
}

func (e *Engine) temperature() float64 {
	if e.Temperature <= 0 {
		return 1
	}
	return e.Temperature
}

// checkShape verifies the column masks of lat and that w has K >= 1
// components of N blocks of M x L.
func checkShape(lat *lattice.Lattice, w lattice.Weights) error {
	if err := checkMasks(lat); err != nil {
		return err
	}
	if len(w) == 0 {
		return errors.WithMessage(ErrShape, "no mixture components")
	}
	for k, blocks := range w {
		if len(blocks) != lat.Blocks {
			return errors.WithMessagef(ErrShape, "component %d has %d blocks, lattice has %d", k, len(blocks), lat.Blocks)
		}
		for b, m := range blocks {
			if r, c := m.Dims(); r != lat.MaxUnit || c != lat.BlockSize {
				return errors.WithMessagef(ErrShape, "component %d block %d is %dx%d, want %dx%d", k, b, r, c, lat.MaxUnit, lat.BlockSize)
			}
		}
	}
	return nil
}

// Forward computes the log-partition, the component posterior and the
// edge marginals of one example.
func (e *Engine) Forward(lat *lattice.Lattice, w lattice.Weights) (*ForwardResult, error) {
	return e.forward(0, lat, w)
}

func (e *Engine) forward(example int, lat *lattice.Lattice, w lattice.Weights) (*ForwardResult, error) {
	if err := checkShape(lat, w); err != nil {
		return nil, errors.WithMessagef(err, "example %d", example)
	}
	r := &ForwardResult{Components: make([]Component, len(w))}
	logZ := make([]float64, len(w))
	for k := range w {
		r.Components[k] = forwardComponent(lat, w[k], e.temperature())
		logZ[k] = r.Components[k].LogZ
	}
	if floats.HasNaN(logZ) {
		return nil, &InvariantError{Example: example, Tensor: "log-partition", Values: logZ, Reason: "not a number"}
	}
	r.Mixture = mix(logZ)
	r.Marginals = mixMarginals(r.Mixture, r.Components)
	return r, nil
}

// Viterbi finds the best path of one example.
func (e *Engine) Viterbi(lat *lattice.Lattice, w lattice.Weights) (*ViterbiResult, error) {
	return e.viterbi(0, lat, w)
}

func (e *Engine) viterbi(example int, lat *lattice.Lattice, w lattice.Weights) (*ViterbiResult, error) {
	if err := checkShape(lat, w); err != nil {
		return nil, errors.WithMessagef(err, "example %d", example)
	}
	paths := make([]Path, len(w))
	scores := make([]float64, len(w))
	for k := range w {
		paths[k] = viterbiComponent(lat, w[k])
		scores[k] = paths[k].Score
	}
	if floats.HasNaN(scores) {
		return nil, &InvariantError{Example: example, Tensor: "viterbi score", Values: scores, Reason: "not a number"}
	}
	best := pickComponent(paths)
	return &ViterbiResult{Path: paths[best], Component: best, Scores: scores}, nil
}

// Expectation computes the expected count of one example. A nil count
// gives the expected number of units.
func (e *Engine) Expectation(lat *lattice.Lattice, w lattice.Weights, count CountFunc) (*ExpectationResult, error) {
	return e.expectation(0, lat, w, count)
}

func (e *Engine) expectation(example int, lat *lattice.Lattice, w lattice.Weights, count CountFunc) (*ExpectationResult, error) {
	if err := checkShape(lat, w); err != nil {
		return nil, errors.WithMessagef(err, "example %d", example)
	}
	if count == nil {
		count = LengthCount(lat)
	}
	r := &ExpectationResult{Components: make([]float64, len(w))}
	logZ := make([]float64, len(w))
	for k := range w {
		p := expectationComponent(lat, w[k], count)
		logZ[k] = p.P
		r.Components[k] = p.Expected()
	}
	if floats.HasNaN(logZ) || floats.HasNaN(r.Components) {
		return nil, &InvariantError{Example: example, Tensor: "expected count", Values: r.Components, Reason: "not a number"}
	}
	r.Mixture = mix(logZ)
	for k, p := range r.Posterior() {
		if p > 0 {
			r.Expected += p * r.Components[k]
		}
	}
	return r, nil
}

// ForwardBatch runs Forward on every example in parallel.
func (e *Engine) ForwardBatch(lats []*lattice.Lattice, ws []lattice.Weights) ([]*ForwardResult, error) {
	if len(lats) != len(ws) {
		return nil, errors.WithMessagef(ErrShape, "%d lattices, %d weight sets", len(lats), len(ws))
	}
	out := make([]*ForwardResult, len(lats))
	err := e.parallel(len(lats), func(i int) (err error) {
		out[i], err = e.forward(i, lats[i], ws[i])
		return err
	})
	return out, err
}

// ViterbiBatch runs Viterbi on every example in parallel.
func (e *Engine) ViterbiBatch(lats []*lattice.Lattice, ws []lattice.Weights) ([]*ViterbiResult, error) {
	if len(lats) != len(ws) {
		return nil, errors.WithMessagef(ErrShape, "%d lattices, %d weight sets", len(lats), len(ws))
	}
	out := make([]*ViterbiResult, len(lats))
	err := e.parallel(len(lats), func(i int) (err error) {
		out[i], err = e.viterbi(i, lats[i], ws[i])
		return err
	})
	return out, err
}

// ExpectationBatch runs Expectation with unit counts on every example in
// parallel.
func (e *Engine) ExpectationBatch(lats []*lattice.Lattice, ws []lattice.Weights) ([]*ExpectationResult, error) {
	if len(lats) != len(ws) {
		return nil, errors.WithMessagef(ErrShape, "%d lattices, %d weight sets", len(lats), len(ws))
	}
	out := make([]*ExpectationResult, len(lats))
	err := e.parallel(len(lats), func(i int) (err error) {
		out[i], err = e.expectation(i, lats[i], ws[i], nil)
		return err
	})
	return out, err
}

// parallel calls fn(i) for i in [0, n) on up to Workers goroutines and
// returns the error of the lowest failing index.
func (e *Engine) parallel(n int, fn func(i int) error) error {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	errs := make([]error, n)
	next := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				errs[i] = fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
