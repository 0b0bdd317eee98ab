// Package weights holds the learned unit weights: one log-weight per
// vocabulary unit and mixture component.
//
// The table is mutated only through Update, which runs the caller's change
// and then restores the pinned rows (padding first, specials second),
// clamps real-valued weights and checks every value. Readers take a shared
// lock, so no DP pass ever sees a half-updated table.
package weights

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/lattice"
)

// Sentinel is the additive log-weight of anything that must never be
// chosen. It is finite so exp/log never produce NaN.
const Sentinel = -1e9

// Options selects the parametrization.
type Options struct {
	Components int  // K
	LogSpace   bool // store log-weights directly; otherwise non-negative reals
}

// OptionsFromConfig picks the table settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{Components: cfg.MixtureCount, LogSpace: cfg.LogSpace}
}

// Table is the V x K weight table.
type Table struct {
	mu   sync.RWMutex
	dict *dictionary.Dictionary
	opts Options
	w    *mat.Dense
}

// New returns a table with a uniform distribution over learnable units.
func New(dict *dictionary.Dictionary, opts Options) (*Table, error) {
	if opts.Components < 1 {
		return nil, errors.WithMessagef(ErrShape, "%d mixture components", opts.Components)
	}
	n := 0
	for id := 0; id < dict.Len(); id++ {
		if dict.Learnable(id) {
			n++
		}
	}
	init := 0.0
	if n > 0 {
		init = 1 / float64(n)
	}
	if opts.LogSpace {
		init = math.Log(init)
	}
	t := &Table{dict: dict, opts: opts, w: mat.NewDense(dict.Len(), opts.Components, nil)}
	for id := 0; id < dict.Len(); id++ {
		for k := 0; k < opts.Components; k++ {
			t.w.Set(id, k, init)
		}
	}
	if err := t.restore(); err != nil {
		return nil, err
	}
	return t, nil
}

// FromRows builds a table from per-unit log-weights, e.g. as returned by
// dictionary.Load. Rows may be shorter than the vocabulary (designated
// units appended after the file); single-column rows are broadcast to all
// components.
func FromRows(dict *dictionary.Dictionary, rows [][]float64, opts Options) (*Table, error) {
	t, err := New(dict, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) > dict.Len() {
		return nil, errors.WithMessagef(ErrShape, "%d rows for %d units", len(rows), dict.Len())
	}
	err = t.Update(func(w *mat.Dense) error {
		for id, row := range rows {
			if len(row) != 1 && len(row) != opts.Components {
				return errors.WithMessagef(ErrShape, "unit %q has %d weights, want %d", dict.Unit(id), len(row), opts.Components)
			}
			for k := 0; k < opts.Components; k++ {
				v := row[0]
				if len(row) > 1 {
					v = row[k]
				}
				if !opts.LogSpace {
					v = math.Exp(v)
				}
				w.Set(id, k, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Dictionary returns the vocabulary the table is indexed by.
func (t *Table) Dictionary() *dictionary.Dictionary { return t.dict }

// Options returns the table settings.
func (t *Table) Options() Options { return t.opts }

// Components returns K.
func (t *Table) Components() int { return t.opts.Components }

// pinned is the stored value of padding and special rows.
func (t *Table) pinned() float64 {
	if t.opts.LogSpace {
		return Sentinel
	}
	return 0
}

// Value returns the stored parameter of (id, k).
func (t *Table) Value(id, k int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.w.At(id, k)
}

// Snapshot returns a copy of the stored parameters.
func (t *Table) Snapshot() *mat.Dense {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return mat.DenseCopyOf(t.w)
}

// LogWeight returns the log-weight of unit id in component k.
func (t *Table) LogWeight(id, k int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.logWeight(id, k)
}

func (t *Table) logWeight(id, k int) float64 {
	v := t.w.At(id, k)
	if t.opts.LogSpace {
		return v
	}
	if v <= 0 {
		return Sentinel
	}
	return math.Log(v)
}

// logNormalizer is log of the total mass of learnable units in component k.
func (t *Table) logNormalizer(k int) float64 {
	var lw []float64
	for id := 0; id < t.dict.Len(); id++ {
		if t.dict.Learnable(id) {
			lw = append(lw, t.logWeight(id, k))
		}
	}
	if len(lw) == 0 {
		return math.Inf(-1)
	}
	return floats.LogSumExp(lw)
}

// LogProbs returns the normalized unit log-probabilities of component k.
// Pinned units get Sentinel.
func (t *Table) LogProbs(k int) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.logProbs(k)
}

func (t *Table) logProbs(k int) []float64 {
	z := t.logNormalizer(k)
	out := make([]float64, t.dict.Len())
	for id := range out {
		if !t.dict.Learnable(id) {
			out[id] = Sentinel
			continue
		}
		out[id] = t.logWeight(id, k) - z
	}
	return out
}

// EdgeWeights assigns a log-weight to every cell of lat, per component.
// Invalid cells get Sentinel and the BOS edge gets 0. With normalized set
// the weights are unit log-probabilities rather than raw log-weights.
func (t *Table) EdgeWeights(lat *lattice.Lattice, normalized bool) lattice.Weights {
	t.mu.RLock()
	defer t.mu.RUnlock()

	K := t.opts.Components
	out := lattice.NewWeights(K, lat.Blocks, lat.MaxUnit, lat.BlockSize, Sentinel)
	for k := 0; k < K; k++ {
		var lw []float64
		if normalized {
			lw = t.logProbs(k)
		}
		for b := 0; b < lat.NumBlocks; b++ {
			for m := 0; m < lat.MaxUnit; m++ {
				for l := 0; l < lat.BlockSize; l++ {
					if !lat.Valid(b, m, l) {
						continue
					}
					if lat.IsBOS(b, m, l) {
						out[k][b].Set(m, l, 0)
						continue
					}
					id := lat.IDs[b][m][l]
					if normalized {
						out[k][b].Set(m, l, lw[id])
					} else {
						out[k][b].Set(m, l, t.logWeight(id, k))
					}
				}
			}
		}
	}
	return out
}

// Update runs fn on the stored parameters under the write lock, then pins
// padding and specials, clamps real weights and checks the result.
func (t *Table) Update(fn func(w *mat.Dense) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := fn(t.w); err != nil {
		return err
	}
	return t.restore()
}

// ApplyGradient takes one gradient step of size lr. grad is with respect to
// the stored parameters and must be V x K.
func (t *Table) ApplyGradient(grad *mat.Dense, lr float64) error {
	return t.Update(func(w *mat.Dense) error {
		r, c := grad.Dims()
		if wr, wc := w.Dims(); r != wr || c != wc {
			return errors.WithMessagef(ErrShape, "gradient is %dx%d, table is %dx%d", r, c, wr, wc)
		}
		var step mat.Dense
		step.Scale(lr, grad)
		w.Sub(w, &step)
		return nil
	})
}

// Replace swaps in new log-weights for every unit, e.g. after an EM step.
func (t *Table) Replace(logw *mat.Dense) error {
	return t.Update(func(w *mat.Dense) error {
		r, c := logw.Dims()
		if wr, wc := w.Dims(); r != wr || c != wc {
			return errors.WithMessagef(ErrShape, "replacement is %dx%d, table is %dx%d", r, c, wr, wc)
		}
		for id := 0; id < r; id++ {
			for k := 0; k < c; k++ {
				v := logw.At(id, k)
				if !t.opts.LogSpace {
					v = math.Exp(v)
				}
				w.Set(id, k, v)
			}
		}
		return nil
	})
}

func (t *Table) restore() error {
	t.resetPadding()
	t.resetSpecials()
	if !t.opts.LogSpace {
		t.clamp()
	}
	return t.check()
}

// ResetPadding pins the padding row to the never-chosen value.
func (t *Table) ResetPadding() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetPadding()
}

func (t *Table) resetPadding() {
	for k := 0; k < t.opts.Components; k++ {
		t.w.Set(t.dict.PadID, k, t.pinned())
	}
}

// ResetSpecials pins every special row to the never-chosen value.
func (t *Table) ResetSpecials() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetSpecials()
}

func (t *Table) resetSpecials() {
	for _, id := range t.dict.Specials() {
		for k := 0; k < t.opts.Components; k++ {
			t.w.Set(id, k, t.pinned())
		}
	}
}

// Clamp raises negative real-valued weights to zero. It is a no-op in log
// space.
func (t *Table) Clamp() {
	if t.opts.LogSpace {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clamp()
}

func (t *Table) clamp() {
	r, c := t.w.Dims()
	for id := 0; id < r; id++ {
		for k := 0; k < c; k++ {
			if t.w.At(id, k) < 0 {
				t.w.Set(id, k, 0)
			}
		}
	}
}

// Check returns an *InvariantError for the first weight out of range.
func (t *Table) Check() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.check()
}

func (t *Table) check() error {
	r, c := t.w.Dims()
	for id := 0; id < r; id++ {
		for k := 0; k < c; k++ {
			v := t.w.At(id, k)
			var reason string
			switch {
			case math.IsNaN(v):
				reason = "not a number"
			case math.IsInf(v, 1):
				reason = "positive infinity"
			case !t.opts.LogSpace && v < 0:
				reason = "negative real-valued weight"
			case !t.dict.Learnable(id) && v != t.pinned():
				reason = "pinned weight drifted"
			default:
				continue
			}
			return &InvariantError{Unit: t.dict.Unit(id), ID: id, Component: k, Value: v, Reason: reason}
		}
	}
	return nil
}
