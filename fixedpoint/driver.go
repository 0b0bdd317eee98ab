// Package fixedpoint iterates lattice weights produced by an external
// contextual scorer until they reproduce themselves.
//
// Each round runs forward-backward under the current weights, hands the
// resulting marginals to the scorer as an attention bias, and gathers the
// scorer's next-unit log-probabilities back into a weight tensor. The loop
// runs in Frozen mode. Once it stops, one extra round runs in Tracked mode
// so a caller can differentiate through exactly one iteration at the fixed
// point.
package fixedpoint

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dp"
	"github.com/teatak/latseg/lattice"
	"github.com/teatak/latseg/weights"
)

// Mode tells the scorer whether its computation will be differentiated.
type Mode int

const (
	// Frozen rounds are evaluated without gradient tracking or dropout.
	Frozen Mode = iota
	// Tracked is the single final round a loss backpropagates through.
	Tracked
)

func (m Mode) String() string {
	if m == Tracked {
		return "tracked"
	}
	return "frozen"
}

// Scorer is the external contextual model. Given a lattice and the
// forward-backward result under the current weights, it returns next-unit
// log-probabilities: an (N*L) x V matrix whose row b*L+c is the
// distribution over the unit starting at column c of block b. A row may
// only depend on the edges lat.Causal allows.
type Scorer interface {
	Score(ctx context.Context, lat *lattice.Lattice, bias *dp.ForwardResult, mode Mode) (*mat.Dense, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, lat *lattice.Lattice, bias *dp.ForwardResult, mode Mode) (*mat.Dense, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, lat *lattice.Lattice, bias *dp.ForwardResult, mode Mode) (*mat.Dense, error) {
	return f(ctx, lat, bias, mode)
}

// Options bounds the iteration.
type Options struct {
	Tolerance float64 // stop once the squared residual falls below this
	MaxRounds int
}

// OptionsFromConfig picks the driver settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{Tolerance: cfg.FixedPoint.Tolerance, MaxRounds: cfg.FixedPoint.MaxRounds}
}

// DefaultOptions stops at a residual of 1e-3 or after 100 rounds.
func DefaultOptions() Options {
	return Options{Tolerance: 1e-3, MaxRounds: 100}
}

// Report is the iteration trace of one run.
type Report struct {
	TraceID   uuid.UUID
	Rounds    int
	Residuals []float64
	Converged bool
}

// Err returns a *NonConvergenceError when the run hit its round cap.
func (r Report) Err() error {
	if r.Converged {
		return nil
	}
	return &NonConvergenceError{TraceID: r.TraceID, Rounds: r.Rounds, Residuals: r.Residuals}
}

// Result is the outcome of one run.
type Result struct {
	// Weights are the final frozen-round weights, the fixed point when the
	// run converged.
	Weights lattice.Weights
	// Bias is the forward-backward result under Weights that was handed to
	// the tracked round.
	Bias *dp.ForwardResult
	// Tracked is the weight tensor gathered from the tracked round.
	Tracked lattice.Weights
	Report  Report
}

// Driver runs the fixed-point loop.
type Driver struct {
	engine *dp.Engine
	scorer Scorer
	opts   Options
}

// NewDriver returns a driver. Non-positive options fall back to
// DefaultOptions.
func NewDriver(engine *dp.Engine, scorer Scorer, opts Options) *Driver {
	def := DefaultOptions()
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = def.MaxRounds
	}
	return &Driver{engine: engine, scorer: scorer, opts: opts}
}

// Run iterates from init until the weights stabilize or the round cap is
// hit. Non-convergence is not an error: it is recorded in the report and
// logged, and the final-round weights are used. Errors are returned for
// scorer failures, shape mismatches and cancellation.
func (d *Driver) Run(ctx context.Context, lat *lattice.Lattice, init lattice.Weights) (*Result, error) {
	if cm := lat.Causal; cm == nil || cm.Blocks != lat.Blocks || cm.MaxUnit != lat.MaxUnit || cm.BlockSize != lat.BlockSize {
		return nil, errors.WithMessage(lattice.ErrShape, "lattice has no causal mask of its shape")
	}
	report := Report{TraceID: uuid.New()}
	cur := init
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "fixed point %s cancelled after %d rounds", report.TraceID, report.Rounds)
		}
		next, _, err := d.round(ctx, lat, cur, Frozen)
		if err != nil {
			return nil, errors.WithMessagef(err, "fixed point %s round %d", report.TraceID, report.Rounds+1)
		}
		residual := Residual(next, cur)
		report.Rounds++
		report.Residuals = append(report.Residuals, residual)
		klog.V(2).Infof("fixed point %s: round %d residual %g", report.TraceID, report.Rounds, residual)
		cur = next
		if residual < d.opts.Tolerance {
			report.Converged = true
			break
		}
		if report.Rounds >= d.opts.MaxRounds {
			klog.Warningf("%v", report.Err())
			break
		}
	}

	tracked, bias, err := d.round(ctx, lat, cur, Tracked)
	if err != nil {
		return nil, errors.WithMessagef(err, "fixed point %s tracked round", report.TraceID)
	}
	return &Result{Weights: cur, Bias: bias, Tracked: tracked, Report: report}, nil
}

// round scores lat under w and returns the conditioned next weights along
// with the bias the scorer saw.
func (d *Driver) round(ctx context.Context, lat *lattice.Lattice, w lattice.Weights, mode Mode) (lattice.Weights, *dp.ForwardResult, error) {
	bias, err := d.engine.Forward(lat, w)
	if err != nil {
		return nil, nil, err
	}
	scores, err := d.scorer.Score(ctx, lat, bias, mode)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "%s scorer", mode)
	}
	next, err := Gather(lat, scores, w.Components())
	if err != nil {
		return nil, nil, err
	}
	Condition(lat, next)
	return next, bias, nil
}

// Gather reads, for every valid edge, the scorer's log-probability of the
// edge's unit at the edge's start column. The same tensor is used for each
// of the k components. Invalid cells get weights.Sentinel.
func Gather(lat *lattice.Lattice, scores *mat.Dense, k int) (lattice.Weights, error) {
	rows, vocab := scores.Dims()
	if rows != lat.Blocks*lat.BlockSize {
		return nil, errors.WithMessagef(ErrShape, "scorer returned %d rows, lattice has %d positions", rows, lat.Blocks*lat.BlockSize)
	}
	out := lattice.NewWeights(1, lat.Blocks, lat.MaxUnit, lat.BlockSize, weights.Sentinel)
	for b := 0; b < lat.NumBlocks; b++ {
		for m := 0; m < lat.MaxUnit; m++ {
			for l := m; l < lat.BlockSize; l++ {
				if !lat.Valid(b, m, l) || lat.IsBOS(b, m, l) {
					continue
				}
				id := lat.IDs[b][m][l]
				if id < 0 || id >= vocab {
					return nil, errors.WithMessagef(ErrShape, "unit id %d outside scorer vocabulary of %d", id, vocab)
				}
				out[0][b].Set(m, l, scores.At(b*lat.BlockSize+lattice.Start(m, l), id))
			}
		}
	}
	for c := 1; c < k; c++ {
		blocks := make([]*mat.Dense, len(out[0]))
		for b, m := range out[0] {
			blocks[b] = mat.DenseCopyOf(m)
		}
		out = append(out, blocks)
	}
	return out, nil
}

// Condition makes the BOS edge non-informative by giving it the largest
// valid weight of its component, and forces every invalid cell to
// weights.Sentinel.
func Condition(lat *lattice.Lattice, w lattice.Weights) {
	for k := range w {
		top := math.Inf(-1)
		for b := 0; b < lat.Blocks; b++ {
			for m := 0; m < lat.MaxUnit; m++ {
				for l := 0; l < lat.BlockSize; l++ {
					switch {
					case !lat.Valid(b, m, l):
						w[k][b].Set(m, l, weights.Sentinel)
					case !lat.IsBOS(b, m, l):
						top = math.Max(top, w[k][b].At(m, l))
					}
				}
			}
		}
		if !lat.BOS || lat.NumBlocks == 0 {
			continue
		}
		if math.IsInf(top, -1) {
			top = 0
		}
		w[k][0].Set(0, 0, top)
	}
}

// Residual is the sum of squared differences between two weight tensors.
func Residual(a, b lattice.Weights) float64 {
	sum := 0.0
	for k := range a {
		for blk := range a[k] {
			var d mat.Dense
			d.Sub(a[k][blk], b[k][blk])
			d.MulElem(&d, &d)
			sum += mat.Sum(&d)
		}
	}
	return sum
}
