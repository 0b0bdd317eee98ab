// Package optimizer learns the unit weights of a unigram segmentation
// model from raw text and wraps the surrounding vocabulary plumbing:
// candidate cleaning, pruning and the end-to-end pipeline.
package optimizer

import (
	"math"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dp"
	"github.com/teatak/latseg/lattice"
	"github.com/teatak/latseg/weights"
)

// emFloor is the expected count given to units an EM step never saw, so a
// unit missing from one batch keeps a small probability.
const emFloor = 1e-8

// Stats summarizes one step or epoch.
type Stats struct {
	Loss          float64 // normalized NLL plus regularizers
	NLL           float64 // negative log-likelihood, unnormalized
	L1            float64
	Entropic      float64
	LengthPenalty float64
	Norm          float64
	Examples      int
	Steps         int
	Skipped       int // batches with a zero normalizer
}

func (s *Stats) add(o Stats) {
	s.Loss += o.Loss
	s.NLL += o.NLL
	s.L1 += o.L1
	s.Entropic += o.Entropic
	s.LengthPenalty += o.LengthPenalty
	s.Norm += o.Norm
	s.Examples += o.Examples
	s.Steps += o.Steps
	s.Skipped += o.Skipped
}

// MeanLoss is the loss averaged over the steps taken.
func (s Stats) MeanLoss() float64 {
	if s.Steps == 0 {
		return 0
	}
	return s.Loss / float64(s.Steps)
}

// Trainer fits a weights.Table to text by maximizing the marginal
// likelihood of the lattice under normalized unit probabilities.
type Trainer struct {
	Builder *lattice.Builder
	Table   *weights.Table
	Engine  *dp.Engine
	RunID   uuid.UUID

	cfg   config.Train
	epoch int
}

// NewTrainer returns a trainer with a fresh run id.
func NewTrainer(b *lattice.Builder, table *weights.Table, engine *dp.Engine, cfg config.Train) *Trainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.Default().Train.BatchSize
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeGradient
	}
	return &Trainer{Builder: b, Table: table, Engine: engine, RunID: uuid.New(), cfg: cfg}
}

// Config returns the training settings in use.
func (t *Trainer) Config() config.Train { return t.cfg }

// countEngine is the trainer's engine with the marginal temperature set
// to 1, so unit counts match the gradient of the reported NLL.
func (t *Trainer) countEngine() *dp.Engine {
	e := *t.Engine
	e.Temperature = 1
	return &e
}

// estimate is the forward-backward summary of one batch.
type estimate struct {
	examples       int
	chars          int
	edges          int // valid edges, BOS excluded
	exampleChars   []int
	entropy        []float64
	logZ           float64
	expectedLength float64
	counts         *mat.Dense // V x K expected unit counts
}

func (t *Trainer) estimate(texts []string) (*estimate, error) {
	lats, err := t.Builder.BuildBatch(texts)
	if err != nil {
		return nil, err
	}
	ws := make([]lattice.Weights, len(lats))
	for i, lat := range lats {
		ws[i] = t.Table.EdgeWeights(lat, true)
	}
	frs, err := t.countEngine().ForwardBatch(lats, ws)
	if err != nil {
		return nil, err
	}

	V := t.Table.Dictionary().Len()
	est := &estimate{
		examples:     len(lats),
		exampleChars: make([]int, len(lats)),
		entropy:      make([]float64, len(lats)),
		counts:       mat.NewDense(V, t.Table.Components(), nil),
	}
	for i, lat := range lats {
		n := lat.NumChars()
		est.exampleChars[i] = n
		est.chars += n
		est.edges += lat.NumEdges()
		if lat.BOS && lat.NumBlocks > 0 {
			est.edges--
		}
		est.entropy[i] = frs[i].Entropy
		if math.IsInf(frs[i].LogZ, -1) {
			klog.V(2).Infof("[train] %s: example %d has no segmentation", t.RunID, i)
			continue
		}
		est.logZ += frs[i].LogZ
		c, err := frs[i].UnitCounts(lat, V)
		if err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
		est.counts.Add(est.counts, c)
	}

	if t.cfg.Normalization == NormExpectedLength || t.cfg.LengthPenalty > 0 {
		ers, err := t.Engine.ExpectationBatch(lats, ws)
		if err != nil {
			return nil, err
		}
		for _, er := range ers {
			est.expectedLength += er.Expected
		}
	}
	return est, nil
}

func (t *Trainer) stats(est *estimate) (Stats, bool) {
	st := Stats{NLL: -est.logZ, Examples: est.examples}
	norm, ok := normalizer(t.cfg, est)
	if !ok {
		st.Skipped = 1
		return st, false
	}
	st.Norm = norm
	st.Steps = 1
	st.L1, _ = l1(t.Table, t.cfg.L1)
	st.Entropic = entropic(est, t.cfg.Entropic)
	st.LengthPenalty = lengthPenalty(est, t.cfg.LengthPenalty)
	st.Loss = st.NLL/norm + st.L1 + st.Entropic + st.LengthPenalty
	return st, true
}

// checkLoss rejects a batch whose loss is not a finite number. The error
// carries every term of the loss.
func checkLoss(st Stats) error {
	if !math.IsNaN(st.Loss) && !math.IsInf(st.Loss, 0) {
		return nil
	}
	return &dp.InvariantError{
		Example: -1,
		Tensor:  "loss",
		Values:  []float64{st.Loss, st.NLL, st.L1, st.Entropic, st.LengthPenalty, st.Norm},
		Reason:  "not finite (loss, nll, l1, entropic, length penalty, norm)",
	}
}

// Step runs one update on a batch: a gradient step in gradient mode, an
// EM re-estimation from the batch's expected counts in EM mode. A batch
// whose normalizer is zero (e.g. only empty texts) is skipped.
func (t *Trainer) Step(texts []string) (Stats, error) {
	est, err := t.estimate(texts)
	if err != nil {
		return Stats{}, errors.WithMessagef(err, "train %s", t.RunID)
	}
	st, ok := t.stats(est)
	if !ok {
		klog.V(1).Infof("[train] %s: skipping batch of %d with zero %s normalizer", t.RunID, len(texts), t.cfg.Normalization)
		return st, nil
	}
	if err := checkLoss(st); err != nil {
		return st, errors.WithMessagef(err, "train %s batch of %d", t.RunID, len(texts))
	}
	if t.cfg.Mode == ModeEM {
		err = t.Table.Replace(t.reestimate(est.counts))
	} else {
		err = t.Table.ApplyGradient(t.gradient(est.counts, st.Norm), t.cfg.LearningRate)
	}
	if err != nil {
		return st, errors.WithMessagef(err, "train %s step", t.RunID)
	}
	klog.V(2).Infof("[train] %s: step loss %.4f nll %.4f norm %g", t.RunID, st.Loss, st.NLL, st.Norm)
	return st, nil
}

// gradient is the derivative of NLL/norm + L1 with respect to the stored
// parameters. In log space the NLL part for unit u is
// -(c_u - C*p_u)/norm, with c_u its expected count and C the total.
func (t *Trainer) gradient(counts *mat.Dense, norm float64) *mat.Dense {
	dict := t.Table.Dictionary()
	logSpace := t.Table.Options().LogSpace
	_, l1Grad := l1(t.Table, t.cfg.L1)
	V, K := counts.Dims()
	grad := mat.NewDense(V, K, nil)
	for k := 0; k < K; k++ {
		total := mat.Sum(counts.ColView(k))
		lp := t.Table.LogProbs(k)
		for id := 0; id < V; id++ {
			if !dict.Learnable(id) {
				continue
			}
			g := -(counts.At(id, k) - total*math.Exp(lp[id])) / norm
			if !logSpace {
				w := t.Table.Value(id, k)
				if w <= 0 {
					g = 0
				} else {
					g /= w
				}
			}
			grad.Set(id, k, g+l1Grad(id, k))
		}
	}
	return grad
}

// reestimate turns expected counts into log-probabilities. A component
// that received no mass keeps its current distribution.
func (t *Trainer) reestimate(counts *mat.Dense) *mat.Dense {
	dict := t.Table.Dictionary()
	V, K := counts.Dims()
	out := mat.NewDense(V, K, nil)
	for k := 0; k < K; k++ {
		total := mat.Sum(counts.ColView(k))
		lp := t.Table.LogProbs(k)
		for id := 0; id < V; id++ {
			switch {
			case !dict.Learnable(id):
				out.Set(id, k, weights.Sentinel)
			case total <= 0:
				out.Set(id, k, lp[id])
			default:
				out.Set(id, k, math.Log(math.Max(counts.At(id, k), emFloor)/total))
			}
		}
	}
	return out
}

// Epoch shuffles texts and walks them in batches. In EM mode the expected
// counts of all batches are pooled into a single re-estimation.
func (t *Trainer) Epoch(texts []string) (Stats, error) {
	t.epoch++
	order := rand.New(rand.NewSource(t.cfg.Seed + int64(t.epoch))).Perm(len(texts))
	shuffled := make([]string, len(texts))
	for i, j := range order {
		shuffled[i] = texts[j]
	}

	var total Stats
	var pooled *mat.Dense
	for start := 0; start < len(shuffled); start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > len(shuffled) {
			end = len(shuffled)
		}
		batch := shuffled[start:end]
		if t.cfg.Mode != ModeEM {
			st, err := t.Step(batch)
			if err != nil {
				return total, errors.WithMessagef(err, "epoch %d batch %d", t.epoch, start/t.cfg.BatchSize)
			}
			total.add(st)
			continue
		}
		est, err := t.estimate(batch)
		if err != nil {
			return total, errors.WithMessagef(err, "train %s epoch %d batch %d", t.RunID, t.epoch, start/t.cfg.BatchSize)
		}
		st, ok := t.stats(est)
		total.add(st)
		if !ok {
			continue
		}
		if err := checkLoss(st); err != nil {
			return total, errors.WithMessagef(err, "train %s epoch %d batch %d", t.RunID, t.epoch, start/t.cfg.BatchSize)
		}
		if pooled == nil {
			pooled = est.counts
		} else {
			pooled.Add(pooled, est.counts)
		}
	}
	if pooled != nil {
		if err := t.Table.Replace(t.reestimate(pooled)); err != nil {
			return total, errors.WithMessagef(err, "train %s epoch %d", t.RunID, t.epoch)
		}
	}
	klog.Infof("[train] %s: epoch %d mean loss %.4f over %d examples (%d batches skipped)",
		t.RunID, t.epoch, total.MeanLoss(), total.Examples, total.Skipped)
	return total, nil
}

// Counts returns the expected count of every unit over texts, summed over
// mixture components, under the current weights.
func (t *Trainer) Counts(texts []string) ([]float64, error) {
	counts := make([]float64, t.Table.Dictionary().Len())
	for start := 0; start < len(texts); start += t.cfg.BatchSize {
		end := start + t.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		est, err := t.estimate(texts[start:end])
		if err != nil {
			return nil, errors.WithMessagef(err, "train %s counts", t.RunID)
		}
		for id := range counts {
			counts[id] += mat.Sum(est.counts.RowView(id))
		}
	}
	return counts, nil
}
