package optimizer

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/dp"
	"github.com/teatak/latseg/lattice"
	"github.com/teatak/latseg/segmenter"
	"github.com/teatak/latseg/weights"
)

// Options configures Run. Optional paths left empty skip their stage.
type Options struct {
	Corpus string // raw text, one example per line

	Feedback      string  // optional gold segmentations, words separated by spaces
	SentencePiece string  // optional model seeding the candidates instead of n-gram counts
	MinFreq       int     // n-gram candidates rarer than this are dropped
	CleanRatio    float64 // see Clean; zero disables cleaning

	Checkpoint string // optional output table
	Segmented  string // optional re-segmented corpus
}

// Run executes the optimization pipeline: discover candidate units in the
// corpus, filter them, train their weights, prune the units the model does
// not use, and write the results.
func Run(ctx context.Context, cfg config.Config, opts Options) (*weights.Table, error) {
	klog.Infof("[train] === Starting optimization pipeline ===")
	klog.Infof("[train] Time: %s", time.Now().Format(time.RFC3339))

	lines, err := readLines(opts.Corpus)
	if err != nil {
		return nil, err
	}

	klog.Infof("[train] [1/6] Discovering candidate units in %d lines...", len(lines))
	counts, err := discover(cfg, opts)
	if err != nil {
		return nil, err
	}

	if opts.Feedback != "" {
		klog.Infof("[train] [2/6] Pruning candidates that contradict %s...", opts.Feedback)
		feedback, err := readLines(opts.Feedback)
		if err != nil {
			return nil, err
		}
		counts = PruneStraddling(counts, feedback, cfg.ContinuationPrefix)
	}

	if opts.CleanRatio > 0 {
		klog.Infof("[train] [3/6] Cleaning %d candidates (ratio %g)...", len(counts), opts.CleanRatio)
		counts = Clean(counts, opts.CleanRatio, cfg.ContinuationPrefix)
	}

	klog.Infof("[train] [4/6] Seeding weights for %d candidates...", len(counts))
	table, err := Seed(cfg, counts)
	if err != nil {
		return nil, err
	}
	trainer, err := newTrainer(cfg, table)
	if err != nil {
		return nil, err
	}

	klog.Infof("[train] [5/6] Training %s for %d epochs (run %s)...", cfg.Train.Mode, cfg.Train.Epochs, trainer.RunID)
	for e := 0; e < cfg.Train.Epochs; e++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "train %s cancelled before epoch %d", trainer.RunID, e+1)
		}
		if _, err := trainer.Epoch(lines); err != nil {
			return nil, err
		}
	}

	if cfg.Train.PruneThreshold > 0 {
		expected, err := trainer.Counts(lines)
		if err != nil {
			return nil, err
		}
		pruned, dropped, err := Prune(trainer.Table, expected, cfg.Train.PruneThreshold)
		if err != nil {
			return nil, err
		}
		if len(dropped) > 0 {
			klog.Infof("[train] Pruned %d units, refitting...", len(dropped))
			runID := trainer.RunID
			if trainer, err = newTrainer(cfg, pruned); err != nil {
				return nil, err
			}
			trainer.RunID = runID
			if _, err := trainer.Epoch(lines); err != nil {
				return nil, err
			}
		}
	}

	klog.Infof("[train] [6/6] Writing results...")
	if opts.Checkpoint != "" {
		if err := trainer.Table.Save(opts.Checkpoint); err != nil {
			return nil, err
		}
	}
	if opts.Segmented != "" {
		seg := segmenter.NewSegmenter(trainer.Builder, trainer.Table, trainer.Engine)
		if err := BatchSegment(seg, opts.Corpus, opts.Segmented, cfg.Train.BatchSize); err != nil {
			return nil, err
		}
	}

	klog.Infof("[train] === Optimization pipeline completed ===")
	return trainer.Table, nil
}

func discover(cfg config.Config, opts Options) ([]dictionary.Count, error) {
	f, err := OpenCorpus(opts.Corpus)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if opts.SentencePiece != "" {
		return dictionary.FromSentencePiece(opts.SentencePiece, f)
	}
	return dictionary.Discover(f, dictionary.DiscoverOptions{
		Threshold:          opts.MinFreq,
		MaxGram:            cfg.MaxUnitLength,
		DummyPrefix:        cfg.DummyPrefix,
		ContinuationPrefix: cfg.ContinuationPrefix,
	})
}

// Seed builds a vocabulary from candidate counts with each unit weighted
// by its unigram log-probability. Candidates longer than the configured
// maximum and candidates spelling a designated token are skipped.
func Seed(cfg config.Config, counts []dictionary.Count) (*weights.Table, error) {
	dopts := dictionary.OptionsFromConfig(cfg)
	designated := map[string]bool{dopts.PadToken: true, dopts.UnkToken: true, dopts.BOSToken: true}
	for _, s := range dopts.Specials {
		designated[s] = true
	}

	probe, err := dictionary.New(nil, dopts)
	if err != nil {
		return nil, err
	}
	var units []string
	var freqs []float64
	total := 0.0
	for _, c := range counts {
		if c.Freq <= 0 || designated[c.Unit] || probe.UnitLen(c.Unit) > cfg.MaxUnitLength {
			continue
		}
		units = append(units, c.Unit)
		freqs = append(freqs, float64(c.Freq))
		total += float64(c.Freq)
	}

	dict, err := dictionary.New(units, dopts)
	if err != nil {
		return nil, errors.WithMessage(err, "seed vocabulary")
	}
	rows := make([][]float64, len(units))
	for i, f := range freqs {
		rows[i] = []float64{math.Log(f / total)}
	}
	return weights.FromRows(dict, rows, weights.OptionsFromConfig(cfg))
}

func newTrainer(cfg config.Config, table *weights.Table) (*Trainer, error) {
	b, err := lattice.NewBuilder(table.Dictionary(), lattice.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return NewTrainer(b, table, dp.NewEngine(cfg), cfg.Train), nil
}
