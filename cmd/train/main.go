package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/optimizer"
)

func main() {
	klog.InitFlags(nil)
	inputPath := flag.String("input", "data/text.txt", "Path to the raw training text (one example per line)")
	outputPath := flag.String("output", "data/model.tsv", "Path to save the learned unit weights")
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	feedback := flag.String("feedback", "", "Optional file of gold segmentations (words separated by spaces)")
	spModel := flag.String("sentencepiece", "", "Seed candidates from this SentencePiece model instead of N-gram counts")
	threshold := flag.Int("threshold", 5, "Minimum frequency for an N-gram candidate")
	ratio := flag.Float64("clean", 0, "Prefix/suffix pruning ratio for candidates (0 disables cleaning)")
	segmented := flag.String("segmented", "", "Optional path for the corpus re-segmented with the learned weights")
	flag.Parse()
	defer klog.Flush()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			klog.Errorf("%v", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_, err := optimizer.Run(ctx, cfg, optimizer.Options{
		Corpus:        *inputPath,
		Feedback:      *feedback,
		SentencePiece: *spModel,
		MinFreq:       *threshold,
		CleanRatio:    *ratio,
		Checkpoint:    *outputPath,
		Segmented:     *segmented,
	})
	if err != nil {
		klog.Errorf("Training failed: %v", err)
		os.Exit(1)
	}
}
