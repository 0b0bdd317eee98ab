package main

import (
	"flag"
	"os"

	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/optimizer"
	"github.com/teatak/latseg/segmenter"
)

func main() {
	klog.InitFlags(nil)
	inputPath := flag.String("input", "data/text.txt", "Input file path")
	outputPath := flag.String("output", "data/corpus.txt", "Output corpus file path")
	checkpoint := flag.String("checkpoint", "data/model.tsv", "Path to the learned unit weights")
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	batchSize := flag.Int("batch", 256, "Lines decoded per batch; each batch is spread over the engine workers")
	workers := flag.Int("workers", 0, "Decode workers (0 uses GOMAXPROCS)")
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
	if *workers > 0 {
		cfg.Workers = *workers
	}

	seg, err := segmenter.Open(cfg, *checkpoint)
	if err != nil {
		klog.Errorf("Failed to load checkpoint: %v", err)
		os.Exit(1)
	}
	klog.Infof("Loaded %d units from %s", seg.Table.Dictionary().Len(), *checkpoint)

	if err := optimizer.BatchSegment(seg, *inputPath, *outputPath, *batchSize); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	klog.Infof("Done. Saved to %s", *outputPath)
}
