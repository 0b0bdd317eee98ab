package main

import (
	"bufio"
	"flag"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/optimizer"
)

func main() {
	klog.InitFlags(nil)
	inputPath := flag.String("input", "data/text.txt", "Path to the raw input text file")
	outputPath := flag.String("output", "data/vocab.tsv", "Path to save the candidate vocabulary")
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	threshold := flag.Int("threshold", 10, "Minimum frequency for a unit longer than one character")
	maxGram := flag.Int("ngram", 0, "Maximum N-gram length (0 uses max_unit_length from the config)")
	spModel := flag.String("sentencepiece", "", "Seed candidates by encoding the input with this SentencePiece model instead of counting N-grams")
	feedback := flag.String("feedback", "", "Optional file of gold segmentations (words separated by spaces)")
	ratio := flag.Float64("clean", 0, "Prefix/suffix pruning ratio (0 disables cleaning)")
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
	if *maxGram <= 0 {
		*maxGram = cfg.MaxUnitLength
	}

	// 1. Count candidates
	klog.Infof("Reading raw text from %s...", *inputPath)
	corpus, err := optimizer.OpenCorpus(*inputPath)
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	var counts []dictionary.Count
	if *spModel != "" {
		klog.Infof("Encoding with SentencePiece model %s...", *spModel)
		counts, err = dictionary.FromSentencePiece(*spModel, corpus)
	} else {
		klog.Infof("Counting N-grams (1 to %d)...", *maxGram)
		counts, err = dictionary.Discover(corpus, dictionary.DiscoverOptions{
			Threshold:          *threshold,
			MaxGram:            *maxGram,
			DummyPrefix:        cfg.DummyPrefix,
			ContinuationPrefix: cfg.ContinuationPrefix,
		})
	}
	corpus.Close()
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	found := len(counts)

	// 2. Filter
	if *feedback != "" {
		lines, err := readLines(*feedback)
		if err != nil {
			klog.Errorf("%v", err)
			os.Exit(1)
		}
		counts = optimizer.PruneStraddling(counts, lines, cfg.ContinuationPrefix)
	}
	if *ratio > 0 {
		counts = optimizer.Clean(counts, *ratio, cfg.ContinuationPrefix)
	}

	// 3. Save
	outFile, err := os.Create(*outputPath)
	if err != nil {
		klog.Errorf("Failed to create vocabulary: %v", err)
		os.Exit(1)
	}
	defer outFile.Close()
	if err := dictionary.WriteCounts(outFile, counts); err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	klog.Infof("Done! Kept %d of %d candidates. Saved to %s", len(counts), found, *outputPath)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if t := strings.TrimSpace(scanner.Text()); t != "" {
			lines = append(lines, t)
		}
	}
	return lines, scanner.Err()
}
