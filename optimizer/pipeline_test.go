package optimizer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/dp"
	"github.com/teatak/latseg/lattice"
	"github.com/teatak/latseg/segmenter"
	"github.com/teatak/latseg/weights"
)

func pipelineConfig() config.Config {
	cfg := config.Default()
	cfg.MaxBlocks = 4
	cfg.BlockSize = 8
	cfg.MaxUnitLength = 4
	cfg.Train.Epochs = 3
	cfg.Train.BatchSize = 4
	cfg.Train.PruneThreshold = 0.5
	return cfg
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestSeed(t *testing.T) {
	cfg := pipelineConfig()
	table, err := Seed(cfg, []dictionary.Count{
		{Unit: "hat", Freq: 3},
		{Unit: "h", Freq: 1},
		{Unit: "[PAD]", Freq: 9},
		{Unit: "toolong", Freq: 9},
	})
	require.NoError(t, err)
	dict := table.Dictionary()
	assert.False(t, dict.Contains("toolong"))
	hat, _ := dict.ID("hat")
	h, _ := dict.ID("h")
	assert.Equal(t, 0, hat)
	assert.InDelta(t, math.Log(3), table.LogWeight(hat, 0)-table.LogWeight(h, 0), 1e-12)
	assert.True(t, dict.IsPadding(dict.PadID))
	assert.True(t, dict.IsSpecial(dict.BOSID))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "text.txt")
	var lines []string
	for i := 0; i < 6; i++ {
		lines = append(lines, "hate hat ate", "the hat")
	}
	writeLines(t, corpusPath, lines...)
	feedback := filepath.Join(dir, "feedback.txt")
	writeLines(t, feedback, "the hat")

	cfg := pipelineConfig()
	opts := Options{
		Corpus:     corpusPath,
		Feedback:   feedback,
		MinFreq:    2,
		CleanRatio: 1000,
		Checkpoint: filepath.Join(dir, "model.tsv"),
		Segmented:  filepath.Join(dir, "corpus.txt"),
	}
	table, err := Run(context.Background(), cfg, opts)
	require.NoError(t, err)
	require.NoError(t, table.Check())

	dict := table.Dictionary()
	for _, c := range "hate" {
		assert.True(t, dict.Contains(string(c)), "single character %q", c)
	}
	assert.True(t, dict.Contains("hat"))

	loaded, err := weights.Load(opts.Checkpoint, dictionary.OptionsFromConfig(cfg), weights.OptionsFromConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, dict.Units(), loaded.Dictionary().Units())

	out, err := readLines(opts.Segmented)
	require.NoError(t, err)
	require.Len(t, out, len(lines))
	for i, want := range []string{"hatehatate", "thehat"} {
		units := strings.Fields(out[i])
		assert.Equal(t, want, strings.Join(units, ""))
		for _, u := range units {
			assert.True(t, dict.Contains(u), "unit %q", u)
		}
	}
}

func TestRunMissingCorpus(t *testing.T) {
	_, err := Run(context.Background(), pipelineConfig(), Options{Corpus: filepath.Join(t.TempDir(), "missing.txt")})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "text.txt")
	writeLines(t, corpusPath, "hate hat")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, pipelineConfig(), Options{Corpus: corpusPath, MinFreq: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchSegment(t *testing.T) {
	dict, err := dictionary.New([]string{"[UNK]", "h", "a", "t", "e", "hat"}, dictionary.Options{PadToken: "[PAD]", UnkToken: "[UNK]"})
	require.NoError(t, err)
	table, err := weights.New(dict, weights.Options{Components: 1, LogSpace: true})
	require.NoError(t, err)
	b, err := lattice.NewBuilder(dict, lattice.Options{MaxBlocks: 4, BlockSize: 8, MaxUnitLength: 3})
	require.NoError(t, err)
	seg := segmenter.NewSegmenter(b, table, &dp.Engine{})

	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.txt"), filepath.Join(dir, "out.txt")
	writeLines(t, in, "hat, eat", "", "!!", "tea")
	require.NoError(t, BatchSegment(seg, in, out, 2))

	got, err := readLines(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"hat e a t", "t e a"}, got)
}

func TestOpenCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.txt")
	writeLines(t, path, "hate hat", "ate")
	c, err := OpenCorpus(path)
	require.NoError(t, err)
	defer c.Close()
	counts, err := dictionary.Discover(c, dictionary.DiscoverOptions{Threshold: 3, MaxGram: 3})
	require.NoError(t, err)
	got := map[string]int{}
	for _, cnt := range counts {
		got[cnt.Unit] = cnt.Freq
	}
	assert.Equal(t, 3, got["at"])
	assert.Equal(t, 3, got["a"])
	assert.Equal(t, 2, got["h"], "single characters are always kept")
	assert.NotContains(t, got, "hat")
	assert.NotContains(t, got, "te")
}
