package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/weights"
)

func TestPrune(t *testing.T) {
	tr := hateTrainer(t, true, trainConfig(ModeGradient, NormChars))
	table := tr.Table
	dict := table.Dictionary()

	counts := make([]float64, dict.Len())
	for id := range counts {
		counts[id] = 5
	}
	hat, _ := dict.ID("hat")
	at, _ := dict.ID("at")
	h, _ := dict.ID("h")
	counts[hat] = 0.1
	counts[at] = 0
	counts[h] = 0 // single characters stay
	counts[dict.UnkID] = 0

	pruned, dropped, err := Prune(table, counts, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hat", "at"}, dropped)

	next := pruned.Dictionary()
	assert.Equal(t, dict.Len()-2, next.Len())
	assert.False(t, next.Contains("hat"))
	assert.True(t, next.Contains("h"))
	assert.True(t, next.Contains("[UNK]"))
	assert.NotEqual(t, dictionary.NoID, next.BOSID)
	assert.True(t, next.IsSpecial(next.BOSID))

	hate, _ := dict.ID("hate")
	nhate, _ := next.ID("hate")
	assert.Equal(t, table.LogWeight(hate, 0), pruned.LogWeight(nhate, 0))
	assert.Equal(t, weights.Sentinel, pruned.Value(next.PadID, 0))
}

func TestPruneNothing(t *testing.T) {
	tr := hateTrainer(t, true, trainConfig(ModeGradient, NormChars))
	counts := make([]float64, tr.Table.Dictionary().Len())
	pruned, dropped, err := Prune(tr.Table, counts, 0)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Same(t, tr.Table, pruned)

	_, _, err = Prune(tr.Table, counts[:2], 1)
	assert.ErrorIs(t, err, weights.ErrShape)
}

func TestPruneStraddling(t *testing.T) {
	counts := []dictionary.Count{
		{Unit: "南京市", Freq: 10},
		{Unit: "市长", Freq: 8},
		{Unit: "长江大桥", Freq: 6},
		{Unit: "京市长", Freq: 1},
		{Unit: "市", Freq: 20},
	}
	got := PruneStraddling(counts, []string{"南京市 长江大桥", "nothing-to-split"}, "")
	var units []string
	for _, c := range got {
		units = append(units, c.Unit)
	}
	assert.Equal(t, []string{"南京市", "长江大桥", "市"}, units)
	assert.Len(t, counts, 5, "input is not modified")
}

func TestClean(t *testing.T) {
	counts := []dictionary.Count{
		{Unit: "ab", Freq: 10},
		{Unit: "abc", Freq: 100},
		{Unit: "x", Freq: 1},
		{Unit: ",", Freq: 3},
		{Unit: "a,b", Freq: 50},
		{Unit: "##bc", Freq: 40},
		{Unit: "##b", Freq: 2},
		{Unit: "希尔顿", Freq: 60},
		{Unit: "##希尔顿", Freq: 60},
		{Unit: "城希尔顿", Freq: 2},
	}
	got := Clean(counts, 2, "##")
	want := []dictionary.Count{
		{Unit: "abc", Freq: 100},
		{Unit: "##希尔顿", Freq: 60},
		{Unit: "希尔顿", Freq: 60},
		{Unit: "##bc", Freq: 40},
		{Unit: ",", Freq: 3},
		{Unit: "##b", Freq: 2},
		{Unit: "x", Freq: 1},
	}
	assert.Equal(t, want, got)
}
