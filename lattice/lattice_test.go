package lattice

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatak/latseg/dictionary"
)

func hateDict(t *testing.T, opts dictionary.Options) *dictionary.Dictionary {
	t.Helper()
	if opts.PadToken == "" {
		opts.PadToken = "[PAD]"
	}
	dict, err := dictionary.New([]string{"[UNK]", "h", "a", "t", "e", "hat", "hate", "at", "ate"}, opts)
	require.NoError(t, err)
	return dict
}

func TestBuildSingleBlock(t *testing.T) {
	dict := hateDict(t, dictionary.Options{UnkToken: "[UNK]"})
	b, err := NewBuilder(dict, Options{MaxBlocks: 1, BlockSize: 4, MaxUnitLength: 4})
	require.NoError(t, err)

	lat, err := b.Build("hate")
	require.NoError(t, err)
	assert.Equal(t, 1, lat.NumBlocks)
	assert.Equal(t, []int{4}, lat.Lengths)
	assert.Equal(t, 4, lat.NumChars())
	assert.Equal(t, "hate", lat.Text(0))
	assert.True(t, lat.Connector[0][0])
	assert.False(t, lat.Connector[0][1])

	id := func(u string) int {
		i, ok := dict.ID(u)
		require.True(t, ok, u)
		return i
	}
	// edge "hate": length 4 ending at column 3
	assert.True(t, lat.Valid(0, 3, 3))
	assert.Equal(t, id("hate"), lat.IDs[0][3][3])
	// "ate" ends at 3, "hat" ends at 2, "at" ends at 2
	assert.Equal(t, id("ate"), lat.IDs[0][2][3])
	assert.Equal(t, id("hat"), lat.IDs[0][2][2])
	assert.Equal(t, id("at"), lat.IDs[0][1][2])
	// "te" and "ha" are not units
	assert.False(t, lat.Valid(0, 1, 3))
	assert.False(t, lat.Valid(0, 1, 1))
	assert.Equal(t, dict.PadID, lat.IDs[0][1][3])
	// 4 singles + hat, hate, at, ate
	assert.Equal(t, 8, lat.NumEdges())
}

func TestBuildBOS(t *testing.T) {
	dict := hateDict(t, dictionary.Options{UnkToken: "[UNK]", BOSToken: "[BOS]"})
	b, err := NewBuilder(dict, Options{MaxBlocks: 2, BlockSize: 5, MaxUnitLength: 4, AddBOS: true})
	require.NoError(t, err)

	lat, err := b.Build("hate hat")
	require.NoError(t, err)
	assert.True(t, lat.BOS)
	assert.Equal(t, 2, lat.NumBlocks)
	assert.Equal(t, []int{5, 3}, lat.Lengths)
	assert.Equal(t, 7, lat.NumChars())
	assert.Equal(t, dict.BOSID, lat.IDs[0][0][0])
	assert.True(t, lat.Valid(0, 0, 0))
	assert.True(t, lat.IsBOS(0, 0, 0))
	assert.False(t, lat.IsBOS(1, 0, 0))
	// no edge may start at the BOS column
	assert.False(t, lat.Valid(0, 1, 1))
	assert.True(t, lat.Valid(0, 3, 4)) // "hate" at columns 1..4
	assert.True(t, lat.Valid(1, 2, 2)) // "hat" in the second block
}

func TestBuildPaddingAndTruncation(t *testing.T) {
	dict := hateDict(t, dictionary.Options{UnkToken: "[UNK]"})
	b, err := NewBuilder(dict, Options{MaxBlocks: 2, BlockSize: 4, MaxUnitLength: 4})
	require.NoError(t, err)

	lat, err := b.Build("at")
	require.NoError(t, err)
	assert.Equal(t, 1, lat.NumBlocks)
	assert.Equal(t, []bool{true, true, false, false}, lat.Emission[0])
	assert.Equal(t, []bool{false, false, false, false}, lat.Emission[1])
	assert.False(t, lat.Connector[1][0])
	assert.False(t, lat.Truncated)

	lat, err = b.Build("hat hat hat")
	require.NoError(t, err)
	assert.Equal(t, 2, lat.NumBlocks)
	assert.True(t, lat.Truncated)
}

func TestEdgesStayInsidePreTokens(t *testing.T) {
	dict := hateDict(t, dictionary.Options{UnkToken: "[UNK]"})
	b, err := NewBuilder(dict, Options{MaxBlocks: 1, BlockSize: 6, MaxUnitLength: 4})
	require.NoError(t, err)

	// "h" and "ate" share a block but "hate" must not bridge them
	lat, err := b.Build("h ate")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, lat.Lengths[:1])
	assert.False(t, lat.Valid(0, 3, 3))
	assert.True(t, lat.Valid(0, 2, 3))
}

func TestLongWordIsSplit(t *testing.T) {
	dict := hateDict(t, dictionary.Options{UnkToken: "[UNK]"})
	b, err := NewBuilder(dict, Options{MaxBlocks: 3, BlockSize: 3, MaxUnitLength: 3})
	require.NoError(t, err)

	lat, err := b.Build("hatehat")
	require.NoError(t, err)
	assert.Equal(t, 3, lat.NumBlocks)
	assert.Equal(t, []int{3, 3, 1}, lat.Lengths)
	assert.Equal(t, "hat", lat.Text(0))
	assert.Equal(t, "eha", lat.Text(1))
}

func TestContinuationPrefixLookup(t *testing.T) {
	dict, err := dictionary.New([]string{"h", "##a", "##t", "##e", "hat", "##ate", "a"},
		dictionary.Options{PadToken: "[PAD]", UnkToken: "[UNK]", ContinuationPrefix: "##"})
	require.NoError(t, err)
	b, err := NewBuilder(dict, Options{MaxBlocks: 1, BlockSize: 4, MaxUnitLength: 3})
	require.NoError(t, err)

	lat, err := b.Build("hate")
	require.NoError(t, err)
	ate, _ := dict.ID("##ate")
	a, _ := dict.ID("##a")
	assert.Equal(t, ate, lat.IDs[0][2][3])
	assert.Equal(t, a, lat.IDs[0][0][1])
}

func TestUnknownFallback(t *testing.T) {
	dict := hateDict(t, dictionary.Options{UnkToken: "[UNK]"})
	b, err := NewBuilder(dict, Options{MaxBlocks: 1, BlockSize: 4, MaxUnitLength: 2})
	require.NoError(t, err)

	lat, err := b.Build("hx")
	require.NoError(t, err)
	assert.Equal(t, dict.UnkID, lat.IDs[0][0][1])
	assert.True(t, lat.Valid(0, 0, 1))
	assert.False(t, lat.Valid(0, 1, 1))
}

func TestNewBuilderRejectsShapes(t *testing.T) {
	dict := hateDict(t, dictionary.Options{})
	_, err := NewBuilder(dict, Options{MaxBlocks: 1, BlockSize: 2, MaxUnitLength: 3})
	assert.True(t, errors.Is(err, ErrShape))
	_, err = NewBuilder(dict, Options{MaxBlocks: 1, BlockSize: 4, MaxUnitLength: 3, AddBOS: true})
	assert.True(t, errors.Is(err, ErrShape), "no BOS unit in vocabulary")
}

func TestWeightsClone(t *testing.T) {
	w := NewWeights(2, 1, 2, 3, -1)
	c := w.Clone()
	c[0][0].Set(0, 0, 5)
	assert.Equal(t, -1.0, w[0][0].At(0, 0))
	assert.Equal(t, 2, c.Components())
}
