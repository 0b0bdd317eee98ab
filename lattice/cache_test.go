package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teatak/latseg/dictionary"
)

func TestEdgeCount(t *testing.T) {
	assert.Equal(t, 210, EdgeCount(20, 20))
	assert.Equal(t, 7, EdgeCount(2, 4))
	assert.Equal(t, 10, EdgeCount(4, 4))
}

func TestMaskCacheMemoizesAndInvalidates(t *testing.T) {
	c := NewMaskCache()
	a := c.Causal(2, 2, 4)
	b := c.Causal(2, 2, 4)
	assert.Same(t, a, b)
	assert.NotSame(t, a, c.Causal(3, 2, 4))

	em := c.EdgeMask(2, 4)
	assert.Equal(t, []bool{false, true, true, true}, em[1])
	assert.Equal(t, 3, c.Len())

	c.Invalidate()
	assert.Equal(t, 0, c.Len())
	assert.NotSame(t, a, c.Causal(2, 2, 4))
}

func TestCausalMask(t *testing.T) {
	cm := NewMaskCache().Causal(2, 2, 4)
	require.Equal(t, 14, cm.Size())
	assert.Equal(t, -1, cm.Index(0, 1, 0))

	first := cm.Index(0, 0, 0)  // column 0
	second := cm.Index(0, 0, 1) // column 1
	pair := cm.Index(0, 1, 1)   // columns 0..1
	later := cm.Index(1, 0, 0)  // next block

	assert.True(t, cm.Allowed(second, first))
	assert.False(t, cm.Allowed(first, second))
	// an edge cannot see an edge overlapping its own span
	assert.False(t, cm.Allowed(pair, first))
	assert.True(t, cm.Allowed(pair, pair))
	// every edge of an earlier block is visible
	assert.True(t, cm.Allowed(later, pair))
	assert.False(t, cm.Allowed(pair, later))
}

func TestBuildSharesCausalMask(t *testing.T) {
	dict := hateDict(t, dictionary.Options{UnkToken: "[UNK]"})
	b, err := NewBuilder(dict, Options{MaxBlocks: 2, BlockSize: 4, MaxUnitLength: 2})
	require.NoError(t, err)

	first, err := b.Build("hate")
	require.NoError(t, err)
	second, err := b.Build("at")
	require.NoError(t, err)
	require.NotNil(t, first.Causal)
	assert.Same(t, first.Causal, second.Causal)
	assert.Same(t, b.Cache().Causal(2, 2, 4), first.Causal)
	assert.Equal(t, 2*EdgeCount(2, 4), first.Causal.Size())

	b.Cache().Invalidate()
	third, err := b.Build("at")
	require.NoError(t, err)
	assert.NotSame(t, first.Causal, third.Causal)
}
