package lattice

import (
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/util"
)

// Options sizes the lattice tensors.
type Options struct {
	MaxBlocks     int // N
	BlockSize     int // L
	MaxUnitLength int // M
	AddBOS        bool
	DummyPrefix   string
	Normalize     bool
}

// OptionsFromConfig picks the builder settings out of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxBlocks:     cfg.MaxBlocks,
		BlockSize:     cfg.BlockSize,
		MaxUnitLength: cfg.MaxUnitLength,
		AddBOS:        cfg.AddBOS,
		DummyPrefix:   cfg.DummyPrefix,
		Normalize:     cfg.Normalize,
	}
}

// Builder builds lattices against a fixed vocabulary.
type Builder struct {
	dict  *dictionary.Dictionary
	opts  Options
	cache *MaskCache
}

// NewBuilder checks the shape options and returns a builder with its own
// mask cache.
func NewBuilder(dict *dictionary.Dictionary, opts Options) (*Builder, error) {
	switch {
	case opts.MaxBlocks <= 0 || opts.BlockSize <= 0 || opts.MaxUnitLength <= 0:
		return nil, errors.WithMessagef(ErrShape, "N=%d L=%d M=%d", opts.MaxBlocks, opts.BlockSize, opts.MaxUnitLength)
	case opts.MaxUnitLength > opts.BlockSize:
		return nil, errors.WithMessagef(ErrShape, "M=%d exceeds L=%d", opts.MaxUnitLength, opts.BlockSize)
	case opts.AddBOS && opts.BlockSize < 2:
		return nil, errors.WithMessagef(ErrShape, "L=%d leaves no room after BOS", opts.BlockSize)
	case opts.AddBOS && dict.BOSID == dictionary.NoID:
		return nil, errors.WithMessage(ErrShape, "BOS requested but vocabulary has no BOS unit")
	}
	return &Builder{dict: dict, opts: opts, cache: NewMaskCache()}, nil
}

// Dictionary returns the vocabulary edges are looked up in.
func (b *Builder) Dictionary() *dictionary.Dictionary { return b.dict }

// Options returns the builder's shape settings.
func (b *Builder) Options() Options { return b.opts }

// Cache returns the builder's mask cache.
func (b *Builder) Cache() *MaskCache { return b.cache }

// column is one packed character.
type column struct {
	r         rune
	wordStart bool // first character of a pre-token
	segment   int  // pre-token piece the column belongs to
}

// Build packs text into blocks and enumerates every candidate edge.
func (b *Builder) Build(text string) (*Lattice, error) {
	if b.opts.Normalize {
		text = norm.NFC.String(text)
	}
	blocks, truncated := b.pack(util.PreTokenize(text))
	return b.encode(blocks, truncated), nil
}

// BuildBatch builds one lattice per text.
func (b *Builder) BuildBatch(texts []string) ([]*Lattice, error) {
	out := make([]*Lattice, len(texts))
	for i, t := range texts {
		lat, err := b.Build(t)
		if err != nil {
			return nil, errors.WithMessagef(err, "example %d", i)
		}
		out[i] = lat
	}
	return out, nil
}

// pack places pre-tokens into blocks greedily. A pre-token that does not
// fit the current block starts a new one; a pre-token longer than a block
// is cut into block-sized pieces.
func (b *Builder) pack(words []string) ([][]column, bool) {
	L, N := b.opts.BlockSize, b.opts.MaxBlocks
	var blocks [][]column
	var cur []column
	if b.opts.AddBOS {
		cur = append(cur, column{segment: -1})
	}
	segment := 0
	truncated := false

	flush := func() {
		blocks = append(blocks, cur)
		cur = nil
	}

	for _, w := range words {
		runes := []rune(b.opts.DummyPrefix + w)
		for start := 0; start < len(runes); {
			room := L - len(cur)
			piece := len(runes) - start
			if piece > room {
				if len(cur) > 0 && !(len(cur) == 1 && cur[0].segment == -1) {
					flush()
					room = L
				}
				if piece > room {
					piece = room
				}
			}
			for i := 0; i < piece; i++ {
				cur = append(cur, column{r: runes[start+i], wordStart: start == 0 && i == 0, segment: segment})
			}
			segment++
			start += piece
		}
	}
	if len(cur) > 0 {
		flush()
	}
	if len(blocks) > N {
		blocks = blocks[:N]
		truncated = true
	}
	return blocks, truncated
}

func (b *Builder) encode(blocks [][]column, truncated bool) *Lattice {
	N, M, L := b.opts.MaxBlocks, b.opts.MaxUnitLength, b.opts.BlockSize
	structural := b.cache.EdgeMask(M, L)
	lat := &Lattice{
		Blocks:    N,
		MaxUnit:   M,
		BlockSize: L,
		IDs:       make([][][]int, N),
		EdgeMask:  make([][][]bool, N),
		Emission:  make([][]bool, N),
		Connector: make([][]bool, N),
		Lengths:   make([]int, N),
		NumBlocks: len(blocks),
		BOS:       b.opts.AddBOS,
		Truncated: truncated,
		Chars:     make([][]rune, N),
		Causal:    b.cache.Causal(N, M, L),
	}
	prefix := b.dict.ContinuationPrefix()

	for bi := 0; bi < N; bi++ {
		lat.IDs[bi] = make([][]int, M)
		lat.EdgeMask[bi] = make([][]bool, M)
		for m := 0; m < M; m++ {
			lat.IDs[bi][m] = make([]int, L)
			lat.EdgeMask[bi][m] = make([]bool, L)
			for l := range lat.IDs[bi][m] {
				lat.IDs[bi][m][l] = b.dict.PadID
			}
		}
		lat.Emission[bi] = make([]bool, L)
		lat.Connector[bi] = make([]bool, L)
		lat.Chars[bi] = make([]rune, L)
		if bi >= len(blocks) {
			continue
		}

		cols := blocks[bi]
		lat.Lengths[bi] = len(cols)
		lat.Connector[bi][0] = len(cols) > 0
		for l, c := range cols {
			lat.Emission[bi][l] = true
			lat.Chars[bi][l] = c.r
		}

		for l := range cols {
			if lat.IsBOS(bi, 0, l) {
				lat.IDs[bi][0][0] = b.dict.BOSID
				lat.EdgeMask[bi][0][0] = true
				continue
			}
			for m := 0; m < M && structural[m][l]; m++ {
				start := Start(m, l)
				if cols[start].segment != cols[l].segment {
					break
				}
				rs := make([]rune, 0, m+1)
				for _, c := range cols[start : l+1] {
					rs = append(rs, c.r)
				}
				unit := string(rs)
				if !cols[start].wordStart {
					unit = prefix + unit
				}
				id, ok := b.dict.ID(unit)
				if ok && !b.dict.IsSpecial(id) {
					lat.IDs[bi][m][l] = id
					lat.EdgeMask[bi][m][l] = true
				} else if m == 0 && b.dict.UnkID != dictionary.NoID {
					lat.IDs[bi][m][l] = b.dict.UnkID
					lat.EdgeMask[bi][m][l] = true
				}
			}
		}
	}
	return lat
}
