package lattice

import "sync"

// EdgeCount returns the number of (length, end) cells of an M x L block
// whose edge starts inside the block: L(L+1)/2 - (L-M)(L-M+1)/2.
func EdgeCount(m, l int) int {
	return l*(l+1)/2 - (l-m)*(l-m+1)/2
}

// CacheKey identifies a causal mask. For a fixed unit length the edge
// count determines the block size, so the key is unambiguous.
type CacheKey struct {
	Blocks  int
	MaxUnit int
	Edges   int
}

type shapeKey struct{ m, l int }

// MaskCache memoizes the shape-only masks. It is owned by a Builder and is
// safe for concurrent use.
type MaskCache struct {
	mu     sync.Mutex
	causal map[CacheKey]*CausalMask
	edge   map[shapeKey][][]bool
}

// NewMaskCache returns an empty cache.
func NewMaskCache() *MaskCache {
	return &MaskCache{
		causal: make(map[CacheKey]*CausalMask),
		edge:   make(map[shapeKey][][]bool),
	}
}

// Invalidate drops every cached mask.
func (c *MaskCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.causal = make(map[CacheKey]*CausalMask)
	c.edge = make(map[shapeKey][][]bool)
}

// Len returns the number of cached masks.
func (c *MaskCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.causal) + len(c.edge)
}

// EdgeMask returns the structural [M][L] mask: cell (m, l) is set iff an
// edge of length m+1 ending at column l starts inside the block. Callers
// must not modify the result.
func (c *MaskCache) EdgeMask(m, l int) [][]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := shapeKey{m, l}
	if mask, ok := c.edge[key]; ok {
		return mask
	}
	mask := make([][]bool, m)
	for i := range mask {
		mask[i] = make([]bool, l)
		for j := range mask[i] {
			mask[i][j] = Start(i, j) >= 0
		}
	}
	c.edge[key] = mask
	return mask
}

// Causal returns the edge-level causal mask for n blocks of size l with
// units up to m characters.
func (c *MaskCache) Causal(n, m, l int) *CausalMask {
	key := CacheKey{Blocks: n, MaxUnit: m, Edges: EdgeCount(m, l)}
	c.mu.Lock()
	defer c.mu.Unlock()
	if mask, ok := c.causal[key]; ok {
		return mask
	}
	mask := newCausalMask(n, m, l)
	c.causal[key] = mask
	return mask
}

// CausalMask says which edges an edge may depend on when weights come from
// an autoregressive scorer. Edges are numbered block by block, then by end
// column, then by length.
type CausalMask struct {
	Blocks, MaxUnit, BlockSize int
	Edges                      int // per block
	index                      [][]int
	allowed                    [][]bool
}

func newCausalMask(n, m, l int) *CausalMask {
	cm := &CausalMask{Blocks: n, MaxUnit: m, BlockSize: l, Edges: EdgeCount(m, l)}
	cm.index = make([][]int, m)
	for i := range cm.index {
		cm.index[i] = make([]int, l)
		for j := range cm.index[i] {
			cm.index[i][j] = -1
		}
	}
	type cell struct{ m, l int }
	var order []cell
	for j := 0; j < l; j++ {
		for i := 0; i < m && Start(i, j) >= 0; i++ {
			cm.index[i][j] = len(order)
			order = append(order, cell{i, j})
		}
	}

	total := n * cm.Edges
	cm.allowed = make([][]bool, total)
	for a := 0; a < total; a++ {
		cm.allowed[a] = make([]bool, total)
		ba, ca := a/cm.Edges, order[a%cm.Edges]
		for q := 0; q < total; q++ {
			bq, cq := q/cm.Edges, order[q%cm.Edges]
			switch {
			case a == q:
				cm.allowed[a][q] = true
			case bq < ba:
				cm.allowed[a][q] = true
			case bq == ba:
				cm.allowed[a][q] = cq.l < Start(ca.m, ca.l)
			}
		}
	}
	return cm
}

// Index returns the flat index of cell (b, m, l), or -1 when the cell is
// not an edge.
func (cm *CausalMask) Index(b, m, l int) int {
	i := cm.index[m][l]
	if i < 0 {
		return -1
	}
	return b*cm.Edges + i
}

// Allowed reports whether edge a may depend on edge q.
func (cm *CausalMask) Allowed(a, q int) bool { return cm.allowed[a][q] }

// Size returns the number of edges covered by the mask.
func (cm *CausalMask) Size() int { return len(cm.allowed) }
