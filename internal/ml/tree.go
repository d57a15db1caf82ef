package ml

import (
	"cmp"
	"slices"
)

// treeNode is a split when Feature >= 0, otherwise a leaf holding Value.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a binary regression tree stored as a flat node list rooted at 0.
type Tree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (t *Tree) valid(nFeatures int) bool {
	if len(t.Nodes) == 0 {
		return false
	}
	// children always follow their parent, so a walk from the root ends
	for i, n := range t.Nodes {
		if n.Feature < 0 {
			continue
		}
		if n.Feature >= nFeatures || n.Left <= i || n.Right <= i ||
			n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return false
		}
	}
	return true
}

// treeConfig controls growth. maxDepth <= 0 means unlimited.
type treeConfig struct {
	maxDepth int
	minSplit int
	minLeaf  int
	features []int
	leaf     func(y []float64, idx []int) float64
}

type treeBuilder struct {
	x     [][]float64
	y     []float64
	cfg   treeConfig
	nodes []treeNode
	buf   []int
}

// growTree fits a CART regression tree on the rows in idx using the
// variance-reduction criterion.
func growTree(x [][]float64, y []float64, idx []int, cfg treeConfig) *Tree {
	if cfg.minSplit < 2 {
		cfg.minSplit = 2
	}
	if cfg.minLeaf < 1 {
		cfg.minLeaf = 1
	}
	if cfg.leaf == nil {
		cfg.leaf = meanLeaf
	}
	b := &treeBuilder{x: x, y: y, cfg: cfg, buf: make([]int, len(idx))}
	rows := append([]int(nil), idx...)
	b.build(rows, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) build(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: -1, Value: b.cfg.leaf(b.y, idx)})

	if (b.cfg.maxDepth > 0 && depth >= b.cfg.maxDepth) || len(idx) < b.cfg.minSplit || b.pure(idx) {
		return id
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id] = treeNode{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: b.nodes[id].Value}
	return id
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit maximizes sumL²/nL + sumR²/nR, which is equivalent to minimizing
// the summed squared error of the two children.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	var total float64
	for _, i := range idx {
		total += b.y[i]
	}
	best := total * total / float64(n)
	bestFeature, bestThreshold, found := -1, 0.0, false

	sorted := b.buf[:n]
	for _, f := range b.cfg.features {
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int { return cmp.Compare(b.x[a][f], b.x[c][f]) })

		var sumL float64
		for k := 0; k < n-1; k++ {
			sumL += b.y[sorted[k]]
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nL, nR := k+1, n-k-1
			if nL < b.cfg.minLeaf || nR < b.cfg.minLeaf {
				continue
			}
			sumR := total - sumL
			score := sumL*sumL/float64(nL) + sumR*sumR/float64(nR)
			if score > best+1e-9 {
				best = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func meanLeaf(y []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func allFeatures(n int) []int {
	f := make([]int, n)
	for i := range f {
		f[i] = i
	}
	return f
}
