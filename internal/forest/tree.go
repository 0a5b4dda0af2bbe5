package forest

import (
	"math/rand"
	"sort"
)

// Node is one split or leaf of a decision tree. Leaves have Left == -1 and
// carry the normalized class distribution.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Dist      []float64 `json:"dist,omitempty"`
}

// IsLeaf reports whether the node has no children
func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

// Tree is a flattened CART classifier, root at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// leaf returns the class distribution for x
func (t *Tree) leaf(x []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Dist
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// builder grows one tree over weighted samples
type builder struct {
	X          [][]float64
	y          []int
	w          []float64
	nClasses   int
	mtry       int
	params     Params
	rng        *rand.Rand
	importance []float64
	nodes      []Node
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	pos       int
}

func (b *builder) build(idx []int) Tree {
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

// grow appends the subtree for idx and returns its node index
func (b *builder) grow(idx []int, depth int) int {
	totals := make([]float64, b.nClasses)
	for _, i := range idx {
		totals[b.y[i]] += b.w[i]
	}
	weight := sum(totals)

	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1})

	if b.stop(idx, totals, depth) {
		b.nodes[self].Dist = normalize(totals, weight)
		return self
	}

	best, ok := b.bestSplit(idx, totals, weight)
	if !ok {
		b.nodes[self].Dist = normalize(totals, weight)
		return self
	}

	b.importance[best.feature] += best.gain

	feature := best.feature
	sort.SliceStable(idx, func(a, c int) bool {
		return b.X[idx[a]][feature] < b.X[idx[c]][feature]
	})
	left := append([]int(nil), idx[:best.pos]...)
	right := append([]int(nil), idx[best.pos:]...)

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	b.nodes[self].Feature = best.feature
	b.nodes[self].Threshold = best.threshold
	b.nodes[self].Left = l
	b.nodes[self].Right = r

	return self
}

func (b *builder) stop(idx []int, totals []float64, depth int) bool {
	if b.params.MaxDepth > 0 && depth >= b.params.MaxDepth {
		return true
	}
	if len(idx) < b.params.MinSamplesSplit || len(idx) < 2*b.params.MinSamplesLeaf {
		return true
	}
	nonZero := 0
	for _, v := range totals {
		if v > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// bestSplit evaluates a random subset of features and returns the split with
// the largest weighted Gini decrease. Earlier candidates win ties.
func (b *builder) bestSplit(idx []int, totals []float64, weight float64) (split, bool) {
	nFeatures := len(b.X[0])
	features := b.rng.Perm(nFeatures)[:b.mtry]

	parent := weight * gini(totals, weight)
	best := split{gain: 0}
	found := false

	order := make([]int, len(idx))
	leftTotals := make([]float64, b.nClasses)
	rightTotals := make([]float64, b.nClasses)

	for _, f := range features {
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool {
			return b.X[order[a]][f] < b.X[order[c]][f]
		})

		for k := range leftTotals {
			leftTotals[k] = 0
		}
		leftWeight := 0.0

		for pos := 1; pos < len(order); pos++ {
			prev := order[pos-1]
			leftTotals[b.y[prev]] += b.w[prev]
			leftWeight += b.w[prev]

			lo, hi := b.X[prev][f], b.X[order[pos]][f]
			if lo == hi {
				continue
			}
			if pos < b.params.MinSamplesLeaf || len(order)-pos < b.params.MinSamplesLeaf {
				continue
			}

			rightWeight := weight - leftWeight
			for k := range rightTotals {
				rightTotals[k] = totals[k] - leftTotals[k]
			}

			gain := parent - leftWeight*gini(leftTotals, leftWeight) - rightWeight*gini(rightTotals, rightWeight)
			if gain > best.gain+1e-12 {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = split{feature: f, threshold: threshold, gain: gain, pos: pos}
				found = true
			}
		}
	}

	return best, found
}

func gini(totals []float64, weight float64) float64 {
	if weight <= 0 {
		return 0
	}
	g := 1.0
	for _, v := range totals {
		p := v / weight
		g -= p * p
	}
	return g
}

func normalize(totals []float64, weight float64) []float64 {
	dist := make([]float64, len(totals))
	if weight <= 0 {
		return dist
	}
	for k, v := range totals {
		dist[k] = v / weight
	}
	return dist
}

func sum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}
