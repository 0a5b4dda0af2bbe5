package forest

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/selivandex/stock-signal/pkg/models"
)

// Params are the random forest hyperparameters
type Params struct {
	NEstimators     int    `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int    `json:"max_depth" yaml:"max_depth"` // 0 means unlimited
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features" yaml:"max_features"` // sqrt, log2 or all
}

// Validate checks parameter ranges
func (p Params) Validate() error {
	if p.NEstimators < 1 {
		return fmt.Errorf("n_estimators must be at least 1")
	}
	if p.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	if p.MinSamplesSplit < 2 {
		return fmt.Errorf("min_samples_split must be at least 2")
	}
	if p.MinSamplesLeaf < 1 {
		return fmt.Errorf("min_samples_leaf must be at least 1")
	}
	switch p.MaxFeatures {
	case "sqrt", "log2", "all", "":
	default:
		return fmt.Errorf("unknown max_features %q", p.MaxFeatures)
	}
	return nil
}

// String formats params for logs
func (p Params) String() string {
	return fmt.Sprintf("n_estimators=%d max_depth=%d min_samples_split=%d min_samples_leaf=%d max_features=%s",
		p.NEstimators, p.MaxDepth, p.MinSamplesSplit, p.MinSamplesLeaf, p.MaxFeatures)
}

// featuresPerSplit resolves MaxFeatures for n features
func (p Params) featuresPerSplit(n int) int {
	var m int
	switch p.MaxFeatures {
	case "sqrt":
		m = int(math.Sqrt(float64(n)))
	case "log2":
		m = int(math.Log2(float64(n)))
	default:
		m = n
	}
	if m < 1 {
		m = 1
	}
	if m > n {
		m = n
	}
	return m
}

// Forest is a bagged ensemble of weighted Gini decision trees
type Forest struct {
	Params      Params          `json:"params"`
	Classes     []models.Signal `json:"classes"`
	NFeatures   int             `json:"n_features"`
	Seed        int64           `json:"seed"`
	Trees       []Tree          `json:"trees"`
	Importances []float64       `json:"feature_importances"`
}

// Fit trains a forest. Each tree draws a bootstrap sample; a sample drawn k
// times carries k times its sample weight. Tree seeds derive from seed and the
// tree index, so the same inputs always build the same forest.
func Fit(X [][]float64, y []models.Signal, sampleWeight []float64, params Params, seed int64) (*Forest, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, fmt.Errorf("empty training set")
	}
	if len(y) != len(X) {
		return nil, fmt.Errorf("X has %d rows but y has %d", len(X), len(y))
	}
	if sampleWeight != nil && len(sampleWeight) != len(X) {
		return nil, fmt.Errorf("X has %d rows but sample weights has %d", len(X), len(sampleWeight))
	}

	nFeatures := len(X[0])
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
		}
		for _, v := range row {
			if !models.IsDefined(v) {
				return nil, fmt.Errorf("row %d contains a non-finite value", i)
			}
		}
	}

	classes := uniqueClasses(y)
	classIndex := make(map[models.Signal]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}
	yIdx := make([]int, len(y))
	for i, v := range y {
		yIdx[i] = classIndex[v]
	}

	f := &Forest{
		Params:      params,
		Classes:     classes,
		NFeatures:   nFeatures,
		Seed:        seed,
		Trees:       make([]Tree, params.NEstimators),
		Importances: make([]float64, nFeatures),
	}

	mtry := params.featuresPerSplit(nFeatures)
	n := len(X)
	usedTrees := 0

	for t := 0; t < params.NEstimators; t++ {
		rng := rand.New(rand.NewSource(treeSeed(seed, t)))

		counts := make([]int, n)
		for i := 0; i < n; i++ {
			counts[rng.Intn(n)]++
		}

		w := make([]float64, n)
		idx := make([]int, 0, n)
		for i, c := range counts {
			if c == 0 {
				continue
			}
			base := 1.0
			if sampleWeight != nil {
				base = sampleWeight[i]
			}
			w[i] = base * float64(c)
			idx = append(idx, i)
		}

		b := &builder{
			X:          X,
			y:          yIdx,
			w:          w,
			nClasses:   len(classes),
			mtry:       mtry,
			params:     params,
			rng:        rng,
			importance: make([]float64, nFeatures),
		}
		f.Trees[t] = b.build(idx)

		if total := sum(b.importance); total > 0 {
			for j, v := range b.importance {
				f.Importances[j] += v / total
			}
			usedTrees++
		}
	}

	if usedTrees > 0 {
		total := sum(f.Importances)
		for j := range f.Importances {
			f.Importances[j] /= total
		}
	}

	return f, nil
}

// treeSeed mixes the forest seed with a tree index (splitmix64 finalizer)
func treeSeed(seed int64, tree int) int64 {
	z := uint64(seed) + uint64(tree+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}

// PredictProba averages the leaf class distributions of all trees. The result
// is aligned with Classes.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("expected %d features, got %d", f.NFeatures, len(x))
	}
	proba := make([]float64, len(f.Classes))
	for i := range f.Trees {
		for k, p := range f.Trees[i].leaf(x) {
			proba[k] += p
		}
	}
	for k := range proba {
		proba[k] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict returns the most probable class; ties go to the lower class
func (f *Forest) Predict(x []float64) (models.Signal, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for k := 1; k < len(proba); k++ {
		if proba[k] > proba[best] {
			best = k
		}
	}
	return f.Classes[best], nil
}

// PredictAll predicts every row of X
func (f *Forest) PredictAll(X [][]float64) ([]models.Signal, error) {
	out := make([]models.Signal, len(X))
	for i, x := range X {
		p, err := f.Predict(x)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// FeatureImportances returns normalized Gini importances
func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, len(f.Importances))
	copy(out, f.Importances)
	return out
}

// MarshalBinary encodes the forest as JSON
func (f *Forest) MarshalBinary() ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal decodes a forest and checks its structure
func Unmarshal(data []byte) (*Forest, error) {
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode forest: %w", err)
	}
	if len(f.Trees) == 0 || len(f.Classes) == 0 {
		return nil, fmt.Errorf("forest has no trees or classes")
	}
	for t := range f.Trees {
		nodes := f.Trees[t].Nodes
		if len(nodes) == 0 {
			return nil, fmt.Errorf("tree %d is empty", t)
		}
		for i := range nodes {
			n := &nodes[i]
			if n.IsLeaf() {
				if len(n.Dist) != len(f.Classes) {
					return nil, fmt.Errorf("tree %d leaf %d has %d classes, want %d", t, i, len(n.Dist), len(f.Classes))
				}
				continue
			}
			if n.Left <= i || n.Right <= i || n.Left >= len(nodes) || n.Right >= len(nodes) ||
				n.Feature < 0 || n.Feature >= f.NFeatures {
				return nil, fmt.Errorf("tree %d node %d is malformed", t, i)
			}
		}
	}
	return &f, nil
}

// BalancedWeights gives each sample n / (classes * count(class))
func BalancedWeights(y []models.Signal) []float64 {
	counts := make(map[models.Signal]int)
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	k := float64(len(counts))

	w := make([]float64, len(y))
	for i, v := range y {
		w[i] = n / (k * float64(counts[v]))
	}
	return w
}

func uniqueClasses(y []models.Signal) []models.Signal {
	seen := make(map[models.Signal]bool)
	var classes []models.Signal
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}
