package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/selivandex/stock-signal/pkg/models"
)

func groupByClass(y []models.Signal) ([]models.Signal, map[models.Signal][]int) {
	groups := make(map[models.Signal][]int)
	for i, v := range y {
		groups[v] = append(groups[v], i)
	}
	classes := make([]models.Signal, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes, groups
}

// StratifiedSplit shuffles each class with the seed and moves round(count*ratio)
// of it to the test side. Every class needs a sample on both sides.
func StratifiedSplit(y []models.Signal, testRatio float64, seed int64) ([]int, []int, error) {
	if len(y) == 0 {
		return nil, nil, &models.DataInsufficientError{Stage: "split", Reason: "empty training set"}
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be between 0 and 1, got %v", testRatio)
	}

	classes, groups := groupByClass(y)
	if len(classes) < 2 {
		return nil, nil, &models.DataInsufficientError{Stage: "split", Reason: "training set has a single class"}
	}

	rng := rand.New(rand.NewSource(seed))
	var train, test []int

	for _, c := range classes {
		idx := append([]int(nil), groups[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(float64(len(idx)) * testRatio))
		if nTest < 1 || nTest >= len(idx) {
			return nil, nil, &models.DataInsufficientError{
				Stage:  "split",
				Reason: fmt.Sprintf("class %s has %d samples, too few for a %.0f%% test split", c, len(idx), testRatio*100),
			}
		}

		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// Fold is one train/validation partition
type Fold struct {
	Train      []int
	Validation []int
}

// StratifiedKFold splits each class, in order, into k contiguous chunks; fold f
// validates on chunk f of every class
func StratifiedKFold(y []models.Signal, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("k-fold needs at least 2 folds, got %d", k)
	}
	if len(y) < k {
		return nil, &models.DataInsufficientError{
			Stage:  "cross-validation",
			Reason: fmt.Sprintf("%d samples cannot be split into %d folds", len(y), k),
		}
	}

	classes, groups := groupByClass(y)
	largest := 0
	for _, c := range classes {
		if len(groups[c]) > largest {
			largest = len(groups[c])
		}
	}
	if largest < k {
		return nil, &models.DataInsufficientError{
			Stage:  "cross-validation",
			Reason: fmt.Sprintf("no class has at least %d samples", k),
		}
	}

	foldOf := make([]int, len(y))
	for _, c := range classes {
		idx := groups[c]
		n := len(idx)
		start := 0
		for f := 0; f < k; f++ {
			size := n / k
			if f < n%k {
				size++
			}
			for _, i := range idx[start : start+size] {
				foldOf[i] = f
			}
			start += size
		}
	}

	folds := make([]Fold, k)
	for i := range y {
		for f := range folds {
			if foldOf[i] == f {
				folds[f].Validation = append(folds[f].Validation, i)
			} else {
				folds[f].Train = append(folds[f].Train, i)
			}
		}
	}

	return folds, nil
}

func subset(X [][]float64, y []models.Signal, idx []int) ([][]float64, []models.Signal) {
	xs := make([][]float64, len(idx))
	ys := make([]models.Signal, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
