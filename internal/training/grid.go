package training

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/internal/forest"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// Grid expands the search space into combinations in lexicographic order of
// (n_estimators, max_depth, min_samples_split, min_samples_leaf, max_features)
func Grid(g config.GridConfig) []forest.Params {
	var out []forest.Params
	seen := make(map[forest.Params]bool)

	for _, n := range g.NEstimators {
		for _, d := range g.MaxDepth {
			for _, s := range g.MinSamplesSplit {
				for _, l := range g.MinSamplesLeaf {
					for _, f := range g.MaxFeatures {
						p := forest.Params{NEstimators: n, MaxDepth: d, MinSamplesSplit: s, MinSamplesLeaf: l, MaxFeatures: f}
						if !seen[p] {
							seen[p] = true
							out = append(out, p)
						}
					}
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return lessParams(out[i], out[j]) })
	return out
}

func lessParams(a, b forest.Params) bool {
	if a.NEstimators != b.NEstimators {
		return a.NEstimators < b.NEstimators
	}
	if a.MaxDepth != b.MaxDepth {
		return a.MaxDepth < b.MaxDepth
	}
	if a.MinSamplesSplit != b.MinSamplesSplit {
		return a.MinSamplesSplit < b.MinSamplesSplit
	}
	if a.MinSamplesLeaf != b.MinSamplesLeaf {
		return a.MinSamplesLeaf < b.MinSamplesLeaf
	}
	return a.MaxFeatures < b.MaxFeatures
}

// ComboScore is the cross-validated accuracy of one combination
type ComboScore struct {
	Params     forest.Params `json:"params"`
	FoldScores []float64     `json:"fold_scores"`
	Mean       float64       `json:"mean"`
	Std        float64       `json:"std"`
}

// SearchResult is the outcome of a grid search
type SearchResult struct {
	Best   ComboScore   `json:"best"`
	Scores []ComboScore `json:"scores"`
}

// CrossValidate fits params on each fold with balanced weights and returns the
// validation accuracies in fold order
func CrossValidate(ctx context.Context, X [][]float64, y []models.Signal, folds []Fold, params forest.Params, seed int64, workers int) ([]float64, error) {
	scores, err := searchJobs(ctx, X, y, folds, []forest.Params{params}, seed, workers)
	if err != nil {
		return nil, err
	}
	return scores[0], nil
}

// Search evaluates every combination with k-fold cross-validation. Jobs run in
// parallel on read-only data; the highest mean accuracy wins and ties go to the
// earlier combination.
func Search(ctx context.Context, X [][]float64, y []models.Signal, combos []forest.Params, k int, seed int64, workers int) (*SearchResult, error) {
	if len(combos) == 0 {
		return nil, fmt.Errorf("empty hyperparameter grid")
	}

	folds, err := StratifiedKFold(y, k)
	if err != nil {
		return nil, err
	}

	logger.Info("starting grid search",
		zap.Int("combinations", len(combos)),
		zap.Int("folds", k),
		zap.Int("fits", len(combos)*k),
		zap.Int("workers", workers),
	)

	foldScores, err := searchJobs(ctx, X, y, folds, combos, seed, workers)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Scores: make([]ComboScore, len(combos))}
	bestIdx := -1
	for i, p := range combos {
		mean, std := MeanStd(foldScores[i])
		result.Scores[i] = ComboScore{Params: p, FoldScores: foldScores[i], Mean: mean, Std: std}
		if bestIdx < 0 || mean > result.Scores[bestIdx].Mean {
			bestIdx = i
		}
	}
	result.Best = result.Scores[bestIdx]

	logger.Info("grid search finished",
		zap.String("best_params", result.Best.Params.String()),
		zap.Float64("best_cv_accuracy", result.Best.Mean),
	)

	return result, nil
}

// searchJobs runs every (combination, fold) fit and writes each score into its
// own slot
func searchJobs(ctx context.Context, X [][]float64, y []models.Signal, folds []Fold, combos []forest.Params, seed int64, workers int) ([][]float64, error) {
	scores := make([][]float64, len(combos))
	for i := range scores {
		scores[i] = make([]float64, len(folds))
	}

	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for ci := range combos {
		for fi := range folds {
			ci, fi := ci, fi
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				xTrain, yTrain := subset(X, y, folds[fi].Train)
				xVal, yVal := subset(X, y, folds[fi].Validation)

				model, err := forest.Fit(xTrain, yTrain, forest.BalancedWeights(yTrain), combos[ci], seed)
				if err != nil {
					return fmt.Errorf("failed to fit %s on fold %d: %w", combos[ci], fi, err)
				}
				pred, err := model.PredictAll(xVal)
				if err != nil {
					return err
				}
				scores[ci][fi] = Accuracy(yVal, pred)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
