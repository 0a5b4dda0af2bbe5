package training

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/features"
	"github.com/selivandex/stock-signal/internal/forest"
	"github.com/selivandex/stock-signal/internal/labels"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/metrics"
	"github.com/selivandex/stock-signal/pkg/models"
)

// ArtifactSink persists a finished model
type ArtifactSink interface {
	Save(ctx context.Context, res *Result) error
}

// RunRecorder stores run history
type RunRecorder interface {
	RecordRun(ctx context.Context, res *Result) error
}

// Notifier announces finished runs
type Notifier interface {
	NotifyTraining(ctx context.Context, res *Result) error
}

// Options configures model selection
type Options struct {
	Seed            int64
	TestRatio       float64
	CVFolds         int
	DiagnosticFolds int
	Workers         int
	Grid            []forest.Params
}

// FeatureImportance is one ranked feature
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Result holds the selected model and its evaluation
type Result struct {
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	Model            *forest.Forest       `json:"-"`
	Report           *Report              `json:"report"`
	Distribution     *labels.Distribution `json:"distribution"`
	Manifest         features.Manifest    `json:"manifest"`
	Search           *SearchResult        `json:"search"`
	Importance       []FeatureImportance  `json:"importance"`
	Confusion        [][]int              `json:"confusion"`
	DiagnosticScores []float64            `json:"diagnostic_scores"`
	BestParams       forest.Params        `json:"best_params"`
	TrainAccuracy    float64              `json:"train_accuracy"`
	TestAccuracy     float64              `json:"test_accuracy"`
	BestCVAccuracy   float64              `json:"best_cv_accuracy"`
	DiagnosticMean   float64              `json:"diagnostic_mean"`
	DiagnosticStd    float64              `json:"diagnostic_std"`
	TrainSize        int                  `json:"train_size"`
	TestSize         int                  `json:"test_size"`
	State            State                `json:"state"`
}

// Trainer runs model selection over a labeled table
type Trainer struct {
	opts     Options
	sink     ArtifactSink
	recorder RunRecorder
	notifier Notifier
}

// NewTrainer creates trainer; recorder and notifier may be nil
func NewTrainer(opts Options, sink ArtifactSink, recorder RunRecorder, notifier Notifier) *Trainer {
	return &Trainer{
		opts:     opts,
		sink:     sink,
		recorder: recorder,
		notifier: notifier,
	}
}

// Train selects, fits and evaluates a model without persisting it
func (t *Trainer) Train(ctx context.Context, rows []models.LabeledRow) (*Result, error) {
	res, _, err := t.train(ctx, rows)
	return res, err
}

// Run trains and then saves artifacts. Nothing is written unless the final
// fit succeeded. Recorder and notifier failures are logged only.
func (t *Trainer) Run(ctx context.Context, rows []models.LabeledRow) (*Result, error) {
	res, m, err := t.train(ctx, rows)
	if err != nil {
		return nil, err
	}
	if err := m.require(StateFinalFitted); err != nil {
		return nil, err
	}

	if t.sink != nil {
		start := time.Now()
		if err := t.sink.Save(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to save artifacts: %w", err)
		}
		metrics.ObserveStage("save_artifacts", start)
	}
	if err := m.advance(StateArtifactsSaved); err != nil {
		return nil, err
	}
	res.State = m.state
	res.FinishedAt = time.Now()

	if t.recorder != nil {
		if err := t.recorder.RecordRun(ctx, res); err != nil {
			logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	if t.notifier != nil {
		if err := t.notifier.NotifyTraining(ctx, res); err != nil {
			logger.Warn("failed to send training notification", zap.Error(err))
		}
	}

	return res, nil
}

func (t *Trainer) train(ctx context.Context, rows []models.LabeledRow) (*Result, *machine, error) {
	m := &machine{}
	res := &Result{StartedAt: time.Now()}

	// DataLoaded
	if len(rows) == 0 {
		return nil, m, &models.DataInsufficientError{Stage: "training", Reason: "empty training set"}
	}
	res.Distribution = labels.Distribute(rows)
	present := 0
	for _, c := range res.Distribution.Overall {
		if c.Count > 0 {
			present++
		}
	}
	if present < 2 {
		return nil, m, &models.DataInsufficientError{Stage: "training", Reason: "training set has a single class"}
	}
	if err := m.advance(StateDataLoaded); err != nil {
		return nil, m, err
	}

	// FeaturesPrepared
	start := time.Now()
	matrix, err := features.Prepare(rows)
	if err != nil {
		return nil, m, fmt.Errorf("failed to prepare features: %w", err)
	}
	res.Manifest = matrix.Manifest
	metrics.ObserveStage("prepare_features", start)
	if err := m.advance(StateFeaturesPrepared); err != nil {
		return nil, m, err
	}

	trainIdx, testIdx, err := StratifiedSplit(matrix.Y, t.opts.TestRatio, t.opts.Seed)
	if err != nil {
		return nil, m, err
	}
	xTrain, yTrain := subset(matrix.X, matrix.Y, trainIdx)
	xTest, yTest := subset(matrix.X, matrix.Y, testIdx)
	res.TrainSize, res.TestSize = len(trainIdx), len(testIdx)

	logger.Info("training set split",
		zap.Int("train", res.TrainSize),
		zap.Int("test", res.TestSize),
		zap.Int("features", len(matrix.Manifest)),
	)

	// GridSearched
	start = time.Now()
	search, err := Search(ctx, xTrain, yTrain, t.opts.Grid, t.opts.CVFolds, t.opts.Seed, t.opts.Workers)
	if err != nil {
		return nil, m, fmt.Errorf("grid search failed: %w", err)
	}
	res.Search = search
	res.BestParams = search.Best.Params
	res.BestCVAccuracy = search.Best.Mean
	metrics.ObserveStage("grid_search", start)
	if err := m.advance(StateGridSearched); err != nil {
		return nil, m, err
	}

	// FinalFitted
	start = time.Now()
	model, err := forest.Fit(xTrain, yTrain, forest.BalancedWeights(yTrain), res.BestParams, t.opts.Seed)
	if err != nil {
		return nil, m, fmt.Errorf("final fit failed: %w", err)
	}
	res.Model = model

	trainPred, err := model.PredictAll(xTrain)
	if err != nil {
		return nil, m, err
	}
	testPred, err := model.PredictAll(xTest)
	if err != nil {
		return nil, m, err
	}
	res.TrainAccuracy = Accuracy(yTrain, trainPred)
	res.TestAccuracy = Accuracy(yTest, testPred)
	res.Report = Classify(yTest, testPred)
	res.Confusion = ConfusionMatrix(yTest, testPred)

	folds, err := StratifiedKFold(yTrain, t.opts.DiagnosticFolds)
	if err != nil {
		return nil, m, err
	}
	res.DiagnosticScores, err = CrossValidate(ctx, xTrain, yTrain, folds, res.BestParams, t.opts.Seed, t.opts.Workers)
	if err != nil {
		return nil, m, fmt.Errorf("diagnostic cross-validation failed: %w", err)
	}
	res.DiagnosticMean, res.DiagnosticStd = MeanStd(res.DiagnosticScores)

	res.Importance = rankImportance(matrix.Manifest, model.FeatureImportances())
	metrics.ObserveStage("final_fit", start)
	metrics.SetAccuracy("train", res.TrainAccuracy)
	metrics.SetAccuracy("test", res.TestAccuracy)

	if err := m.advance(StateFinalFitted); err != nil {
		return nil, m, err
	}
	res.State = m.state
	res.FinishedAt = time.Now()

	logger.Info("model trained",
		zap.String("params", res.BestParams.String()),
		zap.Float64("train_accuracy", res.TrainAccuracy),
		zap.Float64("test_accuracy", res.TestAccuracy),
		zap.Float64("cv_mean", res.DiagnosticMean),
		zap.Float64("cv_std", res.DiagnosticStd),
	)

	return res, m, nil
}

// rankImportance pairs importances with names, descending; ties keep manifest order
func rankImportance(manifest features.Manifest, importances []float64) []FeatureImportance {
	ranked := make([]FeatureImportance, len(manifest))
	for i, name := range manifest {
		ranked[i] = FeatureImportance{Feature: name, Importance: importances[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})
	return ranked
}
