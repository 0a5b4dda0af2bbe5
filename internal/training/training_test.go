package training

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/internal/features"
	"github.com/selivandex/stock-signal/internal/forest"
	"github.com/selivandex/stock-signal/pkg/models"
)

// generateLabeledRows builds rows whose label is driven by rsi with some noise
func generateLabeledRows(n int, seed int64) []models.LabeledRow {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]models.LabeledRow, n)

	for i := range rows {
		target := models.Classes[i%3]
		row := &rows[i]
		row.Ticker = []string{"AAPL", "MSFT"}[i%2]
		row.Date = start.AddDate(0, 0, i/2)
		row.Close = 100 + rng.Float64()*10
		row.Open, row.High, row.Low = row.Close, row.Close+1, row.Close-1
		row.Volume = 1000 + rng.Float64()*100
		row.RSI = 50 + float64(target)*20 + rng.NormFloat64()*3
		row.MACD = rng.NormFloat64()
		row.OBV = rng.Float64() * 1000
		row.NewsSentiment = float64(target)*0.2 + rng.NormFloat64()*0.1
		row.Target = target
		if i < 5 {
			row.BBMid = math.NaN()
		}
	}
	return rows
}

func testOptions() Options {
	return Options{
		Seed:            42,
		TestRatio:       0.2,
		CVFolds:         3,
		DiagnosticFolds: 5,
		Workers:         4,
		Grid: []forest.Params{
			{NEstimators: 5, MaxDepth: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: "sqrt"},
			{NEstimators: 5, MaxDepth: 6, MinSamplesSplit: 5, MinSamplesLeaf: 2, MaxFeatures: "sqrt"},
		},
	}
}

type recordingSink struct {
	saved int
	err   error
}

func (s *recordingSink) Save(_ context.Context, res *Result) error {
	if res.State != StateFinalFitted {
		return errors.New("saved before final fit")
	}
	s.saved++
	return s.err
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordRun(context.Context, *Result) error {
	f.calls++
	return errors.New("database down")
}

func TestTrainer_Run(t *testing.T) {
	sink := &recordingSink{}
	recorder := &failingRecorder{}
	trainer := NewTrainer(testOptions(), sink, recorder, nil)

	res, err := trainer.Run(context.Background(), generateLabeledRows(180, 1))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.State != StateArtifactsSaved {
		t.Errorf("state = %s", res.State)
	}
	if sink.saved != 1 || recorder.calls != 1 {
		t.Errorf("sink saved %d times, recorder called %d times", sink.saved, recorder.calls)
	}
	if res.TrainSize != 144 || res.TestSize != 36 {
		t.Errorf("unexpected split sizes %d/%d", res.TrainSize, res.TestSize)
	}
	if !res.Manifest.Equal(features.DefaultManifest()) {
		t.Errorf("unexpected manifest %v", res.Manifest)
	}
	if len(res.Search.Scores) != 2 || len(res.Search.Scores[0].FoldScores) != 3 {
		t.Errorf("unexpected search scores %+v", res.Search.Scores)
	}
	if len(res.DiagnosticScores) != 5 {
		t.Errorf("expected 5 diagnostic scores, got %d", len(res.DiagnosticScores))
	}
	if res.TestAccuracy < 0.6 {
		t.Errorf("rsi-driven labels should be learnable, test accuracy %.2f", res.TestAccuracy)
	}
	if res.Importance[0].Importance < res.Importance[len(res.Importance)-1].Importance {
		t.Error("importance must be ranked descending")
	}
	if res.Report.Support != res.TestSize || len(res.Report.Classes) != 3 {
		t.Errorf("unexpected report %+v", res.Report)
	}
}

func TestTrainer_Deterministic(t *testing.T) {
	rows := generateLabeledRows(150, 2)

	a, err := NewTrainer(testOptions(), nil, nil, nil).Train(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewTrainer(testOptions(), nil, nil, nil).Train(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}

	if a.BestParams != b.BestParams {
		t.Errorf("selected params differ: %v vs %v", a.BestParams, b.BestParams)
	}
	if a.TrainAccuracy != b.TrainAccuracy || a.TestAccuracy != b.TestAccuracy {
		t.Errorf("accuracies differ: %f/%f vs %f/%f", a.TrainAccuracy, a.TestAccuracy, b.TrainAccuracy, b.TestAccuracy)
	}
}

func TestTrainer_SinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	_, err := NewTrainer(testOptions(), sink, nil, nil).Run(context.Background(), generateLabeledRows(90, 3))
	if err == nil {
		t.Fatal("sink failure must fail the run")
	}
}

func TestTrainer_InsufficientData(t *testing.T) {
	tests := []struct {
		name string
		rows []models.LabeledRow
	}{
		{"empty", nil},
		{"single class", func() []models.LabeledRow {
			rows := generateLabeledRows(30, 4)
			for i := range rows {
				rows[i].Target = models.SignalHold
			}
			return rows
		}()},
		{"tiny class", func() []models.LabeledRow {
			rows := generateLabeledRows(30, 5)
			for i := range rows {
				rows[i].Target = models.SignalHold
			}
			rows[0].Target = models.SignalBuy
			return rows
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			_, err := NewTrainer(testOptions(), sink, nil, nil).Run(context.Background(), tt.rows)

			var insufficient *models.DataInsufficientError
			if !errors.As(err, &insufficient) {
				t.Errorf("expected DataInsufficientError, got %v", err)
			}
			if sink.saved != 0 {
				t.Error("no artifacts may be saved on failure")
			}
		})
	}
}

func TestMachine(t *testing.T) {
	m := &machine{}
	if err := m.advance(StateFeaturesPrepared); err == nil {
		t.Error("skipping a state must fail")
	}
	for s := StateDataLoaded; s <= StateArtifactsSaved; s++ {
		if err := m.advance(s); err != nil {
			t.Fatalf("advance(%s): %v", s, err)
		}
	}
	if err := m.advance(StateDataLoaded); err == nil {
		t.Error("backward transition must fail")
	}
	if err := m.require(StateFinalFitted); err != nil {
		t.Error(err)
	}
}

func TestStratifiedSplit(t *testing.T) {
	y := make([]models.Signal, 100)
	for i := range y {
		switch {
		case i < 50:
			y[i] = models.SignalHold
		case i < 80:
			y[i] = models.SignalBuy
		default:
			y[i] = models.SignalSell
		}
	}

	train, test, err := StratifiedSplit(y, 0.2, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(train) != 80 || len(test) != 20 {
		t.Fatalf("split sizes %d/%d", len(train), len(test))
	}

	counts := map[models.Signal]int{}
	for _, i := range test {
		counts[y[i]]++
	}
	if counts[models.SignalHold] != 10 || counts[models.SignalBuy] != 6 || counts[models.SignalSell] != 4 {
		t.Errorf("test split not stratified: %v", counts)
	}

	again, _, _ := StratifiedSplit(y, 0.2, 42)
	for i := range train {
		if train[i] != again[i] {
			t.Fatal("same seed must give the same split")
		}
	}
}

func TestStratifiedKFold(t *testing.T) {
	y := []models.Signal{0, 0, 0, 0, 0, 0, 1, 1, 1, -1, -1, -1, -1}

	folds, err := StratifiedKFold(y, 3)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[int]int)
	for _, f := range folds {
		if len(f.Train)+len(f.Validation) != len(y) {
			t.Error("fold must cover every sample")
		}
		for _, i := range f.Validation {
			seen[i]++
		}
		hasBuy := false
		for _, i := range f.Validation {
			if y[i] == 1 {
				hasBuy = true
			}
		}
		if !hasBuy {
			t.Error("every fold should validate on each class with enough samples")
		}
	}
	for i := range y {
		if seen[i] != 1 {
			t.Errorf("sample %d validated %d times", i, seen[i])
		}
	}

	if _, err := StratifiedKFold(y[:2], 3); err == nil {
		t.Error("too few samples must fail")
	}
}

func TestGrid_Order(t *testing.T) {
	combos := Grid(config.GridConfig{
		NEstimators:     []int{200, 100},
		MaxDepth:        []int{12, 10},
		MinSamplesSplit: []int{5},
		MinSamplesLeaf:  []int{2},
		MaxFeatures:     []string{"sqrt", "sqrt"},
	})

	if len(combos) != 4 {
		t.Fatalf("expected 4 unique combinations, got %d", len(combos))
	}
	if combos[0].NEstimators != 100 || combos[0].MaxDepth != 10 || combos[3].NEstimators != 200 || combos[3].MaxDepth != 12 {
		t.Errorf("grid not lexicographically ordered: %v", combos)
	}
}

func TestClassify(t *testing.T) {
	yTrue := []models.Signal{-1, -1, 0, 0, 1, 1}
	yPred := []models.Signal{-1, 0, 0, 0, 1, -1}

	r := Classify(yTrue, yPred)
	if math.Abs(r.Accuracy-4.0/6) > 1e-12 {
		t.Errorf("accuracy = %f", r.Accuracy)
	}

	sell := r.Classes[0]
	if sell.Label != "SELL" || sell.Precision != 0.5 || sell.Recall != 0.5 || sell.Support != 2 {
		t.Errorf("unexpected SELL metrics %+v", sell)
	}
	buy := r.Classes[2]
	if buy.Precision != 1 || buy.Recall != 0.5 || math.Abs(buy.F1-2.0/3) > 1e-12 {
		t.Errorf("unexpected BUY metrics %+v", buy)
	}

	cm := ConfusionMatrix(yTrue, yPred)
	if cm[2][0] != 1 || cm[1][1] != 2 {
		t.Errorf("unexpected confusion matrix %v", cm)
	}
	if r.String() == "" {
		t.Error("report must render")
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]float64{1, 2, 3, 4})
	if mean != 2.5 || math.Abs(std-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("MeanStd = %f, %f", mean, std)
	}
}
