package forest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/selivandex/stock-signal/pkg/models"
)

// generateDataset builds three classes separated on feature 0; feature 1 is noise
func generateDataset(n int, seed int64) ([][]float64, []models.Signal) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]models.Signal, n)
	for i := 0; i < n; i++ {
		class := models.Classes[i%3]
		X[i] = []float64{float64(class)*10 + rng.Float64(), rng.Float64() * 100, rng.NormFloat64()}
		y[i] = class
	}
	return X, y
}

func defaultParams() Params {
	return Params{NEstimators: 20, MaxDepth: 10, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: "sqrt"}
}

func TestFit_Separable(t *testing.T) {
	X, y := generateDataset(150, 1)

	f, err := Fit(X, y, nil, defaultParams(), 42)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	pred, err := f.PredictAll(X)
	if err != nil {
		t.Fatal(err)
	}
	correct := 0
	for i := range y {
		if pred[i] == y[i] {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(y)); acc < 0.95 {
		t.Errorf("expected near perfect training accuracy, got %.2f", acc)
	}

	if len(f.Classes) != 3 || f.Classes[0] != models.SignalSell || f.Classes[2] != models.SignalBuy {
		t.Errorf("classes must be sorted, got %v", f.Classes)
	}

	imp := f.FeatureImportances()
	if math.Abs(sum(imp)-1) > 1e-9 {
		t.Errorf("importances must sum to 1, got %f", sum(imp))
	}
	if imp[0] <= imp[1] || imp[0] <= imp[2] {
		t.Errorf("informative feature should dominate, got %v", imp)
	}
}

func TestPredictProba_SumsToOne(t *testing.T) {
	X, y := generateDataset(90, 2)
	f, err := Fit(X, y, BalancedWeights(y), defaultParams(), 7)
	if err != nil {
		t.Fatal(err)
	}

	proba, err := f.PredictProba([]float64{5, 50, 0})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sum(proba)-1) > 1e-9 {
		t.Errorf("probabilities sum to %f", sum(proba))
	}

	if _, err := f.PredictProba([]float64{1}); err == nil {
		t.Error("wrong feature count must fail")
	}
}

func TestFit_Deterministic(t *testing.T) {
	X, y := generateDataset(120, 3)

	a, err := Fit(X, y, nil, defaultParams(), 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fit(X, y, nil, defaultParams(), 42)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Fit(X, y, nil, defaultParams(), 43)
	if err != nil {
		t.Fatal(err)
	}

	probe := []float64{0.2, 10, 0.1}
	pa, _ := a.PredictProba(probe)
	pb, _ := b.PredictProba(probe)
	for k := range pa {
		if pa[k] != pb[k] {
			t.Fatal("same seed must build the same forest")
		}
	}

	ja, _ := a.MarshalBinary()
	jc, _ := c.MarshalBinary()
	if string(ja) == string(jc) {
		t.Error("different seeds should build different forests")
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	X, y := generateDataset(90, 4)
	f, err := Fit(X, y, BalancedWeights(y), defaultParams(), 42)
	if err != nil {
		t.Fatal(err)
	}

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}

	for _, x := range X {
		want, _ := f.PredictProba(x)
		got, _ := loaded.PredictProba(x)
		for k := range want {
			if want[k] != got[k] {
				t.Fatalf("loaded forest differs: %v vs %v", got, want)
			}
		}
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := map[string]string{
		"garbage":  "{",
		"no trees": `{"classes":[-1,0,1],"trees":[]}`,
		"bad leaf": `{"classes":[-1,0,1],"n_features":1,"trees":[{"nodes":[{"left":-1,"right":-1,"dist":[1]}]}]}`,
		"cycle":    `{"classes":[0],"n_features":1,"trees":[{"nodes":[{"feature":0,"left":0,"right":0}]}]}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMinSamplesLeaf(t *testing.T) {
	X, y := generateDataset(60, 5)
	params := Params{NEstimators: 1, MaxDepth: 0, MinSamplesSplit: 2, MinSamplesLeaf: 1000, MaxFeatures: "all"}

	f, err := Fit(X, y, nil, params, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Trees[0].Nodes) != 1 {
		t.Errorf("leaf minimum larger than the data must give a stump, got %d nodes", len(f.Trees[0].Nodes))
	}
	for _, v := range f.FeatureImportances() {
		if v != 0 {
			t.Error("no split means zero importance")
		}
	}
}

func TestMaxDepth(t *testing.T) {
	X, y := generateDataset(90, 6)
	params := Params{NEstimators: 3, MaxDepth: 1, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: "all"}

	f, err := Fit(X, y, nil, params, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, tree := range f.Trees {
		if len(tree.Nodes) > 3 {
			t.Errorf("depth 1 tree has %d nodes", len(tree.Nodes))
		}
	}
}

func TestBalancedWeights(t *testing.T) {
	y := []models.Signal{0, 0, 0, 1, -1, -1}
	w := BalancedWeights(y)

	want := []float64{6.0 / 9, 6.0 / 9, 6.0 / 9, 2, 1, 1}
	for i := range want {
		if math.Abs(w[i]-want[i]) > 1e-12 {
			t.Errorf("w[%d] = %f, want %f", i, w[i], want[i])
		}
	}
}

func TestParams(t *testing.T) {
	tests := []struct {
		name  string
		p     Params
		valid bool
	}{
		{"default", defaultParams(), true},
		{"no trees", Params{NEstimators: 0, MinSamplesSplit: 2, MinSamplesLeaf: 1}, false},
		{"split one", Params{NEstimators: 1, MinSamplesSplit: 1, MinSamplesLeaf: 1}, false},
		{"bad max features", Params{NEstimators: 1, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: "half"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.p.Validate(); (err == nil) != tt.valid {
				t.Errorf("Validate() = %v, valid %v", err, tt.valid)
			}
		})
	}

	if got := (Params{MaxFeatures: "sqrt"}).featuresPerSplit(15); got != 3 {
		t.Errorf("sqrt(15) features = %d, want 3", got)
	}
	if got := (Params{MaxFeatures: "all"}).featuresPerSplit(15); got != 15 {
		t.Errorf("all features = %d", got)
	}
}

func TestFit_InvalidInput(t *testing.T) {
	if _, err := Fit(nil, nil, nil, defaultParams(), 1); err == nil {
		t.Error("empty input must fail")
	}
	X := [][]float64{{1}, {math.NaN()}}
	if _, err := Fit(X, []models.Signal{0, 1}, nil, defaultParams(), 1); err == nil {
		t.Error("NaN input must fail")
	}
	if _, err := Fit([][]float64{{1}}, []models.Signal{0, 1}, nil, defaultParams(), 1); err == nil {
		t.Error("length mismatch must fail")
	}
}
