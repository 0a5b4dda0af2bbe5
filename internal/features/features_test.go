package features

import (
	"errors"
	"math"
	"testing"

	"github.com/selivandex/stock-signal/pkg/models"
)

func TestDefaultManifest(t *testing.T) {
	want := Manifest{
		"open", "high", "low", "close", "volume",
		"macd", "macd_signal", "macd_diff", "rsi",
		"bb_mid", "bb_high", "bb_low", "bb_width",
		"obv", "news_sentiment",
	}

	got := DefaultManifest()
	if !got.Equal(want) {
		t.Errorf("DefaultManifest = %v, want %v", got, want)
	}
	if got.Equal(want[:len(want)-1]) {
		t.Error("manifests of different length must differ")
	}
}

func TestManifestFromColumns_PreservesOrder(t *testing.T) {
	got := ManifestFromColumns([]string{"rsi", "target", "ticker", "close", "future_return", "date"})
	if !got.Equal(Manifest{"rsi", "close"}) {
		t.Errorf("got %v", got)
	}
}

func TestImpute(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"forward then backward", []float64{5, nan, nan, 8, nan}, []float64{5, 5, 5, 8, 8}},
		{"leading gap", []float64{nan, nan, 3, 4}, []float64{3, 3, 3, 4}},
		{"all missing", []float64{nan, nan, nan}, []float64{0, 0, 0}},
		{"infinities", []float64{1, math.Inf(1), math.Inf(-1), 2}, []float64{1, 1, 1, 2}},
		{"leading infinity", []float64{math.Inf(1), 7}, []float64{7, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			X := make([][]float64, len(tt.in))
			for i, v := range tt.in {
				X[i] = []float64{v, 1}
			}

			Impute(X)

			for i, w := range tt.want {
				if X[i][0] != w {
					t.Errorf("row %d = %v, want %v", i, X[i][0], w)
				}
				if X[i][1] != 1 {
					t.Error("other columns must not change")
				}
			}
		})
	}
}

func labeledRows() []models.LabeledRow {
	rows := make([]models.LabeledRow, 3)
	for i := range rows {
		rows[i].Ticker = "AAPL"
		rows[i].Close = float64(100 + i)
		rows[i].RSI = math.NaN()
		rows[i].NewsSentiment = 0.1 * float64(i)
		rows[i].Target = models.Signal(i - 1)
	}
	rows[2].RSI = 55
	return rows
}

func TestPrepare(t *testing.T) {
	m, err := Prepare(labeledRows())
	if err != nil {
		t.Fatal(err)
	}

	idx := m.Manifest.Index()
	if len(m.X) != 3 || len(m.X[0]) != len(m.Manifest) {
		t.Fatalf("unexpected shape %dx%d", len(m.X), len(m.X[0]))
	}
	if m.X[0][idx["rsi"]] != 55 {
		t.Errorf("leading NaN should be back-filled, got %v", m.X[0][idx["rsi"]])
	}
	if m.X[1][idx["close"]] != 101 {
		t.Errorf("close = %v", m.X[1][idx["close"]])
	}
	if m.Y[0] != models.SignalSell || m.Y[2] != models.SignalBuy {
		t.Errorf("unexpected labels %v", m.Y)
	}
}

func TestPrepare_Empty(t *testing.T) {
	_, err := Prepare(nil)

	var insufficient *models.DataInsufficientError
	if !errors.As(err, &insufficient) {
		t.Errorf("expected DataInsufficientError, got %v", err)
	}
}

func TestProject_UnknownColumn(t *testing.T) {
	if _, err := Project(Manifest{"close", "ticker"}, labeledRows()); err == nil {
		t.Error("non-numeric column must be rejected")
	}
}

func TestVector(t *testing.T) {
	manifest := DefaultManifest()

	rows := labeledRows()
	rows[0].RSI = 40
	X, err := Project(manifest, rows[:1])
	if err != nil {
		t.Fatal(err)
	}

	values := make(map[string]float64, len(manifest))
	for i, col := range manifest {
		values[col] = X[0][i]
	}
	values["extra"] = 123

	vec, err := Vector(manifest, values)
	if err != nil {
		t.Fatal(err)
	}
	for i := range vec {
		if vec[i] != X[0][i] {
			t.Errorf("column %s = %v, want %v", manifest[i], vec[i], X[0][i])
		}
	}

	delete(values, "rsi")
	values["obv"] = math.NaN()
	_, err = Vector(manifest, values)

	var missing *models.MissingFeatureError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFeatureError, got %v", err)
	}
	if len(missing.Missing) != 2 || missing.Missing[0] != "rsi" || missing.Missing[1] != "obv" {
		t.Errorf("unexpected missing list %v", missing.Missing)
	}
}
