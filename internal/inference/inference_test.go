package inference

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/selivandex/stock-signal/internal/artifacts"
	"github.com/selivandex/stock-signal/internal/features"
	"github.com/selivandex/stock-signal/internal/forest"
	"github.com/selivandex/stock-signal/internal/indicators"
	"github.com/selivandex/stock-signal/internal/sentiment"
	"github.com/selivandex/stock-signal/pkg/models"
)

var testNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

type fakeMarket struct {
	quote      *models.Quote
	quoteErr   error
	volume     float64
	volumeErr  error
	history    []models.PriceBar
	historyErr error
}

func (m *fakeMarket) Quote(context.Context, string) (*models.Quote, error) {
	return m.quote, m.quoteErr
}

func (m *fakeMarket) Volume(context.Context, string) (float64, error) {
	return m.volume, m.volumeErr
}

func (m *fakeMarket) DailyBars(context.Context, string, int) ([]models.PriceBar, error) {
	return m.history, m.historyErr
}

type fakeNews struct {
	articles []models.NewsArticle
	err      error
}

func (n *fakeNews) CompanyNews(context.Context, string, time.Time, time.Time) ([]models.NewsArticle, error) {
	return n.articles, n.err
}

func generateHistory(days int) []models.PriceBar {
	bars := make([]models.PriceBar, days)
	for i := range bars {
		price := 100 + 5*math.Sin(float64(i)/4)
		bars[i] = models.PriceBar{
			Ticker: "AAPL",
			Date:   models.NormalizeDate(testNow).AddDate(0, 0, i-days),
			Open:   price - 0.5,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1e6,
		}
	}
	return bars
}

func newTestMarket() *fakeMarket {
	return &fakeMarket{
		quote: &models.Quote{
			Timestamp: testNow,
			Symbol:    "AAPL",
			Open:      decimal.RequireFromString("101.5"),
			High:      decimal.RequireFromString("103"),
			Low:       decimal.RequireFromString("100.25"),
			Current:   decimal.RequireFromString("102.75"),
		},
		volume:  2500000,
		history: generateHistory(60),
	}
}

func lexiconScorer() sentiment.Scorer {
	return sentiment.ScorerFunc(func(_ context.Context, headline, _ string) (float64, error) {
		switch headline {
		case "good":
			return 0.8, nil
		case "bad":
			return -0.4, nil
		}
		return 0, errors.New("scorer unavailable")
	})
}

func newTestAssembler(market MarketData, news NewsProvider, policy sentiment.Policy) *Assembler {
	a := NewAssembler(market, news, lexiconScorer(), indicators.NewEngine(), Options{
		Window:      12 * time.Hour,
		Policy:      policy,
		HistoryDays: 100,
	})
	a.now = func() time.Time { return testNow }
	return a
}

func TestAssemble(t *testing.T) {
	news := &fakeNews{articles: []models.NewsArticle{
		{PublishedAt: testNow.Add(-time.Hour), Headline: "good"},
		{PublishedAt: testNow.Add(-2 * time.Hour), Headline: "bad"},
		{PublishedAt: testNow.Add(-24 * time.Hour), Headline: "good"},
	}}

	values, err := newTestAssembler(newTestMarket(), news, sentiment.PolicyPartial).Assemble(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	for _, col := range features.DefaultManifest() {
		if _, ok := values[col]; !ok {
			t.Errorf("missing feature %s", col)
		}
	}
	if values["close"] != 102.75 || values["volume"] != 2500000 {
		t.Errorf("unexpected quote features close=%v volume=%v", values["close"], values["volume"])
	}
	if math.Abs(values["news_sentiment"]-0.2) > 1e-12 {
		t.Errorf("news_sentiment = %v, want 0.2", values["news_sentiment"])
	}
}

func TestAssemble_Degraded(t *testing.T) {
	t.Run("volume failure leaves volume and obv out", func(t *testing.T) {
		market := newTestMarket()
		market.volumeErr = errors.New("rate limited")

		values, err := newTestAssembler(market, nil, sentiment.PolicyPartial).Assemble(context.Background(), "AAPL")
		if err != nil {
			t.Fatal(err)
		}
		for _, col := range []string{"volume", "obv"} {
			if _, ok := values[col]; ok {
				t.Errorf("%s must be absent after a volume outage", col)
			}
		}
		if _, ok := values["rsi"]; !ok {
			t.Error("price indicators must not depend on volume")
		}
		if values["news_sentiment"] != 0 {
			t.Errorf("no news provider must give neutral sentiment, got %v", values["news_sentiment"])
		}

		_, err = NewPredictor(staticSource(values), generateBundle(t, features.DefaultManifest())).
			PredictFeatures("AAPL", values)
		var missing *models.MissingFeatureError
		if !errors.As(err, &missing) {
			t.Errorf("expected MissingFeatureError, got %v", err)
		}
	})

	t.Run("quote fallback uses quote volume", func(t *testing.T) {
		market := newTestMarket()
		market.volumeErr = errors.New("rate limited")

		a := newTestAssembler(market, nil, sentiment.PolicyPartial)
		a.opts.VolumeFallback = VolumeQuote
		values, err := a.Assemble(context.Background(), "AAPL")
		if err != nil {
			t.Fatal(err)
		}
		if values["volume"] != 0 {
			t.Errorf("volume = %v, want 0", values["volume"])
		}
		if values["news_sentiment"] != 0 {
			t.Errorf("no news provider must give neutral sentiment, got %v", values["news_sentiment"])
		}
	})

	t.Run("history failure drops indicators", func(t *testing.T) {
		market := newTestMarket()
		market.historyErr = errors.New("unavailable")

		values, err := newTestAssembler(market, nil, sentiment.PolicyPartial).Assemble(context.Background(), "AAPL")
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := values["rsi"]; ok {
			t.Error("rsi must be absent without history")
		}
		if _, ok := values["obv"]; !ok {
			t.Error("obv is defined from the first bar")
		}
	})

	t.Run("news failure is neutral", func(t *testing.T) {
		values, err := newTestAssembler(newTestMarket(), &fakeNews{err: errors.New("timeout")}, sentiment.PolicyPartial).
			Assemble(context.Background(), "AAPL")
		if err != nil {
			t.Fatal(err)
		}
		if values["news_sentiment"] != 0 {
			t.Errorf("news_sentiment = %v", values["news_sentiment"])
		}
	})

	t.Run("scorer failure keeps partial mean", func(t *testing.T) {
		news := &fakeNews{articles: []models.NewsArticle{
			{PublishedAt: testNow.Add(-3 * time.Hour), Headline: "good"},
			{PublishedAt: testNow.Add(-2 * time.Hour), Headline: "broken"},
			{PublishedAt: testNow.Add(-time.Hour), Headline: "bad"},
		}}
		values, err := newTestAssembler(newTestMarket(), news, sentiment.PolicyPartial).Assemble(context.Background(), "AAPL")
		if err != nil {
			t.Fatal(err)
		}
		if values["news_sentiment"] != 0.8 {
			t.Errorf("news_sentiment = %v, want 0.8", values["news_sentiment"])
		}
	})

	t.Run("quote failure is fatal", func(t *testing.T) {
		market := newTestMarket()
		market.quoteErr = errors.New("503")

		_, err := newTestAssembler(market, nil, sentiment.PolicyPartial).Assemble(context.Background(), "AAPL")
		var upstream *models.UpstreamError
		if !errors.As(err, &upstream) {
			t.Errorf("expected UpstreamError, got %v", err)
		}
	})
}

func generateBundle(t *testing.T, manifest features.Manifest) *artifacts.Bundle {
	t.Helper()

	X := make([][]float64, 0, 30)
	y := make([]models.Signal, 0, 30)
	for i := 0; i < 30; i++ {
		row := make([]float64, len(manifest))
		for j := range row {
			row[j] = float64(i)
		}
		X = append(X, row)
		y = append(y, models.Classes[i/10])
	}

	model, err := forest.Fit(X, y, nil, forest.Params{
		NEstimators: 5, MaxDepth: 4, MinSamplesSplit: 2, MinSamplesLeaf: 1, MaxFeatures: "sqrt",
	}, 42)
	if err != nil {
		t.Fatal(err)
	}
	return &artifacts.Bundle{
		Model:    model,
		Manifest: manifest,
		Metadata: artifacts.Metadata{ModelType: artifacts.ModelType, NFeatures: len(manifest), CreatedDate: testNow},
	}
}

type staticSource map[string]float64

func (s staticSource) Assemble(context.Context, string) (map[string]float64, error) {
	return s, nil
}

func TestPredict(t *testing.T) {
	manifest := features.Manifest{"close", "rsi", "news_sentiment"}
	p := NewPredictor(staticSource{"close": 25, "rsi": 25, "news_sentiment": 25, "volume": 1}, generateBundle(t, manifest))

	pred, err := p.Predict(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if pred.Label != "BUY" || pred.Code != models.SignalBuy {
		t.Errorf("prediction = %s (%d), want BUY", pred.Label, pred.Code)
	}
	if len(pred.Confidence) != 3 {
		t.Errorf("expected confidence for all labels, got %v", pred.Confidence)
	}
	total := 0.0
	for _, v := range pred.Confidence {
		total += v
	}
	if math.Abs(total-1) > 1e-9 {
		t.Errorf("confidence sums to %v", total)
	}
	if len(pred.Features) != len(manifest) {
		t.Errorf("features_used should follow the manifest, got %v", pred.Features)
	}
	if pred.ModelInfo.ModelType != artifacts.ModelType || pred.ModelInfo.NFeatures != 3 {
		t.Errorf("unexpected model info %+v", pred.ModelInfo)
	}
}

func TestPredict_MissingFeature(t *testing.T) {
	manifest := features.Manifest{"close", "rsi", "news_sentiment"}
	p := NewPredictor(staticSource{"close": 1, "rsi": math.NaN()}, generateBundle(t, manifest))

	pred, err := p.Predict(context.Background(), "AAPL")
	var missing *models.MissingFeatureError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFeatureError, got %v", err)
	}
	if pred != nil {
		t.Error("no prediction may be produced")
	}
	if len(missing.Missing) != 2 || missing.Missing[0] != "rsi" || missing.Missing[1] != "news_sentiment" {
		t.Errorf("missing = %v", missing.Missing)
	}
}

func TestPredictor_Swap(t *testing.T) {
	first := generateBundle(t, features.Manifest{"close"})
	second := generateBundle(t, features.Manifest{"close", "rsi"})

	p := NewPredictor(staticSource{"close": 5}, first)
	if _, err := p.Predict(context.Background(), "AAPL"); err != nil {
		t.Fatal(err)
	}

	if old := p.Swap(second); old != first {
		t.Error("Swap must return the previous bundle")
	}
	if _, err := p.Predict(context.Background(), "AAPL"); err == nil {
		t.Error("new manifest needs rsi, prediction must fail")
	}

	empty := NewPredictor(staticSource{}, nil)
	if _, err := empty.Predict(context.Background(), "AAPL"); err == nil {
		t.Error("predicting without a model must fail")
	}
}

func TestMergeLive(t *testing.T) {
	history := generateHistory(3)
	live := history[2]
	live.Close = 999

	bars := mergeLive([]models.PriceBar{history[2], history[0], history[1]}, live)
	if len(bars) != 3 || bars[2].Close != 999 || !bars[0].Date.Before(bars[1].Date) {
		t.Errorf("unexpected merged bars %+v", bars)
	}
}
