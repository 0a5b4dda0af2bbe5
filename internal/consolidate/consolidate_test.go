package consolidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/selivandex/stock-signal/internal/indicators"
	"github.com/selivandex/stock-signal/internal/sentiment"
	"github.com/selivandex/stock-signal/pkg/models"
)

type fakePrices map[string][]models.PriceBar

func (f fakePrices) LoadBars(_ context.Context, ticker string) ([]models.PriceBar, error) {
	bars, ok := f[ticker]
	if !ok {
		return nil, errors.New("file not found")
	}
	out := make([]models.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

type fakeNews map[string][]models.NewsArticle

func (f fakeNews) LoadNews(_ context.Context, ticker string) ([]models.NewsArticle, error) {
	articles, ok := f[ticker]
	if !ok {
		return nil, errors.New("no news file")
	}
	return articles, nil
}

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func generateBars(count int) []models.PriceBar {
	bars := make([]models.PriceBar, count)
	price := 100.0
	for i := range bars {
		price *= 1.003
		bars[i] = models.PriceBar{
			// intraday timestamps must be normalized before the join
			Date:   base.AddDate(0, 0, i).Add(16 * time.Hour),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}

func headlineScorer() sentiment.Scorer {
	scores := map[string]float64{"good": 0.8, "bad": -0.4}
	return sentiment.ScorerFunc(func(_ context.Context, headline, _ string) (float64, error) {
		return scores[headline], nil
	})
}

func TestRun_LeftJoin(t *testing.T) {
	prices := fakePrices{"AAPL": generateBars(40), "MSFT": generateBars(40)}
	news := fakeNews{
		"AAPL": {
			{Headline: "good", PublishedAt: base.AddDate(0, 0, 30).Add(9 * time.Hour)},
			{Headline: "bad", PublishedAt: base.AddDate(0, 0, 30).Add(20 * time.Hour)},
			{Headline: "bad", PublishedAt: base.AddDate(0, 0, 32)},
		},
	}

	c := New(prices, news, indicators.NewEngine(), sentiment.NewAggregator(headlineScorer()), Options{
		Start: base.AddDate(0, 0, 25),
	})

	result, err := c.Run(context.Background(), []string{"MSFT", "AAPL"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Rows) != 30 {
		t.Fatalf("expected 15 rows per ticker after start filter, got %d", len(result.Rows))
	}
	if result.Rows[0].Ticker != "AAPL" || result.Rows[len(result.Rows)-1].Ticker != "MSFT" {
		t.Error("rows must be ordered by ticker")
	}

	for i := range result.Rows {
		row := &result.Rows[i]
		if row.Date.Hour() != 0 {
			t.Fatal("dates must be normalized")
		}
		if row.Date.Before(base.AddDate(0, 0, 25)) {
			t.Fatal("rows before start must be dropped")
		}

		want := 0.0
		if row.Ticker == "AAPL" {
			switch {
			case row.Date.Equal(base.AddDate(0, 0, 30)):
				want = 0.2
			case row.Date.Equal(base.AddDate(0, 0, 32)):
				want = -0.4
			}
		}
		if diff := row.NewsSentiment - want; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("%s %s sentiment = %f, want %f", row.Ticker, row.Date.Format("2006-01-02"), row.NewsSentiment, want)
		}
	}

	if result.Reports[1].Ticker != "AAPL" || result.Reports[1].DaysWithNews != 2 {
		t.Errorf("unexpected AAPL report %+v", result.Reports[1])
	}
	if !result.From.Equal(base.AddDate(0, 0, 25)) || !result.To.Equal(base.AddDate(0, 0, 39)) {
		t.Errorf("unexpected date range %v - %v", result.From, result.To)
	}
}

func TestRun_IndicatorsUseFullHistory(t *testing.T) {
	prices := fakePrices{"AAPL": generateBars(40)}
	c := New(prices, fakeNews{}, indicators.NewEngine(), sentiment.NewAggregator(headlineScorer()), Options{
		Start: base.AddDate(0, 0, 30),
	})

	result, err := c.Run(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Rows[0].Complete() {
		t.Error("rows after start should inherit warm-up from earlier history")
	}
}

func TestRun_SkipsBrokenTicker(t *testing.T) {
	prices := fakePrices{"AAPL": generateBars(30)}
	c := New(prices, fakeNews{}, indicators.NewEngine(), sentiment.NewAggregator(headlineScorer()), Options{Start: base})

	result, err := c.Run(context.Background(), []string{"AAPL", "NOPE"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "NOPE" {
		t.Errorf("expected NOPE to be skipped, got %v", result.Skipped)
	}
	for _, row := range result.Rows {
		if row.NewsSentiment != 0.0 {
			t.Fatal("ticker without news must have neutral sentiment")
		}
	}
}

func TestRun_AllTickersFail(t *testing.T) {
	c := New(fakePrices{}, fakeNews{}, indicators.NewEngine(), sentiment.NewAggregator(headlineScorer()), Options{Start: base})

	_, err := c.Run(context.Background(), []string{"A", "B"})

	var insufficient *models.DataInsufficientError
	if !errors.As(err, &insufficient) {
		t.Errorf("expected DataInsufficientError, got %v", err)
	}
}

func TestRun_DropIncomplete(t *testing.T) {
	prices := fakePrices{"AAPL": generateBars(40)}
	c := New(prices, fakeNews{}, indicators.NewEngine(), sentiment.NewAggregator(headlineScorer()), Options{
		Start:          base,
		DropIncomplete: true,
	})

	result, err := c.Run(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Rows) != 40-25 {
		t.Errorf("expected warm-up rows dropped, got %d rows", len(result.Rows))
	}
	if result.Reports[0].Dropped != 25 {
		t.Errorf("expected 25 dropped rows, got %d", result.Reports[0].Dropped)
	}
}
