package consolidate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/indicators"
	"github.com/selivandex/stock-signal/internal/sentiment"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/metrics"
	"github.com/selivandex/stock-signal/pkg/models"
)

// PriceSource loads the daily price history of a ticker
type PriceSource interface {
	LoadBars(ctx context.Context, ticker string) ([]models.PriceBar, error)
}

// NewsSource loads the news history of a ticker
type NewsSource interface {
	LoadNews(ctx context.Context, ticker string) ([]models.NewsArticle, error)
}

// Options controls row filtering
type Options struct {
	Start          time.Time
	DropIncomplete bool
}

// Consolidator joins indicator series with daily news sentiment
type Consolidator struct {
	prices     PriceSource
	news       NewsSource
	engine     *indicators.Engine
	aggregator *sentiment.Aggregator
	opts       Options
}

// New creates consolidator
func New(prices PriceSource, news NewsSource, engine *indicators.Engine, aggregator *sentiment.Aggregator, opts Options) *Consolidator {
	return &Consolidator{
		prices:     prices,
		news:       news,
		engine:     engine,
		aggregator: aggregator,
		opts:       opts,
	}
}

// Result is the consolidated table and per-ticker diagnostics
type Result struct {
	From    time.Time
	To      time.Time
	Rows    []models.ConsolidatedRow
	Reports []TickerReport
	Skipped []string
}

// TickerReport summarizes one ticker's contribution
type TickerReport struct {
	Coverage      map[string]float64
	Ticker        string
	Rows          int
	DaysWithNews  int
	DaysNoNews    int
	Dropped       int
	SentimentMean float64
	SentimentStd  float64
	SentimentMin  float64
	SentimentMax  float64
}

// Run consolidates every ticker. A ticker whose prices cannot be loaded is
// skipped; failing every ticker is an error.
func (c *Consolidator) Run(ctx context.Context, tickers []string) (*Result, error) {
	defer metrics.ObserveStage("consolidate", time.Now())

	result := &Result{}

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("consolidation cancelled: %w", err)
		}

		rows, report, err := c.consolidateTicker(ctx, ticker)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("consolidation cancelled: %w", ctx.Err())
			}
			logger.Warn("skipping ticker",
				zap.String("ticker", ticker),
				zap.Error(err),
			)
			result.Skipped = append(result.Skipped, ticker)
			continue
		}

		result.Rows = append(result.Rows, rows...)
		result.Reports = append(result.Reports, *report)

		logger.Info("ticker consolidated",
			zap.String("ticker", ticker),
			zap.Int("rows", report.Rows),
			zap.Int("days_with_news", report.DaysWithNews),
			zap.Int("days_without_news", report.DaysNoNews),
		)
	}

	if len(result.Rows) == 0 {
		return nil, &models.DataInsufficientError{
			Stage:  "consolidate",
			Reason: fmt.Sprintf("no ticker produced usable data (skipped: %s)", strings.Join(result.Skipped, ", ")),
		}
	}

	sort.SliceStable(result.Rows, func(i, j int) bool {
		a, b := &result.Rows[i], &result.Rows[j]
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.Date.Before(b.Date)
	})

	result.From, result.To = result.Rows[0].Date, result.Rows[0].Date
	for i := range result.Rows {
		d := result.Rows[i].Date
		if d.Before(result.From) {
			result.From = d
		}
		if d.After(result.To) {
			result.To = d
		}
	}

	return result, nil
}

func (c *Consolidator) consolidateTicker(ctx context.Context, ticker string) ([]models.ConsolidatedRow, *TickerReport, error) {
	bars, err := c.prices.LoadBars(ctx, ticker)
	if err != nil {
		metrics.RecordTickerSkipped("price_load")
		return nil, nil, fmt.Errorf("failed to load prices: %w", err)
	}

	for i := range bars {
		bars[i].Ticker = ticker
		bars[i].Date = models.NormalizeDate(bars[i].Date)
	}

	series, err := c.engine.Compute(bars)
	if err != nil {
		metrics.RecordTickerSkipped("indicators")
		return nil, nil, fmt.Errorf("failed to compute indicators: %w", err)
	}

	start := models.NormalizeDate(c.opts.Start)
	filtered := series[:0]
	for _, row := range series {
		if !row.Date.Before(start) {
			filtered = append(filtered, row)
		}
	}
	if len(filtered) == 0 {
		metrics.RecordTickerSkipped("no_rows_after_start")
		return nil, nil, fmt.Errorf("no price rows on or after %s", start.Format("2006-01-02"))
	}

	daily, err := c.dailySentiment(ctx, ticker, start)
	if err != nil {
		return nil, nil, err
	}

	report := &TickerReport{Ticker: ticker}
	rows := make([]models.ConsolidatedRow, 0, len(filtered))
	for _, ind := range filtered {
		if c.opts.DropIncomplete && !ind.Complete() {
			report.Dropped++
			continue
		}

		row := models.ConsolidatedRow{IndicatorRow: ind, NewsSentiment: 0.0}
		if score, ok := daily[ind.Date]; ok {
			row.NewsSentiment = score
			report.DaysWithNews++
		} else {
			report.DaysNoNews++
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		metrics.RecordTickerSkipped("incomplete_indicators")
		return nil, nil, fmt.Errorf("every row has undefined indicators")
	}

	report.Rows = len(rows)
	fillReport(report, rows)

	return rows, report, nil
}

// dailySentiment maps normalized dates to mean scores. News load failures
// leave the ticker without news.
func (c *Consolidator) dailySentiment(ctx context.Context, ticker string, start time.Time) (map[time.Time]float64, error) {
	daily := make(map[time.Time]float64)
	if c.news == nil {
		return daily, nil
	}

	articles, err := c.news.LoadNews(ctx, ticker)
	if err != nil {
		logger.Warn("news unavailable, sentiment set to neutral",
			zap.String("ticker", ticker),
			zap.Error(err),
		)
		return daily, nil
	}

	for i := range articles {
		articles[i].Ticker = ticker
	}

	records, err := c.aggregator.DailyMeans(ctx, articles, start)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		daily[r.Date] = r.Score
	}

	return daily, nil
}

func fillReport(report *TickerReport, rows []models.ConsolidatedRow) {
	report.Coverage = make(map[string]float64, 4)
	for _, col := range []string{models.ColMACD, models.ColRSI, models.ColBBMid, models.ColOBV} {
		defined := 0
		for i := range rows {
			if v, _ := rows[i].Value(col); models.IsDefined(v) {
				defined++
			}
		}
		report.Coverage[col] = float64(defined) / float64(len(rows))
	}

	var nonZero []float64
	for i := range rows {
		if rows[i].NewsSentiment != 0 {
			nonZero = append(nonZero, rows[i].NewsSentiment)
		}
	}
	if len(nonZero) == 0 {
		return
	}

	report.SentimentMin, report.SentimentMax = nonZero[0], nonZero[0]
	sum := 0.0
	for _, v := range nonZero {
		sum += v
		report.SentimentMin = math.Min(report.SentimentMin, v)
		report.SentimentMax = math.Max(report.SentimentMax, v)
	}
	report.SentimentMean = sum / float64(len(nonZero))

	if len(nonZero) > 1 {
		ss := 0.0
		for _, v := range nonZero {
			ss += (v - report.SentimentMean) * (v - report.SentimentMean)
		}
		report.SentimentStd = math.Sqrt(ss / float64(len(nonZero)-1))
	}
}
