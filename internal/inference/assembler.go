package inference

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/indicators"
	"github.com/selivandex/stock-signal/internal/sentiment"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// MarketData provides live quotes, volume and daily history
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Volume(ctx context.Context, symbol string) (float64, error)
	DailyBars(ctx context.Context, symbol string, days int) ([]models.PriceBar, error)
}

// NewsProvider returns company news published between from and to
type NewsProvider interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error)
}

// QuoteSource is the quote half of MarketData
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// SeriesSource is the volume and history half of MarketData
type SeriesSource interface {
	Volume(ctx context.Context, symbol string) (float64, error)
	DailyBars(ctx context.Context, symbol string, days int) ([]models.PriceBar, error)
}

// Market combines a quote provider with a volume/history provider
type Market struct {
	QuoteSource
	SeriesSource
}

// VolumeFallback decides what a live volume outage does to the feature map
type VolumeFallback string

const (
	// VolumeMissing leaves volume and obv out, so a manifest that needs them
	// fails with MissingFeatureError
	VolumeMissing VolumeFallback = "missing"
	// VolumeQuote uses the quote provider's volume, which is 0 for Finnhub
	VolumeQuote VolumeFallback = "quote"
)

// Options configures live feature assembly
type Options struct {
	Window         time.Duration
	Policy         sentiment.Policy
	HistoryDays    int
	VolumeFallback VolumeFallback
}

// Assembler builds live feature maps keyed by table column names
type Assembler struct {
	market     MarketData
	news       NewsProvider
	aggregator *sentiment.Aggregator
	engine     *indicators.Engine
	opts       Options
	now        func() time.Time
}

// NewAssembler creates assembler; news may be nil, then sentiment is 0
func NewAssembler(market MarketData, news NewsProvider, scorer sentiment.Scorer, engine *indicators.Engine, opts Options) *Assembler {
	if opts.Policy == "" {
		opts.Policy = sentiment.PolicyPartial
	}
	if opts.VolumeFallback == "" {
		opts.VolumeFallback = VolumeMissing
	}
	return &Assembler{
		market:     market,
		news:       news,
		aggregator: sentiment.NewAggregator(scorer),
		engine:     engine,
		opts:       opts,
		now:        time.Now,
	}
}

// Assemble collects the latest OHLC, volume, indicators and trailing news
// sentiment for symbol. Indicators without a full window are left out of the
// map, so a manifest that needs them fails projection.
func (a *Assembler) Assemble(ctx context.Context, symbol string) (map[string]float64, error) {
	quote, err := a.market.Quote(ctx, symbol)
	if err != nil {
		return nil, &models.UpstreamError{Service: "quote", Err: err}
	}

	volumeKnown := true
	volume, err := a.market.Volume(ctx, symbol)
	if err != nil {
		if a.opts.VolumeFallback == VolumeQuote {
			logger.Warn("live volume unavailable, falling back to quote volume",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			volume = models.ToFloat64(quote.Volume)
		} else {
			logger.Warn("live volume unavailable, volume and obv left out",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			volumeKnown = false
		}
	}

	live := quote.Bar()
	live.Ticker = symbol
	live.Volume = volume

	values := map[string]float64{
		models.ColOpen:   live.Open,
		models.ColHigh:   live.High,
		models.ColLow:    live.Low,
		models.ColClose:  live.Close,
		models.ColVolume: live.Volume,
	}

	history, err := a.market.DailyBars(ctx, symbol, a.opts.HistoryDays)
	if err != nil {
		logger.Warn("daily history unavailable, indicators will be incomplete",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	row, err := a.engine.Latest(mergeLive(history, live))
	if err != nil {
		return nil, fmt.Errorf("failed to compute indicators for %s: %w", symbol, err)
	}
	for col, v := range indicatorValues(row) {
		if models.IsDefined(v) {
			values[col] = v
		}
	}
	if !volumeKnown {
		delete(values, models.ColVolume)
		delete(values, models.ColOBV)
	}

	values[models.ColNewsSentiment] = a.newsSentiment(ctx, symbol)

	return values, nil
}

func (a *Assembler) newsSentiment(ctx context.Context, symbol string) float64 {
	if a.news == nil {
		return 0
	}
	now := a.now()
	from := now.Add(-a.opts.Window)

	articles, err := a.news.CompanyNews(ctx, symbol, from, now)
	if err != nil {
		logger.Warn("news unavailable, sentiment is neutral",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return 0
	}

	score, stats := a.aggregator.Window(ctx, articles, now, a.opts.Window, a.opts.Policy)
	logger.Debug("live sentiment aggregated",
		zap.String("symbol", symbol),
		zap.Float64("score", score),
		zap.Int("in_window", stats.InWindow),
		zap.Int("scored", stats.Scored),
		zap.Int("failed", stats.Failed),
	)
	return score
}

// mergeLive sorts history by date and replaces or appends the live bar's day
func mergeLive(history []models.PriceBar, live models.PriceBar) []models.PriceBar {
	bars := make([]models.PriceBar, 0, len(history)+1)
	for _, b := range history {
		if !models.NormalizeDate(b.Date).Equal(live.Date) {
			bars = append(bars, b)
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return append(bars, live)
}

func indicatorValues(r *models.IndicatorRow) map[string]float64 {
	return map[string]float64{
		models.ColMACD:       r.MACD,
		models.ColMACDSignal: r.MACDSignal,
		models.ColMACDDiff:   r.MACDDiff,
		models.ColRSI:        r.RSI,
		models.ColBBMid:      r.BBMid,
		models.ColBBHigh:     r.BBHigh,
		models.ColBBLow:      r.BBLow,
		models.ColBBWidth:    r.BBWidth,
		models.ColOBV:        r.OBV,
	}
}
