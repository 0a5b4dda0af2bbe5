package labels

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// Generator assigns BUY/HOLD/SELL from forward returns
type Generator struct {
	Horizon int
	Buy     float64
	Sell    float64
}

// NewGenerator validates thresholds (buy > 0 > sell) and horizon
func NewGenerator(horizon int, buy, sell float64) (*Generator, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}
	if !(buy > 0 && sell < 0) {
		return nil, fmt.Errorf("thresholds must satisfy buy > 0 > sell, got buy=%v sell=%v", buy, sell)
	}
	return &Generator{Horizon: horizon, Buy: buy, Sell: sell}, nil
}

// Classify maps a forward return to a signal. BUY is checked first.
func (g *Generator) Classify(futureReturn float64) models.Signal {
	if futureReturn >= g.Buy {
		return models.SignalBuy
	}
	if futureReturn <= g.Sell {
		return models.SignalSell
	}
	return models.SignalHold
}

// Generate labels every row that has a close Horizon rows ahead within its
// ticker. The last Horizon rows of each ticker are dropped, as are rows whose
// return is not finite (zero close).
func (g *Generator) Generate(rows []models.ConsolidatedRow) ([]models.LabeledRow, error) {
	byTicker := make(map[string][]models.ConsolidatedRow)
	var tickers []string
	for _, row := range rows {
		if _, ok := byTicker[row.Ticker]; !ok {
			tickers = append(tickers, row.Ticker)
		}
		byTicker[row.Ticker] = append(byTicker[row.Ticker], row)
	}
	sort.Strings(tickers)

	out := make([]models.LabeledRow, 0, len(rows))
	undefined := 0

	for _, ticker := range tickers {
		series := byTicker[ticker]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Date.Before(series[j].Date)
		})

		for t := 0; t+g.Horizon < len(series); t++ {
			ret := series[t+g.Horizon].Close/series[t].Close - 1
			if !models.IsDefined(ret) {
				undefined++
				continue
			}
			out = append(out, models.LabeledRow{
				ConsolidatedRow: series[t],
				FutureReturn:    ret,
				Target:          g.Classify(ret),
			})
		}
	}

	if undefined > 0 {
		logger.Warn("dropped rows with undefined forward return", zap.Int("rows", undefined))
	}
	if len(out) == 0 {
		return nil, &models.DataInsufficientError{
			Stage:  "labels",
			Reason: fmt.Sprintf("no ticker has more than %d rows", g.Horizon),
		}
	}

	return out, nil
}

// ClassCount is the count and share of one label
type ClassCount struct {
	Signal  models.Signal `json:"signal"`
	Count   int           `json:"count"`
	Percent float64       `json:"percent"`
}

// Distribution holds label counts overall and per ticker
type Distribution struct {
	Overall   []ClassCount            `json:"overall"`
	PerTicker map[string][]ClassCount `json:"per_ticker"`
	Total     int                     `json:"total"`
}

// Distribute counts labels overall and per ticker
func Distribute(rows []models.LabeledRow) *Distribution {
	overall := make(map[models.Signal]int)
	perTicker := make(map[string]map[models.Signal]int)

	for _, row := range rows {
		overall[row.Target]++
		if perTicker[row.Ticker] == nil {
			perTicker[row.Ticker] = make(map[models.Signal]int)
		}
		perTicker[row.Ticker][row.Target]++
	}

	dist := &Distribution{
		Overall:   counts(overall, len(rows)),
		PerTicker: make(map[string][]ClassCount, len(perTicker)),
		Total:     len(rows),
	}
	for ticker, c := range perTicker {
		total := 0
		for _, n := range c {
			total += n
		}
		dist.PerTicker[ticker] = counts(c, total)
	}

	return dist
}

func counts(c map[models.Signal]int, total int) []ClassCount {
	out := make([]ClassCount, 0, len(models.Classes))
	for _, s := range models.Classes {
		cc := ClassCount{Signal: s, Count: c[s]}
		if total > 0 {
			cc.Percent = float64(c[s]) / float64(total) * 100
		}
		out = append(out, cc)
	}
	return out
}
