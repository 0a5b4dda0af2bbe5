package models

import (
	"math"
	"strconv"
	"time"
)

// Signal is the three-class trading label
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

// Classes lists all labels in ascending order
var Classes = []Signal{SignalSell, SignalHold, SignalBuy}

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// ClassLabels returns metadata labels like "SELL (-1)"
func ClassLabels() []string {
	labels := make([]string, len(Classes))
	for i, c := range Classes {
		labels[i] = c.String() + " (" + strconv.Itoa(int(c)) + ")"
	}
	return labels
}

// PriceBar represents one daily OHLCV bar of a ticker
type PriceBar struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// IndicatorRow is a price bar enriched with technical indicators.
// Values inside an indicator warm-up window are NaN.
type IndicatorRow struct {
	PriceBar
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDDiff   float64 `json:"macd_diff"`
	RSI        float64 `json:"rsi"`
	BBMid      float64 `json:"bb_mid"`
	BBHigh     float64 `json:"bb_high"`
	BBLow      float64 `json:"bb_low"`
	BBWidth    float64 `json:"bb_width"`
	OBV        float64 `json:"obv"`
}

// Complete reports whether every indicator is defined
func (r *IndicatorRow) Complete() bool {
	for _, v := range []float64{r.MACD, r.MACDSignal, r.MACDDiff, r.RSI, r.BBMid, r.BBHigh, r.BBLow, r.BBWidth, r.OBV} {
		if !IsDefined(v) {
			return false
		}
	}
	return true
}

// ConsolidatedRow joins an indicator row with the daily news sentiment
type ConsolidatedRow struct {
	IndicatorRow
	NewsSentiment float64 `json:"news_sentiment"`
}

// LabeledRow is a consolidated row with its forward return and label
type LabeledRow struct {
	ConsolidatedRow
	FutureReturn float64 `json:"future_return"`
	Target       Signal  `json:"target"`
}

// Column names of the training table, in table order
const (
	ColDate          = "date"
	ColTicker        = "ticker"
	ColOpen          = "open"
	ColHigh          = "high"
	ColLow           = "low"
	ColClose         = "close"
	ColVolume        = "volume"
	ColMACD          = "macd"
	ColMACDSignal    = "macd_signal"
	ColMACDDiff      = "macd_diff"
	ColRSI           = "rsi"
	ColBBMid         = "bb_mid"
	ColBBHigh        = "bb_high"
	ColBBLow         = "bb_low"
	ColBBWidth       = "bb_width"
	ColOBV           = "obv"
	ColNewsSentiment = "news_sentiment"
	ColFutureReturn  = "future_return"
	ColTarget        = "target"
)

// TableColumns is the column order of a labeled table
var TableColumns = []string{
	ColDate, ColTicker,
	ColOpen, ColHigh, ColLow, ColClose, ColVolume,
	ColMACD, ColMACDSignal, ColMACDDiff,
	ColRSI,
	ColBBMid, ColBBHigh, ColBBLow, ColBBWidth,
	ColOBV,
	ColNewsSentiment,
	ColFutureReturn, ColTarget,
}

// Value returns the numeric value of a column. Non-numeric columns
// (date, ticker) and unknown names return false.
func (r *LabeledRow) Value(column string) (float64, bool) {
	switch column {
	case ColFutureReturn:
		return r.FutureReturn, true
	case ColTarget:
		return float64(r.Target), true
	}
	return r.ConsolidatedRow.Value(column)
}

// Value returns the numeric value of a consolidated column
func (r *ConsolidatedRow) Value(column string) (float64, bool) {
	switch column {
	case ColOpen:
		return r.Open, true
	case ColHigh:
		return r.High, true
	case ColLow:
		return r.Low, true
	case ColClose:
		return r.Close, true
	case ColVolume:
		return r.Volume, true
	case ColMACD:
		return r.MACD, true
	case ColMACDSignal:
		return r.MACDSignal, true
	case ColMACDDiff:
		return r.MACDDiff, true
	case ColRSI:
		return r.RSI, true
	case ColBBMid:
		return r.BBMid, true
	case ColBBHigh:
		return r.BBHigh, true
	case ColBBLow:
		return r.BBLow, true
	case ColBBWidth:
		return r.BBWidth, true
	case ColOBV:
		return r.OBV, true
	case ColNewsSentiment:
		return r.NewsSentiment, true
	}
	return 0, false
}

// IsDefined reports whether v is a finite number
func IsDefined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NormalizeDate strips the time of day, keeping the calendar day in UTC
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
