package tables

import (
	"github.com/parquet-go/parquet-go"

	"github.com/selivandex/stock-signal/pkg/models"
)

// ParquetSaver writes tables as Parquet. Undefined values are nulls.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

// consolidatedRecord is the Parquet layout of a consolidated row
type consolidatedRecord struct {
	Date          string   `parquet:"date"`
	Ticker        string   `parquet:"ticker,dict"`
	Open          float64  `parquet:"open"`
	High          float64  `parquet:"high"`
	Low           float64  `parquet:"low"`
	Close         float64  `parquet:"close"`
	Volume        float64  `parquet:"volume"`
	MACD          *float64 `parquet:"macd,optional"`
	MACDSignal    *float64 `parquet:"macd_signal,optional"`
	MACDDiff      *float64 `parquet:"macd_diff,optional"`
	RSI           *float64 `parquet:"rsi,optional"`
	BBMid         *float64 `parquet:"bb_mid,optional"`
	BBHigh        *float64 `parquet:"bb_high,optional"`
	BBLow         *float64 `parquet:"bb_low,optional"`
	BBWidth       *float64 `parquet:"bb_width,optional"`
	OBV           float64  `parquet:"obv"`
	NewsSentiment float64  `parquet:"news_sentiment"`
}

// labeledRecord adds the forward return and label
type labeledRecord struct {
	Date          string   `parquet:"date"`
	Ticker        string   `parquet:"ticker,dict"`
	Open          float64  `parquet:"open"`
	High          float64  `parquet:"high"`
	Low           float64  `parquet:"low"`
	Close         float64  `parquet:"close"`
	Volume        float64  `parquet:"volume"`
	MACD          *float64 `parquet:"macd,optional"`
	MACDSignal    *float64 `parquet:"macd_signal,optional"`
	MACDDiff      *float64 `parquet:"macd_diff,optional"`
	RSI           *float64 `parquet:"rsi,optional"`
	BBMid         *float64 `parquet:"bb_mid,optional"`
	BBHigh        *float64 `parquet:"bb_high,optional"`
	BBLow         *float64 `parquet:"bb_low,optional"`
	BBWidth       *float64 `parquet:"bb_width,optional"`
	OBV           float64  `parquet:"obv"`
	NewsSentiment float64  `parquet:"news_sentiment"`
	FutureReturn  float64  `parquet:"future_return"`
	Target        int32    `parquet:"target"`
}

func (ParquetSaver) SaveConsolidated(path string, rows []models.ConsolidatedRow) error {
	records := make([]consolidatedRecord, len(rows))
	for i := range rows {
		records[i] = toRecord(&rows[i])
	}
	return parquet.WriteFile(path, records)
}

func (ParquetSaver) SaveLabeled(path string, rows []models.LabeledRow) error {
	records := make([]labeledRecord, len(rows))
	for i := range rows {
		c := toRecord(&rows[i].ConsolidatedRow)
		records[i] = labeledRecord{
			Date:          c.Date,
			Ticker:        c.Ticker,
			Open:          c.Open,
			High:          c.High,
			Low:           c.Low,
			Close:         c.Close,
			Volume:        c.Volume,
			MACD:          c.MACD,
			MACDSignal:    c.MACDSignal,
			MACDDiff:      c.MACDDiff,
			RSI:           c.RSI,
			BBMid:         c.BBMid,
			BBHigh:        c.BBHigh,
			BBLow:         c.BBLow,
			BBWidth:       c.BBWidth,
			OBV:           c.OBV,
			NewsSentiment: c.NewsSentiment,
			FutureReturn:  rows[i].FutureReturn,
			Target:        int32(rows[i].Target),
		}
	}
	return parquet.WriteFile(path, records)
}

func toRecord(r *models.ConsolidatedRow) consolidatedRecord {
	return consolidatedRecord{
		Date:          r.Date.Format(dateLayout),
		Ticker:        r.Ticker,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		Volume:        r.Volume,
		MACD:          optional(r.MACD),
		MACDSignal:    optional(r.MACDSignal),
		MACDDiff:      optional(r.MACDDiff),
		RSI:           optional(r.RSI),
		BBMid:         optional(r.BBMid),
		BBHigh:        optional(r.BBHigh),
		BBLow:         optional(r.BBLow),
		BBWidth:       optional(r.BBWidth),
		OBV:           r.OBV,
		NewsSentiment: r.NewsSentiment,
	}
}

func optional(v float64) *float64 {
	if !models.IsDefined(v) {
		return nil
	}
	return &v
}
