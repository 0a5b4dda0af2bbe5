package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ToFloat64 safely converts decimal to float64
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// ParseDecimal parses provider numeric strings, empty means zero
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Quote is a live market snapshot of one symbol
type Quote struct {
	Timestamp     time.Time       `json:"timestamp"`
	Symbol        string          `json:"symbol"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Current       decimal.Decimal `json:"current"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Volume        decimal.Decimal `json:"volume"`
}

// Bar converts the snapshot into a price bar dated on the quote day
func (q *Quote) Bar() PriceBar {
	return PriceBar{
		Ticker: q.Symbol,
		Date:   NormalizeDate(q.Timestamp),
		Open:   ToFloat64(q.Open),
		High:   ToFloat64(q.High),
		Low:    ToFloat64(q.Low),
		Close:  ToFloat64(q.Current),
		Volume: ToFloat64(q.Volume),
	}
}
