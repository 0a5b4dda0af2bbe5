package indicators

import (
	"math"
	"sort"

	"github.com/cinar/indicator"

	"github.com/selivandex/stock-signal/pkg/models"
)

// Params holds indicator windows
type Params struct {
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	RSIPeriod  int
	BBPeriod   int
	BBStdDev   float64
}

// DefaultParams returns MACD(12,26,9), RSI(14) and Bollinger(20, 2)
func DefaultParams() Params {
	return Params{
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		RSIPeriod:  14,
		BBPeriod:   20,
		BBStdDev:   2,
	}
}

// Engine calculates technical indicators for one ticker series
type Engine struct {
	params Params
}

// NewEngine creates new indicator engine with default windows
func NewEngine() *Engine {
	return &Engine{params: DefaultParams()}
}

// NewEngineWithParams creates indicator engine with custom windows
func NewEngineWithParams(p Params) *Engine {
	return &Engine{params: p}
}

// WarmUp returns the number of leading rows where at least one indicator is undefined
func (e *Engine) WarmUp() int {
	w := e.params.MACDSlow
	if e.params.RSIPeriod > w {
		w = e.params.RSIPeriod
	}
	if e.params.BBPeriod > w {
		w = e.params.BBPeriod
	}
	return w - 1
}

// Compute sorts bars by date and calculates every indicator over the full series.
// Rows inside an indicator warm-up window carry NaN for that indicator.
func (e *Engine) Compute(bars []models.PriceBar) ([]models.IndicatorRow, error) {
	if len(bars) == 0 {
		return nil, &models.DataInsufficientError{Stage: "indicators", Reason: "empty price series"}
	}

	sorted := make([]models.PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	closes := make([]float64, len(sorted))
	volumes := make([]float64, len(sorted))
	for i, bar := range sorted {
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	macd, signal, diff := e.macd(closes)
	rsi := e.rsi(closes)
	mid, high, low := e.bollinger(closes)
	obv := onBalanceVolume(closes, volumes)

	rows := make([]models.IndicatorRow, len(sorted))
	for i, bar := range sorted {
		rows[i] = models.IndicatorRow{
			PriceBar:   bar,
			MACD:       macd[i],
			MACDSignal: signal[i],
			MACDDiff:   diff[i],
			RSI:        rsi[i],
			BBMid:      mid[i],
			BBHigh:     high[i],
			BBLow:      low[i],
			BBWidth:    high[i] - low[i],
			OBV:        obv[i],
		}
	}

	return rows, nil
}

// Latest computes the series and returns its final row
func (e *Engine) Latest(bars []models.PriceBar) (*models.IndicatorRow, error) {
	rows, err := e.Compute(bars)
	if err != nil {
		return nil, err
	}
	last := rows[len(rows)-1]
	return &last, nil
}

// macd uses EMAs seeded at the first close. The signal line is the EMA of the
// raw macd line; all three outputs are masked until the slow EMA has a full window.
func (e *Engine) macd(closes []float64) ([]float64, []float64, []float64) {
	fast := indicator.Ema(e.params.MACDFast, closes)
	slow := indicator.Ema(e.params.MACDSlow, closes)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	signal := indicator.Ema(e.params.MACDSignal, line)

	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = line[i] - signal[i]
	}

	warm := e.params.MACDSlow - 1
	mask(line, warm)
	mask(signal, warm)
	mask(diff, warm)

	return line, signal, diff
}

// rsi is Wilder's RSI; the first delta is taken as zero gain and zero loss
func (e *Engine) rsi(closes []float64) []float64 {
	n := float64(e.params.RSIPeriod)
	out := make([]float64, len(closes))

	avgGain, avgLoss := 0.0, 0.0
	for i := range closes {
		gain, loss := 0.0, 0.0
		if i > 0 {
			delta := closes[i] - closes[i-1]
			if delta > 0 {
				gain = delta
			} else {
				loss = -delta
			}
		}

		avgGain += (gain - avgGain) / n
		avgLoss += (loss - avgLoss) / n

		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}

	mask(out, e.params.RSIPeriod-1)
	return out
}

// bollinger returns mid, upper and lower bands with population standard deviation
func (e *Engine) bollinger(closes []float64) ([]float64, []float64, []float64) {
	period := e.params.BBPeriod
	mid := indicator.Sma(period, closes)
	high := make([]float64, len(closes))
	low := make([]float64, len(closes))

	for i := range closes {
		if i < period-1 {
			continue
		}
		window := closes[i-period+1 : i+1]

		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)

		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(period))

		high[i] = mid[i] + e.params.BBStdDev*std
		low[i] = mid[i] - e.params.BBStdDev*std
	}

	mask(mid, period-1)
	mask(high, period-1)
	mask(low, period-1)

	return mid, high, low
}

// onBalanceVolume starts at the first bar's volume and then adds volume on up
// closes, subtracts it on down closes and holds on flat closes
func onBalanceVolume(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			out[i] = volumes[i]
			continue
		}
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// mask sets the first n values to NaN
func mask(values []float64, n int) {
	for i := 0; i < n && i < len(values); i++ {
		values[i] = math.NaN()
	}
}
