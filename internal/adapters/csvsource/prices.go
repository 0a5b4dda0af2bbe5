package csvsource

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/indicators"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// PriceLoader reads one OHLCV file per ticker from a directory
type PriceLoader struct {
	dir     string
	pattern string
}

// NewPriceLoader creates loader for files named by pattern, where %s is the ticker
func NewPriceLoader(dir, pattern string) *PriceLoader {
	return &PriceLoader{dir: dir, pattern: pattern}
}

// Path returns the file path for ticker
func (l *PriceLoader) Path(ticker string) string {
	return filepath.Join(l.dir, expand(l.pattern, ticker))
}

// LoadBars implements consolidate.PriceSource. Rows with an unparseable date
// or price are skipped and counted in the log.
func (l *PriceLoader) LoadBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.Path(ticker)
	records, err := readRecords(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prices for %s: %w", ticker, err)
	}
	if len(records) == 0 {
		return nil, &models.SchemaError{Source: path, Field: "date"}
	}

	cols, err := indicators.Sniff(normalizeHeader(records[0]))
	if err != nil {
		var se *models.SchemaError
		if errors.As(err, &se) {
			se.Source = path
		}
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(records)-1)
	skipped := 0
	for _, rec := range records[1:] {
		bar, ok := parseBar(rec, cols)
		if !ok {
			skipped++
			continue
		}
		bar.Ticker = ticker
		bars = append(bars, bar)
	}

	if skipped > 0 {
		logger.Debug("skipped unparseable price rows",
			zap.String("ticker", ticker),
			zap.Int("skipped", skipped),
		)
	}

	return bars, nil
}

func parseBar(rec []string, cols *indicators.ColumnMap) (models.PriceBar, bool) {
	var bar models.PriceBar

	ts, err := parseTime(field(rec, cols.Date))
	if err != nil {
		return bar, false
	}
	bar.Date = models.NormalizeDate(ts)

	for idx, dst := range map[int]*float64{
		cols.Open:   &bar.Open,
		cols.High:   &bar.High,
		cols.Low:    &bar.Low,
		cols.Close:  &bar.Close,
		cols.Volume: &bar.Volume,
	} {
		v, err := parseNumber(field(rec, idx))
		if err != nil {
			return bar, false
		}
		*dst = v
	}
	return bar, true
}

func expand(pattern, ticker string) string {
	if strings.Contains(pattern, "%s") {
		return strings.ReplaceAll(pattern, "%s", ticker)
	}
	return ticker + pattern
}
