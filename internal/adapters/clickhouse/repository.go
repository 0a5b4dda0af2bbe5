package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// DailyTimeframe is the market_ohlcv timeframe of daily bars
const DailyTimeframe = "1d"

// Repository handles ClickHouse price and feature tables
type Repository struct {
	db    *sqlx.DB
	batch int
}

// NewRepository creates new ClickHouse repository; batch bounds rows per insert transaction
func NewRepository(db *sqlx.DB, batch int) *Repository {
	if batch < 1 {
		batch = 1000
	}
	return &Repository{db: db, batch: batch}
}

// LoadBars returns the daily bars of ticker in chronological order
func (r *Repository) LoadBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	query := `
		SELECT timestamp, symbol, open, high, low, close, volume
		FROM market_ohlcv FINAL
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp
	`

	rows, err := r.db.QueryxContext(ctx, query, ticker, DailyTimeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars from ClickHouse: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var bar models.PriceBar
		var ts time.Time
		if err := rows.Scan(&ts, &bar.Ticker, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bar.Date = models.NormalizeDate(ts)
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bars: %w", err)
	}

	return bars, nil
}

// SaveBars stores daily bars in market_ohlcv. Rows with an existing
// (symbol, timeframe, timestamp) replace the stored bar.
func (r *Repository) SaveBars(ctx context.Context, bars []models.PriceBar) error {
	written, err := writeBatched(ctx, r.batch, bars, r.insertBars)
	if err != nil {
		return fmt.Errorf("failed to save bars after %d rows: %w", written, err)
	}
	return nil
}

func (r *Repository) insertBars(ctx context.Context, bars []models.PriceBar) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO market_ohlcv
		(timestamp, symbol, timeframe, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err = stmt.ExecContext(ctx,
			bar.Date,
			bar.Ticker,
			DailyTimeframe,
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.Volume,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved bars to ClickHouse", zap.Int("count", len(bars)))
	return nil
}

// SaveLabeled stores a labeled table under runID in training_features.
// Undefined indicator values are written as 0 since the columns are not nullable.
func (r *Repository) SaveLabeled(ctx context.Context, runID string, rows []models.LabeledRow) error {
	written, err := writeBatched(ctx, r.batch, rows, func(ctx context.Context, chunk []models.LabeledRow) error {
		return r.insertLabeled(ctx, runID, chunk)
	})
	if err != nil {
		return fmt.Errorf("failed to save labeled table after %d rows: %w", written, err)
	}

	logger.Info("labeled table saved to ClickHouse",
		zap.String("run_id", runID),
		zap.Int("rows", len(rows)),
	)
	return nil
}

func (r *Repository) insertLabeled(ctx context.Context, runID string, rows []models.LabeledRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO training_features
		(run_id, date, ticker, open, high, low, close, volume, macd, macd_signal, macd_diff,
		 rsi, bb_mid, bb_high, bb_low, bb_width, obv, news_sentiment, future_return, target)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		_, err = stmt.ExecContext(ctx,
			runID,
			row.Date,
			row.Ticker,
			row.Open,
			row.High,
			row.Low,
			row.Close,
			row.Volume,
			orZero(row.MACD),
			orZero(row.MACDSignal),
			orZero(row.MACDDiff),
			orZero(row.RSI),
			orZero(row.BBMid),
			orZero(row.BBHigh),
			orZero(row.BBLow),
			orZero(row.BBWidth),
			row.OBV,
			row.NewsSentiment,
			row.FutureReturn,
			int8(row.Target),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert labeled row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func orZero(v float64) float64 {
	if !models.IsDefined(v) {
		return 0
	}
	return v
}
