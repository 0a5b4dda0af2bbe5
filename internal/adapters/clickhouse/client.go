package clickhouse

import (
	"context"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/pkg/logger"
)

const schemaOHLCV = `
	CREATE TABLE IF NOT EXISTS market_ohlcv (
		timestamp DateTime,
		symbol    LowCardinality(String),
		timeframe LowCardinality(String),
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, timeframe, timestamp)
`

const schemaFeatures = `
	CREATE TABLE IF NOT EXISTS training_features (
		run_id         String,
		date           Date,
		ticker         LowCardinality(String),
		open           Float64,
		high           Float64,
		low            Float64,
		close          Float64,
		volume         Float64,
		macd           Float64,
		macd_signal    Float64,
		macd_diff      Float64,
		rsi            Float64,
		bb_mid         Float64,
		bb_high        Float64,
		bb_low         Float64,
		bb_width       Float64,
		obv            Float64,
		news_sentiment Float64,
		future_return  Float64,
		target         Int8
	) ENGINE = MergeTree
	ORDER BY (run_id, ticker, date)
`

// Open connects to ClickHouse through the database/sql driver
func Open(cfg *config.ClickHouseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("clickhouse", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ClickHouse ping failed: %w", err)
	}

	logger.Info("ClickHouse connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return db, nil
}

// EnsureSchema creates the tables used by the pipeline
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range []string{schemaOHLCV, schemaFeatures} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create ClickHouse schema: %w", err)
		}
	}
	return nil
}
