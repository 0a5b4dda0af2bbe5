package clickhouse

import (
	"context"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// BarLoader loads the daily bars of one ticker
type BarLoader interface {
	LoadBars(ctx context.Context, ticker string) ([]models.PriceBar, error)
}

// BarSaver stores daily bars
type BarSaver interface {
	SaveBars(ctx context.Context, bars []models.PriceBar) error
}

// MirroredSource loads bars from a primary source and copies every loaded
// series into ClickHouse, so later runs can read PRICE_SOURCE=clickhouse.
// A failed copy is logged and never fails the load.
type MirroredSource struct {
	source BarLoader
	sink   BarSaver
}

// NewMirroredSource wraps source with a copy into sink
func NewMirroredSource(source BarLoader, sink BarSaver) *MirroredSource {
	return &MirroredSource{source: source, sink: sink}
}

// LoadBars loads from the primary source, then mirrors the result
func (m *MirroredSource) LoadBars(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	bars, err := m.source.LoadBars(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	if err := m.sink.SaveBars(ctx, bars); err != nil {
		logger.Warn("failed to mirror bars to ClickHouse",
			zap.String("ticker", ticker),
			zap.Error(err),
		)
		return bars, nil
	}
	logger.Debug("bars mirrored to ClickHouse",
		zap.String("ticker", ticker),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}
