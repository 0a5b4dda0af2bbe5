package inference

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/internal/artifacts"
	"github.com/selivandex/stock-signal/internal/features"
	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/metrics"
	"github.com/selivandex/stock-signal/pkg/models"
)

// FeatureSource assembles live features for a symbol
type FeatureSource interface {
	Assemble(ctx context.Context, symbol string) (map[string]float64, error)
}

// Predictor serves predictions from a loaded bundle. The bundle is read-only
// and can be replaced with Swap while requests are in flight.
type Predictor struct {
	source FeatureSource
	bundle atomic.Pointer[artifacts.Bundle]
	now    func() time.Time
}

// NewPredictor creates predictor over a feature source and bundle
func NewPredictor(source FeatureSource, bundle *artifacts.Bundle) *Predictor {
	p := &Predictor{source: source, now: time.Now}
	p.bundle.Store(bundle)
	return p
}

// Swap installs a new bundle and returns the previous one
func (p *Predictor) Swap(bundle *artifacts.Bundle) *artifacts.Bundle {
	return p.bundle.Swap(bundle)
}

// Bundle returns the bundle currently served
func (p *Predictor) Bundle() *artifacts.Bundle {
	return p.bundle.Load()
}

// Predict assembles features for symbol and classifies them
func (p *Predictor) Predict(ctx context.Context, symbol string) (*models.Prediction, error) {
	bundle := p.bundle.Load()
	if bundle == nil {
		return nil, fmt.Errorf("no model loaded")
	}

	values, err := p.source.Assemble(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return p.classify(bundle, symbol, values)
}

// PredictFeatures classifies an already assembled feature map
func (p *Predictor) PredictFeatures(symbol string, values map[string]float64) (*models.Prediction, error) {
	bundle := p.bundle.Load()
	if bundle == nil {
		return nil, fmt.Errorf("no model loaded")
	}
	return p.classify(bundle, symbol, values)
}

func (p *Predictor) classify(bundle *artifacts.Bundle, symbol string, values map[string]float64) (*models.Prediction, error) {
	vec, err := features.Vector(bundle.Manifest, values)
	if err != nil {
		logger.Warn("live features do not match the model manifest",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil, err
	}

	proba, err := bundle.Model.PredictProba(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to predict %s: %w", symbol, err)
	}

	confidence := make(map[string]float64, len(models.Classes))
	for _, c := range models.Classes {
		confidence[c.String()] = 0
	}
	total := 0.0
	for _, v := range proba {
		total += v
	}
	best := 0
	for k, c := range bundle.Model.Classes {
		v := proba[k]
		if total > 0 {
			v /= total
		}
		confidence[c.String()] = v
		if proba[k] > proba[best] {
			best = k
		}
	}
	code := bundle.Model.Classes[best]

	used := make(map[string]float64, len(bundle.Manifest))
	for i, col := range bundle.Manifest {
		used[col] = vec[i]
	}

	metrics.RecordPrediction(code.String())

	return &models.Prediction{
		Timestamp:  p.now(),
		Features:   used,
		Confidence: confidence,
		Symbol:     symbol,
		Label:      code.String(),
		ModelInfo:  bundle.Info(),
		Code:       code,
	}, nil
}
