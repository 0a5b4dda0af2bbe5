package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocksignal_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	sentimentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksignal_sentiment_calls_total",
			Help: "Sentiment scorer calls by outcome",
		},
		[]string{"outcome"},
	)
	tickersSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksignal_tickers_skipped_total",
			Help: "Tickers skipped during consolidation",
		},
		[]string{"reason"},
	)
	predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocksignal_predictions_total",
			Help: "Predictions served by label",
		},
		[]string{"label"},
	)
	modelAccuracy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stocksignal_model_accuracy",
			Help: "Accuracy of the last trained model",
		},
		[]string{"split"},
	)
)

// Sentiment call outcomes
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeCached  = "cached"
)

// ObserveStage records how long a stage took since start
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordSentimentCall counts one scorer call
func RecordSentimentCall(outcome string) {
	sentimentCalls.WithLabelValues(outcome).Inc()
}

// RecordTickerSkipped counts a ticker dropped from the pipeline
func RecordTickerSkipped(reason string) {
	tickersSkipped.WithLabelValues(reason).Inc()
}

// RecordPrediction counts a served prediction
func RecordPrediction(label string) {
	predictions.WithLabelValues(label).Inc()
}

// SetAccuracy publishes train/test accuracy
func SetAccuracy(split string, value float64) {
	modelAccuracy.WithLabelValues(split).Set(value)
}

// WriteTextfile dumps the default registry in node-exporter textfile format
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
