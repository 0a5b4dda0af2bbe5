package database

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/selivandex/stock-signal/internal/features"
	"github.com/selivandex/stock-signal/internal/forest"
	"github.com/selivandex/stock-signal/internal/training"
)

func TestNewRunRecord(t *testing.T) {
	res := &training.Result{
		StartedAt:      time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt:     time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC),
		Manifest:       features.Manifest{"close", "rsi"},
		BestParams:     forest.Params{NEstimators: 100, MaxDepth: 10, MinSamplesSplit: 5, MinSamplesLeaf: 2, MaxFeatures: "sqrt"},
		Report:         &training.Report{Accuracy: 0.7, Support: 40},
		Importance:     []training.FeatureImportance{{Feature: "rsi", Importance: 0.6}, {Feature: "close", Importance: 0.4}},
		TrainAccuracy:  0.9,
		TestAccuracy:   0.7,
		BestCVAccuracy: 0.68,
		DiagnosticMean: 0.66,
		DiagnosticStd:  0.02,
		TrainSize:      160,
		TestSize:       40,
	}

	rec, err := NewRunRecord(res, "models")
	if err != nil {
		t.Fatal(err)
	}

	if rec.NFeatures != 2 || rec.ArtifactDir != "models" || rec.CVMean != 0.66 || rec.TestSize != 40 {
		t.Errorf("unexpected record %+v", rec)
	}

	var params forest.Params
	if err := json.Unmarshal([]byte(rec.BestParams), &params); err != nil || params != res.BestParams {
		t.Errorf("params not encoded: %s (%v)", rec.BestParams, err)
	}

	var importance []training.FeatureImportance
	if err := json.Unmarshal([]byte(rec.Importance), &importance); err != nil || importance[0].Feature != "rsi" {
		t.Errorf("importance not encoded: %s (%v)", rec.Importance, err)
	}
}
