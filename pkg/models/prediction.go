package models

import "time"

// ModelInfo describes the model that produced a prediction
type ModelInfo struct {
	ModelType   string    `json:"model_type"`
	CreatedDate time.Time `json:"created_date"`
	NFeatures   int       `json:"n_features"`
}

// Prediction is a labeled signal for one symbol
type Prediction struct {
	Timestamp  time.Time          `json:"timestamp"`
	Features   map[string]float64 `json:"features_used"`
	Confidence map[string]float64 `json:"confidence_scores"`
	Symbol     string             `json:"symbol"`
	Label      string             `json:"prediction"`
	ModelInfo  ModelInfo          `json:"model_info"`
	Code       Signal             `json:"prediction_code"`
}
