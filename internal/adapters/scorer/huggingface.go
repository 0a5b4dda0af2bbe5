package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/selivandex/stock-signal/pkg/models"
)

// HuggingFaceScorer calls a hosted text-classification model with
// positive/negative/neutral labels. The score is P(positive) - P(negative).
type HuggingFaceScorer struct {
	client *http.Client
	url    string
	token  string
}

type label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewHuggingFaceScorer creates scorer for the model endpoint at url
func NewHuggingFaceScorer(url, token string) *HuggingFaceScorer {
	return &HuggingFaceScorer{client: &http.Client{}, url: url, token: token}
}

// Score classifies headline and summary as one text
func (s *HuggingFaceScorer) Score(ctx context.Context, headline, summary string) (float64, error) {
	result, err := s.Classify(ctx, headline, summary)
	if err != nil {
		return 0, err
	}
	return result.FinalScore, nil
}

// Classify returns the label probabilities keyed by lowercase label. Transport
// and model failures are UpstreamErrors.
func (s *HuggingFaceScorer) Classify(ctx context.Context, headline, summary string) (*models.SentimentScore, error) {
	text := strings.TrimSpace(headline + ". " + summary)
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var out [][]label
	if err := post(ctx, s.client, s.url, s.token, body, &out); err != nil {
		return nil, &models.UpstreamError{Service: "huggingface", Err: err}
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, &models.UpstreamError{Service: "huggingface", Err: fmt.Errorf("model returned no labels")}
	}

	details := make(map[string]float64, len(out[0]))
	for _, l := range out[0] {
		details[strings.ToLower(l.Label)] = l.Score
	}
	return &models.SentimentScore{
		FinalScore: details["positive"] - details["negative"],
		Details:    details,
	}, nil
}
