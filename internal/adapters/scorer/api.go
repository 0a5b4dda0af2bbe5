package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIScorer calls a sentiment service that accepts {headline, summary} and
// answers with final_sentiment_score. Without it the class details give
// positive - negative.
type APIScorer struct {
	client *http.Client
	url    string
}

type apiRequest struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

type apiResponse struct {
	Score   *float64 `json:"final_sentiment_score"`
	Details struct {
		Positive float64 `json:"positive"`
		Negative float64 `json:"negative"`
		Neutral  float64 `json:"neutral"`
	} `json:"details"`
}

// NewAPIScorer creates scorer for the sentiment service at url. Timeouts come
// from the caller's context.
func NewAPIScorer(url string) *APIScorer {
	return &APIScorer{client: &http.Client{}, url: url}
}

// Score posts the article and returns the service score
func (s *APIScorer) Score(ctx context.Context, headline, summary string) (float64, error) {
	body, err := json.Marshal(apiRequest{Headline: headline, Summary: summary})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	var out apiResponse
	if err := post(ctx, s.client, s.url, "", body, &out); err != nil {
		return 0, err
	}
	if out.Score != nil {
		return *out.Score, nil
	}
	d := out.Details
	if d.Positive+d.Negative+d.Neutral > 0 {
		return d.Positive - d.Negative, nil
	}
	return 0, fmt.Errorf("response has no final_sentiment_score")
}

func post(ctx context.Context, client *http.Client, url, token string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
