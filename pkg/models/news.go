package models

import "time"

// NewsArticle represents single company news item
type NewsArticle struct {
	PublishedAt time.Time `json:"published_at" db:"published_at"`
	Ticker      string    `json:"ticker" db:"ticker"`
	Headline    string    `json:"headline" db:"headline"`
	Summary     string    `json:"summary" db:"summary"`
	Source      string    `json:"source" db:"source"`
	URL         string    `json:"url" db:"url"`
}

// HasText reports whether there is anything to score
func (a *NewsArticle) HasText() bool {
	return a.Headline != "" || a.Summary != ""
}

// SentimentRecord is the mean article sentiment of one ticker on one day
type SentimentRecord struct {
	Date     time.Time `json:"date"`
	Ticker   string    `json:"ticker"`
	Score    float64   `json:"score"`
	Articles int       `json:"articles"`
}

// SentimentScore is one classified article: the class probabilities and
// positive - negative as a single score in [-1, 1]
type SentimentScore struct {
	FinalScore float64            `json:"final_sentiment_score"`
	Details    map[string]float64 `json:"details"`
}
