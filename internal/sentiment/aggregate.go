package sentiment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/models"
)

// Policy decides what a scorer failure does to a live window aggregate
type Policy string

const (
	// PolicyPartial stops at the first failure and returns the mean collected so far
	PolicyPartial Policy = "partial"
	// PolicySkip leaves failed articles out of the mean
	PolicySkip Policy = "skip"
	// PolicyNeutral counts failed articles as 0
	PolicyNeutral Policy = "neutral"
)

// ParsePolicy maps a config value to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyPartial, PolicySkip, PolicyNeutral:
		return p, nil
	}
	return "", fmt.Errorf("unknown sentiment failure policy %q", s)
}

// WindowStats describes how a live aggregate was produced
type WindowStats struct {
	InWindow  int  `json:"in_window"`
	Scored    int  `json:"scored"`
	Failed    int  `json:"failed"`
	Truncated bool `json:"truncated"`
}

// Aggregator turns scored articles into daily or live sentiment values
type Aggregator struct {
	scorer Scorer
}

// NewAggregator creates aggregator over a scorer
func NewAggregator(scorer Scorer) *Aggregator {
	return &Aggregator{scorer: scorer}
}

type dayKey struct {
	ticker string
	date   time.Time
}

// DailyMeans scores every article published on or after start, one at a time,
// and averages the scores per (ticker, day). A failed article counts as 0.
func (a *Aggregator) DailyMeans(ctx context.Context, articles []models.NewsArticle, start time.Time) ([]models.SentimentRecord, error) {
	start = models.NormalizeDate(start)

	sums := make(map[dayKey]float64)
	counts := make(map[dayKey]int)
	failed := 0

	for i := range articles {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("daily sentiment cancelled: %w", err)
		}

		article := &articles[i]
		day := models.NormalizeDate(article.PublishedAt)
		if day.Before(start) {
			continue
		}

		score, err := a.scorer.Score(ctx, article.Headline, article.Summary)
		if err != nil {
			failed++
			score = 0
		}

		key := dayKey{ticker: article.Ticker, date: day}
		sums[key] += score
		counts[key]++
	}

	records := make([]models.SentimentRecord, 0, len(sums))
	for key, sum := range sums {
		records = append(records, models.SentimentRecord{
			Ticker:   key.ticker,
			Date:     key.date,
			Score:    sum / float64(counts[key]),
			Articles: counts[key],
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Ticker != records[j].Ticker {
			return records[i].Ticker < records[j].Ticker
		}
		return records[i].Date.Before(records[j].Date)
	})

	if failed > 0 {
		logger.Warn("some articles could not be scored and count as neutral",
			zap.Int("failed", failed),
			zap.Int("articles", len(articles)),
		)
	}

	return records, nil
}

// Window averages the scores of articles published in [now-window, now].
// Articles with neither headline nor summary are ignored.
func (a *Aggregator) Window(ctx context.Context, articles []models.NewsArticle, now time.Time, window time.Duration, policy Policy) (float64, WindowStats) {
	var stats WindowStats
	from := now.Add(-window)

	sum := 0.0
	n := 0

	for i := range articles {
		article := &articles[i]
		if !article.HasText() {
			continue
		}
		if article.PublishedAt.Before(from) || article.PublishedAt.After(now) {
			continue
		}
		stats.InWindow++

		score, err := a.scorer.Score(ctx, article.Headline, article.Summary)
		if err != nil {
			stats.Failed++
			switch policy {
			case PolicySkip:
				continue
			case PolicyNeutral:
				n++
				continue
			default:
				stats.Truncated = true
				logger.Warn("sentiment scoring failed, returning partial window mean",
					zap.Int("scored", stats.Scored),
					zap.Error(err),
				)
				return mean(sum, n), stats
			}
		}

		stats.Scored++
		sum += score
		n++
	}

	return mean(sum, n), stats
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
