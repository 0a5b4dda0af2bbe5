package sentiment

import "context"

// Scorer returns a sentiment score in [-1, 1] for a news article
type Scorer interface {
	Score(ctx context.Context, headline, summary string) (float64, error)
}

// ScorerFunc adapts a function to Scorer
type ScorerFunc func(ctx context.Context, headline, summary string) (float64, error)

// Score calls f
func (f ScorerFunc) Score(ctx context.Context, headline, summary string) (float64, error) {
	return f(ctx, headline, summary)
}
