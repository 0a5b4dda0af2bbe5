package scorer

import (
	"fmt"

	"github.com/selivandex/stock-signal/internal/adapters/config"
	"github.com/selivandex/stock-signal/internal/sentiment"
)

// New builds the configured article scorer. Remote scorers are rate limited
// and bounded by the configured timeout; the lexicon runs in process.
func New(cfg *config.SentimentConfig) (sentiment.Scorer, error) {
	var remote sentiment.Scorer
	switch cfg.Provider {
	case "api":
		remote = NewAPIScorer(cfg.URL)
	case "huggingface":
		remote = NewHuggingFaceScorer(cfg.ModelURL, cfg.Token)
	case "lexicon":
		return sentiment.NewAnalyzer(), nil
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.Provider)
	}
	return sentiment.NewThrottled(remote, cfg.Provider, cfg.Delay, cfg.Timeout), nil
}
