package sentiment

import (
	"context"
	"crypto/sha1"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/metrics"
)

// ScoreCache stores article scores by content key
type ScoreCache interface {
	Get(ctx context.Context, key string) (float64, bool, error)
	Set(ctx context.Context, key string, score float64) error
}

// Cached serves repeated articles from a cache. Cache errors never fail a call.
type Cached struct {
	inner Scorer
	cache ScoreCache
}

// NewCached wraps a scorer with a score cache
func NewCached(inner Scorer, cache ScoreCache) *Cached {
	return &Cached{inner: inner, cache: cache}
}

// Score returns the cached score or delegates and stores the result
func (c *Cached) Score(ctx context.Context, headline, summary string) (float64, error) {
	key := ArticleKey(headline, summary)

	score, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("sentiment cache read failed", zap.Error(err))
	} else if ok {
		metrics.RecordSentimentCall(metrics.OutcomeCached)
		return score, nil
	}

	score, err = c.inner.Score(ctx, headline, summary)
	if err != nil {
		return 0, err
	}

	if err := c.cache.Set(ctx, key, score); err != nil {
		logger.Warn("sentiment cache write failed", zap.Error(err))
	}

	return score, nil
}

// ArticleKey is the sha1 of headline and summary
func ArticleKey(headline, summary string) string {
	h := sha1.New()
	h.Write([]byte(headline))
	h.Write([]byte{0})
	h.Write([]byte(summary))
	return hex.EncodeToString(h.Sum(nil))
}
