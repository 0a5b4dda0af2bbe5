package sentiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
	"github.com/selivandex/stock-signal/pkg/metrics"
	"github.com/selivandex/stock-signal/pkg/models"
)

// Throttled spaces scorer calls by a fixed delay and bounds each call with a timeout
type Throttled struct {
	inner   Scorer
	service string
	delay   time.Duration
	timeout time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewThrottled wraps a scorer with rate limiting
func NewThrottled(inner Scorer, service string, delay, timeout time.Duration) *Throttled {
	return &Throttled{
		inner:   inner,
		service: service,
		delay:   delay,
		timeout: timeout,
	}
}

// Score waits for the rate limit, then calls the wrapped scorer.
// Any failure is returned as *models.UpstreamError.
func (t *Throttled) Score(ctx context.Context, headline, summary string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.wait(ctx); err != nil {
		return 0, &models.UpstreamError{Service: t.service, Err: err}
	}
	defer func() { t.last = time.Now() }()

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	score, err := t.inner.Score(callCtx, headline, summary)
	if err == nil && !models.IsDefined(score) {
		err = fmt.Errorf("non-finite score %v", score)
	}
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		metrics.RecordSentimentCall(outcome)
		logger.Debug("sentiment scoring failed",
			zap.String("service", t.service),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return 0, &models.UpstreamError{Service: t.service, Err: err}
	}

	metrics.RecordSentimentCall(metrics.OutcomeOK)
	return clamp(score), nil
}

func (t *Throttled) wait(ctx context.Context) error {
	if t.delay <= 0 || t.last.IsZero() {
		return ctx.Err()
	}
	remaining := t.delay - time.Since(t.last)
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
	}
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
