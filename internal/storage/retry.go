package storage

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
)

// retrying retries WriteTrades with exponential backoff. Trade writes are
// idempotent so a repeated attempt cannot duplicate rows. Candle writes and
// reads pass straight through.
type retrying struct {
	Gateway
	attempts uint64
	base     time.Duration
	logger   logrus.FieldLogger
}

// WithRetry wraps gw so that WriteTrades is attempted up to attempts extra
// times. A zero base delay falls back to 200ms.
func WithRetry(gw Gateway, attempts uint64, base time.Duration, logger logrus.FieldLogger) Gateway {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &retrying{
		Gateway:  gw,
		attempts: attempts,
		base:     base,
		logger:   logger.WithField("component", "storage-retry"),
	}
}

func (r *retrying) WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error {
	backoff := retry.WithMaxRetries(r.attempts, retry.NewExponential(r.base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.Gateway.WriteTrades(ctx, exchange, pair, trades)
		if err == nil {
			return nil
		}
		r.logger.WithFields(logrus.Fields{
			"exchange":   exchange,
			"asset_pair": pair.String(),
			"attempt":    attempt,
		}).WithError(err).Warn("Trade write failed")
		return retry.RetryableError(err)
	})
}
