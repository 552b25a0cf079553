// Package storage provides the persistence gateway for raw trades and
// finalized candles.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
)

// Gateway is the durable store behind the pipeline.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// WriteTrades stores trades for one key. Writing a trade whose
	// (exchange, asset pair, timestamp) is already stored is a no-op.
	WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error

	// LastTradeTimestamp returns the newest stored trade time for the key.
	// The boolean is false when nothing is stored for the key.
	LastTradeTimestamp(ctx context.Context, exchange models.Exchange, pair models.Pair) (time.Time, bool, error)

	// KnownAssetPairs returns every asset pair that has stored trades.
	KnownAssetPairs(ctx context.Context) ([]models.Pair, error)

	// WriteCandles stores a flushed batch of candles as one write.
	WriteCandles(ctx context.Context, candles []models.Candle) error

	// Close releases connection resources.
	Close() error
}

// Config selects and configures a Gateway implementation.
type Config struct {
	// Driver is "clickhouse" or "sqlite".
	Driver string

	// ClickHouseDSN is used when Driver is "clickhouse".
	ClickHouseDSN string

	// SQLitePath is used when Driver is "sqlite".
	SQLitePath string

	// RetryAttempts is how many extra attempts WriteTrades gets. Zero disables retries.
	RetryAttempts uint64

	// RetryBase is the first backoff delay.
	RetryBase time.Duration

	// BreakerMaxFailures opens the write circuit after that many consecutive
	// failed writes. Zero disables the breaker.
	BreakerMaxFailures int

	// BreakerTimeout is how long the circuit stays open before a trial write.
	BreakerTimeout time.Duration

	// BreakerSuccessThreshold is how many trial writes must pass to close it.
	BreakerSuccessThreshold int
}

// Open builds the configured gateway, wrapped in the retry decorator and
// then the circuit breaker when those are enabled. A retried write counts
// once towards the breaker.
func Open(ctx context.Context, cfg Config, logger logrus.FieldLogger) (Gateway, error) {
	var (
		gw  Gateway
		err error
	)

	switch cfg.Driver {
	case "clickhouse", "":
		gw, err = NewClickHouse(ctx, cfg.ClickHouseDSN)
	case "sqlite":
		gw, err = NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RetryAttempts > 0 {
		gw = WithRetry(gw, cfg.RetryAttempts, cfg.RetryBase, logger)
	}
	if cfg.BreakerMaxFailures > 0 {
		gw = WithCircuitBreaker(gw, BreakerConfig{
			MaxFailures:      cfg.BreakerMaxFailures,
			Timeout:          cfg.BreakerTimeout,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
		}, logger)
	}
	return gw, nil
}
