// Package ingester is the raw trade-history write path. It takes filtered
// batches off the deduplicator and persists them without blocking it.
package ingester

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/pipeline"
)

const DefaultQueueSize = 256

// TradeStore persists trades for one key.
type TradeStore interface {
	WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error
}

// TradeWriterConfig holds trade writer configuration.
type TradeWriterConfig struct {
	QueueSize int
	Overflow  pipeline.OverflowPolicy
}

// TradeWriter drains forwarded batches into the store one at a time.
type TradeWriter struct {
	queue  *pipeline.Queue
	store  TradeStore
	logger logrus.FieldLogger
}

// NewTradeWriter creates a new trade writer.
func NewTradeWriter(store TradeStore, logger logrus.FieldLogger, cfg TradeWriterConfig) *TradeWriter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger = logger.WithField("component", "trade-writer")
	return &TradeWriter{
		queue:  pipeline.NewQueue("storage", cfg.QueueSize, cfg.Overflow, logger),
		store:  store,
		logger: logger,
	}
}

// Name identifies the writer in dedup logs.
func (w *TradeWriter) Name() string { return "storage" }

// Forward queues a batch for writing. It implements dedup.Forwarder.
func (w *TradeWriter) Forward(ctx context.Context, b models.Batch) error {
	return w.queue.Send(ctx, b)
}

// Run writes queued batches until ctx is cancelled.
func (w *TradeWriter) Run(ctx context.Context) error {
	w.logger.Info("Starting trade writer")

	for {
		select {
		case <-ctx.Done():
			w.logger.WithField("pending", w.queue.Len()).Info("Trade writer stopped")
			return nil

		case b, ok := <-w.queue.C():
			if !ok {
				return nil
			}
			w.write(ctx, b)
		}
	}
}

func (w *TradeWriter) write(ctx context.Context, b models.Batch) {
	log := w.logger.WithFields(logrus.Fields{
		"exchange":   b.Key.Exchange,
		"asset_pair": b.Key.Pair.String(),
		"count":      len(b.Trades),
	})

	start := time.Now()
	if err := w.store.WriteTrades(ctx, b.Key.Exchange, b.Key.Pair, b.Trades); err != nil {
		log.WithError(err).Error("Failed to write trades")
		return
	}
	log.WithField("took", time.Since(start)).Debug("Trades written")
}
