// Package aggregator folds deduplicated trade batches into fixed-length OHLC
// candles aligned to wall-clock boundaries.
//
// The accumulation map is owned by the goroutine running Run. Batches arrive
// through a bounded queue and the flush timer is served by the same select
// loop, so a flush never interleaves with a fold.
package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/pipeline"
)

var ErrEmptyBatch = errors.New("empty batch")

const (
	DefaultPeriod    = 15 * time.Minute
	DefaultQueueSize = 256

	// candleWriteTimeout bounds a background candle write, which outlives
	// the Run context so that shutdown can wait for it.
	candleWriteTimeout = 30 * time.Second
)

// CandleStore persists flushed candles.
type CandleStore interface {
	WriteCandles(ctx context.Context, candles []models.Candle) error
}

type Config struct {
	// Period is the bucket length.
	Period time.Duration

	QueueSize int
	Overflow  pipeline.OverflowPolicy
}

type Aggregator struct {
	period time.Duration
	store  CandleStore
	logger logrus.FieldLogger
	queue  *pipeline.Queue
	now    func() time.Time

	// owned by Run
	accumulations map[models.Key]*Accumulation
	bucketStart   time.Time

	writes sync.WaitGroup
}

func New(cfg Config, store CandleStore, logger logrus.FieldLogger) *Aggregator {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger = logger.WithField("component", "aggregator")

	return &Aggregator{
		period:        cfg.Period,
		store:         store,
		logger:        logger,
		queue:         pipeline.NewQueue("aggregator", cfg.QueueSize, cfg.Overflow, logger),
		now:           time.Now,
		accumulations: make(map[models.Key]*Accumulation),
	}
}

func (a *Aggregator) Name() string { return "aggregator" }

// Forward hands a batch to the aggregator. It implements dedup.Forwarder.
func (a *Aggregator) Forward(ctx context.Context, b models.Batch) error {
	return a.queue.Send(ctx, b)
}

// Run folds incoming batches and flushes on every aligned boundary until ctx
// is done. In-progress accumulations are discarded on return.
func (a *Aggregator) Run(ctx context.Context) error {
	start := a.now()
	a.bucketStart = start
	sched := newSchedule(start, a.period)

	timer := time.NewTimer(sched.next.Sub(start))
	defer timer.Stop()
	defer a.writes.Wait()

	a.logger.WithFields(logrus.Fields{
		"period":      a.period,
		"first_flush": sched.next,
	}).Info("Aggregator started")

	for {
		select {
		case b, ok := <-a.queue.C():
			if !ok {
				return nil
			}
			if err := a.accumulate(b.Key, b.Trades); err != nil {
				a.logger.WithFields(logrus.Fields{
					"exchange":   b.Key.Exchange,
					"asset_pair": b.Key.Pair.String(),
				}).WithError(err).Error("Skipping batch")
			}

		case <-timer.C:
			now := a.now()
			a.flush(ctx, now)
			timer.Reset(sched.advance(now).Sub(now))

		case <-ctx.Done():
			a.logger.WithField("pending", len(a.accumulations)).Info("Aggregator stopped")
			return nil
		}
	}
}

// accumulate folds trades into the key's accumulation in the order given.
func (a *Aggregator) accumulate(key models.Key, trades []models.Trade) error {
	if len(trades) == 0 {
		return ErrEmptyBatch
	}

	acc, ok := a.accumulations[key]
	if !ok {
		acc = NewAccumulation(trades[0])
		a.accumulations[key] = acc
		trades = trades[1:]
	}
	for _, t := range trades {
		acc.Fold(t)
	}
	return nil
}

// flush swaps out the accumulation map, turns it into candles for
// [bucketStart, now) and writes them in the background. A failed write is
// logged and the candles are dropped. Cancelling ctx does not abort a
// write already started.
func (a *Aggregator) flush(ctx context.Context, now time.Time) []models.Candle {
	drained := a.accumulations
	a.accumulations = make(map[models.Key]*Accumulation)
	start := a.bucketStart
	a.bucketStart = now

	if len(drained) == 0 {
		a.logger.Debug("Nothing to flush")
		return nil
	}

	candles := make([]models.Candle, 0, len(drained))
	for key, acc := range drained {
		candles = append(candles, acc.Candle(key, start, now))
	}

	a.writes.Add(1)
	go func() {
		defer a.writes.Done()
		log := a.logger.WithFields(logrus.Fields{
			"count": len(candles),
			"start": start,
			"end":   now,
		})
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), candleWriteTimeout)
		defer cancel()
		if err := a.store.WriteCandles(writeCtx, candles); err != nil {
			log.WithError(err).Error("Failed to write candles, dropping batch")
			return
		}
		log.Info("Candles flushed")
	}()

	return candles
}
