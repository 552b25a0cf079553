// Package dedup filters incoming trade batches against a per-key watermark so
// that overlapping or replayed fetch windows are forwarded at most once.
//
// All watermark state is owned by the goroutine running Run. Ingest and the
// bootstrap reads only hand messages to that goroutine.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
)

// DefaultEpoch is the watermark of a key nothing is known about.
var DefaultEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	DefaultQueueSize      = 256
	DefaultRelayQueueSize = 1024
)

// Forwarder receives every non-empty filtered batch. Each forwarder is fed
// by its own relay goroutine, so Forward may block without holding up the
// other destinations. A forwarder that also has a Name() string method is
// logged under that name.
type Forwarder interface {
	Forward(ctx context.Context, b models.Batch) error
}

// Bootstrapper is the read side of storage used to seed watermarks.
type Bootstrapper interface {
	KnownAssetPairs(ctx context.Context) ([]models.Pair, error)
	LastTradeTimestamp(ctx context.Context, exchange models.Exchange, pair models.Pair) (time.Time, bool, error)
}

type Config struct {
	// Epoch is the watermark assumed for keys without stored trades.
	Epoch time.Time

	// QueueSize bounds the inbox that Ingest writes to.
	QueueSize int

	// RelayQueueSize bounds the backlog kept for each destination. When a
	// destination falls this far behind, its oldest batch is dropped.
	RelayQueueSize int

	// Exchanges are crossed with the stored asset pairs at bootstrap.
	Exchanges []models.Exchange

	// ResyncSchedule is a cron spec for re-running bootstrap. Empty disables it.
	ResyncSchedule string
}

type seed struct {
	key models.Key
	ts  time.Time
}

type Deduplicator struct {
	cfg    Config
	store  Bootstrapper
	relays []*relay
	logger logrus.FieldLogger

	inbox chan models.Batch
	seeds chan seed

	// owned by Run
	watermarks map[models.Key]time.Time
}

// New builds a Deduplicator. Nothing happens until Run is called.
func New(cfg Config, store Bootstrapper, logger logrus.FieldLogger, forwarders ...Forwarder) *Deduplicator {
	if cfg.Epoch.IsZero() {
		cfg.Epoch = DefaultEpoch
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.RelayQueueSize <= 0 {
		cfg.RelayQueueSize = DefaultRelayQueueSize
	}
	if len(cfg.Exchanges) == 0 {
		cfg.Exchanges = models.Exchanges
	}

	logger = logger.WithField("component", "dedup")
	relays := make([]*relay, len(forwarders))
	for i, f := range forwarders {
		relays[i] = newRelay(i, f, cfg.RelayQueueSize, logger)
	}

	return &Deduplicator{
		cfg:        cfg,
		store:      store,
		relays:     relays,
		logger:     logger,
		inbox:      make(chan models.Batch, cfg.QueueSize),
		seeds:      make(chan seed, cfg.QueueSize),
		watermarks: make(map[models.Key]time.Time),
	}
}

// Ingest queues a batch for filtering. It blocks while the inbox is full and
// returns ctx.Err() if ctx ends first.
func (d *Deduplicator) Ingest(ctx context.Context, b models.Batch) error {
	select {
	case d.inbox <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts bootstrap in the background and processes batches until ctx is
// done.
func (d *Deduplicator) Run(ctx context.Context) error {
	stopResync, err := d.startResync(ctx)
	if err != nil {
		return err
	}
	defer stopResync()

	var wg sync.WaitGroup
	defer wg.Wait()
	for _, r := range d.relays {
		wg.Add(1)
		go func(r *relay) {
			defer wg.Done()
			r.run(ctx)
		}(r)
	}

	go d.bootstrap(ctx)

	d.logger.WithField("epoch", d.cfg.Epoch).Info("Deduplicator started")
	for {
		select {
		case b := <-d.inbox:
			d.process(ctx, b)
		case s := <-d.seeds:
			d.applySeed(s)
		case <-ctx.Done():
			d.logger.Info("Deduplicator stopped")
			return nil
		}
	}
}

func (d *Deduplicator) watermark(key models.Key) time.Time {
	if w, ok := d.watermarks[key]; ok {
		return w
	}
	return d.cfg.Epoch
}

// filter keeps the trades strictly newer than the key's watermark, in input
// order, and advances the watermark to the newest one kept.
func (d *Deduplicator) filter(b models.Batch) []models.Trade {
	w := d.watermark(b.Key)

	var kept []models.Trade
	newest := w
	for _, t := range b.Trades {
		if !t.Timestamp.After(w) {
			continue
		}
		kept = append(kept, t)
		if t.Timestamp.After(newest) {
			newest = t.Timestamp
		}
	}

	if len(kept) > 0 {
		d.watermarks[b.Key] = newest
	}
	return kept
}

func (d *Deduplicator) process(ctx context.Context, b models.Batch) {
	kept := d.filter(b)

	log := d.logger.WithFields(logrus.Fields{
		"exchange":   b.Key.Exchange,
		"asset_pair": b.Key.Pair.String(),
	})
	if len(kept) == 0 {
		log.WithField("received", len(b.Trades)).Debug("Batch fully deduplicated")
		return
	}

	out := models.Batch{Key: b.Key, Trades: kept}
	for _, r := range d.relays {
		// The watermark stays advanced even if a destination rejects the batch.
		if err := r.queue.Send(ctx, out); err != nil {
			log.WithError(err).WithField("destination", r.name).Error("Failed to queue batch")
		}
	}
	log.WithFields(logrus.Fields{
		"received":  len(b.Trades),
		"forwarded": len(kept),
	}).Debug("Batch forwarded")
}

// applySeed raises the key's watermark to ts. A seed never lowers it.
func (d *Deduplicator) applySeed(s seed) {
	if cur, ok := d.watermarks[s.key]; ok && !s.ts.After(cur) {
		return
	}
	if !s.ts.After(d.cfg.Epoch) {
		return
	}
	d.watermarks[s.key] = s.ts
	d.logger.WithFields(logrus.Fields{
		"exchange":   s.key.Exchange,
		"asset_pair": s.key.Pair.String(),
		"watermark":  s.ts,
	}).Info("Watermark seeded")
}
