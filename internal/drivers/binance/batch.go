package binance

import (
	"sync"
	"time"

	"github.com/navid-fn/tickfold/internal/models"
)

// pending holds the unpublished trades of one key.
type pending struct {
	trades      []models.Trade
	lastArrival time.Time
}

// batcher groups streamed trades per key. Binance reports every fill of a
// sweeping order as its own frame with the same trade time, and the
// deduplicator only lets the first trade of a millisecond through once the
// watermark has reached it. The batcher therefore never splits one
// millisecond across two batches: the newest millisecond of a key is held
// back until the key has been quiet for a full interval.
type batcher struct {
	mu      sync.Mutex
	pending map[models.Key]*pending
}

func newBatcher() *batcher {
	return &batcher{pending: make(map[models.Key]*pending)}
}

func (b *batcher) add(key models.Key, trades []models.Trade, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[key]
	if !ok {
		p = &pending{}
		b.pending[key] = p
	}
	p.trades = append(p.trades, trades...)
	p.lastArrival = now
}

// take removes and returns the batches ready at now.
func (b *batcher) take(now time.Time, quiet time.Duration) []models.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Batch
	for key, p := range b.pending {
		if len(p.trades) == 0 {
			delete(b.pending, key)
			continue
		}
		if now.Sub(p.lastArrival) >= quiet {
			out = append(out, models.Batch{Key: key, Trades: p.trades})
			delete(b.pending, key)
			continue
		}

		newest := p.trades[0].Timestamp
		for _, t := range p.trades[1:] {
			if t.Timestamp.After(newest) {
				newest = t.Timestamp
			}
		}

		var ready, held []models.Trade
		for _, t := range p.trades {
			if t.Timestamp.Before(newest) {
				ready = append(ready, t)
			} else {
				held = append(held, t)
			}
		}
		if len(ready) > 0 {
			out = append(out, models.Batch{Key: key, Trades: ready})
			p.trades = held
		}
	}
	return out
}
