package dedup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
)

// bootstrap reads the last stored trade time of every known key and sends
// it to the Run loop. Failures leave the key at the epoch.
func (d *Deduplicator) bootstrap(ctx context.Context) {
	pairs, err := d.store.KnownAssetPairs(ctx)
	if err != nil {
		d.logger.WithError(err).Error("Bootstrap failed to list asset pairs")
		return
	}

	seeded := 0
	for _, exchange := range d.cfg.Exchanges {
		for _, pair := range pairs {
			key := models.Key{Exchange: exchange, Pair: pair}
			log := d.logger.WithFields(logrus.Fields{
				"exchange":   exchange,
				"asset_pair": pair.String(),
			})

			ts, ok, err := d.store.LastTradeTimestamp(ctx, exchange, pair)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("Bootstrap read failed, key stays at epoch")
				continue
			}
			if !ok {
				log.Debug("No stored trades for key")
				continue
			}

			select {
			case d.seeds <- seed{key: key, ts: ts}:
				seeded++
			case <-ctx.Done():
				return
			}
		}
	}

	d.logger.WithFields(logrus.Fields{
		"pairs":  len(pairs),
		"seeded": seeded,
	}).Info("Bootstrap finished")
}

// startResync schedules bootstrap to run again on cfg.ResyncSchedule. The
// returned func stops the scheduler and waits for a running job.
func (d *Deduplicator) startResync(ctx context.Context) (func(), error) {
	if d.cfg.ResyncSchedule == "" {
		return func() {}, nil
	}

	c := cron.New()
	_, err := c.AddFunc(d.cfg.ResyncSchedule, func() {
		d.logger.Info("Resyncing watermarks")
		d.bootstrap(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid resync schedule %q: %w", d.cfg.ResyncSchedule, err)
	}

	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
