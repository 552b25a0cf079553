package dedup

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
	"github.com/navid-fn/tickfold/internal/pipeline"
)

// relay moves filtered batches from the Run loop to one destination. Its
// queue drops the oldest batch when full, so a destination that stops
// accepting only ever blocks its own relay goroutine.
type relay struct {
	name      string
	forwarder Forwarder
	queue     *pipeline.Queue
	logger    logrus.FieldLogger
}

func newRelay(i int, f Forwarder, size int, logger logrus.FieldLogger) *relay {
	name := fmt.Sprintf("forward-%d", i)
	if n, ok := f.(interface{ Name() string }); ok {
		name = n.Name()
	}
	log := logger.WithField("destination", name)
	return &relay{
		name:      name,
		forwarder: f,
		queue:     pipeline.NewQueue("relay-"+name, size, pipeline.DropOldest, log),
		logger:    log,
	}
}

func (r *relay) run(ctx context.Context) {
	for {
		select {
		case b := <-r.queue.C():
			r.deliver(ctx, b)
		case <-ctx.Done():
			return
		}
	}
}

func (r *relay) deliver(ctx context.Context, b models.Batch) {
	if err := r.forwarder.Forward(ctx, b); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.WithFields(logrus.Fields{
			"exchange":   b.Key.Exchange,
			"asset_pair": b.Key.Pair.String(),
			"count":      len(b.Trades),
		}).WithError(err).Error("Failed to forward batch")
	}
}
