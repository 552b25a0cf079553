// Package pipeline provides the bounded hand-off used between pipeline
// stages. Each queue has exactly one sending goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
)

var ErrClosed = errors.New("queue closed")

// OverflowPolicy decides what Send does when the queue is full.
type OverflowPolicy int

const (
	// Block makes Send wait for room, applying backpressure to the sender.
	Block OverflowPolicy = iota
	// DropOldest discards the oldest queued batch so Send never waits.
	DropOldest
)

// ParseOverflowPolicy accepts "block" and "drop-oldest".
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "block", "":
		return Block, nil
	case "drop-oldest":
		return DropOldest, nil
	}
	return Block, fmt.Errorf("invalid overflow policy %q", s)
}

func (p OverflowPolicy) String() string {
	if p == DropOldest {
		return "drop-oldest"
	}
	return "block"
}

// Queue is a bounded FIFO of batches.
type Queue struct {
	name    string
	ch      chan models.Batch
	policy  OverflowPolicy
	logger  logrus.FieldLogger
	dropped atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewQueue creates a queue holding at most size batches. A size below one is
// raised to one.
func NewQueue(name string, size int, policy OverflowPolicy, logger logrus.FieldLogger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		name:   name,
		ch:     make(chan models.Batch, size),
		policy: policy,
		logger: logger.WithField("queue", name),
	}
}

// Send enqueues b according to the overflow policy.
func (q *Queue) Send(ctx context.Context, b models.Batch) error {
	if q.closed.Load() {
		return ErrClosed
	}

	select {
	case q.ch <- b:
		return nil
	default:
	}

	if q.policy == DropOldest {
		for {
			select {
			case old := <-q.ch:
				q.dropped.Add(1)
				q.logger.WithFields(logrus.Fields{
					"exchange":   old.Key.Exchange,
					"asset_pair": old.Key.Pair.String(),
					"count":      len(old.Trades),
				}).Warn("Queue full, dropped oldest batch")
			default:
			}

			select {
			case q.ch <- b:
				return nil
			default:
			}
		}
	}

	select {
	case q.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C is the receiving end of the queue.
func (q *Queue) C() <-chan models.Batch {
	return q.ch
}

// Len reports the number of queued batches.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped reports how many batches DropOldest has discarded.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close closes the receiving end. It must only be called by the sender.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
}
