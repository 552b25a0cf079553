package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tickfold/internal/models"
)

// ErrCircuitOpen is returned by a guarded write while the breaker is open.
var ErrCircuitOpen = errors.New("storage circuit breaker is open")

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig tunes WithCircuitBreaker.
type BreakerConfig struct {
	MaxFailures      int           // consecutive failures before opening
	Timeout          time.Duration // time spent open before a trial write
	SuccessThreshold int           // consecutive successes to close from half-open
}

// breaker fails writes fast once the store has failed MaxFailures times in a
// row, so a dead store sheds batches immediately instead of holding every
// queue behind a full retry cycle. Reads pass straight through.
type breaker struct {
	Gateway
	cfg    BreakerConfig
	logger logrus.FieldLogger
	now    func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// WithCircuitBreaker guards the write methods of gw. Zero config fields fall
// back to 5 failures, 60s open and 3 successes.
func WithCircuitBreaker(gw Gateway, cfg BreakerConfig, logger logrus.FieldLogger) Gateway {
	return newBreaker(gw, cfg, logger)
}

func newBreaker(gw Gateway, cfg BreakerConfig, logger logrus.FieldLogger) *breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 3
	}
	return &breaker{
		Gateway: gw,
		cfg:     cfg,
		logger:  logger.WithField("component", "storage-breaker"),
		now:     time.Now,
	}
}

func (b *breaker) WriteTrades(ctx context.Context, exchange models.Exchange, pair models.Pair, trades []models.Trade) error {
	return b.execute(ctx, func() error {
		return b.Gateway.WriteTrades(ctx, exchange, pair, trades)
	})
}

func (b *breaker) WriteCandles(ctx context.Context, candles []models.Candle) error {
	return b.execute(ctx, func() error {
		return b.Gateway.WriteCandles(ctx, candles)
	})
}

// State reports the current breaker state.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) execute(ctx context.Context, fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	// Our own shutdown says nothing about the store.
	if err != nil && ctx.Err() != nil {
		return err
	}
	b.record(err)
	return err
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.Timeout {
			return false
		}
		b.successes = 0
		b.setState(BreakerHalfOpen)
		return true
	default:
		return true
	}
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.successes = 0
		b.lastFailure = b.now()

		switch b.state {
		case BreakerClosed:
			if b.failures >= b.cfg.MaxFailures {
				b.setState(BreakerOpen)
			}
		case BreakerHalfOpen:
			b.setState(BreakerOpen)
		}
		return
	}

	b.failures = 0
	b.successes++
	if b.state == BreakerHalfOpen && b.successes >= b.cfg.SuccessThreshold {
		b.setState(BreakerClosed)
	}
}

// setState must be called with mu held.
func (b *breaker) setState(state BreakerState) {
	if b.state == state {
		return
	}
	log := b.logger.WithFields(logrus.Fields{
		"from":     b.state.String(),
		"to":       state.String(),
		"failures": b.failures,
	})
	b.state = state
	if state == BreakerOpen {
		log.Warn("Storage circuit breaker opened")
		return
	}
	log.Info("Storage circuit breaker state changed")
}
